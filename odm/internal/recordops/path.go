package recordops

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hydromelvictor/gogoose/odm"
)

// Lookup resolves a dotted path ("address.city", "tags.0") in a record.
func Lookup(record odm.Record, path string) (any, bool) {
	var current any = map[string]any(record)

	for _, segment := range strings.Split(path, ".") {
		if m, ok := AsMap(current); ok {
			value, present := m[segment]
			if !present {
				return nil, false
			}
			current = value
			continue
		}

		if s, ok := AsSlice(current); ok {
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(s) {
				return nil, false
			}
			current = s[i]
			continue
		}

		return nil, false
	}

	return current, true
}

// SetPath assigns a value at a dotted path, creating intermediate maps.
func SetPath(record odm.Record, path string, value any) error {
	segments := strings.Split(path, ".")
	current := map[string]any(record)

	for _, segment := range segments[:len(segments)-1] {
		next, present := current[segment]
		if !present || next == nil {
			created := map[string]any{}
			current[segment] = created
			current = created
			continue
		}

		m, ok := AsMap(next)
		if !ok {
			return fmt.Errorf("%w: cannot create field %q inside non-object %q", odm.ErrInvalidUpdate, path, segment)
		}
		current = m
	}

	current[segments[len(segments)-1]] = value

	return nil
}

// UnsetPath removes the value at a dotted path. Missing paths are ignored.
func UnsetPath(record odm.Record, path string) {
	segments := strings.Split(path, ".")
	current := map[string]any(record)

	for _, segment := range segments[:len(segments)-1] {
		m, ok := AsMap(current[segment])
		if !ok {
			return
		}
		current = m
	}

	delete(current, segments[len(segments)-1])
}
