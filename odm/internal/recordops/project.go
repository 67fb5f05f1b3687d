package recordops

import (
	"fmt"
	"slices"

	"github.com/hydromelvictor/gogoose/odm"
)

// Project applies an inclusion or exclusion projection. The identity is included unless it is
// excluded explicitly; mixing inclusions and exclusions of other fields is an error.
func Project(record odm.Record, projection odm.Projection) (odm.Record, error) {
	if len(projection) == 0 {
		return record.Clone(), nil
	}

	inclusive, err := projectionMode(projection)
	if err != nil {
		return nil, err
	}

	if !inclusive {
		out := record.Clone()
		for path := range projection {
			UnsetPath(out, path)
		}

		return out, nil
	}

	out := odm.Record{}
	if flag, set := projection[odm.IDField]; !set || flag != 0 {
		if id, ok := record[odm.IDField]; ok {
			out[odm.IDField] = id
		}
	}

	for _, path := range sortedKeys(projection) {
		if path == odm.IDField || projection[path] == 0 {
			continue
		}

		if value, ok := Lookup(record, path); ok {
			if err := SetPath(out, path, odm.CloneValue(value)); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

func projectionMode(projection odm.Projection) (inclusive bool, err error) {
	included, excluded := 0, 0

	for path, flag := range projection {
		if path == odm.IDField {
			continue
		}

		if flag == 0 {
			excluded++
		} else {
			included++
		}
	}

	if included > 0 && excluded > 0 {
		return false, fmt.Errorf("%w: projection mixes inclusion and exclusion", odm.ErrUnsupportedOperator)
	}

	if included == 0 && excluded == 0 {
		return projection[odm.IDField] != 0, nil
	}

	return included > 0, nil
}

// Sort orders records in place by spec. The sort is stable; missing fields sort like nil.
func Sort(records []odm.Record, spec odm.SortSpec) {
	if len(spec) == 0 {
		return
	}

	slices.SortStableFunc(records, func(a, b odm.Record) int {
		for _, key := range spec {
			va, _ := Lookup(a, key.Field)
			vb, _ := Lookup(b, key.Field)

			if c := SortCompare(va, vb); c != 0 {
				if key.Direction < 0 {
					return -c
				}
				return c
			}
		}

		return 0
	})
}

// Window applies skip and limit to records already in order. A limit of zero means no limit.
func Window(records []odm.Record, skip, limit *int64) []odm.Record {
	if skip != nil && *skip > 0 {
		if *skip >= int64(len(records)) {
			return records[:0]
		}
		records = records[*skip:]
	}

	if limit != nil && *limit > 0 && *limit < int64(len(records)) {
		records = records[:*limit]
	}

	return records
}
