package main

import (
	"encoding/json"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/hydromelvictor/gogoose/odm"
)

var (
	ErrInvalidJSON  = errors.New("invalid json input")
	ErrNotAnObject  = errors.New("json value is not an object")
	jsonInputConfig = jsoniter.Config{UseNumber: true}.Froze()
	jsonOutput      = jsoniter.ConfigCompatibleWithStandardLibrary
)

// decodeJSON decodes data keeping integers as int64 and other numbers as float64.
func decodeJSON(data []byte) (any, error) {
	var value any
	if err := jsonInputConfig.Unmarshal(data, &value); err != nil {
		return nil, errors.Join(ErrInvalidJSON, err)
	}

	return normalizeNumbers(value), nil
}

func normalizeNumbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		for key, item := range v {
			v[key] = normalizeNumbers(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeNumbers(item)
		}
		return v
	default:
		return value
	}
}

func decodeFilter(data string) (odm.Filter, error) {
	if data == "" {
		return odm.Filter{}, nil
	}

	value, err := decodeJSON([]byte(data))
	if err != nil {
		return nil, err
	}

	object, ok := value.(map[string]any)
	if !ok {
		return nil, ErrNotAnObject
	}

	return odm.Filter(object), nil
}

// decodeRecords accepts a single object or an array of objects.
func decodeRecords(data []byte) ([]odm.Record, error) {
	value, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}

	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}

	records := make([]odm.Record, 0, len(items))
	for i, item := range items {
		object, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d: %w", i, ErrNotAnObject)
		}

		records = append(records, odm.Record(object))
	}

	return records, nil
}
