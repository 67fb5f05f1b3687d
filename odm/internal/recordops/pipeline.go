package recordops

import (
	"fmt"
	"strings"

	"github.com/hydromelvictor/gogoose/odm"
)

// RunPipeline evaluates aggregation stages over records. Supported stages are $match, $sort,
// $skip, $limit, $project, $unwind, $group and $count. The input slice is not modified.
func RunPipeline(records []odm.Record, pipeline []odm.Record) ([]odm.Record, error) {
	current := make([]odm.Record, len(records))
	for i, record := range records {
		current[i] = record.Clone()
	}

	for i, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("%w: stage %d must have exactly one operator", odm.ErrInvalidPipeline, i)
		}

		for operator, spec := range stage {
			next, err := runStage(current, operator, spec)
			if err != nil {
				return nil, fmt.Errorf("stage %d (%s): %w", i, operator, err)
			}
			current = next
		}
	}

	return current, nil
}

//nolint:gocyclo
func runStage(records []odm.Record, operator string, spec any) ([]odm.Record, error) {
	switch operator {
	case "$match":
		filter, ok := AsMap(spec)
		if !ok {
			return nil, fmt.Errorf("%w: $match needs a filter", odm.ErrInvalidPipeline)
		}
		out := make([]odm.Record, 0, len(records))
		for _, record := range records {
			matched, err := Match(record, filter)
			if err != nil {
				return nil, err
			}
			if matched {
				out = append(out, record)
			}
		}
		return out, nil

	case "$sort":
		sortSpec, err := SortSpecFrom(spec)
		if err != nil {
			return nil, err
		}
		Sort(records, sortSpec)
		return records, nil

	case "$skip", "$limit":
		n, ok := ToInt64(spec)
		if !ok || n < 0 {
			return nil, fmt.Errorf("%w: %s needs a non-negative integer", odm.ErrInvalidPipeline, operator)
		}
		if operator == "$skip" {
			return Window(records, &n, nil), nil
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: $limit must be positive", odm.ErrInvalidPipeline)
		}
		return Window(records, nil, &n), nil

	case "$project":
		projection, err := ProjectionFrom(spec)
		if err != nil {
			return nil, err
		}
		out := make([]odm.Record, len(records))
		for i, record := range records {
			if out[i], err = Project(record, projection); err != nil {
				return nil, err
			}
		}
		return out, nil

	case "$unwind":
		return unwind(records, spec)

	case "$group":
		return group(records, spec)

	case "$count":
		name, ok := spec.(string)
		if !ok || name == "" || strings.HasPrefix(name, "$") {
			return nil, fmt.Errorf("%w: $count needs a field name", odm.ErrInvalidPipeline)
		}
		return []odm.Record{{name: int64(len(records))}}, nil

	default:
		return nil, fmt.Errorf("%w: %s", odm.ErrUnsupportedOperator, operator)
	}
}

// SortSpecFrom accepts a SortSpec, a []SortField, or a mapping of field to direction.
// Mappings have no order of their own, so their keys are applied in sorted order.
func SortSpecFrom(spec any) (odm.SortSpec, error) {
	switch s := spec.(type) {
	case odm.SortSpec:
		return s, nil
	case []odm.SortField:
		return s, nil
	}

	m, ok := AsMap(spec)
	if !ok || len(m) == 0 {
		return nil, fmt.Errorf("%w: $sort needs a sort specification", odm.ErrInvalidPipeline)
	}

	out := make(odm.SortSpec, 0, len(m))
	for _, field := range sortedKeys(m) {
		direction, ok := ToInt64(m[field])
		if !ok || (direction != 1 && direction != -1) {
			return nil, fmt.Errorf("%w: sort direction for %q must be 1 or -1", odm.ErrInvalidPipeline, field)
		}
		out = append(out, odm.SortField{Field: field, Direction: int(direction)})
	}

	return out, nil
}

// ProjectionFrom accepts a Projection or a mapping of field to 0/1 or bool.
func ProjectionFrom(spec any) (odm.Projection, error) {
	if p, ok := spec.(odm.Projection); ok {
		return p, nil
	}

	m, ok := AsMap(spec)
	if !ok {
		return nil, fmt.Errorf("%w: $project needs a mapping", odm.ErrInvalidPipeline)
	}

	out := make(odm.Projection, len(m))
	for field, flag := range m {
		switch f := flag.(type) {
		case bool:
			if f {
				out[field] = 1
			} else {
				out[field] = 0
			}
		default:
			n, ok := ToInt64(f)
			if !ok {
				return nil, fmt.Errorf("%w: computed projections are not supported (%q)", odm.ErrUnsupportedOperator, field)
			}
			if n != 0 {
				n = 1
			}
			out[field] = int(n)
		}
	}

	return out, nil
}

func unwind(records []odm.Record, spec any) ([]odm.Record, error) {
	path, ok := spec.(string)
	if !ok || !strings.HasPrefix(path, "$") {
		return nil, fmt.Errorf("%w: $unwind needs a \"$field\" path", odm.ErrInvalidPipeline)
	}
	path = strings.TrimPrefix(path, "$")

	out := make([]odm.Record, 0, len(records))
	for _, record := range records {
		value, present := Lookup(record, path)
		items, isSlice := AsSlice(value)
		if !present || !isSlice {
			continue
		}

		for _, item := range items {
			unwound := record.Clone()
			if err := SetPath(unwound, path, odm.CloneValue(item)); err != nil {
				return nil, err
			}
			out = append(out, unwound)
		}
	}

	return out, nil
}
