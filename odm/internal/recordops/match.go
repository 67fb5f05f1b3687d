package recordops

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hydromelvictor/gogoose/odm"
)

// Match reports whether record satisfies filter.
func Match(record odm.Record, filter odm.Filter) (bool, error) {
	for key, condition := range filter {
		matched, err := matchKey(record, key, condition)
		if err != nil || !matched {
			return false, err
		}
	}

	return true, nil
}

func matchKey(record odm.Record, key string, condition any) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		return matchLogical(record, key, condition)
	}

	if strings.HasPrefix(key, "$") {
		return false, fmt.Errorf("%w: %s", odm.ErrUnsupportedOperator, key)
	}

	value, present := Lookup(record, key)

	return matchCondition(value, present, condition)
}

func matchLogical(record odm.Record, operator string, condition any) (bool, error) {
	clauses, ok := AsSlice(condition)
	if !ok {
		return false, fmt.Errorf("%w: %s needs a list of filters", odm.ErrUnsupportedOperator, operator)
	}

	for _, clause := range clauses {
		sub, ok := AsMap(clause)
		if !ok {
			return false, fmt.Errorf("%w: %s needs a list of filters", odm.ErrUnsupportedOperator, operator)
		}

		matched, err := Match(record, sub)
		if err != nil {
			return false, err
		}

		switch {
		case operator == "$and" && !matched:
			return false, nil
		case operator == "$or" && matched:
			return true, nil
		case operator == "$nor" && matched:
			return false, nil
		}
	}

	return operator != "$or", nil
}

// IsOperatorDocument reports whether v is a non-empty map whose keys are all operators.
func IsOperatorDocument(v any) bool {
	m, ok := AsMap(v)
	if !ok || len(m) == 0 {
		return false
	}

	for key := range m {
		if !strings.HasPrefix(key, "$") {
			return false
		}
	}

	return true
}

func matchCondition(value any, present bool, condition any) (bool, error) {
	if !IsOperatorDocument(condition) {
		return matchEquality(value, present, condition), nil
	}

	operators, _ := AsMap(condition)
	for operator, operand := range operators {
		matched, err := matchOperator(value, present, operator, operand, operators)
		if err != nil || !matched {
			return false, err
		}
	}

	return true, nil
}

// matchEquality treats a nil condition as "missing or null" and lets an array field match
// when any element equals the condition.
func matchEquality(value any, present bool, condition any) bool {
	if condition == nil {
		return !present || value == nil
	}

	if !present {
		return false
	}

	if Equal(value, condition) {
		return true
	}

	if _, conditionIsSlice := AsSlice(condition); !conditionIsSlice {
		if items, ok := AsSlice(value); ok {
			for _, item := range items {
				if Equal(item, condition) {
					return true
				}
			}
		}
	}

	return false
}

//nolint:gocyclo
func matchOperator(value any, present bool, operator string, operand any, all map[string]any) (bool, error) {
	switch operator {
	case "$eq":
		return matchEquality(value, present, operand), nil

	case "$ne":
		return !matchEquality(value, present, operand), nil

	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		return matchRange(value, operator, operand), nil

	case "$in", "$nin":
		candidates, ok := AsSlice(operand)
		if !ok {
			return false, fmt.Errorf("%w: %s needs a list", odm.ErrUnsupportedOperator, operator)
		}
		found := false
		for _, candidate := range candidates {
			if matchEquality(value, present, candidate) {
				found = true
				break
			}
		}
		return found == (operator == "$in"), nil

	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return false, fmt.Errorf("%w: $exists needs a bool", odm.ErrUnsupportedOperator)
		}
		return present == want, nil

	case "$regex":
		return matchRegex(value, present, operand, all["$options"])

	case "$options":
		return true, nil

	case "$size":
		want, ok := ToInt64(operand)
		if !ok {
			return false, fmt.Errorf("%w: $size needs an integer", odm.ErrUnsupportedOperator)
		}
		items, isSlice := AsSlice(value)
		return present && isSlice && int64(len(items)) == want, nil

	case "$not":
		matched, err := matchCondition(value, present, operand)
		return !matched, err

	default:
		return false, fmt.Errorf("%w: %s", odm.ErrUnsupportedOperator, operator)
	}
}

func matchRange(value any, operator string, operand any) bool {
	check := func(candidate any) bool {
		result, ok := Compare(candidate, operand)
		if !ok {
			return false
		}

		switch operator {
		case "$gt":
			return result > 0
		case "$gte":
			return result >= 0
		case "$lt":
			return result < 0
		default:
			return result <= 0
		}
	}

	if check(value) {
		return true
	}

	if items, ok := AsSlice(value); ok {
		for _, item := range items {
			if check(item) {
				return true
			}
		}
	}

	return false
}

func matchRegex(value any, present bool, pattern any, options any) (bool, error) {
	expr, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("%w: $regex needs a string pattern", odm.ErrUnsupportedOperator)
	}

	if flags, ok := options.(string); ok && strings.Contains(flags, "i") {
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("%w: $regex: %w", odm.ErrUnsupportedOperator, err)
	}

	s, isString := value.(string)

	return present && isString && re.MatchString(s), nil
}
