package odm

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
)

// ValidatorEmail is the id of the built-in e-mail validator.
const ValidatorEmail = "email"

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[A-Za-z]{2,}$`)

var errInvalidEmail = errors.New("invalid email format")

var builtinValidators = struct {
	sync.RWMutex
	byName map[string]ValidatorFunc
}{
	byName: map[string]ValidatorFunc{
		ValidatorEmail: validateEmail,
	},
}

func validateEmail(value any) (any, error) {
	if !emailPattern.MatchString(fmt.Sprint(value)) {
		return nil, errInvalidEmail
	}

	return value, nil
}

// RegisterValidator makes a validator available by name to the "validate" field option.
// Registering an existing name replaces it.
func RegisterValidator(name string, fn ValidatorFunc) {
	builtinValidators.Lock()
	defer builtinValidators.Unlock()

	builtinValidators.byName[name] = fn
}

// LookupValidator returns the validator registered under name.
func LookupValidator(name string) (ValidatorFunc, bool) {
	builtinValidators.RLock()
	defer builtinValidators.RUnlock()

	fn, ok := builtinValidators.byName[name]

	return fn, ok
}

// Predicate adapts a boolean check into a ValidatorFunc that keeps the value unchanged.
func Predicate(check func(value any) bool) ValidatorFunc {
	return func(value any) (any, error) {
		if !check(value) {
			return nil, fmt.Errorf("predicate returned false for %v", value)
		}

		return value, nil
	}
}
