package utils

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs the `validate` struct tags of an input.
// The returned error lists every failed field as field:tag.
func ValidateStruct(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	parts := make([]string, 0, len(validationErrors))
	for _, ve := range validationErrors {
		parts = append(parts, ve.Namespace()+":"+ve.Tag())
	}
	return errors.New("invalid input: " + strings.Join(parts, ", "))
}

func DereferencePtr[T any](ptr *T, defaultValue T) T {
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

func UniqueSlice[T comparable](s []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, str := range s {
		if _, ok := inResult[str]; !ok {
			inResult[str] = true
			result = append(result, str)
		}
	}
	return result
}

