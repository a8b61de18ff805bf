// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagesync

import (
	"fmt"
	"slices"
)

// ValidationError reports a mutation carrying a missing required field or
// a value outside its field's enum. It is surfaced to callers before any
// store mutation takes place.
type ValidationError struct {
	Collection string
	Field      string
	Value      string // non-empty for enum violations
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("%s: invalid value %q for field %q", e.Collection, e.Value, e.Field)
	}
	return fmt.Sprintf("%s: missing required field %q", e.Collection, e.Field)
}

// Validate checks that a row carries every required field for its
// collection, and that any present enum field holds an allowed value.
// Numeric zero values are accepted; only absent or empty-string required
// fields fail. Enum fields are checked only when present, so a patch that
// does not touch them passes.
func Validate(c Collection, row Row) error {
	for _, field := range c.Required {
		v, ok := row[field]
		if !ok || v == nil {
			return &ValidationError{Collection: c.Name, Field: field}
		}
		if s, isStr := v.(string); isStr && s == "" {
			return &ValidationError{Collection: c.Name, Field: field}
		}
	}
	return ValidateEnums(c, row)
}

// ValidateEnums checks only the enum fields, so it also applies to partial
// update patches.
func ValidateEnums(c Collection, row Row) error {
	for field, allowed := range c.Enums {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		s, isStr := v.(string)
		if !isStr || !slices.Contains(allowed, s) {
			return &ValidationError{Collection: c.Name, Field: field, Value: fmt.Sprint(v)}
		}
	}
	return nil
}
