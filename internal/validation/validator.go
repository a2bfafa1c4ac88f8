// Snapvault - File Tree and SQL Database Backup/Restore Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snapvault

// Package validation wraps go-playground/validator v10 with a shared,
// lazily built validator instance and Snapvault's custom tags.
//
// Custom tags:
//   - snapshotname: a backup base name that is safe to embed in a filename
//     (letters, digits, dot, dash and underscore; no leading dot)
//   - relpath: a slash-separated path relative to the installation root
//     (no absolute paths, no ".." segments)
//
// Example:
//
//	type CreateRequest struct {
//	    Name string `validate:"omitempty,snapshotname"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    return err
//	}
package validation

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var snapshotNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,127}$`)

// FieldError is a single failed field.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// Error returns the human-readable message.
func (e FieldError) Error() string {
	return e.Message
}

// Errors collects every field that failed validation.
type Errors []FieldError

// Error joins all field messages.
func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve))
	for i, e := range ve {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("snapshotname", func(fl validator.FieldLevel) bool {
			return IsSnapshotName(fl.Field().String())
		})
		_ = validate.RegisterValidation("relpath", func(fl validator.FieldLevel) bool {
			return IsRelPath(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct validates s, returning nil or an Errors value.
func ValidateStruct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Namespace(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		})
	}
	return out
}

// IsSnapshotName reports whether name can be used as a backup base name.
func IsSnapshotName(name string) bool {
	return snapshotNamePattern.MatchString(name) && !strings.Contains(name, "..")
}

// IsRelPath reports whether p is a clean relative path inside a root.
func IsRelPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return false
	}
	for _, seg := range strings.Split(path.Clean(p), "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

func translate(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "snapshotname":
		return fmt.Sprintf("%s must contain only letters, digits, '.', '-' or '_'", field)
	case "relpath":
		return fmt.Sprintf("%s must be a relative path without '..'", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a host:port address", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
