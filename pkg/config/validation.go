package config

import (
	"reflect"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Validator is implemented by config structs that need cross-field checks.
// Validate runs after every required tag is satisfied. A returned
// *sserr.Error passes through unchanged; other errors become VAL_001.
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		if _, typed := sserr.AsError(err); typed {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
	}
	return nil
}

// validateRequired reports the first zero-valued `required:"true"` field
// by its dotted path, e.g. "Webhook.Secret".
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}
		if field.Kind() == reflect.Struct {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}
	return nil
}
