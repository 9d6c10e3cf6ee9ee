package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report errors under the JSON field name, not the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// validateStruct checks req and returns a field→message map, empty on success.
func validateStruct(req interface{}) map[string]string {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	fields := make(map[string]string)

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		fields["_"] = err.Error()
		return fields
	}

	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}

	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Must be at least %s characters long", fe.Param())
		}
		return fmt.Sprintf("Must contain at least %s items", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Cannot exceed %s characters", fe.Param())
		}
		return fmt.Sprintf("Cannot contain more than %s items", fe.Param())
	case "len":
		return fmt.Sprintf("Must be exactly %s characters long", fe.Param())
	case "gt":
		return fmt.Sprintf("Must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("Failed validation on '%s'", fe.Tag())
	}
}
