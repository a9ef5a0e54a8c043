package rest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

func newValidator() (*validator.Validate, error) {
	validate := validator.New()
	if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		return nil, fmt.Errorf("error registering notblank validation: %w", err)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate, nil
}

// validateCreate checks a create request.
func validateCreate(validate *validator.Validate, req createUserRequest) []validationError {
	return toValidationErrors(validate.Struct(req), "")
}

// validateUpdate checks the fields present in an update request with the create rules,
// except that none of them is required.
func validateUpdate(validate *validator.Validate, req updateUserRequest) []validationError {
	var errs []validationError
	if req.Name != nil {
		errs = append(errs, toValidationErrors(validate.Var(*req.Name, "notblank,max=25"), "name")...)
	}
	if req.Email != nil {
		errs = append(errs, toValidationErrors(validate.Var(*req.Email, "notblank,email,max=50"), "email")...)
	}
	if req.Age != nil {
		errs = append(errs, toValidationErrors(validate.Var(*req.Age, "gte=0"), "age")...)
	}
	return errs
}

// toValidationErrors flattens validator errors. field names the value for validate.Var errors,
// which carry no field name of their own.
func toValidationErrors(err error, field string) []validationError {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []validationError{{Field: field, Message: err.Error(), Type: "invalid"}}
	}
	errs := make([]validationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Field()
		if name == "" {
			name = field
		}
		errs = append(errs, validationError{
			Field:   name,
			Message: validationMessage(name, fe),
			Type:    fe.Tag(),
		})
	}
	return errs
}

func validationMessage(field string, fe validator.FieldError) string {
	label := "Value"
	if field != "" {
		label = strings.ToUpper(field[:1]) + field[1:]
	}
	switch fe.Tag() {
	case "notblank":
		return label + " must not be blank"
	case "required":
		return label + " must not be null"
	case "max":
		return fmt.Sprintf("%s must be less than %s characters", label, fe.Param())
	case "email":
		return label + " should be valid"
	case "gte":
		return label + " must be positive or zero"
	default:
		return label + " is invalid"
	}
}
