package http

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"libraryapi/internal/loan"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterValidation("loan_condition", validateLoanCondition)
}

func validateLoanCondition(fl validator.FieldLevel) bool {
	return loan.ValidateCondition(fl.Field().String()) == nil
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func ValidateStruct(s interface{}) []ValidationError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var errors []ValidationError
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		tag := err.Tag()
		param := err.Param()

		var message string
		switch tag {
		case "required":
			message = fmt.Sprintf("%s is required", field)
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", field, param)
		case "lte":
			message = fmt.Sprintf("%s must be at most %s", field, param)
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", field, param)
		case "loan_condition":
			message = fmt.Sprintf("%s must be one of the known copy conditions", field)
		default:
			message = fmt.Sprintf("%s is invalid", field)
		}

		fieldName := strings.ToLower(field[:1]) + field[1:]
		errors = append(errors, ValidationError{
			Field:   fieldName,
			Message: message,
		})
	}

	return errors
}
