package serverutils

import (
	"errors"
	"reflect"

	"pdfchat-be/internal/pkg/apperror"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateRequest checks `validate` tags on a request DTO. The first failing field decides the
// message: its `msg` tag when present, otherwise the validator's own text.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return apperror.Validation(err.Error())
	}

	fe := errs[0]
	t := reflect.TypeOf(req)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if field, ok := t.FieldByName(fe.StructField()); ok {
		if msg := field.Tag.Get("msg"); msg != "" {
			return apperror.Validation(msg)
		}
	}
	return apperror.Validation(fe.Error())
}
