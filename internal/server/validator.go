package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/labstack/echo/v4"
)

// FieldsError carries per-field validation messages keyed by JSON name.
type FieldsError struct {
	Fields map[string]string
}

func (f *FieldsError) Error() string {
	return "Fields error"
}

// Validator implements echo.Validator with English messages.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{validate: v, trans: trans}
}

func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return echo.NewHTTPError(http.StatusBadRequest, "Request body is not valid").SetInternal(err)
	}

	fields := make(map[string]string, len(errs))
	for _, e := range errs {
		fields[fieldPath(e)] = e.Translate(v.trans)
	}
	return &FieldsError{Fields: fields}
}

// fieldPath drops the root struct name from the namespace, so nested
// fields read "question.text" rather than "FeedbackRequest.question.text".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

// bindAndValidate decodes the request into req and validates it.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
			return err
		}
		return echo.NewHTTPError(http.StatusBadRequest, "Request body is not valid").SetInternal(err)
	}
	return c.Validate(req)
}
