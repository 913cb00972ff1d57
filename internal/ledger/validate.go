package ledger

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// SetupInput is the raw profile setup form.
type SetupInput struct {
	Level  string `json:"level" validate:"required,oneof=A1 A2 B1 B2 C1 C2"`
	Age    string `json:"age" validate:"required,posint"`
	Reason string `json:"reason" validate:"notblank"`
}

var (
	validate   *validator.Validate
	translator ut.Translator

	posIntTag  = "posint"
	posIntText = "{0} must be a positive whole number"

	notBlankTag  = "notblank"
	requiredTag  = "required"
	requiredText = "{0} is required"
)

func init() {
	locale := en.New()
	translator, _ = ut.New(locale, locale).GetTranslator("en")
	validate = validator.New()
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(posIntTag, posIntValidation)
	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	registerTranslation(posIntTag, posIntText)
	registerTranslation(notBlankTag, requiredText)
	registerTranslation(requiredTag, requiredText)
}

func registerTranslation(tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func posIntValidation(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
	return err == nil && n > 0
}

func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ValidateSetup checks every field of in and returns a *ValidationError listing all failures.
func ValidateSetup(in SetupInput) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Error: fe.Translate(translator)})
	}
	return &ValidationError{Fields: fields}
}
