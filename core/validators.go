package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

type boundTexts struct {
	number, str, items string
}

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "only alphanumeric characters and underscores are allowed"
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"

	// {0} is the tag param
	minTag   = "min"
	minTexts = boundTexts{
		number: "must be at least {0}",
		str:    "must be at least {0} characters long",
		items:  "must contain at least {0} items",
	}
	maxTag   = "max"
	maxTexts = boundTexts{
		number: "must be at most {0}",
		str:    "must be at most {0} characters long",
		items:  "must contain at most {0} items",
	}
	oneOfTag  = "oneof"
	oneOfText = "must be one of: {0}"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// errors are keyed by the JSON names the clients send
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, alphaNumUnderText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)

	registerBoundTranslation(validate, translator, minTag, minTexts)
	registerBoundTranslation(validate, translator, maxTag, maxTexts)
	_ = validate.RegisterTranslation(
		oneOfTag, translator,
		func(t ut.Translator) error { return t.Add(oneOfTag, oneOfText, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(oneOfTag, strings.Join(strings.Fields(fe.Param()), ", "))
			return s
		},
	)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// registerBoundTranslation translates a min/max style tag according to the kind of the field:
// a value bound for numbers, a length for strings and a size for collections.
func registerBoundTranslation(validate *validator.Validate, translator ut.Translator, tag string, texts boundTexts) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error {
			for key, text := range map[string]string{
				tag + "-number": texts.number,
				tag + "-string": texts.str,
				tag + "-items":  texts.items,
			} {
				if err := t.Add(key, text, true); err != nil {
					return err
				}
			}
			return nil
		},
		func(t ut.Translator, fe validator.FieldError) string {
			key := tag + "-number"
			switch fe.Kind() {
			case reflect.String:
				key = tag + "-string"
			case reflect.Slice, reflect.Map, reflect.Array:
				key = tag + "-items"
			}
			s, _ := t.T(key, fe.Param())
			return s
		},
	)
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}
