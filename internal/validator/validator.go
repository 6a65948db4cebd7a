package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// trans is the English translator for Gin binding errors.
	trans ut.Translator

	// standalone validates `validate` tags outside of Gin with its own translator.
	standalone      *govalidator.Validate
	standaloneTrans ut.Translator
	standaloneOnce  sync.Once
)

// FieldError carries translated per-field messages for non-HTTP callers.
type FieldError struct {
	Fields map[string]string
}

func (e *FieldError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		trans = configure(v)
	}
}

func configure(v *govalidator.Validate) ut.Translator {
	// Use the JSON tag as the field name in messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	tr, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, tr)
	return tr
}

// Struct validates v outside of a request and returns a *FieldError on failure.
func Struct(v interface{}) error {
	standaloneOnce.Do(func() {
		standalone = govalidator.New()
		standaloneTrans = configure(standalone)
	})

	err := standalone.Struct(v)
	if err == nil {
		return nil
	}
	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	return &FieldError{Fields: translate(ve, standaloneTrans)}
}

// TranslateErrors maps a binding/validation error to field name -> message.
// Anything that is not a validation error ends up under "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		return translate(ve, trans)
	}

	fields["detail"] = err.Error()
	return fields
}

func translate(ve govalidator.ValidationErrors, tr ut.Translator) map[string]string {
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		if tr == nil {
			fields[fieldPath(fe)] = fe.Error()
			continue
		}
		fields[fieldPath(fe)] = fe.Translate(tr)
	}
	return fields
}

// fieldPath drops the root struct name: "Quiz.questions[0].id" -> "questions[0].id".
func fieldPath(fe govalidator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// Bind binds and validates the request body into dst.
// Returns nil on success or a translated field error map on failure.
func Bind(c *gin.Context, dst interface{}) map[string]string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return TranslateErrors(err)
	}
	return nil
}
