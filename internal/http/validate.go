package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/splax/bookreview/internal/domain"
)

const (
	maxBodyBytes       = 1 << 20
	msgInvalidJSONBody = "Invalid JSON body"
)

type registerRequest struct {
	Name     string `json:"name"     validate:"required,max=100"`
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type addReviewRequest struct {
	BookID  string `json:"bookId"  validate:"required"`
	Rating  int    `json:"rating"  validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// requestValidator checks decoded bodies and renders failures in English.
type requestValidator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	locale := en.New()
	trans, _ := ut.New(locale, locale).GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(v, trans); err != nil {
		trans = nil
	}
	return &requestValidator{validate: v, trans: trans}
}

// check validates payload. Any missing required field yields requiredMsg so
// clients see one message per route.
func (rv *requestValidator) check(payload any, requiredMsg string) error {
	err := rv.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.Validation(msgInvalidJSONBody)
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return domain.Validation(requiredMsg)
		}
	}
	return domain.Validation(rv.message(fieldErrs[0]))
}

func (rv *requestValidator) message(fe validator.FieldError) string {
	if rv.trans != nil {
		return fe.Translate(rv.trans)
	}
	return fe.Field() + " is invalid"
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst zeroed so
// that required-field validation reports it.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) error {
	body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewError(domain.KindValidation, msgInvalidJSONBody, err)
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("trailing data after JSON value")
		}
		return domain.NewError(domain.KindValidation, msgInvalidJSONBody, err)
	}
	return nil
}
