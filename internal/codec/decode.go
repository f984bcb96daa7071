package codec

import (
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tjfontaine/intake-engine/internal/domain"
)

// MaxBodyBytes bounds request bodies read by Decoder.
const MaxBodyBytes = 1 << 20

// Decoder strictly decodes JSON request bodies and validates them by struct tags.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder creates a decoder with a field-name-aware validator.
func NewDecoder() *Decoder {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Decoder{validate: v}
}

// Decode reads one JSON value from r into dst, rejecting unknown fields and trailing data,
// then runs validation. Failures are validation_failed API errors carrying message.
func (d *Decoder) Decode(r io.Reader, dst any, message string) error {
	dec := json.NewDecoder(io.LimitReader(r, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation(message)
	}
	if dec.More() {
		return domain.ErrValidation(message)
	}
	return d.Struct(dst, message)
}

// Struct validates an already decoded value.
func (d *Decoder) Struct(v any, message string) error {
	err := d.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return domain.ErrValidation(message).WithField(fieldPath(verrs[0]))
	}
	return domain.ErrValidation(message)
}

// fieldPath trims the root struct name from a validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
