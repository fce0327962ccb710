// Package schema holds the named input contracts of the storefront API and
// the decode-or-reject helpers that produce them. Nothing reaches a
// repository before passing through here.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/Skryldev/storefront/apperrors"
)

// Normalizer is implemented by contracts that clean their own fields
// (trimming, lower-casing) before validation.
type Normalizer interface {
	Normalize()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// Money is checked with the numeric tags (gte=0, ...).
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return v
}

// DecodeJSON reads a JSON body into dst, normalizes it and validates it.
// An empty body decodes as {} so that every required field is reported.
// Unknown keys are ignored. Values of the wrong JSON type are reported
// together with every other violated field. All failures are
// *apperrors.Error of kind Validation.
func DecodeJSON(r io.Reader, dst any) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return apperrors.Validation([]apperrors.FieldError{{Field: "body", Reason: "could not be read"}})
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return apperrors.Validation([]apperrors.FieldError{decodeFailure(err)})
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperrors.Validation([]apperrors.FieldError{{Field: "body", Reason: "must contain a single JSON value"}})
	}

	target := reflect.TypeOf(dst).Elem()
	if _, ok := raw.(map[string]any); !ok {
		return apperrors.Validation([]apperrors.FieldError{{Field: "body", Reason: "must be " + jsonKind(target)}})
	}

	var typeErrs []apperrors.FieldError
	cleaned, err := json.Marshal(prune(target, raw, "", &typeErrs))
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := json.Unmarshal(cleaned, dst); err != nil {
		return apperrors.Validation([]apperrors.FieldError{decodeFailure(err)})
	}

	fields, err := check(dst)
	if err != nil {
		return err
	}
	if len(typeErrs) == 0 && len(fields) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(typeErrs))
	for _, fe := range typeErrs {
		seen[fe.Field] = true
	}
	for _, fe := range fields {
		if !seen[fe.Field] {
			typeErrs = append(typeErrs, fe)
		}
	}
	return apperrors.Validation(typeErrs)
}

// Validate normalizes and validates an already decoded contract.
func Validate(dst any) error {
	fields, err := check(dst)
	if err != nil {
		return err
	}
	if len(fields) > 0 {
		return apperrors.Validation(fields)
	}
	return nil
}

func check(dst any) ([]apperrors.FieldError, error) {
	if n, ok := dst.(Normalizer); ok {
		n.Normalize()
	}

	err := validate.Struct(dst)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, apperrors.Internal(err)
	}

	fields := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperrors.FieldError{
			Field:  fieldPath(fe.Namespace()),
			Reason: reason(fe),
		})
	}
	return fields, nil
}

// prune walks a generically decoded value against the Go type it will be
// decoded into. Values of the wrong JSON type are recorded in errs under
// their validator-style path and dropped, so the rest of the body still
// decodes and validates.
func prune(t reflect.Type, v any, path string, errs *[]apperrors.FieldError) any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if v == nil {
		return nil
	}
	mismatch := func() any {
		*errs = append(*errs, apperrors.FieldError{Field: path, Reason: "must be " + jsonKind(t)})
		return nil
	}

	if t == decimalType {
		switch x := v.(type) {
		case json.Number:
			return v
		case string:
			if _, err := decimal.NewFromString(x); err == nil {
				return v
			}
		}
		return mismatch()
	}

	switch t.Kind() {
	case reflect.String:
		if _, ok := v.(string); !ok {
			return mismatch()
		}
	case reflect.Bool:
		if _, ok := v.(bool); !ok {
			return mismatch()
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := v.(json.Number)
		if !ok {
			return mismatch()
		}
		if _, err := strconv.ParseInt(n.String(), 10, t.Bits()); err != nil {
			return mismatch()
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := v.(json.Number)
		if !ok {
			return mismatch()
		}
		if _, err := strconv.ParseUint(n.String(), 10, t.Bits()); err != nil {
			return mismatch()
		}
	case reflect.Float32, reflect.Float64:
		if _, ok := v.(json.Number); !ok {
			return mismatch()
		}
	case reflect.Slice, reflect.Array:
		list, ok := v.([]any)
		if !ok {
			return mismatch()
		}
		for i, el := range list {
			list[i] = prune(t.Elem(), el, fmt.Sprintf("%s[%d]", path, i), errs)
		}
	case reflect.Struct:
		obj, ok := v.(map[string]any)
		if !ok {
			return mismatch()
		}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if !f.IsExported() || name == "-" || name == "" {
				continue
			}
			key, found := lookupKey(obj, name)
			if !found {
				continue
			}
			child := name
			if path != "" {
				child = path + "." + name
			}
			if pruned := prune(f.Type, obj[key], child, errs); pruned == nil {
				delete(obj, key)
			} else {
				obj[key] = pruned
			}
		}
	}
	return v
}

// lookupKey finds a struct field's key the way encoding/json does: an
// exact match first, then a case-insensitive one.
func lookupKey(obj map[string]any, name string) (string, bool) {
	if _, ok := obj[name]; ok {
		return name, true
	}
	for k := range obj {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decodeFailure(err error) apperrors.FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return apperrors.FieldError{
			Field:  typeErr.Field,
			Reason: "must be " + jsonKind(typeErr.Type),
		}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return apperrors.FieldError{Field: "body", Reason: fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return apperrors.FieldError{Field: "body", Reason: "malformed JSON: unexpected end of input"}
	}
	return apperrors.FieldError{Field: "body", Reason: err.Error()}
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == decimalType {
		return "a number"
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "an array"
	default:
		return "an object"
	}
}

// fieldPath drops the contract's type name from a validator namespace:
// "OrderInput.orderItems[1].quantity" becomes "orderItems[1].quantity".
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func reason(fe validator.FieldError) string {
	kind := fe.Kind()
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "min":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("must be at least %s characters long", fe.Param())
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		switch kind {
		case reflect.String:
			return fmt.Sprintf("must be at most %s characters long", fe.Param())
		case reflect.Slice, reflect.Array, reflect.Map:
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return "must be at most " + fe.Param()
	}
	return "failed the " + fe.Tag() + " check"
}
