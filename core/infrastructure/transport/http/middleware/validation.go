package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// MaxBodyBytes bounds request bodies read by DecodeAndValidate
const MaxBodyBytes = 1 << 20

// ErrInvalidJSON is returned when the body does not decode
var ErrInvalidJSON = errors.New("invalid JSON")

// DecodeAndValidate decodes the JSON body into dst and validates it. An empty
// body leaves dst untouched. Field failures are returned keyed by field name.
func DecodeAndValidate(r *http.Request, dst any) (map[string]string, error) {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return nil, ErrInvalidJSON
	}

	if err := validate.Struct(dst); err != nil {
		validationErrors := make(map[string]string)
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			for _, validationErr := range validationErrs {
				validationErrors[validationErr.Field()] = validationErr.Tag()
			}
			return validationErrors, nil
		}
		return nil, err
	}
	return nil, nil
}

// ValidateQueryParams validates query parameters
func ValidateQueryParams(validatorFunc func(*http.Request) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := validatorFunc(r); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"error": err.Error(),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
