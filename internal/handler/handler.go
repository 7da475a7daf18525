// Package handler exposes the engine's services as JSON over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/huddle/internal/apperr"
	"github.com/dukerupert/huddle/internal/auth"
	"github.com/dukerupert/huddle/internal/model"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its HTTP status. Errors outside the taxonomy are
// logged and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.KindOf(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
	}
	if kind == apperr.KindUnknown {
		kind = ""
	}
	writeJSON(w, status, errorResponse{Error: apperr.PublicMessage(err), Kind: kind})
}

// decode reads a JSON body into v and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid JSON")
	}
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.KindValidation, "invalid request", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation("%s is required", fe.Field())
	case "max":
		return apperr.Validation("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return apperr.Validation("%s must have at least %s entries", fe.Field(), fe.Param())
	case "gt":
		return apperr.Validation("%s must be greater than %s", fe.Field(), fe.Param())
	case "url", "http_url":
		return apperr.Validation("%s must be a URL", fe.Field())
	case "oneof":
		return apperr.Validation("%s must be one of %s", fe.Field(), fe.Param())
	default:
		return apperr.Validation("%s is invalid", fe.Field())
	}
}

func parseIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id")
	}
	return id, nil
}

// currentUser returns the authenticated caller.
func currentUser(r *http.Request) (auth.AuthContext, error) {
	ac, ok := auth.FromContext(r.Context())
	if !ok || ac.UserID == 0 {
		return auth.AuthContext{}, apperr.Unauthenticated("authentication required")
	}
	return ac, nil
}

func parseContext(typ, rawID string) (model.Context, error) {
	if typ == "" || rawID == "" {
		return model.Context{}, apperr.Validation("context_type and context_id are required")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return model.Context{}, apperr.Validation("invalid context_id")
	}
	c, err := model.ParseContext(typ, id)
	if err != nil {
		return model.Context{}, apperr.Wrap(apperr.KindValidation, "invalid context", err)
	}
	return c, nil
}

// queryContext reads context_type and context_id from the query string.
func queryContext(r *http.Request) (model.Context, error) {
	q := r.URL.Query()
	return parseContext(q.Get("context_type"), q.Get("context_id"))
}

func queryInt64(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return v, nil
}

// page is a cursor-paginated list. NextBefore is the cursor for the next
// page, absent on the last one.
type page[T any] struct {
	Items      []T    `json:"items"`
	NextBefore *int64 `json:"next_before,omitempty"`
}

func newPage[T any](items []T, limit int, idOf func(T) int64) page[T] {
	p := page[T]{Items: items}
	if limit > 0 && len(items) == limit {
		next := idOf(items[len(items)-1])
		p.NextBefore = &next
	}
	return p
}

func clampLimit(v int64, def, max int) int {
	switch {
	case v <= 0:
		return def
	case v > int64(max):
		return max
	}
	return int(v)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
