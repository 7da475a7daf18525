package store

import (
	"database/sql"
	"errors"

	"github.com/dukerupert/huddle/internal/model"
)

// ErrNotFound is returned by mutations whose target row does not exist.
// Lookups return nil, nil instead.
var ErrNotFound = errors.New("store: not found")

type scanner interface{ Scan(...any) error }

// contextArgs returns the (context_type, context_id) column values, NULL for
// the zero context.
func contextArgs(c model.Context) (any, any) {
	if c.IsZero() {
		return nil, nil
	}
	return string(c.Type()), c.ID()
}

func scanContext(typ sql.NullString, id sql.NullInt64) model.Context {
	if !typ.Valid || !id.Valid {
		return model.Context{}
	}
	c, err := model.ParseContext(typ.String, id.Int64)
	if err != nil {
		return model.Context{}
	}
	return c
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
