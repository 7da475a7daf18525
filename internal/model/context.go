package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ContextType string

const (
	ContextGroup    ContextType = "GROUP"
	ContextActivity ContextType = "ACTIVITY"
)

// Context identifies the group or activity a membership, warning, points
// entry or message belongs to. The zero value means "no context".
type Context struct {
	typ ContextType
	id  int64
}

func Group(id int64) Context    { return Context{typ: ContextGroup, id: id} }
func Activity(id int64) Context { return Context{typ: ContextActivity, id: id} }

// ParseContext builds a Context from its wire parts. The type is matched
// case-insensitively.
func ParseContext(typ string, id int64) (Context, error) {
	switch ContextType(strings.ToUpper(strings.TrimSpace(typ))) {
	case ContextGroup:
		if id <= 0 {
			return Context{}, fmt.Errorf("invalid group id %d", id)
		}
		return Group(id), nil
	case ContextActivity:
		if id <= 0 {
			return Context{}, fmt.Errorf("invalid activity id %d", id)
		}
		return Activity(id), nil
	default:
		return Context{}, fmt.Errorf("unknown context type %q", typ)
	}
}

func (c Context) Type() ContextType { return c.typ }
func (c Context) ID() int64         { return c.id }
func (c Context) IsZero() bool      { return c.typ == "" }

// Room is the realtime room name for the context, e.g. "group_7".
func (c Context) Room() string {
	if c.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s_%d", strings.ToLower(string(c.typ)), c.id)
}

func (c Context) String() string {
	if c.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s(%d)", c.typ, c.id)
}

// ParseRoom is the inverse of Room.
func ParseRoom(room string) (Context, error) {
	typ, rawID, ok := strings.Cut(room, "_")
	if !ok {
		return Context{}, fmt.Errorf("invalid room %q", room)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return Context{}, fmt.Errorf("invalid room %q", room)
	}
	return ParseContext(typ, id)
}

type contextJSON struct {
	Type ContextType `json:"type"`
	ID   int64       `json:"id"`
}

func (c Context) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(contextJSON{Type: c.typ, ID: c.id})
}

func (c *Context) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Context{}
		return nil
	}
	var raw contextJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseContext(string(raw.Type), raw.ID)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
