package model

import (
	"encoding/json"
	"testing"
)

func TestParseContext(t *testing.T) {
	c, err := ParseContext("group", 7)
	if err != nil {
		t.Fatalf("ParseContext: %v", err)
	}
	if c != Group(7) {
		t.Errorf("got %v, want GROUP(7)", c)
	}
	if c.Room() != "group_7" {
		t.Errorf("Room() = %q, want %q", c.Room(), "group_7")
	}

	if _, err := ParseContext("ACTIVITY", 0); err == nil {
		t.Error("expected error for zero id")
	}
	if _, err := ParseContext("channel", 3); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestParseRoom(t *testing.T) {
	c, err := ParseRoom("activity_12")
	if err != nil {
		t.Fatalf("ParseRoom: %v", err)
	}
	if c != Activity(12) {
		t.Errorf("got %v, want ACTIVITY(12)", c)
	}
	for _, bad := range []string{"", "group", "group_x", "team_3"} {
		if _, err := ParseRoom(bad); err == nil {
			t.Errorf("ParseRoom(%q) should fail", bad)
		}
	}
}

func TestContextJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Context Context `json:"context"`
		None    Context `json:"none"`
	}{Context: Activity(3)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"context":{"type":"ACTIVITY","id":3},"none":null}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}

	var c Context
	if err := json.Unmarshal([]byte(`{"type":"group","id":9}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c != Group(9) {
		t.Errorf("got %v, want GROUP(9)", c)
	}
	if err := json.Unmarshal([]byte(`{"type":"planet","id":9}`), &c); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestRecordContexts(t *testing.T) {
	g := GroupRecord{ID: 3, Name: "Runners"}
	a := ActivityRecord{ID: 5, Name: "Hike"}

	if got := Group(g.ID).Room(); got != "group_3" {
		t.Errorf("group room = %q, want %q", got, "group_3")
	}
	if got := Activity(a.ID).Room(); got != "activity_5" {
		t.Errorf("activity room = %q, want %q", got, "activity_5")
	}
}
