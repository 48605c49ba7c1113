package alert

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseIDRoundTrip(t *testing.T) {
	for _, id := range []ID{0, 1, 42, 18446744073709551615} {
		parsed, err := ParseID(id.String())
		if err != nil {
			t.Errorf("ParseID(%s) failed: %v", id, err)
			continue
		}
		if parsed != id {
			t.Errorf("ParseID(%s) = %d, expected %d", id, parsed, id)
		}
	}

	for _, bad := range []string{"", "-1", "seven", "1.5"} {
		if _, err := ParseID(bad); err == nil {
			t.Errorf("ParseID(%q) accepted invalid input", bad)
		}
	}
}

func TestSummary(t *testing.T) {
	a := Alert{
		Annotations: Annotations{Message: "disk is full", Description: "on host db-1"},
		Labels:      Labels{Severity: "critical", AlertName: "DiskFull"},
	}
	s := a.Summary()
	for _, part := range []string{"DiskFull", "critical", "disk is full", "on host db-1"} {
		if !strings.Contains(s, part) {
			t.Errorf("Summary missing %q: %q", part, s)
		}
	}

	bare := Alert{Labels: Labels{Severity: "warning", AlertName: "HighLoad"}}
	if got := bare.Summary(); got != "HighLoad (severity: warning)" {
		t.Errorf("Bare summary = %q", got)
	}
}

func TestContextJSONFieldNames(t *testing.T) {
	ts := uint64(1700000100)
	c := NewContext(7, Alert{Labels: Labels{AlertName: "DiskFull", Severity: "critical"}}, 1700000000)
	c.Level = 2
	c.LastNotified = &ts

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	// The persisted field names are a compatibility contract with existing
	// data directories.
	for _, field := range []string{`"id":7`, `"inserted_tmsp":1700000000`, `"level_idx":2`, `"last_notified_tmsp":1700000100`, `"alertname":"DiskFull"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("Serialized context missing %s: %s", field, data)
		}
	}
}

func TestLevelFor(t *testing.T) {
	c := NewContext(1, Alert{}, 0)
	if got := c.LevelFor("chat", 3); got != 3 {
		t.Errorf("LevelFor without override = %d, expected the global 3", got)
	}

	c.AdapterLevel = map[string]uint{"paging": 1}
	if got := c.LevelFor("paging", 3); got != 1 {
		t.Errorf("LevelFor with override = %d, expected 1", got)
	}
	if got := c.LevelFor("chat", 3); got != 3 {
		t.Errorf("LevelFor for unrelated adapter = %d, expected 3", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	ts := uint64(100)
	user := ChatUser("dana")
	lvl := uint(1)
	c := &Context{
		ID:           1,
		Inserted:     50,
		Level:        2,
		LastNotified: &ts,
		AckedBy:      &user,
		AckedOnLevel: &lvl,
		AdapterLevel: map[string]uint{"chat": 0},
	}

	clone := c.Clone()
	*clone.LastNotified = 999
	*clone.AckedBy = MailUser("other")
	clone.AdapterLevel["chat"] = 5

	if *c.LastNotified != 100 {
		t.Error("Clone shares LastNotified with the original")
	}
	if *c.AckedBy != user {
		t.Error("Clone shares AckedBy with the original")
	}
	if c.AdapterLevel["chat"] != 0 {
		t.Error("Clone shares AdapterLevel with the original")
	}
}

func TestParseUser(t *testing.T) {
	tests := []struct {
		input    string
		expected User
		ok       bool
	}{
		{"chat:dana", ChatUser("dana"), true},
		{"mail:ops@example.com", MailUser("ops@example.com"), true},
		{"paging:Dana Ops", PagingUser("Dana Ops"), true},
		{"irc:dana", User{}, false},
		{"dana", User{}, false},
		{"chat:", User{}, false},
	}

	for _, tt := range tests {
		u, err := ParseUser(tt.input)
		if tt.ok {
			if err != nil {
				t.Errorf("ParseUser(%q) failed: %v", tt.input, err)
				continue
			}
			if u != tt.expected {
				t.Errorf("ParseUser(%q) = %v, expected %v", tt.input, u, tt.expected)
			}
		} else if err == nil {
			t.Errorf("ParseUser(%q) accepted invalid input", tt.input)
		}
	}
}

func TestConfirmationMessages(t *testing.T) {
	pending := PendingConfirmation([]*Context{
		NewContext(1, Alert{Labels: Labels{AlertName: "DiskFull"}}, 0),
	})
	if !strings.Contains(pending.Message(), "[1] DiskFull") {
		t.Errorf("Pending message = %q", pending.Message())
	}

	empty := PendingConfirmation(nil)
	if empty.Message() != "No pending alerts" {
		t.Errorf("Empty pending message = %q", empty.Message())
	}

	acked := AckedConfirmation(7)
	if acked.Message() != "Alert 7 acknowledged" {
		t.Errorf("Acked message = %q", acked.Message())
	}

	n := AckNotification(7, ChatUser("dana"), 0)
	if n.AckMessage() != "Alert 7 was acknowledged by dana" {
		t.Errorf("Ack message = %q", n.AckMessage())
	}
}
