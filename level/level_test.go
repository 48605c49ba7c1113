package level

import (
	"testing"
)

func TestSingleClampsToLastChannel(t *testing.T) {
	m, err := NewManager([]string{"r0", "r1", "r2"})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	tests := []struct {
		tier     uint
		expected string
	}{
		{0, "r0"},
		{1, "r1"},
		{2, "r2"},
		{3, "r2"}, // past the end keeps re-notifying the last channel
		{100, "r2"},
	}

	for _, tt := range tests {
		if got := m.Single(tt.tier); got != tt.expected {
			t.Errorf("Single(%d) = %q, expected %q", tt.tier, got, tt.expected)
		}
	}
}

func TestWithPrev(t *testing.T) {
	m, err := NewManager([]string{"r0", "r1", "r2"})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	tests := []struct {
		tier         uint
		expectedPrev string // "" means nil
		expectedNow  string
	}{
		{0, "", "r0"},
		{1, "r0", "r1"},
		{2, "r1", "r2"},
		{3, "r1", "r2"}, // clamped past the end
		{10, "r1", "r2"},
	}

	for _, tt := range tests {
		prev, now := m.WithPrev(tt.tier)
		if tt.expectedPrev == "" {
			if prev != nil {
				t.Errorf("WithPrev(%d) prev = %q, expected nil", tt.tier, *prev)
			}
		} else {
			if prev == nil {
				t.Errorf("WithPrev(%d) prev = nil, expected %q", tt.tier, tt.expectedPrev)
			} else if *prev != tt.expectedPrev {
				t.Errorf("WithPrev(%d) prev = %q, expected %q", tt.tier, *prev, tt.expectedPrev)
			}
		}
		if now != tt.expectedNow {
			t.Errorf("WithPrev(%d) now = %q, expected %q", tt.tier, now, tt.expectedNow)
		}
	}
}

func TestWithPrevSingleChannel(t *testing.T) {
	m, err := NewManager([]string{"only"})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	for _, tier := range []uint{0, 1, 5} {
		prev, now := m.WithPrev(tier)
		if prev != nil {
			t.Errorf("WithPrev(%d) prev = %q, expected nil for single-channel list", tier, *prev)
		}
		if now != "only" {
			t.Errorf("WithPrev(%d) now = %q, expected %q", tier, now, "only")
		}
	}
}

func TestAllUpToExcluding(t *testing.T) {
	m, err := NewManager([]string{"r0", "r1", "r2"})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	tests := []struct {
		name     string
		tier     uint
		excluded string
		expected []string
	}{
		{"nothing notified yet", 0, "r0", []string{}},
		{"first tier only", 1, "r1", []string{"r0"}},
		{"ack from the middle room", 2, "r1", []string{"r0"}},
		{"ack from the first room", 2, "r0", []string{"r1"}},
		{"fully escalated", 3, "r2", []string{"r0", "r1"}},
		{"tier past the end", 10, "r2", []string{"r0", "r1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.AllUpToExcluding(tt.tier, tt.excluded)
			if len(got) != len(tt.expected) {
				t.Fatalf("AllUpToExcluding(%d, %q) = %v, expected %v", tt.tier, tt.excluded, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("AllUpToExcluding(%d, %q)[%d] = %q, expected %q", tt.tier, tt.excluded, i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestPositionAndIsLast(t *testing.T) {
	m, err := NewManager([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	pos, ok := m.Position("b")
	if !ok || pos != 1 {
		t.Errorf("Position(b) = (%d, %v), expected (1, true)", pos, ok)
	}
	if _, ok := m.Position("x"); ok {
		t.Error("Position(x) reported a channel outside the list")
	}
	if m.IsLast("b") {
		t.Error("IsLast(b) = true, expected false")
	}
	if !m.IsLast("c") {
		t.Error("IsLast(c) = false, expected true")
	}
	if m.IsLast("x") {
		t.Error("IsLast(x) = true for unknown channel")
	}
}

func TestNewManagerRejectsEmptyList(t *testing.T) {
	if _, err := NewManager([]string{}); err == nil {
		t.Error("Expected error for empty channel list")
	}
}
