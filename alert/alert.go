package alert

import (
	"fmt"
	"strconv"
)

// ID uniquely identifies one logical alert instance. IDs are allocated by the
// store, monotonically within a process, and are encoded as their decimal form
// on every wire format.
type ID uint64

// String returns the decimal form of the id.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses the decimal wire form of an alert id.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid alert id %q: %w", s, err)
	}
	return ID(n), nil
}

// Annotations carries the optional human-readable text of an alert.
type Annotations struct {
	Message     string `json:"message,omitempty" yaml:"message,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Labels carries the identifying labels of an alert.
type Labels struct {
	Severity  string `json:"severity" yaml:"severity"`
	AlertName string `json:"alertname" yaml:"alertname"`
}

// Alert is the immutable content payload of one alert.
type Alert struct {
	Annotations Annotations `json:"annotations"`
	Labels      Labels      `json:"labels"`
}

// Summary renders the alert as a single human-readable block, used by the
// adapters when posting notifications.
func (a Alert) Summary() string {
	s := fmt.Sprintf("%s (severity: %s)", a.Labels.AlertName, a.Labels.Severity)
	if a.Annotations.Message != "" {
		s += "\n" + a.Annotations.Message
	}
	if a.Annotations.Description != "" {
		s += "\n" + a.Annotations.Description
	}
	return s
}

// Context is the mutable envelope tracking an alert's escalation state. The
// store exclusively owns the persistent state; everyone else works on
// snapshots.
type Context struct {
	ID           ID              `json:"id"`
	Alert        Alert           `json:"alert"`
	Inserted     uint64          `json:"inserted_tmsp"`
	Level        uint            `json:"level_idx"`
	LastNotified *uint64         `json:"last_notified_tmsp,omitempty"`
	AckedBy      *User           `json:"acked_by,omitempty"`
	AckedOnLevel *uint           `json:"acked_on_level,omitempty"`
	AdapterLevel map[string]uint `json:"adapter_level,omitempty"`
}

// NewContext creates the envelope for a freshly inserted alert. Level 0 means
// the alert has not been notified anywhere yet.
func NewContext(id ID, a Alert, now uint64) *Context {
	return &Context{
		ID:       id,
		Alert:    a,
		Inserted: now,
		Level:    0,
	}
}

// Acked reports whether the alert has been acknowledged. Once acked the level
// is frozen and no further notifications are emitted.
func (c *Context) Acked() bool {
	return c.AckedBy != nil
}

// LevelFor resolves the tier to use for one adapter: a per-adapter override
// wins over the global escalation tier.
func (c *Context) LevelFor(adapter string, global uint) uint {
	if override, ok := c.AdapterLevel[adapter]; ok {
		return override
	}
	return global
}

// Clone returns a deep copy of the context so callers outside the store can
// never mutate persistent state.
func (c *Context) Clone() *Context {
	out := *c
	if c.LastNotified != nil {
		v := *c.LastNotified
		out.LastNotified = &v
	}
	if c.AckedBy != nil {
		v := *c.AckedBy
		out.AckedBy = &v
	}
	if c.AckedOnLevel != nil {
		v := *c.AckedOnLevel
		out.AckedOnLevel = &v
	}
	if c.AdapterLevel != nil {
		out.AdapterLevel = make(map[string]uint, len(c.AdapterLevel))
		for k, v := range c.AdapterLevel {
			out.AdapterLevel[k] = v
		}
	}
	return &out
}
