package permission

import (
	"testing"

	"watchtower/alert"
	"watchtower/roles"
)

func ackFrom(user alert.User, channel uint) alert.UserAction {
	return alert.UserAction{
		User:      user,
		ChannelID: channel,
		Command:   alert.Command{Kind: alert.CmdAck, Alert: 1},
	}
}

func TestUsersMode(t *testing.T) {
	policy := Users([]alert.User{alert.ChatUser("dana"), alert.MailUser("ops@example.com")})

	if got := policy.Evaluate(ackFrom(alert.ChatUser("dana"), 0)); got != Allow {
		t.Errorf("listed user: got %v, expected Allow", got)
	}
	if got := policy.Evaluate(ackFrom(alert.ChatUser("intruder"), 0)); got != Deny {
		t.Errorf("unlisted user: got %v, expected Deny", got)
	}
	// Same name on another adapter is another identity.
	if got := policy.Evaluate(ackFrom(alert.MailUser("dana"), 0)); got != Deny {
		t.Errorf("same name, wrong adapter: got %v, expected Deny", got)
	}
}

func TestMinRoleMode(t *testing.T) {
	idx := roles.NewIndex([]roles.Entry{
		{Role: "developer", Users: []alert.User{alert.ChatUser("dana")}},
		{Role: "lead", Users: []alert.User{alert.ChatUser("casey")}},
	})
	policy := MinRole("lead", idx)

	if got := policy.Evaluate(ackFrom(alert.ChatUser("casey"), 0)); got != Allow {
		t.Errorf("lead: got %v, expected Allow", got)
	}
	if got := policy.Evaluate(ackFrom(alert.ChatUser("dana"), 0)); got != Deny {
		t.Errorf("developer below lead: got %v, expected Deny", got)
	}
	if got := policy.Evaluate(ackFrom(alert.ChatUser("nobody"), 0)); got != Deny {
		t.Errorf("unknown user: got %v, expected Deny", got)
	}
}

func TestRolesMode(t *testing.T) {
	idx := roles.NewIndex([]roles.Entry{
		{Role: "developer", Users: []alert.User{alert.ChatUser("dana")}},
		{Role: "oncall", Users: []alert.User{alert.ChatUser("robin")}},
	})
	policy := Roles([]roles.Role{"oncall"}, idx)

	if got := policy.Evaluate(ackFrom(alert.ChatUser("robin"), 0)); got != Allow {
		t.Errorf("oncall member: got %v, expected Allow", got)
	}
	if got := policy.Evaluate(ackFrom(alert.ChatUser("dana"), 0)); got != Deny {
		t.Errorf("non-member: got %v, expected Deny", got)
	}
}

func TestEscalationLevelMode(t *testing.T) {
	policy := EscalationLevel(1)

	tests := []struct {
		channel  uint
		expected Decision
	}{
		{0, Allow},
		{1, Allow},
		{2, OutOfScope},
		{5, OutOfScope},
	}

	for _, tt := range tests {
		if got := policy.Evaluate(ackFrom(alert.ChatUser("anyone"), tt.channel)); got != tt.expected {
			t.Errorf("channel %d: got %v, expected %v", tt.channel, got, tt.expected)
		}
	}
}
