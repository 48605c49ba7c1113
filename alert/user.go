package alert

import (
	"fmt"
	"strings"
)

// UserKind tags the origin of a user identity. Identities from different
// adapters never compare equal even when the names match.
type UserKind string

const (
	UserKindChat   UserKind = "chat"
	UserKindPaging UserKind = "paging"
	UserKindMail   UserKind = "mail"
)

// User identifies a person on one adapter. Equality is kind plus name.
type User struct {
	Kind UserKind `json:"kind"`
	Name string   `json:"name"`
}

// ChatUser builds a chat identity.
func ChatUser(name string) User {
	return User{Kind: UserKindChat, Name: name}
}

// PagingUser builds a paging-service identity.
func PagingUser(name string) User {
	return User{Kind: UserKindPaging, Name: name}
}

// MailUser builds a mail identity.
func MailUser(name string) User {
	return User{Kind: UserKindMail, Name: name}
}

// ParseUser parses the "kind:name" configuration form of a user, e.g.
// "chat:U024BE7LH" or "mail:ops@example.com".
func ParseUser(s string) (User, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return User{}, fmt.Errorf("invalid user %q, expected kind:name", s)
	}
	switch UserKind(kind) {
	case UserKindChat, UserKindPaging, UserKindMail:
		return User{Kind: UserKind(kind), Name: name}, nil
	default:
		return User{}, fmt.Errorf("invalid user kind %q", kind)
	}
}

// String returns the display form of the user.
func (u User) String() string {
	if u.Name == "" {
		return fmt.Sprintf("unknown %s user", u.Kind)
	}
	return u.Name
}
