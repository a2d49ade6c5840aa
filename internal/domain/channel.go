package domain

type ChannelID string

// Role is a member's standing inside one channel.
type Role string

const (
	RoleObserver Role = "observer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleObserver, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// PolicyMember is one roster entry of a channel policy.
type PolicyMember struct {
	UserID  UserID `json:"userId"`
	Role    Role   `json:"role"`
	Blocked bool   `json:"isBlocked"`
}

type ChannelRules struct {
	// MaxUsers caps concurrent members; zero means unlimited.
	MaxUsers int `json:"maxUsers,omitempty"`
}

// ChannelPolicy is a read-only snapshot pushed by the policy store.
// The relay never mutates a snapshot, it only reacts to replacements.
type ChannelPolicy struct {
	ID      ChannelID      `json:"id"`
	Name    string         `json:"name"`
	Public  bool           `json:"isPublic"`
	Members []PolicyMember `json:"members"`
	Rules   ChannelRules   `json:"rules"`
}

// Member finds the roster entry for a user, if listed.
func (p *ChannelPolicy) Member(id UserID) (PolicyMember, bool) {
	for _, m := range p.Members {
		if m.UserID == id {
			return m, true
		}
	}
	return PolicyMember{}, false
}
