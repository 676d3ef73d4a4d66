package domain

import "time"

// Group is a named member list scoped to one project. Group names are
// unique within their project.
type Group struct {
	ID        string
	ProjectID string
	Name      string
	MemberIDs []string
	CreatedAt time.Time
}

// HasMember reports whether the account id is already a member.
func (g *Group) HasMember(accountID string) bool {
	for _, id := range g.MemberIDs {
		if id == accountID {
			return true
		}
	}
	return false
}
