package model

import "time"

// Team is the teams row.
type Team struct {
	ID                string     `json:"id,omitempty"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	EventID           string     `json:"event_id"`
	LookingForMembers bool       `json:"looking_for_members"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
}

// MemberRole is a team member's position in the team.
type MemberRole string

const (
	MemberLeader MemberRole = "leader"
	MemberMember MemberRole = "member"
)

// TeamMember is the team_members row; (team_id, user_id) is its key.
type TeamMember struct {
	TeamID   string     `json:"team_id"`
	UserID   string     `json:"user_id"`
	Role     MemberRole `json:"role"`
	JoinedAt *time.Time `json:"joined_at,omitempty"`
}
