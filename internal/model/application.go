package model

import "time"

// Application is the applications row. No workflow writes it yet; the type
// exists so reads of the table are typed.
type Application struct {
	ID          string     `json:"id,omitempty"`
	JobID       string     `json:"job_id"`
	ApplicantID string     `json:"applicant_id"`
	ResumeURL   *string    `json:"resume_url,omitempty"`
	CoverLetter *string    `json:"cover_letter,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Project is the projects row: a team's submission for an event.
type Project struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	EventID     string     `json:"event_id"`
	TeamID      string     `json:"team_id"`
	GitHubURL   *string    `json:"github_url,omitempty"`
	DemoURL     *string    `json:"demo_url,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}
