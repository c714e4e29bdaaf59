package model

import (
	"slices"
	"time"
)

// JobStatus is the hiring state of a job posting.
type JobStatus string

const (
	JobOpen   JobStatus = "open"
	JobClosed JobStatus = "closed"
)

// Job types, experience levels and salary currencies accepted by the job form.
var (
	JobTypes         = []string{"Full-Time", "Part-Time", "Contract", "Internship", "Freelance"}
	ExperienceLevels = []string{"Entry Level", "Mid Level", "Senior", "Principal", "Executive"}
	Currencies       = []string{"USD", "EUR", "GBP", "CAD", "AUD", "INR"}
)

const DefaultCurrency = "USD"

func ValidJobType(s string) bool         { return slices.Contains(JobTypes, s) }
func ValidExperienceLevel(s string) bool { return slices.Contains(ExperienceLevels, s) }
func ValidCurrency(s string) bool        { return slices.Contains(Currencies, s) }

// SalaryRange is the composite stored in jobs.salary_range. Min and Max are
// always serialized, as null when absent.
type SalaryRange struct {
	Min      *int   `json:"min"`
	Max      *int   `json:"max"`
	Currency string `json:"currency"`
}

// Job is the jobs row.
type Job struct {
	ID              string      `json:"id,omitempty"`
	Title           string      `json:"title"`
	CompanyName     string      `json:"company_name"`
	Location        string      `json:"location"`
	Type            string      `json:"type"`
	ExperienceLevel string      `json:"experience_level"`
	Description     string      `json:"description"`
	RequiredSkills  []string    `json:"required_skills"`
	SalaryRange     SalaryRange `json:"salary_range"`
	PosterID        string      `json:"poster_id"`
	Status          JobStatus   `json:"status"`
	CreatedAt       *time.Time  `json:"created_at,omitempty"`
}
