package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

const (
	MinCompanyLength  = 2
	MinLocationLength = 2
	DefaultJobsLimit  = 100
)

// JobService posts and lists jobs.
type JobService struct {
	jobs       repository.JobRepository
	reconciler *Reconciler
	runner     *Runner
	logger     *slog.Logger
}

func NewJobService(jobs repository.JobRepository, reconciler *Reconciler, runner *Runner, logger *slog.Logger) *JobService {
	return &JobService{jobs: jobs, reconciler: reconciler, runner: runner, logger: logger}
}

// JobInput is the job form. Salary fields are the raw form strings; empty
// means not given.
type JobInput struct {
	Title           string
	CompanyName     string
	Location        string
	Type            string
	ExperienceLevel string
	Description     string
	RequiredSkills  []string
	SalaryMin       string
	SalaryMax       string
	SalaryCurrency  string
}

// SplitList turns "go, sql ,, redis" into ["go", "sql", "redis"].
func SplitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSalary(field, raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, apperror.ValidationFailed(field, "Salary must be a whole, non-negative number")
	}
	return &n, nil
}

// salaryRange builds the stored composite. Absent bounds are nil, which
// encode as null; the keys are always present.
func (in *JobInput) salaryRange() (model.SalaryRange, error) {
	lo, err := parseSalary("salary_min", in.SalaryMin)
	if err != nil {
		return model.SalaryRange{}, err
	}
	hi, err := parseSalary("salary_max", in.SalaryMax)
	if err != nil {
		return model.SalaryRange{}, err
	}
	if lo != nil && hi != nil && *lo > *hi {
		return model.SalaryRange{}, apperror.ValidationFailed("salary_max", "Maximum salary must not be below the minimum")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.SalaryCurrency))
	if currency == "" {
		currency = model.DefaultCurrency
	}
	if !model.ValidCurrency(currency) {
		return model.SalaryRange{}, apperror.ValidationFailed("salary_currency", "Unsupported currency")
	}
	return model.SalaryRange{Min: lo, Max: hi, Currency: currency}, nil
}

func (in *JobInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	in.Location = strings.TrimSpace(in.Location)
	in.Description = strings.TrimSpace(in.Description)

	switch {
	case len(in.Title) < MinTitleLength:
		return apperror.ValidationFailed("title",
			fmt.Sprintf("Title must be at least %d characters", MinTitleLength))
	case len(in.CompanyName) < MinCompanyLength:
		return apperror.ValidationFailed("company_name",
			fmt.Sprintf("Company name must be at least %d characters", MinCompanyLength))
	case len(in.Location) < MinLocationLength:
		return apperror.ValidationFailed("location",
			fmt.Sprintf("Location must be at least %d characters", MinLocationLength))
	case !model.ValidJobType(in.Type):
		return apperror.ValidationFailed("type", "Job type is required")
	case !model.ValidExperienceLevel(in.ExperienceLevel):
		return apperror.ValidationFailed("experience_level", "Experience level is required")
	case len(in.Description) < MinDescriptionLength:
		return apperror.ValidationFailed("description",
			fmt.Sprintf("Description must be at least %d characters", MinDescriptionLength))
	}

	skills := []string{}
	for _, sk := range in.RequiredSkills {
		if sk = strings.TrimSpace(sk); sk != "" {
			skills = append(skills, sk)
		}
	}
	in.RequiredSkills = skills
	return nil
}

// CreateJob posts an open job. Only recruiters may post.
func (s *JobService) CreateJob(ctx context.Context, actor Actor, in JobInput) (*Result, error) {
	return s.runner.Run(ctx, actor.ClientID, "create_job", func(ctx context.Context) (*Result, error) {
		if actor.Role.Effective() != model.RoleRecruiter {
			return nil, apperror.Forbidden("Only recruiters can post jobs")
		}
		if err := in.normalize(); err != nil {
			return nil, err
		}
		salary, err := in.salaryRange()
		if err != nil {
			return nil, err
		}

		if err := s.reconciler.EnsureActorRecord(ctx, actor); err != nil {
			return nil, fmt.Errorf("posting job: %w", err)
		}

		job, err := s.jobs.Create(ctx, &model.Job{
			Title:           in.Title,
			CompanyName:     in.CompanyName,
			Location:        in.Location,
			Type:            in.Type,
			ExperienceLevel: in.ExperienceLevel,
			Description:     in.Description,
			RequiredSkills:  in.RequiredSkills,
			SalaryRange:     salary,
			PosterID:        actor.ID(),
			Status:          model.JobOpen,
		})
		if err != nil {
			return nil, fmt.Errorf("posting job: %w", err)
		}

		s.logger.Info("job posted",
			slog.String("id", job.ID),
			slog.String("poster", actor.ID()),
		)
		return success("/jobs", "Job posted successfully", job), nil
	})
}

// JobFilter narrows ListJobs. Search matches title, company, location and
// skills case-insensitively; Type must match exactly.
type JobFilter struct {
	Search string
	Type   string
}

func (f JobFilter) match(j *model.Job) bool {
	if f.Type != "" && j.Type != f.Type {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	for _, field := range append([]string{j.Title, j.CompanyName, j.Location}, j.RequiredSkills...) {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// ListJobs returns open jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, f JobFilter) ([]model.Job, error) {
	jobs, err := s.jobs.ListOpen(ctx, repository.ListOptions{Limit: DefaultJobsLimit})
	if err != nil {
		s.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	out := make([]model.Job, 0, len(jobs))
	for i := range jobs {
		if f.match(&jobs[i]) {
			out = append(out, jobs[i])
		}
	}
	return out, nil
}
