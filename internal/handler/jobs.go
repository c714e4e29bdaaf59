package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/hackhub/internal/service"
)

type JobHandler struct {
	jobs   *service.JobService
	logger *slog.Logger
}

func NewJobHandler(jobs *service.JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// HandleList returns open jobs, newest first.
//
// HTTP: GET /jobs?search=go&type=Full-Time
func (h *JobHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := h.jobs.ListJobs(dataContext(r).Context(), service.JobFilter{
		Search: q.Get("search"),
		Type:   q.Get("type"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleCreate posts a job. Recruiters only.
//
// HTTP: POST /jobs/create
// FORM: title, company_name, location, type, experience_level, description,
//
//	required_skills (comma-separated), salary_min, salary_max, salary_currency
func (h *JobHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	form, err := readForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.jobs.CreateJob(dataContext(r).Context(), a, service.JobInput{
		Title:           form.Get("title"),
		CompanyName:     form.Get("company_name"),
		Location:        form.Get("location"),
		Type:            form.Get("type"),
		ExperienceLevel: form.Get("experience_level"),
		Description:     form.Get("description"),
		RequiredSkills:  service.SplitList(form.Get("required_skills")),
		SalaryMin:       form.Get("salary_min"),
		SalaryMax:       form.Get("salary_max"),
		SalaryCurrency:  form.Get("salary_currency"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}
