package pipeline

import (
	"github.com/mlopez/jobquest/scrape"
	"github.com/mlopez/jobquest/textextract"
)

// Context carries state between steps. Inputs are set before the run;
// every other field is written by exactly one step and read by later
// ones.
type Context struct {
	// Inputs.
	JobURL       string
	CompanyURL   string
	Questions    []string
	SkipTracking bool
	Provider     string

	// Set by the scrape step.
	Job          *scrape.Job
	RunDir       string
	CompanySafe  string
	AllQuestions []string

	// Set by the resume step.
	MasterResume string

	// Set by the tailor step.
	TailoringBrief string
	TailorRaw      string
	TailoredLaTeX  string

	// Set by the write-tex step.
	TexPath string

	// Set by the ATS check step.
	ATSRaw    string
	ATSReport *textextract.ATSReport

	// Set by the compile step.
	PDFPath string

	// Set by the Q&A step.
	CompanyResearch string
	QARaw           string
	QAAnswers       []textextract.QA
	FormDataPath    string

	// Set by the tracking step.
	TrackingPageID string

	// ProviderCalls counts model calls per provider name, attributed
	// from each call's result.
	ProviderCalls map[string]int

	// Lazy caches shared between steps.
	skillsInventory *string
	qaTemplates     *string
}

// Field names a Context field a step can require.
type Field string

const (
	FieldJobURL        Field = "job_url"
	FieldJob           Field = "job"
	FieldRunDir        Field = "run_dir"
	FieldMasterResume  Field = "master_resume"
	FieldTailoredLaTeX Field = "tailored_latex"
	FieldTexPath       Field = "tex_path"
	FieldATSReport     Field = "ats_report"
)

// Has reports whether the named field is populated.
func (c *Context) Has(f Field) bool {
	switch f {
	case FieldJobURL:
		return c.JobURL != ""
	case FieldJob:
		return c.Job != nil
	case FieldRunDir:
		return c.RunDir != ""
	case FieldMasterResume:
		return c.MasterResume != ""
	case FieldTailoredLaTeX:
		return c.TailoredLaTeX != ""
	case FieldTexPath:
		return c.TexPath != ""
	case FieldATSReport:
		return c.ATSReport != nil
	}
	return false
}

// recordCall attributes one model call to the provider that served it.
func (c *Context) recordCall(provider string) {
	if provider == "" {
		return
	}
	if c.ProviderCalls == nil {
		c.ProviderCalls = map[string]int{}
	}
	c.ProviderCalls[provider]++
}

// Snapshot flattens the context to plain JSON-serializable values for
// persistence. Unset fields are omitted so snapshots stay compact.
func (c *Context) Snapshot() map[string]any {
	snap := map[string]any{
		"job_url":       c.JobURL,
		"skip_tracking": c.SkipTracking,
		"provider":      c.Provider,
	}
	if c.CompanyURL != "" {
		snap["company_url"] = c.CompanyURL
	}
	if len(c.Questions) > 0 {
		snap["questions"] = c.Questions
	}
	if c.Job != nil {
		snap["job"] = map[string]any{
			"title":       c.Job.Title,
			"company":     c.Job.Company,
			"description": c.Job.Description,
			"url":         c.Job.URL,
			"source":      c.Job.Source,
			"questions":   c.Job.Questions,
		}
	}
	if c.RunDir != "" {
		snap["run_dir"] = c.RunDir
	}
	if c.CompanySafe != "" {
		snap["company_safe"] = c.CompanySafe
	}
	if len(c.AllQuestions) > 0 {
		snap["all_questions"] = c.AllQuestions
	}
	if c.MasterResume != "" {
		snap["master_resume"] = c.MasterResume
	}
	if c.TailoringBrief != "" {
		snap["tailoring_brief"] = c.TailoringBrief
	}
	if c.TailoredLaTeX != "" {
		snap["tailored_latex"] = c.TailoredLaTeX
	}
	if c.TexPath != "" {
		snap["tex_path"] = c.TexPath
	}
	if c.ATSReport != nil {
		report := map[string]any{}
		if c.ATSReport.JSON != nil {
			report["json"] = c.ATSReport.JSON
		}
		if c.ATSReport.Markdown != "" {
			report["markdown"] = c.ATSReport.Markdown
		}
		snap["ats_report"] = report
	}
	if c.PDFPath != "" {
		snap["pdf_path"] = c.PDFPath
	}
	if c.CompanyResearch != "" {
		snap["company_research"] = c.CompanyResearch
	}
	if len(c.QAAnswers) > 0 {
		snap["qa_answers"] = c.QAAnswers
	}
	if c.FormDataPath != "" {
		snap["form_data_path"] = c.FormDataPath
	}
	if c.TrackingPageID != "" {
		snap["tracking_page_id"] = c.TrackingPageID
	}
	if len(c.ProviderCalls) > 0 {
		snap["provider_calls"] = c.ProviderCalls
	}
	return snap
}
