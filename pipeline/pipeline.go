// Package pipeline runs the job-application workflow: scrape the
// posting, tailor the resume, check it against the job description,
// compile it, answer application questions, and record the application.
//
// The orchestrator executes an ordered list of steps against a shared
// Context. Each step declares the context fields it needs and the
// runner validates them before the step runs. Every run ends in one of
// three terminal states: succeeded, failed, or interrupted, and the
// context snapshot is persisted on all of them.
package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mlopez/jobquest/config"
	"github.com/mlopez/jobquest/llm"
	"github.com/mlopez/jobquest/pdfcompile"
	"github.com/mlopez/jobquest/scrape"
)

// Generator produces text from a prompt. Both the default chain and
// the writing chain satisfy it.
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Result, error)
}

// Scraper fetches job postings.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Job, error)
}

// Researcher gathers company background for answer writing. Research
// is best-effort and returns "" when nothing is available.
type Researcher interface {
	ResearchCompany(ctx context.Context, companyName, companyURL string) string
}

// ResumeSource provides the master resume text.
type ResumeSource interface {
	MasterResume(ctx context.Context) (string, error)
}

// KnowledgeBase provides optional prompt context from the skills and
// Q&A template databases.
type KnowledgeBase interface {
	SkillsInventory(ctx context.Context) (string, error)
	QATemplates(ctx context.Context) (string, error)
}

// Compiler turns a .tex file into a PDF.
type Compiler interface {
	Compile(ctx context.Context, texPath string) (*pdfcompile.Result, error)
}

// TrackingRecord is the application record handed to the tracker.
type TrackingRecord struct {
	JobTitle string
	Company  string
	URL      string
	Variant  string
	QAText   string
}

// Tracker records completed applications.
type Tracker interface {
	CreateApplication(ctx context.Context, rec TrackingRecord) (pageID string, err error)
}

// Deps holds everything the steps need. Chain, Writer, Scraper,
// Resume, and Compiler are required; the rest are optional and their
// steps degrade gracefully when absent.
type Deps struct {
	Chain      Generator
	Writer     Generator
	Scraper    Scraper
	Researcher Researcher
	Resume     ResumeSource
	Knowledge  KnowledgeBase
	Compiler   Compiler
	Tracker    Tracker

	Applicant     config.ApplicantConfig
	OutputDir     string
	CacheDir      string
	RoleVariant   string
	ResumeVariant string

	// Confirm asks the user a yes/no question. Nil means the run is
	// non-interactive and review prompts auto-accept.
	Confirm func(prompt string) bool

	Logger zerolog.Logger
}
