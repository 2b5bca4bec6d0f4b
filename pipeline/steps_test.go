package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlopez/jobquest/config"
	"github.com/mlopez/jobquest/llm"
	"github.com/mlopez/jobquest/scrape"
	"github.com/mlopez/jobquest/textextract"
)

type fakeScraper struct {
	job *scrape.Job
	err error
}

func (f *fakeScraper) Scrape(ctx context.Context, url string) (*scrape.Job, error) {
	return f.job, f.err
}

type fakeResume struct {
	text  string
	err   error
	calls int
}

func (f *fakeResume) MasterResume(ctx context.Context) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeGenerator returns scripted responses in sequence.
type fakeGenerator struct {
	responses []string
	err       error
	provider  string
	requests  []*llm.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &llm.Result{Text: f.responses[idx], Provider: f.provider}, nil
}

func TestSafeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Acme Corp", "Acme_Corp"},
		{"Stripe, Inc.", "Stripe__Inc"},
		{"plain", "plain"},
		{"  ", ""},
	}
	for _, tc := range cases {
		if got := safeFilename(tc.in); got != tc.want {
			t.Errorf("safeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStepScrapeJob(t *testing.T) {
	outputDir := t.TempDir()
	deps := &Deps{
		Scraper: &fakeScraper{job: &scrape.Job{
			Title:     "Product Manager",
			Company:   "Acme Corp",
			Source:    "greenhouse_api",
			Questions: []string{"Why Acme?", "Visa status?"},
		}},
		OutputDir: outputDir,
		Logger:    zerolog.Nop(),
	}
	run := &Context{
		JobURL:    "https://example.com/job",
		Questions: []string{"Why Acme?", "Salary expectations?"},
	}

	if err := stepScrapeJob(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.Job == nil || run.Job.Company != "Acme Corp" {
		t.Fatal("Job not stored on context")
	}
	if run.CompanySafe != "Acme_Corp" {
		t.Errorf("CompanySafe = %q", run.CompanySafe)
	}
	wantDir := filepath.Join(outputDir, "Acme_Corp_"+time.Now().Format("2006-01-02"))
	if run.RunDir != wantDir {
		t.Errorf("RunDir = %q, want %q", run.RunDir, wantDir)
	}
	if info, err := os.Stat(run.RunDir); err != nil || !info.IsDir() {
		t.Errorf("Run directory not created: %v", err)
	}
	// Duplicates collapse, order preserved, scraped questions first.
	want := []string{"Why Acme?", "Visa status?", "Salary expectations?"}
	if len(run.AllQuestions) != len(want) {
		t.Fatalf("AllQuestions = %v, want %v", run.AllQuestions, want)
	}
	for i := range want {
		if run.AllQuestions[i] != want[i] {
			t.Errorf("AllQuestions[%d] = %q, want %q", i, run.AllQuestions[i], want[i])
		}
	}
}

func TestStepScrapeJobEmptyCompany(t *testing.T) {
	deps := &Deps{
		Scraper:   &fakeScraper{job: &scrape.Job{Source: "unavailable"}},
		OutputDir: t.TempDir(),
		Logger:    zerolog.Nop(),
	}
	run := &Context{JobURL: "https://example.com/job"}

	if err := stepScrapeJob(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.CompanySafe != "unknown" {
		t.Errorf("CompanySafe = %q, want unknown", run.CompanySafe)
	}
}

func TestStepReadMasterResumeCacheHit(t *testing.T) {
	cacheDir := t.TempDir()
	cached := strings.Repeat("resume line\n", 100)
	if err := os.WriteFile(filepath.Join(cacheDir, resumeCacheFil), []byte(cached), 0o644); err != nil {
		t.Fatal(err)
	}

	source := &fakeResume{text: "should not be used"}
	deps := &Deps{Resume: source, CacheDir: cacheDir, Logger: zerolog.Nop()}
	run := &Context{RunDir: t.TempDir()}

	if err := stepReadMasterResume(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.MasterResume != cached {
		t.Error("Expected resume served from cache")
	}
	if source.calls != 0 {
		t.Errorf("Source fetched %d times despite fresh cache", source.calls)
	}
}

func TestStepReadMasterResumeCorruptCacheRefetched(t *testing.T) {
	cacheDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cacheDir, resumeCacheFil), []byte("too short"), 0o644); err != nil {
		t.Fatal(err)
	}

	fresh := strings.Repeat("resume line\n", 100)
	source := &fakeResume{text: fresh}
	deps := &Deps{Resume: source, CacheDir: cacheDir, Logger: zerolog.Nop()}
	run := &Context{RunDir: t.TempDir()}

	if err := stepReadMasterResume(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.MasterResume != fresh {
		t.Error("Expected fresh fetch after discarding short cache")
	}
	if source.calls != 1 {
		t.Errorf("Expected 1 fetch, got %d", source.calls)
	}
	// The fresh copy replaces the corrupt cache file.
	data, err := os.ReadFile(filepath.Join(cacheDir, resumeCacheFil))
	if err != nil || string(data) != fresh {
		t.Errorf("Cache not rewritten: %v", err)
	}
}

func TestStepReadMasterResumeShortContentFatal(t *testing.T) {
	source := &fakeResume{text: "way too short"}
	deps := &Deps{Resume: source, CacheDir: t.TempDir(), Logger: zerolog.Nop()}
	run := &Context{RunDir: t.TempDir()}

	err := stepReadMasterResume(context.Background(), run, deps)
	if err == nil {
		t.Fatal("Expected error for suspiciously short resume")
	}
	if !strings.Contains(err.Error(), "suspiciously short") {
		t.Errorf("Unexpected error: %v", err)
	}
	if run.MasterResume != "" {
		t.Error("Short content must not be stored")
	}
}

func TestStepTailorResume(t *testing.T) {
	latex := "\\documentclass{article}\n\\begin{document}\nTailored\n\\end{document}"
	chain := &fakeGenerator{responses: []string{"## Brief\nEmphasize growth work."}, provider: "gemini/flash"}
	writer := &fakeGenerator{responses: []string{"Here it is:\n```latex\n" + latex + "\n```"}, provider: "groq/llama"}
	deps := &Deps{
		Chain:  chain,
		Writer: writer,
		Applicant: config.ApplicantConfig{
			Name:  "Maria Lopez",
			Email: "maria@example.com",
		},
		RoleVariant: "growth_pm",
		Logger:      zerolog.Nop(),
	}
	run := &Context{
		RunDir:       t.TempDir(),
		CompanySafe:  "Acme",
		Job:          &scrape.Job{Title: "PM", Company: "Acme", Description: "Build things."},
		MasterResume: "resume",
	}

	if err := stepTailorResume(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.TailoringBrief == "" {
		t.Error("Brief not stored")
	}
	if run.TailoredLaTeX != latex {
		t.Errorf("TailoredLaTeX = %q", run.TailoredLaTeX)
	}
	if run.ProviderCalls["gemini/flash"] != 1 || run.ProviderCalls["groq/llama"] != 1 {
		t.Errorf("Provider attribution wrong: %v", run.ProviderCalls)
	}
	// The brief makes it into the writer prompt, and the locked header
	// carries the applicant's name.
	if len(writer.requests) != 1 {
		t.Fatalf("Expected 1 writer call, got %d", len(writer.requests))
	}
	if !strings.Contains(writer.requests[0].User, "Emphasize growth work.") {
		t.Error("Brief missing from writer prompt")
	}
	if !strings.Contains(writer.requests[0].User, "Maria Lopez") {
		t.Error("Locked header missing from writer prompt")
	}
	if _, err := os.Stat(filepath.Join(run.RunDir, "tailoring_brief_Acme.md")); err != nil {
		t.Errorf("Brief artifact not saved: %v", err)
	}
}

func TestStepTailorResumeUnparseableLaTeX(t *testing.T) {
	chain := &fakeGenerator{responses: []string{"brief"}}
	writer := &fakeGenerator{responses: []string{"I cannot produce LaTeX today."}}
	deps := &Deps{Chain: chain, Writer: writer, Logger: zerolog.Nop()}
	run := &Context{
		RunDir:       t.TempDir(),
		CompanySafe:  "Acme",
		Job:          &scrape.Job{Title: "PM", Company: "Acme"},
		MasterResume: "resume",
	}

	err := stepTailorResume(context.Background(), run, deps)
	if err == nil {
		t.Fatal("Expected error for unparseable LaTeX")
	}
	if !strings.Contains(err.Error(), "parseable LaTeX") {
		t.Errorf("Unexpected error: %v", err)
	}
	// The raw response is preserved for debugging.
	rawPath := filepath.Join(run.RunDir, "tailor_raw_Acme.txt")
	data, readErr := os.ReadFile(rawPath)
	if readErr != nil {
		t.Fatalf("Raw response not saved: %v", readErr)
	}
	if string(data) != "I cannot produce LaTeX today." {
		t.Errorf("Unexpected raw content: %q", data)
	}
}

func TestLockedHeader(t *testing.T) {
	h := lockedHeader(config.ApplicantConfig{
		Name:     "Maria Lopez",
		Email:    "maria@example.com",
		LinkedIn: "linkedin.com/in/mlopez",
		Website:  "https://mlopez.dev/",
		Phone:    "+1 555 0100",
	}, "Experiments that accelerate revenue.")

	for _, want := range []string{
		`\begin{center}`,
		"Maria Lopez",
		`\href{mailto:maria@example.com}{maria@example.com}`,
		`\href{https://linkedin.com/in/mlopez}{linkedin.com/in/mlopez}`,
		`\href{https://mlopez.dev/}{mlopez.dev}`,
		"+1 555 0100",
		`\end{center}`,
	} {
		if !strings.Contains(h, want) {
			t.Errorf("Header missing %q:\n%s", want, h)
		}
	}
}

func TestStepWriteTex(t *testing.T) {
	run := &Context{
		RunDir:        t.TempDir(),
		CompanySafe:   "Acme",
		TailoredLaTeX: "\\documentclass{article}",
	}
	deps := &Deps{Logger: zerolog.Nop()}

	if err := stepWriteTex(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := filepath.Join(run.RunDir, "resume_tailored_Acme.tex")
	if run.TexPath != want {
		t.Errorf("TexPath = %q, want %q", run.TexPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "\\documentclass{article}" {
		t.Errorf("Tex file content wrong: %v", err)
	}
}

type fakeKnowledge struct {
	skills    string
	templates string
	err       error
}

func (f *fakeKnowledge) SkillsInventory(ctx context.Context) (string, error) {
	return f.skills, f.err
}

func (f *fakeKnowledge) QATemplates(ctx context.Context) (string, error) {
	return f.templates, f.err
}

func TestStepATSCheck(t *testing.T) {
	report := "```json\n{\"coverage_score\": {\"coverage_pct\": 85, \"verdict\": \"PASS\"}}\n```\n" +
		"```markdown\n# ATS Check: Acme\nLooks good.\n```"
	chain := &fakeGenerator{responses: []string{report}, provider: "gemini/flash"}
	deps := &Deps{
		Chain:     chain,
		Knowledge: &fakeKnowledge{skills: "- Go | Engineering | Expert | Priority: High"},
		Logger:    zerolog.Nop(),
	}
	run := &Context{
		RunDir:        t.TempDir(),
		CompanySafe:   "Acme",
		Job:           &scrape.Job{Title: "PM", Company: "Acme", Description: "desc"},
		TailoredLaTeX: "\\documentclass{article}",
	}

	if err := stepATSCheck(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.ATSReport == nil {
		t.Fatal("Report not stored")
	}
	if pct := run.ATSReport.CoveragePct(); pct != 85 {
		t.Errorf("CoveragePct = %v, want 85", pct)
	}
	if !strings.Contains(chain.requests[0].User, "Candidate Skill Inventory") {
		t.Error("Skill inventory missing from prompt")
	}
	if _, err := os.Stat(filepath.Join(run.RunDir, "ats_report_Acme.json")); err != nil {
		t.Errorf("JSON artifact not saved: %v", err)
	}
	if _, err := os.Stat(filepath.Join(run.RunDir, "ats_report_Acme.md")); err != nil {
		t.Errorf("Markdown artifact not saved: %v", err)
	}
}

func TestStepATSCheckKnowledgeUnavailable(t *testing.T) {
	chain := &fakeGenerator{responses: []string{"{}"}}
	deps := &Deps{
		Chain:     chain,
		Knowledge: &fakeKnowledge{err: errors.New("notion down")},
		Logger:    zerolog.Nop(),
	}
	run := &Context{
		RunDir:        t.TempDir(),
		CompanySafe:   "Acme",
		Job:           &scrape.Job{Title: "PM", Company: "Acme"},
		TailoredLaTeX: "x",
	}

	if err := stepATSCheck(context.Background(), run, deps); err != nil {
		t.Fatalf("Knowledge failure must degrade, not fail: %v", err)
	}
	if strings.Contains(chain.requests[0].User, "Candidate Skill Inventory") {
		t.Error("Prompt must omit the inventory section when unavailable")
	}
}

func TestStepApplyATSEditsAutoApply(t *testing.T) {
	latex := "\\documentclass{article}\n\\begin{document}\nEdited\n\\end{document}"
	writer := &fakeGenerator{responses: []string{"```latex\n" + latex + "\n```"}, provider: "groq/llama"}
	texPath := filepath.Join(t.TempDir(), "resume.tex")
	if err := os.WriteFile(texPath, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	confirmCalled := false
	deps := &Deps{
		Writer:  writer,
		Confirm: func(string) bool { confirmCalled = true; return false },
		Logger:  zerolog.Nop(),
	}
	run := &Context{
		TexPath:       texPath,
		TailoredLaTeX: "original",
		ATSReport: &textextract.ATSReport{JSON: map[string]any{
			"coverage_score":  map[string]any{"coverage_pct": float64(90)},
			"suggested_edits": []any{map[string]any{"edit": "add keyword"}},
		}},
	}

	if err := stepApplyATSEdits(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if confirmCalled {
		t.Error("Coverage above threshold must not prompt")
	}
	if run.TailoredLaTeX != latex {
		t.Errorf("LaTeX not updated: %q", run.TailoredLaTeX)
	}
	data, err := os.ReadFile(texPath)
	if err != nil || string(data) != latex {
		t.Errorf("Tex file not rewritten: %v", err)
	}
}

func TestStepApplyATSEditsDeclined(t *testing.T) {
	writer := &fakeGenerator{responses: []string{"unused"}}
	deps := &Deps{
		Writer:  writer,
		Confirm: func(string) bool { return false },
		Logger:  zerolog.Nop(),
	}
	run := &Context{
		TexPath:       "unused.tex",
		TailoredLaTeX: "original",
		ATSReport: &textextract.ATSReport{JSON: map[string]any{
			"coverage_score":  map[string]any{"coverage_pct": float64(50)},
			"suggested_edits": []any{map[string]any{"edit": "rewrite everything"}},
		}},
	}

	if err := stepApplyATSEdits(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(writer.requests) != 0 {
		t.Error("Declined edits must not call the model")
	}
	if run.TailoredLaTeX != "original" {
		t.Error("LaTeX must stay unchanged when edits are declined")
	}
}

func TestStepApplyATSEditsNoEdits(t *testing.T) {
	writer := &fakeGenerator{responses: []string{"unused"}}
	deps := &Deps{Writer: writer, Logger: zerolog.Nop()}
	run := &Context{
		ATSReport: &textextract.ATSReport{JSON: map[string]any{
			"coverage_score": map[string]any{"coverage_pct": float64(50)},
		}},
	}

	if err := stepApplyATSEdits(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(writer.requests) != 0 {
		t.Error("No edits means no model call")
	}
}

func TestStepApplyATSEditsUnparseableKeepsOriginal(t *testing.T) {
	writer := &fakeGenerator{responses: []string{"not latex at all"}}
	deps := &Deps{Writer: writer, Logger: zerolog.Nop()}
	run := &Context{
		TexPath:       "unused.tex",
		TailoredLaTeX: "original",
		ATSReport: &textextract.ATSReport{JSON: map[string]any{
			"coverage_score":  map[string]any{"coverage_pct": float64(95)},
			"suggested_edits": []any{map[string]any{"edit": "x"}},
		}},
	}

	if err := stepApplyATSEdits(context.Background(), run, deps); err != nil {
		t.Fatalf("Unparseable edit output must not fail the run: %v", err)
	}
	if run.TailoredLaTeX != "original" {
		t.Error("Original LaTeX must be kept")
	}
}

type fakeResearcher struct {
	research string
}

func (f *fakeResearcher) ResearchCompany(ctx context.Context, name, url string) string {
	return f.research
}

func TestStepGenerateQANoQuestions(t *testing.T) {
	writer := &fakeGenerator{responses: []string{"unused"}}
	deps := &Deps{Writer: writer, Logger: zerolog.Nop()}
	run := &Context{Job: &scrape.Job{}, MasterResume: "resume"}

	if err := stepGenerateQA(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.QAAnswers == nil {
		t.Error("QAAnswers must be set to an empty slice, not nil")
	}
	if len(writer.requests) != 0 {
		t.Error("No questions means no model call")
	}
}

func TestStepGenerateQA(t *testing.T) {
	response := "### Q: Why Acme?\n### A: Because the mission resonates with my experience building growth loops.\n"
	writer := &fakeGenerator{responses: []string{response}, provider: "groq/llama"}
	deps := &Deps{
		Writer:     writer,
		Researcher: &fakeResearcher{research: "Acme builds anvils."},
		Knowledge:  &fakeKnowledge{templates: "**[Motivation]** Why us?"},
		Applicant:  config.ApplicantConfig{Name: "Maria Lopez", Email: "maria@example.com"},
		Logger:     zerolog.Nop(),
	}
	run := &Context{
		RunDir:       t.TempDir(),
		CompanySafe:  "Acme",
		Job:          &scrape.Job{Title: "PM", Company: "Acme", Description: "desc"},
		MasterResume: "resume",
		AllQuestions: []string{"Why Acme?"},
	}

	if err := stepGenerateQA(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(run.QAAnswers) != 1 {
		t.Fatalf("QAAnswers = %v", run.QAAnswers)
	}
	if run.QAAnswers[0].Question != "Why Acme?" {
		t.Errorf("Question = %q", run.QAAnswers[0].Question)
	}
	if run.CompanyResearch != "Acme builds anvils." {
		t.Errorf("CompanyResearch = %q", run.CompanyResearch)
	}
	if !strings.Contains(writer.requests[0].User, "Acme builds anvils.") {
		t.Error("Research missing from prompt")
	}
	if !strings.Contains(writer.requests[0].User, "Q&A Templates") {
		t.Error("Templates missing from prompt")
	}

	if _, err := os.Stat(filepath.Join(run.RunDir, "qa_Acme.md")); err != nil {
		t.Errorf("Q&A artifact not saved: %v", err)
	}
	formPath := filepath.Join(run.RunDir, "form_data_Acme.json")
	data, err := os.ReadFile(formPath)
	if err != nil {
		t.Fatalf("Form data not saved: %v", err)
	}
	if !strings.Contains(string(data), `"first_name": "Maria"`) {
		t.Errorf("Form data missing first name: %s", data)
	}
	if !strings.Contains(string(data), "cover_letter") {
		t.Errorf("Form data missing cover letter: %s", data)
	}
	if run.FormDataPath != formPath {
		t.Errorf("FormDataPath = %q", run.FormDataPath)
	}
}

type fakeTracker struct {
	pageID string
	err    error
	recs   []TrackingRecord
}

func (f *fakeTracker) CreateApplication(ctx context.Context, rec TrackingRecord) (string, error) {
	f.recs = append(f.recs, rec)
	return f.pageID, f.err
}

func TestStepCreateTrackingEntry(t *testing.T) {
	tracker := &fakeTracker{pageID: "page-123"}
	deps := &Deps{Tracker: tracker, ResumeVariant: "growth_pm", Logger: zerolog.Nop()}
	run := &Context{
		JobURL: "https://example.com/job",
		Job:    &scrape.Job{Title: "PM", Company: "Acme"},
		QAAnswers: []textextract.QA{
			{Question: "Why Acme?", Answer: "Because."},
		},
	}

	if err := stepCreateTrackingEntry(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if run.TrackingPageID != "page-123" {
		t.Errorf("TrackingPageID = %q", run.TrackingPageID)
	}
	if len(tracker.recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(tracker.recs))
	}
	rec := tracker.recs[0]
	if rec.Company != "Acme" || rec.Variant != "growth_pm" {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if !strings.Contains(rec.QAText, "Q: Why Acme?") {
		t.Errorf("QAText = %q", rec.QAText)
	}
}

func TestStepCreateTrackingEntrySkipped(t *testing.T) {
	tracker := &fakeTracker{}
	deps := &Deps{Tracker: tracker, Logger: zerolog.Nop()}
	run := &Context{SkipTracking: true, Job: &scrape.Job{Company: "Acme"}}

	if err := stepCreateTrackingEntry(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(tracker.recs) != 0 {
		t.Error("SkipTracking must prevent the tracker call")
	}
}

func TestStepCreateTrackingEntryFailureTolerated(t *testing.T) {
	tracker := &fakeTracker{err: errors.New("notion down")}
	deps := &Deps{Tracker: tracker, Logger: zerolog.Nop()}
	run := &Context{Job: &scrape.Job{Company: "Acme"}}

	if err := stepCreateTrackingEntry(context.Background(), run, deps); err != nil {
		t.Fatalf("Tracking failure must not fail the run: %v", err)
	}
	if run.TrackingPageID != "" {
		t.Error("No page ID on failure")
	}
}

func TestStepCreateTrackingEntryUnknownPlaceholders(t *testing.T) {
	tracker := &fakeTracker{}
	deps := &Deps{Tracker: tracker, Logger: zerolog.Nop()}
	run := &Context{Job: &scrape.Job{}}

	if err := stepCreateTrackingEntry(context.Background(), run, deps); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	rec := tracker.recs[0]
	if rec.JobTitle != "Unknown" || rec.Company != "Unknown" {
		t.Errorf("Expected Unknown placeholders, got %+v", rec)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("hello world", 5); got != "hello" {
		t.Errorf("truncate long = %q", got)
	}
}
