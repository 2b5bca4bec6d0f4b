package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/mlopez/jobquest/config"
	"github.com/mlopez/jobquest/llm"
	"github.com/mlopez/jobquest/textextract"
)

const (
	stepIDScrape   = "scrape"
	stepIDResume   = "resume"
	stepIDTailor   = "tailor"
	stepIDWriteTex = "write_tex"
	stepIDATSCheck = "ats_check"
	stepIDATSApply = "ats_apply"
	stepIDCompile  = "compile"
	stepIDQA       = "qa"
	stepIDTracking = "tracking"
)

const (
	// A master resume under this size means the source read was
	// degraded, not that the resume is short.
	minResumeChars = 500
	resumeCacheTTL = 24 * time.Hour
	resumeCacheFil = "master_resume.txt"

	// Edits at or above this coverage score apply without review.
	autoApplyCoveragePct = 80

	// Prompt-size bounds for the Q&A step.
	maxQADescriptionChars = 3000
	maxQAResearchChars    = 2000

	// Tracking entries cap attached Q&A text.
	maxTrackingQAChars = 4000
)

// Steps returns the standard pipeline in execution order.
func Steps() []Step {
	return []Step{
		{ID: stepIDScrape, Description: "Scrape job posting",
			Requires: []Field{FieldJobURL}, Run: stepScrapeJob},
		{ID: stepIDResume, Description: "Read master resume",
			Requires: []Field{FieldRunDir}, Run: stepReadMasterResume},
		{ID: stepIDTailor, Description: "Tailor resume",
			Requires: []Field{FieldJob, FieldRunDir, FieldMasterResume}, Run: stepTailorResume},
		{ID: stepIDWriteTex, Description: "Write .tex file",
			Requires: []Field{FieldRunDir, FieldTailoredLaTeX}, Run: stepWriteTex},
		{ID: stepIDATSCheck, Description: "Run ATS keyword check",
			Requires: []Field{FieldJob, FieldTailoredLaTeX}, Run: stepATSCheck},
		{ID: stepIDATSApply, Description: "Review and apply ATS edits",
			Requires: []Field{FieldATSReport, FieldTexPath}, Run: stepApplyATSEdits},
		{ID: stepIDCompile, Description: "Compile PDF",
			Requires: []Field{FieldTexPath}, Run: stepCompilePDF},
		{ID: stepIDQA, Description: "Generate Q&A answers",
			Requires: []Field{FieldJob, FieldMasterResume}, Run: stepGenerateQA},
		{ID: stepIDTracking, Description: "Create tracking entry",
			Requires: []Field{FieldJob}, Run: stepCreateTrackingEntry},
	}
}

// generate runs one model call and attributes it to the provider that
// served it.
func generate(ctx context.Context, gen Generator, run *Context, system, user string, temperature float64) (string, error) {
	res, err := gen.Generate(ctx, &llm.Request{System: system, User: user, Temperature: temperature})
	if err != nil {
		return "", err
	}
	run.recordCall(res.Provider)
	return res.Text, nil
}

var unsafeFilenameRe = regexp.MustCompile(`[^\w\-]`)

// safeFilename turns a company name into a filesystem-safe string.
func safeFilename(name string) string {
	return strings.Trim(unsafeFilenameRe.ReplaceAllString(name, "_"), "_")
}

// --- Step 1: scrape job posting ---

func stepScrapeJob(ctx context.Context, run *Context, deps *Deps) error {
	job, err := deps.Scraper.Scrape(ctx, run.JobURL)
	if err != nil {
		return err
	}
	run.Job = job

	companySafe := safeFilename(job.Company)
	if companySafe == "" {
		companySafe = "unknown"
	}
	runDir := filepath.Join(deps.OutputDir, companySafe+"_"+time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	run.RunDir = runDir
	run.CompanySafe = companySafe

	// Merge scraped questions with user-provided ones, deduped in order.
	run.AllQuestions = lo.Uniq(append(append([]string{}, job.Questions...), run.Questions...))

	deps.Logger.Info().
		Str("title", job.Title).
		Str("company", job.Company).
		Str("source", job.Source).
		Int("description_chars", len(job.Description)).
		Int("questions", len(run.AllQuestions)).
		Msg("job posting scraped")
	if job.Source == "unavailable" {
		deps.Logger.Warn().Str("url", run.JobURL).Msg("posting could not be fetched, continuing with empty job data")
	}
	return nil
}

// --- Step 2: read master resume ---

func stepReadMasterResume(ctx context.Context, run *Context, deps *Deps) error {
	cachePath := filepath.Join(deps.CacheDir, resumeCacheFil)

	// Serve from cache while fresh. A short cached file means a
	// previous degraded read slipped through; discard it.
	if info, err := os.Stat(cachePath); err == nil {
		age := time.Since(info.ModTime())
		if age < resumeCacheTTL {
			data, err := os.ReadFile(cachePath)
			if err == nil {
				if len(data) < minResumeChars {
					deps.Logger.Warn().Int("chars", len(data)).Msg("resume cache corrupted, re-fetching")
					os.Remove(cachePath)
				} else {
					deps.Logger.Info().Int("chars", len(data)).Dur("age", age).Msg("master resume loaded from cache")
					run.MasterResume = string(data)
					return nil
				}
			}
		}
	}

	text, err := deps.Resume.MasterResume(ctx)
	if err != nil {
		return err
	}
	if len(text) < minResumeChars {
		return fmt.Errorf("master resume read returned suspiciously short content (%d chars), source may be degraded: %q",
			len(text), truncate(text, 200))
	}

	if deps.CacheDir != "" {
		if err := os.MkdirAll(deps.CacheDir, 0o755); err == nil {
			if err := os.WriteFile(cachePath, []byte(text), 0o644); err != nil {
				deps.Logger.Warn().Err(err).Msg("writing resume cache failed")
			}
		}
	}
	run.MasterResume = text
	deps.Logger.Info().Int("chars", len(text)).Msg("master resume loaded")
	return nil
}

// --- Step 3: tailor resume ---

var taglines = map[string]string{
	"growth_pm":  "Experiments that accelerate revenue.",
	"generalist": "End-to-end ownership. Outcomes delivered.",
}

func tagline(roleVariant string) string {
	if t, ok := taglines[roleVariant]; ok {
		return t
	}
	return taglines["growth_pm"]
}

func stepTailorResume(ctx context.Context, run *Context, deps *Deps) error {
	// Stage one: a structured tailoring brief from the default chain.
	// Separating "figuring out what to do" from "doing it" produces
	// more deliberate keyword placement.
	analysisUser := fmt.Sprintf(
		"## Job Posting\n\n**Title:** %s\n**Company:** %s\n\n%s\n\n---\n\n"+
			"## Candidate Resume\n\n%s\n\n---\n\nProduce the tailoring brief.",
		run.Job.Title, run.Job.Company, run.Job.Description, run.MasterResume)

	brief, err := generate(ctx, deps.Chain, run, loadPrompt("jd_analysis"), analysisUser, 0.2)
	if err != nil {
		return fmt.Errorf("analyzing job requirements: %w", err)
	}
	run.TailoringBrief = brief

	briefPath := filepath.Join(run.RunDir, "tailoring_brief_"+run.CompanySafe+".md")
	if err := os.WriteFile(briefPath, []byte(brief), 0o644); err != nil {
		deps.Logger.Warn().Err(err).Msg("saving tailoring brief failed")
	}
	deps.Logger.Info().Int("chars", len(brief)).Msg("tailoring brief generated")

	// Stage two: LaTeX generation on the writing chain. Static content
	// comes first in the prompt so provider prefix caches can reuse it.
	system := voicePrefix() + loadPrompt("resume_tailor")
	user := fmt.Sprintf(
		"## Tailoring Brief\n\n"+
			"This analysis was produced for you in advance. Follow it.\n\n%s\n\n---\n\n"+
			"## Locked Header (copy character-for-character, do not change anything)\n\n%s\n\n---\n\n"+
			"## Master Resume\n\n%s\n\n---\n\n"+
			"## Job Posting\n\n**URL:** %s\n**Title:** %s\n**Company:** %s\n\n%s\n\n---\n\n"+
			"Generate the complete tailored LaTeX resume following the tailoring brief above. "+
			"Output ONLY the LaTeX content between ```latex and ``` markers.",
		brief, lockedHeader(deps.Applicant, tagline(deps.RoleVariant)),
		run.MasterResume, run.Job.URL, run.Job.Title, run.Job.Company, run.Job.Description)

	raw, err := generate(ctx, deps.Writer, run, system, user, 0.3)
	if err != nil {
		return fmt.Errorf("generating tailored resume: %w", err)
	}
	run.TailorRaw = raw

	latex := textextract.ExtractLaTeX(raw)
	if latex == "" {
		rawPath := filepath.Join(run.RunDir, "tailor_raw_"+run.CompanySafe+".txt")
		if err := os.WriteFile(rawPath, []byte(raw), 0o644); err == nil {
			return fmt.Errorf("model did not return parseable LaTeX, raw response saved to %s", rawPath)
		}
		return fmt.Errorf("model did not return parseable LaTeX")
	}
	run.TailoredLaTeX = textextract.FixMarkdownLists(latex)
	deps.Logger.Info().Int("chars", len(latex)).Msg("tailored LaTeX generated")
	return nil
}

// lockedHeader renders the contact header the model must copy verbatim.
func lockedHeader(a config.ApplicantConfig, tagline string) string {
	var links []string
	if a.Website != "" {
		links = append(links, fmt.Sprintf(`\href{%s}{%s}`, withScheme(a.Website), stripScheme(a.Website)))
	}
	if a.Email != "" {
		links = append(links, fmt.Sprintf(`\href{mailto:%s}{%s}`, a.Email, a.Email))
	}
	if a.LinkedIn != "" {
		links = append(links, fmt.Sprintf(`\href{%s}{%s}`, withScheme(a.LinkedIn), stripScheme(a.LinkedIn)))
	}
	if a.Phone != "" {
		links = append(links, a.Phone)
	}

	var b strings.Builder
	b.WriteString("\\begin{center}\n")
	fmt.Fprintf(&b, "  {\\Huge\\bfseries %s,} {\\small %s}\\\\[6pt]\n", a.Name, tagline)
	b.WriteString("  " + strings.Join(links, ` \textbar{} `) + "\n")
	b.WriteString("\\end{center}")
	return b.String()
}

func withScheme(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https://" + url
}

func stripScheme(url string) string {
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	return strings.TrimSuffix(url, "/")
}

// --- Step 4: write .tex file ---

func stepWriteTex(ctx context.Context, run *Context, deps *Deps) error {
	texPath := filepath.Join(run.RunDir, "resume_tailored_"+run.CompanySafe+".tex")
	if err := os.WriteFile(texPath, []byte(run.TailoredLaTeX), 0o644); err != nil {
		return fmt.Errorf("writing tex file: %w", err)
	}
	run.TexPath = texPath
	deps.Logger.Info().Str("path", texPath).Msg("tex file written")
	return nil
}

// --- Step 5: ATS check ---

// skillsInventory loads the skill list once per run. Unavailable
// knowledge bases degrade to an empty inventory.
func skillsInventory(ctx context.Context, run *Context, deps *Deps) (string, error) {
	if run.skillsInventory != nil {
		return *run.skillsInventory, nil
	}
	inventory := ""
	if deps.Knowledge != nil {
		v, err := deps.Knowledge.SkillsInventory(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			deps.Logger.Warn().Err(err).Msg("skills inventory unavailable, proceeding without")
		default:
			inventory = v
		}
	}
	run.skillsInventory = &inventory
	return inventory, nil
}

func stepATSCheck(ctx context.Context, run *Context, deps *Deps) error {
	inventory, err := skillsInventory(ctx, run, deps)
	if err != nil {
		return err
	}

	skillsSection := ""
	if inventory != "" {
		skillsSection = fmt.Sprintf(
			"---\n\n## Candidate Skill Inventory\n\n"+
				"Confirmed skills (Name | Category | Proficiency | ATS Priority). "+
				"Use this to classify N/A vs MISSING accurately. "+
				"Only mark N/A if the skill is absent from this list:\n\n%s\n\n",
			inventory)
		deps.Logger.Info().Int("skills", strings.Count(inventory, "\n")+1).Msg("skill inventory loaded")
	}

	user := fmt.Sprintf(
		"## Job Posting\n\n**Title:** %s\n**Company:** %s\n\n%s\n\n---\n\n"+
			"## Tailored Resume (.tex)\n\n%s\n\n---\n\n%s"+
			"Run the full ATS coverage and consistency check. "+
			"Output the JSON report between ```json and ``` markers, "+
			"then the Markdown report between ```markdown and ``` markers.",
		run.Job.Title, run.Job.Company, run.Job.Description, run.TailoredLaTeX, skillsSection)

	raw, err := generate(ctx, deps.Chain, run, loadPrompt("ats_check"), user, 0.2)
	if err != nil {
		return fmt.Errorf("running ATS check: %w", err)
	}
	run.ATSRaw = raw
	run.ATSReport = textextract.ParseATSReport(raw)

	if run.ATSReport.JSON != nil {
		if data, err := json.MarshalIndent(run.ATSReport.JSON, "", "  "); err == nil {
			path := filepath.Join(run.RunDir, "ats_report_"+run.CompanySafe+".json")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				deps.Logger.Warn().Err(err).Msg("saving ATS JSON report failed")
			}
		}
	}
	if run.ATSReport.Markdown != "" {
		path := filepath.Join(run.RunDir, "ats_report_"+run.CompanySafe+".md")
		if err := os.WriteFile(path, []byte(run.ATSReport.Markdown), 0o644); err != nil {
			deps.Logger.Warn().Err(err).Msg("saving ATS markdown report failed")
		}
	}

	deps.Logger.Info().
		Float64("coverage_pct", run.ATSReport.CoveragePct()).
		Str("verdict", run.ATSReport.Verdict()).
		Msg("ATS check complete")
	return nil
}

// --- Step 6: apply ATS edits ---

func stepApplyATSEdits(ctx context.Context, run *Context, deps *Deps) error {
	edits := run.ATSReport.SuggestedEdits()
	if len(edits) == 0 {
		deps.Logger.Info().Msg("no edits suggested")
		return nil
	}
	pct := run.ATSReport.CoveragePct()

	apply := false
	switch {
	case pct >= autoApplyCoveragePct:
		deps.Logger.Info().Float64("coverage_pct", pct).Int("edits", len(edits)).Msg("score above threshold, auto-applying edits")
		apply = true
	case deps.Confirm == nil:
		deps.Logger.Warn().Float64("coverage_pct", pct).Int("edits", len(edits)).Msg("score below threshold, auto-applying edits (non-interactive)")
		apply = true
	default:
		apply = deps.Confirm(fmt.Sprintf("Coverage %.0f%% is below %d%%. Apply all %d suggested edits?",
			pct, autoApplyCoveragePct, len(edits)))
	}
	if !apply {
		deps.Logger.Info().Msg("edits skipped")
		return nil
	}

	// The model applies its own edits. Regex surgery on LaTeX is how
	// resumes get corrupted.
	editsJSON, err := json.MarshalIndent(edits, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding edits: %w", err)
	}
	system := "You are a LaTeX editor. Apply the following edits to the resume. " +
		"Output ONLY the complete modified LaTeX between ```latex and ``` markers. " +
		"Make exactly the requested changes. Do not change anything else."
	user := fmt.Sprintf("## Current LaTeX\n\n%s\n\n## Edits to Apply\n\n%s\n\n"+
		"Apply these edits and return the complete modified LaTeX.",
		run.TailoredLaTeX, editsJSON)

	raw, err := generate(ctx, deps.Writer, run, system, user, 0.1)
	if err != nil {
		return fmt.Errorf("applying ATS edits: %w", err)
	}

	updated := textextract.ExtractLaTeX(raw)
	if updated == "" {
		deps.Logger.Warn().Msg("edited LaTeX not parseable, keeping original")
		return nil
	}
	run.TailoredLaTeX = textextract.FixMarkdownLists(updated)
	if err := os.WriteFile(run.TexPath, []byte(run.TailoredLaTeX), 0o644); err != nil {
		return fmt.Errorf("rewriting tex file: %w", err)
	}
	deps.Logger.Info().Msg("edits applied, tex file updated")
	return nil
}

// --- Step 7: compile PDF ---

func stepCompilePDF(ctx context.Context, run *Context, deps *Deps) error {
	result, err := deps.Compiler.Compile(ctx, run.TexPath)
	if err != nil {
		if result != nil {
			for _, line := range result.Details {
				deps.Logger.Error().Msg(line)
			}
		}
		return fmt.Errorf("PDF compilation failed: %w", err)
	}
	run.PDFPath = result.PDFPath
	deps.Logger.Info().Str("path", result.PDFPath).Msg("PDF compiled")
	return nil
}

// --- Step 8: generate Q&A answers ---

var roleFramings = map[string]string{
	"growth_pm": "Resume variant: **Growth PM**. Foreground growth, conversion, " +
		"and experimentation work; research and platform depth as supporting evidence.",
	"generalist": "Resume variant: **Generalist PM**. Foreground full product " +
		"lifecycle ownership, stakeholder management, and cross-functional delivery.",
}

// qaTemplates loads answer templates once per run, degrading to none.
func qaTemplates(ctx context.Context, run *Context, deps *Deps) (string, error) {
	if run.qaTemplates != nil {
		return *run.qaTemplates, nil
	}
	templates := ""
	if deps.Knowledge != nil {
		v, err := deps.Knowledge.QATemplates(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			deps.Logger.Warn().Err(err).Msg("Q&A templates unavailable, proceeding without")
		default:
			templates = v
		}
	}
	run.qaTemplates = &templates
	return templates, nil
}

func stepGenerateQA(ctx context.Context, run *Context, deps *Deps) error {
	if len(run.AllQuestions) == 0 {
		deps.Logger.Info().Msg("no application questions, skipping")
		run.QAAnswers = []textextract.QA{}
		return nil
	}
	deps.Logger.Info().Int("questions", len(run.AllQuestions)).Msg("generating answers")

	if deps.Researcher != nil {
		run.CompanyResearch = deps.Researcher.ResearchCompany(ctx, run.Job.Company, run.CompanyURL)
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	templates, err := qaTemplates(ctx, run, deps)
	if err != nil {
		return err
	}
	templatesSection := ""
	if templates != "" {
		templatesSection = fmt.Sprintf(
			"---\n\n## Q&A Templates\n\n"+
				"Common question patterns with preferred answer structures. "+
				"Use these as style guides. Do NOT copy verbatim, adapt to this specific role:\n\n%s\n\n",
			templates)
	}

	var questions strings.Builder
	for i, q := range run.AllQuestions {
		fmt.Fprintf(&questions, "%d. %s\n", i+1, strings.TrimSpace(q))
	}

	system := voicePrefix() + loadPrompt("qa_generator")
	user := fmt.Sprintf(
		"## Master Resume\n\n%s\n\n---\n\n%s---\n\n"+
			"## Job Posting\n\n**Title:** %s\n**Company:** %s\n\n%s\n\n---\n\n"+
			"## Company Research\n\n%s\n\n---\n\n"+
			"## Questions to Answer\n\n%s\n\n---\n\n%s\n\n"+
			"Generate answers for each question.",
		run.MasterResume, templatesSection,
		run.Job.Title, run.Job.Company, truncate(run.Job.Description, maxQADescriptionChars),
		truncate(run.CompanyResearch, maxQAResearchChars),
		questions.String(), roleFramings[deps.RoleVariant])

	raw, err := generate(ctx, deps.Writer, run, system, user, 0.5)
	if err != nil {
		return fmt.Errorf("generating answers: %w", err)
	}
	run.QARaw = raw
	run.QAAnswers = textextract.ParseQAAnswers(raw)

	qaPath := filepath.Join(run.RunDir, "qa_"+run.CompanySafe+".md")
	if err := os.WriteFile(qaPath, []byte(raw), 0o644); err != nil {
		deps.Logger.Warn().Err(err).Msg("saving Q&A output failed")
	}

	if err := writeFormData(run, deps); err != nil {
		deps.Logger.Warn().Err(err).Msg("saving form data failed")
	}

	deps.Logger.Info().Int("answers", len(run.QAAnswers)).Msg("answers generated")
	return nil
}

// writeFormData saves the applicant fields plus the first answer as a
// JSON artifact for manual form filling.
func writeFormData(run *Context, deps *Deps) error {
	nameParts := strings.Fields(deps.Applicant.Name)
	firstName, lastName := "", ""
	if len(nameParts) > 0 {
		firstName = nameParts[0]
	}
	if len(nameParts) > 1 {
		lastName = nameParts[len(nameParts)-1]
	}

	formData := map[string]string{
		"name":       deps.Applicant.Name,
		"first_name": firstName,
		"last_name":  lastName,
		"email":      deps.Applicant.Email,
		"phone":      deps.Applicant.Phone,
		"linkedin":   deps.Applicant.LinkedIn,
		"location":   deps.Applicant.Location,
	}
	if len(run.QAAnswers) > 0 {
		formData["cover_letter"] = run.QAAnswers[0].Answer
	}

	data, err := json.MarshalIndent(formData, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(run.RunDir, "form_data_"+run.CompanySafe+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	run.FormDataPath = path
	return nil
}

// --- Step 9: create tracking entry ---

// Tracking failures never fail the run: by this point the application
// artifacts exist and losing them over a bookkeeping error is worse
// than a missing tracker row.
func stepCreateTrackingEntry(ctx context.Context, run *Context, deps *Deps) error {
	if run.SkipTracking {
		deps.Logger.Info().Msg("tracking skipped by flag")
		return nil
	}
	if deps.Tracker == nil {
		deps.Logger.Info().Msg("no tracker configured, skipping")
		return nil
	}

	var qaText strings.Builder
	for _, qa := range run.QAAnswers {
		fmt.Fprintf(&qaText, "Q: %s\nA: %s\n\n", qa.Question, qa.Answer)
	}

	jobTitle := run.Job.Title
	if jobTitle == "" {
		jobTitle = "Unknown"
	}
	company := run.Job.Company
	if company == "" {
		company = "Unknown"
	}

	pageID, err := deps.Tracker.CreateApplication(ctx, TrackingRecord{
		JobTitle: jobTitle,
		Company:  company,
		URL:      run.JobURL,
		Variant:  deps.ResumeVariant,
		QAText:   truncate(qaText.String(), maxTrackingQAChars),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		deps.Logger.Error().Err(err).Msg("tracking entry failed, continuing without")
		return nil
	}
	run.TrackingPageID = pageID
	deps.Logger.Info().Str("page_id", pageID).Msg("tracking entry created")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
