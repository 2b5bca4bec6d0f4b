package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mlopez/jobquest/config"
	"github.com/mlopez/jobquest/notify"
	"github.com/mlopez/jobquest/pdfcompile"
	"github.com/mlopez/jobquest/pipeline"
	"github.com/mlopez/jobquest/providers"
	"github.com/mlopez/jobquest/scrape"
	"github.com/mlopez/jobquest/stats"
)

type applyOptions struct {
	companyURL   string
	questions    []string
	skipTracking bool
	provider     string
	dryRun       bool
}

func newApplyCommand(root *rootOptions) *cobra.Command {
	opts := &applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply <job-url>",
		Short: "Run the application pipeline for a job posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), root, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.companyURL, "company-url", "", "company website URL for research")
	cmd.Flags().StringArrayVar(&opts.questions, "question", nil, "application question (repeatable)")
	cmd.Flags().BoolVar(&opts.skipTracking, "skip-tracking", false, "skip the tracking entry step")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "primary LLM provider (default from config or LLM_PROVIDER)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show the pipeline plan without executing")
	return cmd
}

func runApply(parent context.Context, root *rootOptions, opts *applyOptions, jobURL string) error {
	cfg, log, err := root.setup()
	if err != nil {
		return err
	}

	provider := opts.provider
	if provider == "" {
		provider = cfg.Provider
	}
	if err := providers.Validate(provider); err != nil {
		return err
	}

	questions := make([]string, 0, len(opts.questions))
	for _, q := range opts.questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}

	run := &pipeline.Context{
		JobURL:       jobURL,
		CompanyURL:   opts.companyURL,
		Questions:    questions,
		SkipTracking: opts.skipTracking,
		Provider:     provider,
	}

	if opts.dryRun {
		deps := &pipeline.Deps{Logger: log}
		printPlan(pipeline.NewRunner(deps).Plan(run), run)
		return nil
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	chain, err := providers.Build(cfg, provider, log)
	if err != nil {
		return err
	}
	writer, err := providers.BuildWriting(cfg, log)
	if err != nil {
		// A missing writing chain is survivable: the default chain
		// writes too, just with weaker prose.
		log.Warn().Err(err).Msg("no writing chain available, using default chain for writing steps")
		writer = chain
	}

	deps, cleanup := buildDeps(cfg, log)
	defer cleanup()
	deps.Chain = chain
	deps.Writer = writer

	log.Info().
		Str("url", jobURL).
		Str("provider", provider).
		Strs("chain", chain.Providers()).
		Msg("starting pipeline")

	outcome := pipeline.NewRunner(deps).Run(ctx, run)
	recordUsage(cfg, run, outcome, log)

	company := ""
	if run.Job != nil {
		company = run.Job.Company
	}
	notify.RunFinished(string(outcome.Status), company, log)

	switch outcome.Status {
	case pipeline.StatusSucceeded:
		printSummary(run)
		return nil
	case pipeline.StatusInterrupted:
		fmt.Println("Pipeline interrupted. Partial results saved.")
		if outcome.SnapshotPath != "" {
			fmt.Println("Snapshot:", outcome.SnapshotPath)
		}
		return nil
	default:
		return outcome.Err
	}
}

// buildDeps wires the collaborators. Optional ones are left nil when
// unconfigured and their steps degrade.
func buildDeps(cfg *config.Config, log zerolog.Logger) (*pipeline.Deps, func()) {
	deps := &pipeline.Deps{
		Scraper:       scrape.NewClient(log),
		Researcher:    scrape.NewClient(log),
		Compiler:      pdfcompile.New(cfg.LatexCommand, log),
		Applicant:     cfg.Applicant,
		OutputDir:     cfg.OutputDir,
		CacheDir:      cfg.CacheDir,
		RoleVariant:   cfg.RoleVariant,
		ResumeVariant: cfg.ResumeVariant,
		Logger:        log,
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		deps.Confirm = confirmPrompt
	}

	wireNotion(cfg, deps, log)
	return deps, func() {}
}

// confirmPrompt asks a yes/no question on the terminal. Default yes.
func confirmPrompt(prompt string) bool {
	fmt.Printf("%s [Y/n] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "n", "no":
		return false
	default:
		return true
	}
}

// recordUsage persists per-provider call counts, and the finished
// application on success. Stats failures are logged, never fatal.
func recordUsage(cfg *config.Config, run *pipeline.Context, outcome pipeline.Outcome, log zerolog.Logger) {
	if len(run.ProviderCalls) == 0 && outcome.Status != pipeline.StatusSucceeded {
		return
	}
	store, err := stats.Open(cfg.StatsDB, log)
	if err != nil {
		log.Warn().Err(err).Msg("opening stats store failed")
		return
	}
	defer store.Close()

	// The run may have been canceled; usage still happened.
	ctx := context.Background()
	for provider, calls := range run.ProviderCalls {
		if err := store.RecordCalls(ctx, provider, calls); err != nil {
			log.Warn().Err(err).Str("provider", provider).Msg("recording calls failed")
		}
	}
	if outcome.Status == pipeline.StatusSucceeded {
		if err := store.RecordApplication(ctx, run.Provider); err != nil {
			log.Warn().Err(err).Msg("recording application failed")
		}
	}
}

func printPlan(plan []pipeline.PlannedStep, run *pipeline.Context) {
	fmt.Println("Pipeline plan (dry run):")
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, step := range plan {
		fmt.Fprintf(w, "  %d\t%s\t%s\n", step.Position, step.Description, step.Note)
	}
	w.Flush()
	fmt.Println("\nJob URL:", run.JobURL)
	fmt.Printf("Provider: %s (cross-provider fallback enabled)\n", run.Provider)
	if len(run.Questions) > 0 {
		fmt.Println("Questions:", len(run.Questions))
	}
}

func printSummary(run *pipeline.Context) {
	fmt.Println("\nApplication summary:")
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintf(w, "  Company\t%s\n", run.Job.Company)
	fmt.Fprintf(w, "  Job title\t%s\n", run.Job.Title)
	fmt.Fprintf(w, "  Source\t%s\n", run.Job.Source)
	if run.TexPath != "" {
		fmt.Fprintf(w, "  LaTeX\t%s\n", run.TexPath)
	}
	if run.PDFPath != "" {
		fmt.Fprintf(w, "  PDF\t%s\n", run.PDFPath)
	}
	if pct := run.ATSReport.CoveragePct(); pct >= 0 {
		fmt.Fprintf(w, "  ATS coverage\t%.0f%% (%s)\n", pct, run.ATSReport.Verdict())
	}
	if len(run.QAAnswers) > 0 {
		fmt.Fprintf(w, "  Q&A answers\t%d\n", len(run.QAAnswers))
	}
	if run.TrackingPageID != "" {
		fmt.Fprintf(w, "  Tracking entry\t%s\n", run.TrackingPageID)
	}
	fmt.Fprintf(w, "  Output dir\t%s\n", run.RunDir)
	w.Flush()
}

var errNotionUnconfigured = errors.New("notion integration not configured")
