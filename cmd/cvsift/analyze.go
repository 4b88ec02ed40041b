package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/cvsift/internal/intake"
	"github.com/kalambet/cvsift/internal/results"
	"github.com/kalambet/cvsift/internal/run"
	"github.com/kalambet/cvsift/internal/tui"
)

type outputMode int

const (
	outputTUI outputMode = iota
	outputPlain
	outputJSON
)

type analyzeOptions struct {
	criteria     string
	criteriaFile string
	noStream     bool
	mode         outputMode
	sort         string
	minMatch     *float64
	skill        string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [flags] <cv>...",
	Short: "Submit CVs with job criteria and rank the results",
	Long: `Submit PDF or DOCX CVs with job criteria to the analysis service.

Progress is shown per document while the service works. Once results arrive
they are ranked by the chosen score and filtered.

Examples:
  cvsift analyze --criteria "Senior Go engineer, 5+ years, Kubernetes" cvs/*.pdf
  cvsift analyze --criteria-file job.txt --plain --sort skills alice.pdf bob.docx
  cvsift analyze --criteria-file job.txt --json --min-match 60 cvs/*`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := analyzeOptions{}
		opts.criteria, _ = cmd.Flags().GetString("criteria")
		opts.criteriaFile, _ = cmd.Flags().GetString("criteria-file")
		opts.noStream, _ = cmd.Flags().GetBool("no-stream")
		opts.sort, _ = cmd.Flags().GetString("sort")
		opts.skill, _ = cmd.Flags().GetString("skill")
		if cmd.Flags().Changed("min-match") {
			v, _ := cmd.Flags().GetFloat64("min-match")
			opts.minMatch = &v
		}
		plain, _ := cmd.Flags().GetBool("plain")
		asJSON, _ := cmd.Flags().GetBool("json")
		switch {
		case asJSON:
			opts.mode = outputJSON
		case plain:
			opts.mode = outputPlain
		}
		return runAnalyze(cmd.Context(), cmd.OutOrStdout(), opts, args)
	},
}

func init() {
	analyzeCmd.Flags().String("criteria", "", "job requirements to match the CVs against")
	analyzeCmd.Flags().String("criteria-file", "", "read job requirements from a file")
	analyzeCmd.Flags().Bool("no-stream", false, "wait for all results instead of following progress")
	analyzeCmd.Flags().Bool("plain", false, "print progress lines and a results table instead of the interactive view")
	analyzeCmd.Flags().Bool("json", false, "print the final run as JSON")
	analyzeCmd.Flags().String("sort", "", "rank by: "+sortKeyNames())
	analyzeCmd.Flags().Float64("min-match", 0, "hide results below this overall match (0-100)")
	analyzeCmd.Flags().String("skill", "", "keep only results listing a skill containing this text")
	analyzeCmd.MarkFlagsMutuallyExclusive("criteria", "criteria-file")
	analyzeCmd.MarkFlagsMutuallyExclusive("plain", "json")
}

func sortKeyNames() string {
	names := make([]string, len(results.SortKeys))
	for i, k := range results.SortKeys {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func runAnalyze(ctx context.Context, out io.Writer, opts analyzeOptions, paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logSink := io.Writer(os.Stderr)
	if opts.mode == outputTUI {
		logSink = io.Discard
	}
	closeLog, err := setupLogging(cfg, logSink)
	if err != nil {
		return err
	}
	defer closeLog()

	criteria, err := readCriteria(opts)
	if err != nil {
		return err
	}

	sortKey := cfg.SortKey()
	if opts.sort != "" {
		if sortKey, err = results.ParseSortKey(opts.sort); err != nil {
			return err
		}
	}
	filter := cfg.Filter()
	if opts.minMatch != nil {
		if *opts.minMatch < 0 || *opts.minMatch > 100 {
			return fmt.Errorf("--min-match must be between 0 and 100, got %v", *opts.minMatch)
		}
		filter.MinOverallMatch = *opts.minMatch
	}
	filter.Skill = opts.skill

	sub, err := intake.Load(ctx, criteria, paths, cfg.IntakeOptions())
	if err != nil {
		return run.Classify(err)
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	r, err := run.New(sub, client, run.Options{
		Streaming: cfg.Service.Streaming && !opts.noStream,
		Sort:      sortKey,
		Filter:    filter,
		Logger:    slog.Default(),
	})
	if err != nil {
		return err
	}

	switch opts.mode {
	case outputJSON:
		err := r.Execute(ctx, nil)
		if encErr := writeRunJSON(out, r.Snapshot()); encErr != nil {
			return encErr
		}
		return err
	case outputPlain:
		printStep("Analyzing %d documents with %s", len(sub.Documents), client.BaseURL())
		p := newProgressPrinter(out)
		err := r.Execute(ctx, p.observe)
		snap := r.Snapshot()
		for _, w := range snap.Warnings {
			printWarning("%s", w)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		printResultsTable(out, snap)
		return nil
	}
	return runInteractive(ctx, r, criteria)
}

// runInteractive executes r behind the full-screen view. Quitting the view
// before the run ends cancels it.
func runInteractive(ctx context.Context, r *run.Run, criteria string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := make(chan run.Snapshot, 16)
	done := make(chan error, 1)
	go func() {
		defer close(updates)
		done <- r.Execute(runCtx, func(s run.Snapshot) {
			select {
			case updates <- s:
			case <-runCtx.Done():
			}
		})
	}()

	uiErr := tui.Run(r, updates, tui.Config{Criteria: criteria, MatchStep: 10})
	finished := r.Snapshot().Phase.Done()
	cancel()
	runErr := <-done

	if uiErr != nil {
		return fmt.Errorf("interactive view: %w", uiErr)
	}
	if !finished {
		printWarning("Analysis cancelled")
		return nil
	}
	return runErr
}

func readCriteria(opts analyzeOptions) (string, error) {
	if opts.criteriaFile == "" {
		if strings.TrimSpace(opts.criteria) == "" {
			return "", errors.New("one of --criteria or --criteria-file is required")
		}
		return opts.criteria, nil
	}
	data, err := os.ReadFile(opts.criteriaFile)
	if err != nil {
		return "", fmt.Errorf("reading criteria: %w", err)
	}
	return string(data), nil
}

type errorJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeRunJSON(w io.Writer, s run.Snapshot) error {
	v := struct {
		run.Snapshot
		Error *errorJSON `json:"error,omitempty"`
	}{Snapshot: s}
	if s.Err != nil {
		v.Error = &errorJSON{Kind: s.Err.Kind.String(), Message: s.Err.Error()}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
