package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/cvsift/internal/analysis/analysistest"
	"github.com/kalambet/cvsift/internal/config"
	"github.com/kalambet/cvsift/internal/intake/intaketest"
	"github.com/kalambet/cvsift/internal/match"
	"github.com/kalambet/cvsift/internal/run"
)

var ctx = context.Background()

// useService points loadConfig at baseURL for the duration of the test.
func useService(t *testing.T, baseURL string, streaming bool) {
	t.Helper()
	oldLoad, oldColor := loadConfig, noColor
	t.Cleanup(func() { loadConfig, noColor = oldLoad, oldColor })
	noColor = true
	loadConfig = func() (config.Config, error) {
		return config.Config{
			Service: config.ServiceConfig{BaseURL: baseURL, Streaming: streaming, RequestTimeout: "5s"},
			Intake:  config.IntakeConfig{MaxFileSizeMB: 10, MaxFiles: 50},
			Results: config.ResultsConfig{SortKey: "overall_match"},
			Log:     config.LogConfig{Level: "error"},
		}, nil
	}
}

func writeCVs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	return []string{
		intaketest.WriteFile(t, dir, "alice.pdf", intaketest.PDF(1)),
		intaketest.WriteFile(t, dir, "bob.docx", intaketest.DOCX()),
	}
}

func scoredResults() []match.MatchResult {
	return []match.MatchResult{
		{Filename: "alice.pdf", OverallMatch: 64, SkillsMatch: 90, FileID: "f-alice",
			SkillBreakdown: []match.SkillMatch{{SkillName: "Go", Level: match.LevelExpert}}},
		{Filename: "bob.docx", OverallMatch: 81, SkillsMatch: 50, FileID: "f-bob",
			SkillBreakdown: []match.SkillMatch{{SkillName: "Python", Level: match.LevelProficient}}},
	}
}

func streamScript() analysistest.Script {
	return analysistest.Script{Lines: []string{
		analysistest.Progress("alice.pdf", match.StatusProcessing, 40, "extracting text"),
		analysistest.Progress("bob.docx", match.StatusAnalyzing, 70, "scoring"),
		analysistest.Progress("alice.pdf", match.StatusCompleted, 100, "done"),
		analysistest.Progress("bob.docx", match.StatusCompleted, 100, "done"),
		analysistest.Results(scoredResults()...),
	}}
}

func TestAnalyze_PlainStreaming(t *testing.T) {
	srv := analysistest.New(t, streamScript())
	useService(t, srv.URL, true)

	var out bytes.Buffer
	err := runAnalyze(ctx, &out, analyzeOptions{criteria: "Go backend", mode: outputPlain}, writeCVs(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"PROCESSING  40%  alice.pdf  (extracting text)",
		"ANALYZING   70%  bob.docx  (scoring)",
		"overall: 100%",
		"DOCUMENT",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	table := got[strings.Index(got, "DOCUMENT"):]
	if strings.Index(table, "bob.docx") > strings.Index(table, "alice.pdf") {
		t.Errorf("results not ranked by overall match:\n%s", table)
	}

	ups := srv.Uploads()
	if len(ups) != 1 || ups[0].Requirements != "Go backend" || !strings.Contains(ups[0].Accept, "text/event-stream") {
		t.Errorf("uploads = %+v", ups)
	}
}

func TestAnalyze_JSONNoStream(t *testing.T) {
	srv := analysistest.New(t, analysistest.Script{Results: scoredResults()})
	useService(t, srv.URL, true)

	var out bytes.Buffer
	opts := analyzeOptions{criteria: "Go backend", mode: outputJSON, noStream: true, sort: "skills"}
	if err := runAnalyze(ctx, &out, opts, writeCVs(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v struct {
		Phase   string `json:"phase"`
		SortKey string `json:"sort_key"`
		Items   []match.AnalysisItem
		Results []match.MatchResult `json:"results"`
	}
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out.String())
	}
	if v.Phase != "completed" || v.SortKey != "skills_match" {
		t.Errorf("phase=%s sort=%s", v.Phase, v.SortKey)
	}
	if len(v.Results) != 2 || v.Results[0].Filename != "alice.pdf" {
		t.Errorf("results = %+v", v.Results)
	}
	for _, it := range v.Items {
		if it.Status != match.StatusCompleted || it.Progress != 100 {
			t.Errorf("item %s = %s %v", it.Filename, it.Status, it.Progress)
		}
	}
	if accept := srv.Uploads()[0].Accept; strings.Contains(accept, "text/event-stream") {
		t.Errorf("non-streaming run asked for a stream: %s", accept)
	}
}

func TestAnalyze_Filter(t *testing.T) {
	srv := analysistest.New(t, streamScript())
	useService(t, srv.URL, true)

	var out bytes.Buffer
	floor := 70.0
	opts := analyzeOptions{criteria: "Go", mode: outputPlain, minMatch: &floor}
	if err := runAnalyze(ctx, &out, opts, writeCVs(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	table := out.String()[strings.Index(out.String(), "DOCUMENT"):]
	if strings.Contains(table, "alice.pdf") || !strings.Contains(table, "bob.docx") {
		t.Errorf("filter not applied:\n%s", table)
	}
	if !strings.Contains(table, "1 of 2 results hidden") {
		t.Errorf("missing hidden count:\n%s", table)
	}
}

func TestAnalyze_ApplicationError(t *testing.T) {
	srv := analysistest.New(t, analysistest.Script{Lines: []string{
		analysistest.Progress("alice.pdf", match.StatusProcessing, 20, "extracting"),
		analysistest.Failure("Error processing CVs: model unavailable"),
	}})
	useService(t, srv.URL, true)

	var out bytes.Buffer
	err := runAnalyze(ctx, &out, analyzeOptions{criteria: "Go", mode: outputPlain}, writeCVs(t))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if run.KindOf(err) != run.KindApplication {
		t.Errorf("kind = %v, want application", run.KindOf(err))
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Errorf("error = %q", err)
	}
	if strings.Contains(out.String(), "DOCUMENT") {
		t.Error("results table printed for a failed run")
	}
}

func TestAnalyze_JSONReportsFailure(t *testing.T) {
	srv := analysistest.New(t, analysistest.Script{UploadStatus: 500, UploadDetail: "Error processing CVs: disk full"})
	useService(t, srv.URL, false)

	var out bytes.Buffer
	err := runAnalyze(ctx, &out, analyzeOptions{criteria: "Go", mode: outputJSON}, writeCVs(t))
	if run.KindOf(err) != run.KindTransport {
		t.Fatalf("err = %v, want a transport error", err)
	}
	var v struct {
		Phase string     `json:"phase"`
		Error *errorJSON `json:"error"`
	}
	if err := json.Unmarshal(out.Bytes(), &v); err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if v.Phase != "failed" || v.Error == nil || !strings.Contains(v.Error.Message, "disk full") {
		t.Errorf("output = %s", out.String())
	}
}

func TestAnalyze_Rejected(t *testing.T) {
	srv := analysistest.New(t, streamScript())
	useService(t, srv.URL, true)
	notes := intaketest.WriteFile(t, t.TempDir(), "notes.txt", []byte("hello"))

	tests := []struct {
		name  string
		opts  analyzeOptions
		paths []string
		want  string
	}{
		{"no criteria", analyzeOptions{mode: outputPlain}, writeCVs(t), "--criteria"},
		{"unsupported file", analyzeOptions{criteria: "Go", mode: outputPlain}, []string{notes}, "unsupported file type"},
		{"bad sort", analyzeOptions{criteria: "Go", mode: outputPlain, sort: "height"}, writeCVs(t), "unknown sort key"},
		{"missing criteria file", analyzeOptions{criteriaFile: "/nonexistent/job.txt", mode: outputPlain}, writeCVs(t), "reading criteria"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runAnalyze(ctx, &bytes.Buffer{}, tt.opts, tt.paths)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
	if n := len(srv.Uploads()); n != 0 {
		t.Errorf("%d uploads reached the service", n)
	}
}

func TestAnalyze_ValidationKind(t *testing.T) {
	srv := analysistest.New(t, streamScript())
	useService(t, srv.URL, true)
	notes := intaketest.WriteFile(t, t.TempDir(), "notes.txt", []byte("hello"))

	err := runAnalyze(ctx, &bytes.Buffer{}, analyzeOptions{criteria: "Go", mode: outputPlain}, []string{notes})
	if run.KindOf(err) != run.KindValidation {
		t.Errorf("kind = %v, want validation", run.KindOf(err))
	}
}

func TestAnalyze_CriteriaFile(t *testing.T) {
	srv := analysistest.New(t, streamScript())
	useService(t, srv.URL, true)
	job := filepath.Join(t.TempDir(), "job.txt")
	if err := os.WriteFile(job, []byte("Senior Go engineer\nKubernetes\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := runAnalyze(ctx, &bytes.Buffer{}, analyzeOptions{criteriaFile: job, mode: outputPlain}, writeCVs(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := srv.Uploads()[0].Requirements; got != "Senior Go engineer\nKubernetes" {
		t.Errorf("requirements = %q", got)
	}
}

func TestFetch(t *testing.T) {
	srv := analysistest.New(t, analysistest.Script{Documents: map[string]analysistest.Document{
		"f-alice": {ContentType: match.MediaTypePDF, Data: []byte("%PDF-1.4 stored")},
	}})
	useService(t, srv.URL, true)

	out := filepath.Join(t.TempDir(), "copy.pdf")
	if err := runFetch(ctx, "f-alice", out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.4 stored" {
		t.Errorf("saved %q", data)
	}

	err = runFetch(ctx, "f-nobody", out)
	if err == nil || !strings.Contains(err.Error(), `no document with file ID "f-nobody"`) {
		t.Errorf("err = %v", err)
	}
}

func TestExtensionFor(t *testing.T) {
	tests := map[string]string{
		match.MediaTypePDF:                ".pdf",
		"application/pdf; charset=binary": ".pdf",
		match.MediaTypeDOCX:               ".docx",
		"application/octet-stream":        "",
		"":                                "",
	}
	for ct, want := range tests {
		if got := extensionFor(ct); got != want {
			t.Errorf("extensionFor(%q) = %q, want %q", ct, got, want)
		}
	}
}

func TestHealth(t *testing.T) {
	srv := analysistest.New(t, analysistest.Script{})
	useService(t, srv.URL, true)
	if err := runHealth(ctx); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHealth_Unreachable(t *testing.T) {
	srv := analysistest.New(t, analysistest.Script{})
	url := srv.URL
	srv.Close()
	useService(t, url, true)

	err := runHealth(ctx)
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("err = %v, want it to mention 'not reachable'", err)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestPrintResultsTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	printResultsTable(&buf, run.Snapshot{HasResults: true})
	if !strings.Contains(buf.String(), "no results") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	printResultsTable(&buf, run.Snapshot{HasResults: true, Total: 3})
	if !strings.Contains(buf.String(), "3 hidden") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestProgressPrinter_SkipsUnchanged(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	var buf bytes.Buffer
	p := newProgressPrinter(&buf)
	snap := run.Snapshot{Items: []match.AnalysisItem{
		{Filename: "alice.pdf", Status: match.StatusQueued},
		{Filename: "bob.docx", Status: match.StatusProcessing, Progress: 10, CurrentStep: "reading"},
	}}
	p.observe(snap)
	p.observe(snap)

	got := buf.String()
	if strings.Contains(got, "alice.pdf") {
		t.Errorf("initial queued item printed:\n%s", got)
	}
	if n := strings.Count(got, "bob.docx"); n != 1 {
		t.Errorf("bob.docx printed %d times:\n%s", n, got)
	}
	if n := strings.Count(got, "overall:"); n != 1 {
		t.Errorf("overall printed %d times:\n%s", n, got)
	}
}

func TestPrintConfig(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()
	noColor = true

	var buf bytes.Buffer
	printConfig(&buf, config.Config{Service: config.ServiceConfig{BaseURL: "http://cv:8000", APIKey: "sk-secret"}})
	got := buf.String()
	if !strings.Contains(got, "service.base_url = http://cv:8000  (CVSIFT_BASE_URL)") {
		t.Errorf("output:\n%s", got)
	}
	if strings.Contains(got, "sk-secret") {
		t.Error("API key printed")
	}
}
