package stream

import (
	"errors"
	"testing"

	"github.com/kalambet/cvsift/internal/match"
)

func TestInterpret_Progress(t *testing.T) {
	ev, err := Interpret(`{"type":"progress","data":{"filename":"cv.pdf","status":"analyzing","progress":42.5,"current_step":"Scoring"}}`)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if ev.Kind != KindProgress {
		t.Fatalf("Kind = %v, want progress", ev.Kind)
	}
	want := match.AnalysisItem{Filename: "cv.pdf", Status: match.StatusAnalyzing, Progress: 42.5, CurrentStep: "Scoring"}
	if ev.Progress != want {
		t.Errorf("Progress = %+v, want %+v", ev.Progress, want)
	}
	if ev.Terminal() {
		t.Error("progress event reported terminal")
	}
}

func TestInterpret_Results(t *testing.T) {
	payload := `{"type":"results","data":{"results":[
		{"filename":"a.pdf","overall_match":81,"skills_match":70,
		 "skill_breakdown":[{"skill_name":"Python","match_percentage":90,"level":"expert","relevance":"high"}],
		 "years_of_experience":6,"education_level":"MSc","file_id":"f-1"}
	],"total_cvs":1}}`
	ev, err := Interpret(payload)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if ev.Kind != KindResults || !ev.Terminal() {
		t.Fatalf("Kind = %v, terminal = %v", ev.Kind, ev.Terminal())
	}
	if len(ev.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(ev.Results))
	}
	r := ev.Results[0]
	if r.OverallMatch != 81 || r.SkillsMatch != 70 || r.FileID != "f-1" {
		t.Errorf("unexpected result: %+v", r)
	}
	if r.YearsOfExperience == nil || *r.YearsOfExperience != 6 {
		t.Errorf("YearsOfExperience = %v", r.YearsOfExperience)
	}
	if r.EducationLevel == nil || *r.EducationLevel != "MSc" {
		t.Errorf("EducationLevel = %v", r.EducationLevel)
	}
	if len(r.SkillBreakdown) != 1 || r.SkillBreakdown[0].Level != match.LevelExpert {
		t.Errorf("SkillBreakdown = %+v", r.SkillBreakdown)
	}
}

func TestInterpret_ResultsNullListIsEmpty(t *testing.T) {
	ev, err := Interpret(`{"type":"results","data":{"results":null}}`)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if ev.Results == nil || len(ev.Results) != 0 {
		t.Errorf("Results = %#v, want empty non-nil", ev.Results)
	}
}

func TestInterpret_Error(t *testing.T) {
	ev, err := Interpret(`{"type":"error","message":"OpenAI quota exceeded"}`)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if ev.Kind != KindFailed || ev.Message != "OpenAI quota exceeded" {
		t.Errorf("got %+v", ev)
	}

	ev, err = Interpret(`{"type":"error"}`)
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if ev.Message != defaultFailureMessage {
		t.Errorf("Message = %q, want default", ev.Message)
	}
}

func TestInterpret_Malformed(t *testing.T) {
	payloads := map[string]string{
		"not json":          `{"type":`,
		"missing type":      `{"data":{}}`,
		"unknown type":      `{"type":"heartbeat"}`,
		"progress no data":  `{"type":"progress"}`,
		"progress null":     `{"type":"progress","data":null}`,
		"progress no name":  `{"type":"progress","data":{"status":"queued"}}`,
		"progress bad enum": `{"type":"progress","data":{"filename":"a.pdf","status":"uploading"}}`,
		"progress bad type": `{"type":"progress","data":{"filename":"a.pdf","progress":"ten"}}`,
		"results no data":   `{"type":"results"}`,
		"results bad shape": `{"type":"results","data":{"results":{"filename":"a.pdf"}}}`,
	}
	for name, p := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := Interpret(p)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

// Lines without the data prefix never reach the interpreter.
func TestDecodeAndInterpret_IgnoresUnprefixedLines(t *testing.T) {
	d := NewDecoder(nil)
	payloads := d.Feed([]byte(`{"type":"error","message":"x"}` + "\n" +
		`event: {"type":"error","message":"y"}` + "\n"))
	if len(payloads) != 0 {
		t.Fatalf("payloads = %q, want none", payloads)
	}
}
