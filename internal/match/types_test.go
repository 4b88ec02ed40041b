package match

import "testing"

func TestIsForwardTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusProcessing, StatusAnalyzing, true},
		{StatusAnalyzing, StatusCompleted, true},
		{StatusQueued, StatusCompleted, true},
		{StatusQueued, StatusError, true},
		{StatusAnalyzing, StatusError, true},
		{StatusAnalyzing, StatusAnalyzing, true},
		{StatusAnalyzing, StatusProcessing, false},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusProcessing, false},
		{StatusCompleted, StatusAnalyzing, false},
	}
	for _, tt := range tests {
		if got := IsForwardTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsForwardTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusQueued, StatusProcessing, StatusAnalyzing, StatusCompleted, StatusError} {
		if !s.Valid() {
			t.Errorf("%q.Valid() = false, want true", s)
		}
	}
	if Status("uploading").Valid() {
		t.Error(`"uploading".Valid() = true, want false`)
	}
}

func TestNewAnalysisItem(t *testing.T) {
	it := NewAnalysisItem("a.pdf")
	if it.Status != StatusQueued || it.Progress != 0 || it.CurrentStep != "queued" {
		t.Errorf("NewAnalysisItem = %+v", it)
	}
}

func TestSubmissionFilenames(t *testing.T) {
	sub := Submission{Documents: []Document{{Name: "b.pdf"}, {Name: "a.docx"}}}
	names := sub.Filenames()
	if len(names) != 2 || names[0] != "b.pdf" || names[1] != "a.docx" {
		t.Errorf("Filenames() = %v", names)
	}
}
