package results

import (
	"errors"
	"testing"

	"github.com/kalambet/cvsift/internal/match"
)

func result(name string, overall, skills float64, skillNames ...string) match.MatchResult {
	r := match.MatchResult{Filename: name, OverallMatch: overall, SkillsMatch: skills}
	for _, s := range skillNames {
		r.SkillBreakdown = append(r.SkillBreakdown, match.SkillMatch{SkillName: s, MatchPercentage: 50, Level: match.LevelIntermediate, Relevance: match.RelevanceHigh})
	}
	return r
}

func names(rs []match.MatchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Filename
	}
	return out
}

func assertNames(t *testing.T, got []match.MatchResult, want ...string) {
	t.Helper()
	g := names(got)
	if len(g) != len(want) {
		t.Fatalf("got %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("got %v, want %v", g, want)
		}
	}
}

func sample() []match.MatchResult {
	return []match.MatchResult{
		result("a.pdf", 55, 90, "Go"),
		result("b.pdf", 80, 40, "Python", "SQL"),
		result("c.pdf", 80, 60, "python3"),
		result("d.pdf", 95, 60, "Rust"),
	}
}

func TestSortedView_DescendingAndStable(t *testing.T) {
	e := NewEngine(sample())
	assertNames(t, e.SortedView(SortOverall), "d.pdf", "b.pdf", "c.pdf", "a.pdf")
	// c and d tie on skills and keep their input order.
	assertNames(t, e.SortedView(SortSkills), "a.pdf", "c.pdf", "d.pdf", "b.pdf")
}

func TestSortedView_DoesNotMutate(t *testing.T) {
	e := NewEngine(sample())
	e.SortedView(SortOverall)
	assertNames(t, e.Results(), "a.pdf", "b.pdf", "c.pdf", "d.pdf")
}

func TestSortedView_AllKeys(t *testing.T) {
	rs := []match.MatchResult{
		{Filename: "x", ExperienceMatch: 1, EducationMatch: 9, TechnicalSkillsScore: 1, SoftSkillsScore: 9},
		{Filename: "y", ExperienceMatch: 9, EducationMatch: 1, TechnicalSkillsScore: 9, SoftSkillsScore: 1},
	}
	e := NewEngine(rs)
	assertNames(t, e.SortedView(SortExperience), "y", "x")
	assertNames(t, e.SortedView(SortEducation), "x", "y")
	assertNames(t, e.SortedView(SortTechnicalSkills), "y", "x")
	assertNames(t, e.SortedView(SortSoftSkills), "x", "y")
	assertNames(t, e.SortedView(SortManual), "x", "y")
}

func TestFilteredView(t *testing.T) {
	e := NewEngine([]match.MatchResult{
		result("low-python.pdf", 59, 0, "Python"),
		result("high-none.pdf", 90, 0, "Java"),
		result("high-python.pdf", 60, 0, "PYTHON / Django"),
		result("high-empty.pdf", 75, 0),
	})
	assertNames(t, e.FilteredView(60, "python"), "high-python.pdf")
	assertNames(t, e.FilteredView(60, ""), "high-none.pdf", "high-python.pdf", "high-empty.pdf")
	assertNames(t, e.FilteredView(0, "  Java "), "high-none.pdf")
}

func TestView_SortThenFilter(t *testing.T) {
	e := NewEngine(sample())
	e.SetFilter(Filter{MinOverallMatch: 60, Skill: "python"})
	assertNames(t, e.View(), "b.pdf", "c.pdf")
	e.SetSort(SortSkills)
	assertNames(t, e.View(), "c.pdf", "b.pdf")
}

func TestMoveItem_TopUpIsNoop(t *testing.T) {
	e := NewEngine(sample())
	moved, err := e.MoveItem("d.pdf", Up)
	if err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	if moved {
		t.Error("moved = true at top of list")
	}
	assertNames(t, e.Results(), "a.pdf", "b.pdf", "c.pdf", "d.pdf")
}

func TestMoveItem_BottomDownIsNoop(t *testing.T) {
	e := NewEngine(sample())
	moved, err := e.MoveItem("a.pdf", Down)
	if err != nil || moved {
		t.Fatalf("MoveItem = %v, %v; want false, nil", moved, err)
	}
}

func TestMoveItem_SwapsDisplayedNeighboursInCanonicalOrder(t *testing.T) {
	e := NewEngine(sample())
	// Displayed: d, b, c, a. Moving c up swaps it with b.
	moved, err := e.MoveItem("c.pdf", Up)
	if err != nil || !moved {
		t.Fatalf("MoveItem = %v, %v", moved, err)
	}
	got := e.Results()
	assertNames(t, got, "a.pdf", "c.pdf", "b.pdf", "d.pdf")
	if len(got) != 4 {
		t.Fatalf("length changed to %d", len(got))
	}
	// b and c tie on overall, so the swap is visible in the sorted view.
	assertNames(t, e.View(), "d.pdf", "c.pdf", "b.pdf", "a.pdf")
}

func TestMoveItem_UsesFilteredNeighbours(t *testing.T) {
	e := NewEngine(sample())
	e.SetSort(SortManual)
	e.SetFilter(Filter{Skill: "python"})
	// Displayed: b, c. Moving c up swaps it with b even though a and d
	// are hidden.
	if _, err := e.MoveItem("c.pdf", Up); err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	assertNames(t, e.Results(), "a.pdf", "c.pdf", "b.pdf", "d.pdf")

	// Hidden neighbours across the canonical order.
	e.SetFilter(Filter{Skill: "o"}) // a (Go), c (python3), b (Python)
	assertNames(t, e.View(), "a.pdf", "c.pdf", "b.pdf")
	if _, err := e.MoveItem("b.pdf", Up); err != nil {
		t.Fatalf("MoveItem: %v", err)
	}
	assertNames(t, e.Results(), "a.pdf", "b.pdf", "c.pdf", "d.pdf")
}

func TestMoveItem_NotDisplayed(t *testing.T) {
	e := NewEngine(sample())
	e.SetFilter(Filter{MinOverallMatch: 90})
	if _, err := e.MoveItem("a.pdf", Up); !errors.Is(err, ErrNotDisplayed) {
		t.Fatalf("err = %v, want ErrNotDisplayed", err)
	}
	if _, err := e.MoveItem("missing.pdf", Down); !errors.Is(err, ErrNotDisplayed) {
		t.Fatalf("err = %v, want ErrNotDisplayed", err)
	}
}

func TestParseSortKey(t *testing.T) {
	tests := map[string]SortKey{
		"":                       SortOverall,
		"match":                  SortOverall,
		"Skills":                 SortSkills,
		"experience_match":       SortExperience,
		"education":              SortEducation,
		"technical":              SortTechnicalSkills,
		"soft_skills_score":      SortSoftSkills,
		"manual":                 SortManual,
		"technical_skills_score": SortTechnicalSkills,
	}
	for in, want := range tests {
		got, err := ParseSortKey(in)
		if err != nil || got != want {
			t.Errorf("ParseSortKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseSortKey("leadership"); err == nil {
		t.Error("expected error for unsupported key")
	}
}

func TestSortKeyNext_Wraps(t *testing.T) {
	if SortManual.Next() != SortOverall {
		t.Errorf("SortManual.Next() = %s", SortManual.Next())
	}
	if SortOverall.Next() != SortSkills {
		t.Errorf("SortOverall.Next() = %s", SortOverall.Next())
	}
}
