// Package results ranks, filters and reorders the result set of one run.
package results

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kalambet/cvsift/internal/match"
)

// ErrNotDisplayed is returned when moving a result that is not in the
// displayed list.
var ErrNotDisplayed = errors.New("result not displayed")

// SortKey selects the score a view is ranked by.
type SortKey string

const (
	SortOverall         SortKey = "overall_match"
	SortSkills          SortKey = "skills_match"
	SortExperience      SortKey = "experience_match"
	SortEducation       SortKey = "education_match"
	SortTechnicalSkills SortKey = "technical_skills_score"
	SortSoftSkills      SortKey = "soft_skills_score"
	// SortManual keeps the stored order, so manual moves are visible.
	SortManual SortKey = "manual"
)

// SortKeys lists the accepted keys in display order.
var SortKeys = []SortKey{
	SortOverall, SortSkills, SortExperience, SortEducation,
	SortTechnicalSkills, SortSoftSkills, SortManual,
}

// ParseSortKey accepts a key name or one of the short aliases
// (match, skills, experience, education, technical, soft).
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "match", string(SortOverall):
		return SortOverall, nil
	case "skills", string(SortSkills):
		return SortSkills, nil
	case "experience", string(SortExperience):
		return SortExperience, nil
	case "education", string(SortEducation):
		return SortEducation, nil
	case "technical", string(SortTechnicalSkills):
		return SortTechnicalSkills, nil
	case "soft", string(SortSoftSkills):
		return SortSoftSkills, nil
	case string(SortManual):
		return SortManual, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Next returns the key after k in SortKeys, wrapping around.
func (k SortKey) Next() SortKey {
	i := slices.Index(SortKeys, k)
	return SortKeys[(i+1)%len(SortKeys)]
}

func (k SortKey) value(r match.MatchResult) float64 {
	switch k {
	case SortSkills:
		return r.SkillsMatch
	case SortExperience:
		return r.ExperienceMatch
	case SortEducation:
		return r.EducationMatch
	case SortTechnicalSkills:
		return r.TechnicalSkillsScore
	case SortSoftSkills:
		return r.SoftSkillsScore
	default:
		return r.OverallMatch
	}
}

// Filter narrows a view. The zero value keeps everything.
type Filter struct {
	MinOverallMatch float64 `json:"min_overall_match"`
	Skill           string  `json:"skill"`
}

// Keep reports whether r passes both predicates.
func (f Filter) Keep(r match.MatchResult) bool {
	if r.OverallMatch < f.MinOverallMatch {
		return false
	}
	needle := strings.ToLower(strings.TrimSpace(f.Skill))
	if needle == "" {
		return true
	}
	for _, s := range r.SkillBreakdown {
		if strings.Contains(strings.ToLower(s.SkillName), needle) {
			return true
		}
	}
	return false
}

// Direction is the way MoveItem shifts a result in the displayed list.
type Direction int

const (
	Up Direction = iota
	Down
)

// ParseDirection accepts "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Engine holds the canonical order of a result set together with the
// current display settings. Views never change the canonical order; only
// MoveItem does. It is not safe for concurrent use.
type Engine struct {
	results []match.MatchResult
	sortKey SortKey
	filter  Filter
}

// NewEngine copies rs into a new engine sorted by overall match with no filter.
func NewEngine(rs []match.MatchResult) *Engine {
	return &Engine{
		results: slices.Clone(rs),
		sortKey: SortOverall,
	}
}

// Len returns the size of the result set.
func (e *Engine) Len() int {
	return len(e.results)
}

// Results returns the canonical order.
func (e *Engine) Results() []match.MatchResult {
	return slices.Clone(e.results)
}

// SortedView returns the results ranked by key, highest first. Equal values
// keep their canonical relative order.
func (e *Engine) SortedView(key SortKey) []match.MatchResult {
	return sortResults(e.results, key)
}

// FilteredView returns the results, in canonical order, whose overall match
// is at least minOverallMatch and, when skill is set, that list a skill
// containing it (case-insensitive).
func (e *Engine) FilteredView(minOverallMatch float64, skill string) []match.MatchResult {
	return filterResults(e.results, Filter{MinOverallMatch: minOverallMatch, Skill: skill})
}

// SetSort changes the ranking of View.
func (e *Engine) SetSort(key SortKey) {
	e.sortKey = key
}

// SetFilter changes the predicates of View.
func (e *Engine) SetFilter(f Filter) {
	e.filter = f
}

// SortKey returns the current ranking key.
func (e *Engine) SortKey() SortKey {
	return e.sortKey
}

// Filter returns the current filter.
func (e *Engine) Filter() Filter {
	return e.filter
}

// View returns the displayed list: sorted by the current key, then filtered.
func (e *Engine) View() []match.MatchResult {
	return filterResults(sortResults(e.results, e.sortKey), e.filter)
}

// MoveItem swaps the named result with its neighbour in the displayed list
// and applies the same swap to the canonical order. It reports whether
// anything moved; moving past either end of the displayed list is a no-op.
func (e *Engine) MoveItem(filename string, dir Direction) (bool, error) {
	view := e.View()
	pos := slices.IndexFunc(view, func(r match.MatchResult) bool { return r.Filename == filename })
	if pos < 0 {
		return false, fmt.Errorf("%w: %s", ErrNotDisplayed, filename)
	}

	target := pos - 1
	if dir == Down {
		target = pos + 1
	}
	if target < 0 || target >= len(view) {
		return false, nil
	}

	i := e.indexOf(filename)
	j := e.indexOf(view[target].Filename)
	e.results[i], e.results[j] = e.results[j], e.results[i]
	return true, nil
}

func (e *Engine) indexOf(filename string) int {
	return slices.IndexFunc(e.results, func(r match.MatchResult) bool { return r.Filename == filename })
}

func sortResults(rs []match.MatchResult, key SortKey) []match.MatchResult {
	out := slices.Clone(rs)
	if key == SortManual {
		return out
	}
	slices.SortStableFunc(out, func(a, b match.MatchResult) int {
		va, vb := key.value(a), key.value(b)
		switch {
		case va > vb:
			return -1
		case va < vb:
			return 1
		default:
			return 0
		}
	})
	return out
}

func filterResults(rs []match.MatchResult, f Filter) []match.MatchResult {
	out := make([]match.MatchResult, 0, len(rs))
	for _, r := range rs {
		if f.Keep(r) {
			out = append(out, r)
		}
	}
	return out
}
