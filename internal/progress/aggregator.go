// Package progress tracks per-document progress for one analysis run and
// derives the run's overall status and percentage from it.
package progress

import (
	"errors"
	"fmt"
	"math"

	"github.com/kalambet/cvsift/internal/match"
)

var (
	// ErrUnknownItem is returned for updates naming a file not in the run.
	ErrUnknownItem = errors.New("unknown item")
	// ErrClosed is returned for updates after the run has ended.
	ErrClosed = errors.New("aggregator closed")
	// ErrDuplicateItem is returned when a run is created with a repeated filename.
	ErrDuplicateItem = errors.New("duplicate item")
)

// Overall is the run-level view derived from the item set.
type Overall struct {
	Status  match.Status `json:"status"`
	Percent int          `json:"percent"`
}

// Applied describes the effect of one accepted update.
type Applied struct {
	Previous match.AnalysisItem
	Current  match.AnalysisItem
	// Regressed is set when the update moved the item against the state
	// machine. The update is still applied: the feed carries no ordering
	// beyond arrival order, so the latest event wins.
	Regressed bool
}

// Aggregator holds the AnalysisItems of one run in submission order.
// It is not safe for concurrent use; callers serialise access.
type Aggregator struct {
	items  []match.AnalysisItem
	index  map[string]int
	failed bool
	closed bool
}

// NewAggregator creates one queued item per filename.
func NewAggregator(filenames []string) (*Aggregator, error) {
	a := &Aggregator{
		items: make([]match.AnalysisItem, 0, len(filenames)),
		index: make(map[string]int, len(filenames)),
	}
	for _, name := range filenames {
		if _, ok := a.index[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, name)
		}
		a.index[name] = len(a.items)
		a.items = append(a.items, match.NewAnalysisItem(name))
	}
	return a, nil
}

// Apply replaces status, progress and step of the item named by update.
func (a *Aggregator) Apply(update match.AnalysisItem) (Applied, error) {
	if a.closed {
		return Applied{}, ErrClosed
	}
	i, ok := a.index[update.Filename]
	if !ok {
		return Applied{}, fmt.Errorf("%w: %s", ErrUnknownItem, update.Filename)
	}

	prev := a.items[i]
	cur := prev
	cur.Status = update.Status
	cur.Progress = clampPercent(update.Progress)
	cur.CurrentStep = update.CurrentStep
	a.items[i] = cur

	return Applied{
		Previous:  prev,
		Current:   cur,
		Regressed: !match.IsForwardTransition(prev.Status, cur.Status),
	}, nil
}

// Fail marks the run as failed. Items keep their last known state; the
// overall status reports error from now on.
func (a *Aggregator) Fail() {
	a.failed = true
}

// Close freezes the items. Later updates return ErrClosed.
func (a *Aggregator) Close() {
	a.closed = true
}

// Closed reports whether the aggregator has been frozen.
func (a *Aggregator) Closed() bool {
	return a.closed
}

// Len returns the number of items.
func (a *Aggregator) Len() int {
	return len(a.items)
}

// Has reports whether filename belongs to the run.
func (a *Aggregator) Has(filename string) bool {
	_, ok := a.index[filename]
	return ok
}

// Item returns the item for filename.
func (a *Aggregator) Item(filename string) (match.AnalysisItem, bool) {
	i, ok := a.index[filename]
	if !ok {
		return match.AnalysisItem{}, false
	}
	return a.items[i], true
}

// Items returns a copy of all items in submission order.
func (a *Aggregator) Items() []match.AnalysisItem {
	out := make([]match.AnalysisItem, len(a.items))
	copy(out, a.items)
	return out
}

// Overall derives the run status and percentage from the current items.
func (a *Aggregator) Overall() Overall {
	status := OverallStatus(a.items)
	if a.failed {
		status = match.StatusError
	}
	return Overall{Status: status, Percent: OverallPercent(a.items)}
}

// OverallStatus is completed when every item is completed, otherwise error
// if any item errored, otherwise analyzing if any item is analyzing,
// otherwise processing. An empty set counts as processing.
func OverallStatus(items []match.AnalysisItem) match.Status {
	if len(items) == 0 {
		return match.StatusProcessing
	}
	allCompleted := true
	anyError, anyAnalyzing := false, false
	for _, it := range items {
		switch it.Status {
		case match.StatusCompleted:
			continue
		case match.StatusError:
			anyError = true
		case match.StatusAnalyzing:
			anyAnalyzing = true
		}
		allCompleted = false
	}
	switch {
	case allCompleted:
		return match.StatusCompleted
	case anyError:
		return match.StatusError
	case anyAnalyzing:
		return match.StatusAnalyzing
	default:
		return match.StatusProcessing
	}
}

// OverallPercent weights finished items at 100 and adds the progress of the
// items still moving, then averages over all items:
//
//	round((C*100 + avg(A)*|A|) / total)
//
// where C counts items completed or at 100% and A holds the items that are
// neither completed, errored nor at 100%. Errored items contribute nothing.
func OverallPercent(items []match.AnalysisItem) int {
	if len(items) == 0 {
		return 0
	}
	var done int
	var activeSum float64
	var activeN int
	for _, it := range items {
		p := clampPercent(it.Progress)
		switch {
		case it.Status == match.StatusCompleted || p >= 100:
			done++
		case it.Status == match.StatusError:
		default:
			activeSum += p
			activeN++
		}
	}
	avg := 0.0
	if activeN > 0 {
		avg = activeSum / float64(activeN)
	}
	total := float64(done)*100 + avg*float64(activeN)
	return int(math.Round(total / float64(len(items))))
}

func clampPercent(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
