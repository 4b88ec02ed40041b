package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kalambet/cvsift/internal/match"
)

// ErrMalformed is returned for payloads that are not a recognisable event.
// It is never fatal to a run.
var ErrMalformed = errors.New("malformed event")

const defaultFailureMessage = "an error occurred"

// Kind tags the variant held by an Event.
type Kind int

const (
	KindProgress Kind = iota + 1
	KindResults
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindResults:
		return "results"
	case KindFailed:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one interpreted record of the feed. Only the field matching Kind
// is set.
type Event struct {
	Kind     Kind
	Progress match.AnalysisItem
	Results  []match.MatchResult
	Message  string
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Kind == KindResults || e.Kind == KindFailed
}

type envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// ResultsPayload is the body of a results event and of the non-streaming
// response.
type ResultsPayload struct {
	Results  []match.MatchResult `json:"results"`
	TotalCVs int                 `json:"total_cvs,omitempty"`
}

// Interpret decodes one payload into an Event. Any payload that does not fit
// the envelope yields an error wrapping ErrMalformed.
func Interpret(payload string) (Event, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case "progress":
		return interpretProgress(env.Data)
	case "results":
		return interpretResults(env.Data)
	case "error":
		msg := env.Message
		if msg == "" {
			msg = defaultFailureMessage
		}
		return Event{Kind: KindFailed, Message: msg}, nil
	case "":
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

func interpretProgress(data json.RawMessage) (Event, error) {
	if len(data) == 0 {
		return Event{}, fmt.Errorf("%w: progress without data", ErrMalformed)
	}
	var item match.AnalysisItem
	if err := json.Unmarshal(data, &item); err != nil {
		return Event{}, fmt.Errorf("%w: progress data: %v", ErrMalformed, err)
	}
	if item.Filename == "" {
		return Event{}, fmt.Errorf("%w: progress without filename", ErrMalformed)
	}
	if !item.Status.Valid() {
		return Event{}, fmt.Errorf("%w: unknown status %q for %s", ErrMalformed, item.Status, item.Filename)
	}
	return Event{Kind: KindProgress, Progress: item}, nil
}

func interpretResults(data json.RawMessage) (Event, error) {
	if len(data) == 0 {
		return Event{}, fmt.Errorf("%w: results without data", ErrMalformed)
	}
	var p ResultsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Event{}, fmt.Errorf("%w: results data: %v", ErrMalformed, err)
	}
	if p.Results == nil {
		p.Results = []match.MatchResult{}
	}
	return Event{Kind: KindResults, Results: p.Results}, nil
}
