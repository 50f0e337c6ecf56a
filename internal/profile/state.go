package profile

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"shelfmind/internal/domain"
)

// Entry is one folded history event with the book features it was folded
// with.
type Entry struct {
	EventID     int64                   `json:"event_id"`
	BookID      int64                   `json:"book_id"`
	At          time.Time               `json:"at"`
	Status      domain.CompletionStatus `json:"status"`
	Rating      *int                    `json:"rating,omitempty"`
	Pages       *int                    `json:"pages,omitempty"`
	Complexity  *int                    `json:"complexity,omitempty"`
	ThemesKnown bool                    `json:"themes_known,omitempty"`
	Themes      []string                `json:"themes"`
	Style       domain.WritingStyle     `json:"style,omitempty"`
	CVP         *float64                `json:"cvp,omitempty"`
	Pacing      domain.Pacing           `json:"pacing,omitempty"`
}

// EntryFromHistory converts a store history entry.
func EntryFromHistory(h domain.HistoryEntry) Entry {
	f := h.Features.Normalized()
	e := Entry{
		EventID:     h.Event.ID,
		BookID:      h.Event.BookID,
		At:          h.Event.At.UTC(),
		Status:      h.Event.Status,
		Rating:      h.Event.Rating,
		Pages:       h.Pages,
		Complexity:  f.Complexity,
		ThemesKnown: f.ThemesKnown,
		Themes:      f.Themes,
		Style:       f.Style,
		CVP:         f.CharacterVsPlot,
	}
	if f.Mood != nil {
		e.Pacing = f.Mood.Pacing
	}
	return e
}

func (e Entry) completed() bool { return e.Status == domain.CompletionCompleted }

func (e Entry) rated() (int, bool) {
	if !e.completed() || e.Rating == nil {
		return 0, false
	}
	return *e.Rating, true
}

// State is the fold accumulator of the profile builder.
type State struct {
	Entries        []Entry `json:"entries"`
	RecentPages    []int   `json:"recent_pages"`
	LengthRaw      int     `json:"length_raw"`
	LengthSmoothed float64 `json:"length_smoothed"`
}

// Empty returns the state of an empty history.
func Empty() State {
	return State{Entries: []Entry{}, RecentPages: []int{}}
}

// AsOf is the timestamp of the last folded event; zero for an empty state.
func (s State) AsOf() time.Time {
	if len(s.Entries) == 0 {
		return time.Time{}
	}
	return s.Entries[len(s.Entries)-1].At
}

// LastEventID is the id of the last folded event.
func (s State) LastEventID() int64 {
	if len(s.Entries) == 0 {
		return 0
	}
	return s.Entries[len(s.Entries)-1].EventID
}

// Fold returns s with e appended. s is not modified.
func Fold(s State, e Entry, opts Options) State {
	out := State{
		Entries:        make([]Entry, len(s.Entries), len(s.Entries)+1),
		RecentPages:    append([]int{}, s.RecentPages...),
		LengthRaw:      s.LengthRaw,
		LengthSmoothed: s.LengthSmoothed,
	}
	copy(out.Entries, s.Entries)
	out.Entries = append(out.Entries, e)

	if e.completed() && e.Pages != nil && *e.Pages > 0 {
		pages := *e.Pages
		if pages > out.LengthRaw {
			out.LengthRaw = pages
		}
		out.RecentPages = append(out.RecentPages, pages)
		if window := opts.LengthWindow; window > 0 && len(out.RecentPages) > window {
			out.RecentPages = out.RecentPages[len(out.RecentPages)-window:]
		}
		if out.LengthSmoothed == 0 {
			out.LengthSmoothed = float64(out.LengthRaw)
		} else {
			out.LengthSmoothed = opts.LengthSmoothing*out.LengthSmoothed +
				(1-opts.LengthSmoothing)*float64(topDecile(out.RecentPages))
		}
	}
	return out
}

// Build folds entries over an empty state.
func Build(entries []Entry, opts Options) State {
	s := Empty()
	for _, e := range entries {
		s = Fold(s, e, opts)
	}
	return s
}

// topDecile is the nearest-rank 90th percentile.
func topDecile(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int{}, values...)
	sort.Ints(sorted)
	rank := (9*len(sorted) + 9) / 10
	return sorted[rank-1]
}

// Encode serializes s for snapshot storage.
func Encode(s State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode profile state: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot payload.
func Decode(data []byte) (State, error) {
	s := Empty()
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode profile state: %w", err)
	}
	if s.Entries == nil {
		s.Entries = []Entry{}
	}
	if s.RecentPages == nil {
		s.RecentPages = []int{}
	}
	return s, nil
}
