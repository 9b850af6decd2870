// Package store persists emotion log entries.
package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry sources.
const (
	SourceDetected = "detected"
	SourceManual   = "manual"
)

// DefaultManualConfidence is recorded for manually logged emotions.
const DefaultManualConfidence = 0.8

// Entry is one logged emotion.
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Emotion    string    `json:"emotion"`
	Confidence float64   `json:"confidence"`
	Notes      string    `json:"notes,omitempty"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is the persistence collaborator of a detection session.
type Store interface {
	Save(ctx context.Context, e Entry) error
}

// History extends Store with the queries behind the history and trends
// views.
type History interface {
	Store
	List(ctx context.Context, userID string, limit int) ([]Entry, error)
	Since(ctx context.Context, userID string, since time.Time) ([]Entry, error)
	Close() error
}

// Validate checks required fields and ranges.
func (e *Entry) Validate() error {
	var problems []string
	if strings.TrimSpace(e.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(e.Emotion) == "" {
		problems = append(problems, "emotion is required")
	}
	if math.IsNaN(e.Confidence) || e.Confidence < 0 || e.Confidence > 1 {
		problems = append(problems, "confidence must be between 0 and 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(problems, ", "))
	}
	return nil
}

// prepare fills defaults and validates.
func (e *Entry) prepare() error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Source == "" {
		e.Source = SourceDetected
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return e.Validate()
}

// DayCount is the number of entries on one calendar day.
type DayCount struct {
	Day   string `json:"day"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Stats summarises a period of the emotion log.
type Stats struct {
	Total             int            `json:"total"`
	ByEmotion         map[string]int `json:"by_emotion"`
	ByDay             []DayCount     `json:"by_day"`
	TopEmotion        string         `json:"top_emotion,omitempty"`
	AverageConfidence float64        `json:"average_confidence"`
}

// Summarize computes Stats over entries. Days are bucketed in loc; ties
// for the top emotion go to the alphabetically first name.
func Summarize(entries []Entry, loc *time.Location) Stats {
	if loc == nil {
		loc = time.Local
	}
	st := Stats{ByEmotion: make(map[string]int), ByDay: []DayCount{}}
	days := make(map[string]int)
	var sum float64

	for _, e := range entries {
		st.Total++
		st.ByEmotion[e.Emotion]++
		days[e.Timestamp.In(loc).Format(time.DateOnly)]++
		sum += e.Confidence
	}
	if st.Total == 0 {
		return st
	}
	st.AverageConfidence = sum / float64(st.Total)

	for d, n := range days {
		st.ByDay = append(st.ByDay, DayCount{Day: d, Count: n})
	}
	sort.Slice(st.ByDay, func(i, j int) bool { return st.ByDay[i].Day < st.ByDay[j].Day })

	for name, n := range st.ByEmotion {
		top := st.ByEmotion[st.TopEmotion]
		if st.TopEmotion == "" || n > top || (n == top && name < st.TopEmotion) {
			st.TopEmotion = name
		}
	}
	return st
}

// StatsFor loads the entries of the last days days and summarises them.
func StatsFor(ctx context.Context, h History, userID string, days int, now time.Time) (Stats, error) {
	if days <= 0 {
		days = 7
	}
	y, m, d := now.Date()
	since := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(days - 1))
	entries, err := h.Since(ctx, userID, since)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(entries, now.Location()), nil
}
