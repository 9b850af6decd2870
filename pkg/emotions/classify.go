package emotions

import (
	"math"
	"sort"
	"strconv"
	"time"
	"unicode"
	"unicode/utf8"
)

// Raw expression categories produced by the expression model.
const (
	CategoryNeutral   = "neutral"
	CategoryHappy     = "happy"
	CategorySad       = "sad"
	CategoryAngry     = "angry"
	CategoryFearful   = "fearful"
	CategoryDisgusted = "disgusted"
	CategorySurprised = "surprised"
)

// Priority is the tie-break order used when two or more categories share the
// maximum score: the category listed first wins. Categories not listed rank
// after all known ones, in lexical order.
var Priority = []string{
	CategoryNeutral,
	CategoryHappy,
	CategorySad,
	CategoryAngry,
	CategoryFearful,
	CategoryDisgusted,
	CategorySurprised,
}

// labels translates raw model categories into product labels.
var labels = map[string]string{
	CategoryHappy:     "Happy",
	CategorySad:       "Sad",
	CategoryAngry:     "Angry",
	CategoryFearful:   "Anxious",
	CategoryDisgusted: "Frustrated",
	CategorySurprised: "Excited",
	CategoryNeutral:   "Neutral",
}

var priorityRank = func() map[string]int {
	m := make(map[string]int, len(Priority))
	for i, c := range Priority {
		m[c] = i
	}
	return m
}()

// Label returns the product label for a raw category. Unmapped categories
// pass through unchanged.
func Label(category string) string {
	if l, ok := labels[category]; ok {
		return l
	}
	return category
}

// Classify picks the highest-scoring category and returns it as an
// observation stamped with the current time.
func Classify(scores Scores) Observation {
	return ClassifyAt(scores, time.Now())
}

// ClassifyAt is Classify with an explicit timestamp.
//
// An empty score map (or one holding only NaN values) yields Neutral with
// zero confidence.
func ClassifyAt(scores Scores, ts time.Time) Observation {
	best := CategoryNeutral
	bestScore := 0.0
	found := false

	for _, cat := range ordered(scores) {
		s := scores[cat]
		if math.IsNaN(s) {
			continue
		}
		// Strictly greater: earlier categories in the order keep ties.
		if !found || s > bestScore {
			best, bestScore, found = cat, s, true
		}
	}

	return Observation{
		Emotion:    Label(best),
		Category:   best,
		Confidence: bestScore,
		Timestamp:  ts,
	}
}

// ordered returns the categories of scores in tie-break order.
func ordered(scores Scores) []string {
	cats := make([]string, 0, len(scores))
	for c := range scores {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return Less(cats[i], cats[j]) })
	return cats
}

// Less reports whether category a precedes b in tie-break order.
func Less(a, b string) bool {
	ra, aKnown := priorityRank[a]
	rb, bKnown := priorityRank[b]
	switch {
	case aKnown && bKnown:
		return ra < rb
	case aKnown != bKnown:
		return aKnown
	default:
		return a < b
	}
}

// Display formats a label for presentation: first letter upper-cased.
func Display(label string) string {
	if label == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(label)
	return string(unicode.ToUpper(r)) + label[size:]
}

// Percent formats a confidence as a rounded percentage, e.g. "73%".
func Percent(confidence float64) string {
	p := int(math.Round(confidence * 100))
	return strconv.Itoa(p) + "%"
}
