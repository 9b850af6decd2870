package emotions

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestClassify_PicksMaximum(t *testing.T) {
	obs := Classify(Scores{"happy": 0.2, "sad": 0.7, "neutral": 0.1})

	if obs.Emotion != "Sad" {
		t.Errorf("Emotion: got %q, want Sad", obs.Emotion)
	}
	if obs.Confidence != 0.7 {
		t.Errorf("Confidence: got %v, want 0.7", obs.Confidence)
	}
	if obs.Category != "sad" {
		t.Errorf("Category: got %q, want sad", obs.Category)
	}
	if obs.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestClassify_TieBreakIsDeterministic(t *testing.T) {
	scores := Scores{"happy": 0.5, "sad": 0.5}

	first := Classify(scores)
	if first.Emotion != "Happy" {
		t.Errorf("Tie between happy and sad: got %q, want Happy", first.Emotion)
	}

	for i := 0; i < 100; i++ {
		if got := Classify(scores); got.Emotion != first.Emotion {
			t.Fatalf("Run %d: got %q, want %q", i, got.Emotion, first.Emotion)
		}
	}
}

func TestClassify_TieBreakOrder(t *testing.T) {
	tests := []struct {
		name   string
		scores Scores
		want   string
	}{
		{"neutral beats everything", Scores{"surprised": 0.4, "neutral": 0.4, "happy": 0.4}, "Neutral"},
		{"sad before angry", Scores{"angry": 0.3, "sad": 0.3}, "Sad"},
		{"fearful before disgusted", Scores{"disgusted": 0.6, "fearful": 0.6}, "Anxious"},
		{"known before unknown", Scores{"contempt": 0.5, "surprised": 0.5}, "Excited"},
		{"unknown lexical", Scores{"zeal": 0.5, "awe": 0.5}, "awe"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.scores).Emotion; got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassify_Mapping(t *testing.T) {
	tests := map[string]string{
		"happy":     "Happy",
		"sad":       "Sad",
		"angry":     "Angry",
		"fearful":   "Anxious",
		"disgusted": "Frustrated",
		"surprised": "Excited",
		"neutral":   "Neutral",
		"contempt":  "contempt",
	}

	for cat, want := range tests {
		obs := Classify(Scores{cat: 0.9})
		if obs.Emotion != want {
			t.Errorf("%s: got %q, want %q", cat, obs.Emotion, want)
		}
	}
}

func TestClassify_ConfidenceUnclamped(t *testing.T) {
	obs := Classify(Scores{"happy": 0.999999})
	if obs.Confidence != 0.999999 {
		t.Errorf("Confidence: got %v, want 0.999999", obs.Confidence)
	}
}

func TestClassify_Empty(t *testing.T) {
	obs := Classify(Scores{})
	if obs.Emotion != "Neutral" || obs.Confidence != 0 {
		t.Errorf("Empty scores: got %+v, want Neutral/0", obs)
	}

	obs = Classify(Scores{"happy": math.NaN()})
	if obs.Emotion != "Neutral" || obs.Confidence != 0 {
		t.Errorf("NaN scores: got %+v, want Neutral/0", obs)
	}
}

func TestClassifyAt_Timestamp(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	obs := ClassifyAt(Scores{"happy": 1}, ts)
	if !obs.Timestamp.Equal(ts) {
		t.Errorf("Timestamp: got %v, want %v", obs.Timestamp, ts)
	}
}

func TestDisplay(t *testing.T) {
	tests := map[string]string{
		"":         "",
		"contempt": "Contempt",
		"Happy":    "Happy",
		"élan":     "Élan",
	}
	for in, want := range tests {
		if got := Display(in); got != want {
			t.Errorf("Display(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(0.734); got != "73%" {
		t.Errorf("Percent(0.734) = %q, want 73%%", got)
	}
	if got := Percent(1); got != "100%" {
		t.Errorf("Percent(1) = %q, want 100%%", got)
	}
}

func TestRegistry_BuiltIn(t *testing.T) {
	reg := NewRegistry()
	if err := reg.LoadBuiltIn(); err != nil {
		t.Fatalf("LoadBuiltIn failed: %v", err)
	}

	if reg.Count() != 10 {
		t.Errorf("Expected 10 emotions, got %d", reg.Count())
	}

	all := reg.All()
	if all[0].Name != "Happy" || all[len(all)-1].Name != "Angry" {
		t.Errorf("Unexpected order: first=%s last=%s", all[0].Name, all[len(all)-1].Name)
	}

	// Every label the classifier can produce must be loggable.
	for _, cat := range Priority {
		if !reg.Has(Label(cat)) {
			t.Errorf("Vocabulary missing classifier label %q", Label(cat))
		}
	}
}

func TestRegistry_Get(t *testing.T) {
	reg := DefaultRegistry()

	e, err := reg.Get("anxious")
	if err != nil {
		t.Fatalf("Get(anxious) failed: %v", err)
	}
	if e.Name != "Anxious" || e.Color != "peach" {
		t.Errorf("Unexpected emotion: %+v", e)
	}

	_, err = reg.Get("bored")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_SearchAndColors(t *testing.T) {
	reg := DefaultRegistry()

	matches := reg.Search("tension")
	if len(matches) != 1 || matches[0] != "Relaxed" {
		t.Errorf("Search(tension) = %v, want [Relaxed]", matches)
	}

	groups := reg.ByColor()
	if len(groups["peach"]) != 3 {
		t.Errorf("Expected 3 peach emotions, got %v", groups["peach"])
	}
}

func TestRegistry_LoadFromFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	os.WriteFile(good, []byte(`{"version":1,"emotions":[{"name":"Grateful","icon":"🙏","color":"green"}]}`), 0o644)

	reg := DefaultRegistry()
	if err := reg.LoadFromFile(good); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if !reg.Has("Grateful") || reg.Count() != 11 {
		t.Errorf("Expected Grateful merged, count=%d", reg.Count())
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`{"emotions":[]}`), 0o644)
	if err := reg.LoadFromFile(bad); !errors.Is(err, ErrInvalidVocabulary) {
		t.Errorf("Expected ErrInvalidVocabulary, got %v", err)
	}
}

func TestLess(t *testing.T) {
	if !Less(CategoryNeutral, CategoryHappy) {
		t.Error("neutral should precede happy")
	}
	if !Less(CategorySurprised, "contempt") {
		t.Error("known categories should precede unknown ones")
	}
	if !Less("aaa", "zzz") || Less("zzz", "aaa") {
		t.Error("unknown categories should be in lexical order")
	}
}
