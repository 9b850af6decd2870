package inference

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/models"
)

func TestSoftmax(t *testing.T) {
	p := softmax([]float32{1, 1, 1, 1})
	for i, v := range p {
		if math.Abs(v-0.25) > 1e-9 {
			t.Errorf("p[%d] = %v, want 0.25", i, v)
		}
	}

	p = softmax([]float32{1000, 0})
	if math.IsNaN(p[0]) || p[0] < 0.999 {
		t.Errorf("large logits should not overflow, got %v", p)
	}

	if softmax(nil) != nil {
		t.Error("empty input should give nil")
	}
}

func TestExpressionScores(t *testing.T) {
	logits := []float32{0, 0, 0, 5, 0, 0, 0}
	scores := expressionScores(logits)

	if len(scores) != 7 {
		t.Fatalf("expected 7 categories, got %d", len(scores))
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("scores should sum to 1, got %v", sum)
	}

	obs := emotions.Classify(scores)
	if obs.Emotion != "Happy" {
		t.Errorf("expected Happy, got %s", obs.Emotion)
	}
	if _, ok := scores[emotions.CategoryDisgusted]; !ok {
		t.Error("disgust output should map to the disgusted category")
	}

	// Short output only fills the known prefix.
	if got := expressionScores([]float32{1, 2}); len(got) != 2 {
		t.Errorf("expected 2 categories, got %d", len(got))
	}
}

func TestFaceRect(t *testing.T) {
	r := faceRect(Box{X: 10, Y: 10, W: 100, H: 100}, 640, 480, 0.1)
	if r != image.Rect(0, 0, 120, 120) {
		t.Errorf("unexpected rect %v", r)
	}

	r = faceRect(Box{X: 600, Y: 400, W: 100, H: 100}, 640, 480, 0)
	if r.Max.X != 640 || r.Max.Y != 480 {
		t.Errorf("rect not clamped: %v", r)
	}

	if !faceRect(Box{X: 700, Y: 500, W: 10, H: 10}, 640, 480, 0).Empty() {
		t.Error("box outside the frame should give an empty rect")
	}
}

func TestBestFace(t *testing.T) {
	if bestFace(nil) != -1 {
		t.Error("no faces should give -1")
	}
	if got := bestFace([]float64{0.6, 0.9, 0.7}); got != 1 {
		t.Errorf("bestFace = %d, want 1", got)
	}
}

func TestMock(t *testing.T) {
	m := WithScores(emotions.Scores{"sad": 0.7})
	frame := Frame{Width: 640, Height: 480, Seq: 3}

	res, err := m.Detect(context.Background(), frame, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FaceFound || res.Scores["sad"] != 0.7 {
		t.Errorf("unexpected result %+v", res)
	}
	if m.CallCount("Detect") != 1 || m.LastCall().Seq != 3 {
		t.Errorf("call not recorded: %+v", m.Calls())
	}

	m.Reset()
	if len(m.Calls()) != 0 {
		t.Error("Reset should clear calls")
	}
}

func TestMock_Error(t *testing.T) {
	boom := errors.New("boom")
	m := WithError(boom)
	_, err := m.Detect(context.Background(), Frame{}, nil)
	if !errors.Is(err, ErrInference) || !errors.Is(err, boom) {
		t.Errorf("expected wrapped inference error, got %v", err)
	}
}

func TestOpenCV_ModelsNotReady(t *testing.T) {
	e := NewOpenCV()
	defer e.Close()

	_, err := e.Detect(context.Background(), Frame{}, models.NewSet())
	if !errors.Is(err, ErrModelsNotReady) || !errors.Is(err, ErrInference) {
		t.Errorf("expected ErrModelsNotReady, got %v", err)
	}
}

func TestNoFace(t *testing.T) {
	r := NoFace(Frame{Width: 320, Height: 240})
	if r.FaceFound || r.FrameWidth != 320 || r.FrameHeight != 240 {
		t.Errorf("unexpected result %+v", r)
	}
}
