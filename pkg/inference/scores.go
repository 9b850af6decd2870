package inference

import (
	"image"
	"math"

	"github.com/teslashibe/go-moodcam/pkg/emotions"
)

// expressionClasses is the output order of the MobileFaceNet expression
// net, mapped onto the classifier's category names.
var expressionClasses = []string{
	emotions.CategoryAngry,
	emotions.CategoryDisgusted,
	emotions.CategoryFearful,
	emotions.CategoryHappy,
	emotions.CategoryNeutral,
	emotions.CategorySad,
	emotions.CategorySurprised,
}

// softmax converts logits to probabilities.
func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxv := math.Inf(-1)
	for _, v := range logits {
		maxv = math.Max(maxv, float64(v))
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - maxv)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// expressionScores maps raw expression net output to category scores.
// Extra outputs beyond the known classes are ignored.
func expressionScores(logits []float32) emotions.Scores {
	n := min(len(logits), len(expressionClasses))
	probs := softmax(logits[:n])
	scores := make(emotions.Scores, n)
	for i, p := range probs {
		scores[expressionClasses[i]] = p
	}
	return scores
}

// faceRect converts a detector box to an integer rectangle clamped to the
// image bounds, expanded by margin on each side.
func faceRect(b Box, width, height int, margin float64) image.Rectangle {
	mx := b.W * margin
	my := b.H * margin
	r := image.Rect(
		int(math.Floor(b.X-mx)),
		int(math.Floor(b.Y-my)),
		int(math.Ceil(b.X+b.W+mx)),
		int(math.Ceil(b.Y+b.H+my)),
	)
	return r.Intersect(image.Rect(0, 0, width, height))
}

// bestFace returns the index of the highest scoring row, or -1.
func bestFace(scores []float64) int {
	best := -1
	for i, s := range scores {
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	return best
}
