// Package overlay draws detection results over a frame: the face box, the
// landmarks and one bar per expression score.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-moodcam/pkg/camera"
	"github.com/teslashibe/go-moodcam/pkg/emotions"
	"github.com/teslashibe/go-moodcam/pkg/inference"
)

var (
	boxColor      = color.RGBA{0, 255, 0, 255}
	landmarkColor = color.RGBA{255, 200, 0, 255}
	barColor      = color.RGBA{90, 160, 255, 255}
	textColor     = color.RGBA{255, 255, 255, 255}
)

// Bar layout, in pixels.
const (
	barX      = 10
	barTop    = 20
	barHeight = 14
	barGap    = 6
	barMaxLen = 120
	labelGap  = 8
)

// Bar is one expression score bar.
type Bar struct {
	Category string
	Score    float64
	Rect     image.Rectangle
}

// Bars lays out one bar per score, highest first, ties in classifier order.
func Bars(scores emotions.Scores) []Bar {
	cats := make([]string, 0, len(scores))
	for c := range scores {
		cats = append(cats, c)
	}
	sort.SliceStable(cats, func(i, j int) bool {
		return emotions.Less(cats[i], cats[j])
	})
	sort.SliceStable(cats, func(i, j int) bool {
		return scores[cats[i]] > scores[cats[j]]
	})

	bars := make([]Bar, 0, len(cats))
	for i, c := range cats {
		s := scores[c]
		if s < 0 {
			s = 0
		}
		if s > 1 {
			s = 1
		}
		y := barTop + i*(barHeight+barGap)
		bars = append(bars, Bar{
			Category: c,
			Score:    scores[c],
			Rect:     image.Rect(barX, y, barX+int(s*barMaxLen), y+barHeight),
		})
	}
	return bars
}

// Draw renders res over frame and returns the JPEG-encoded result.
// A result without a face returns the frame unchanged.
func Draw(frame camera.Frame, res *inference.Result) ([]byte, error) {
	if res == nil || !res.FaceFound {
		return frame.Data, nil
	}

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("overlay: decode frame: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("overlay: empty frame")
	}

	b := res.Box
	rect := image.Rect(int(b.X), int(b.Y), int(b.X+b.W), int(b.Y+b.H))
	gocv.Rectangle(&img, rect, boxColor, 2)

	for _, p := range res.Landmarks {
		gocv.Circle(&img, image.Pt(int(p.X), int(p.Y)), 2, landmarkColor, -1)
	}

	obs := emotions.Classify(res.Scores)
	label := fmt.Sprintf("%s %s", emotions.Display(obs.Emotion), emotions.Percent(obs.Confidence))
	textPoint := image.Pt(rect.Min.X, rect.Min.Y-5)
	if textPoint.Y < 10 {
		textPoint.Y = rect.Min.Y + 15 // Inside the box when too close to the top
	}
	gocv.PutText(&img, label, textPoint, gocv.FontHersheySimplex, 0.5, boxColor, 1)

	for _, bar := range Bars(res.Scores) {
		if !bar.Rect.Empty() {
			gocv.Rectangle(&img, bar.Rect, barColor, -1)
		}
		pt := image.Pt(barX+barMaxLen+labelGap, bar.Rect.Max.Y-2)
		gocv.PutText(&img, fmt.Sprintf("%s %.2f", bar.Category, bar.Score), pt, gocv.FontHersheySimplex, 0.4, textColor, 1)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("overlay: encode: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
