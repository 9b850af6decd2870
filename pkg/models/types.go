// Package models tracks the inference models that must be present before
// emotion detection can run.
//
// A Registry owns the fixed set of four models (detector, landmark,
// recognition, expression). EnsureLoaded fetches any model that is not yet
// loaded through a Source; concurrent callers share a single in-flight load
// per model, and a failed model can be retried without reloading the
// others.
//
// Model files are opaque to this package: a Source only retrieves them and
// reports where they live. Interpreting them is the inference engine's job.
package models

import (
	"path/filepath"
	"strings"
)

// Name identifies one of the required models.
type Name string

// The fixed model set.
const (
	Detector    Name = "detector"
	Landmark    Name = "landmark"
	Recognition Name = "recognition"
	Expression  Name = "expression"
)

// Names lists every required model in load order.
var Names = []Name{Detector, Landmark, Recognition, Expression}

// State is the load state of a single model.
type State int

const (
	// NotLoaded means no load has been attempted.
	NotLoaded State = iota

	// Loading means a load is in flight.
	Loading

	// Loaded means the model's files are available.
	Loaded

	// Failed means the last load attempt failed; it may be retried.
	Failed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Spec describes the files that make up one model.
type Spec struct {
	Name  Name     `json:"name"`
	Files []string `json:"files"`
}

// Asset is a loaded model: its files on local disk.
type Asset struct {
	Name  Name
	Dir   string
	Files []string
}

// Path returns the absolute path of one of the asset's files.
func (a *Asset) Path(file string) string {
	return filepath.Join(a.Dir, filepath.FromSlash(file))
}

// Find returns the path of the first file with the given suffix.
func (a *Asset) Find(suffix string) (string, bool) {
	for _, f := range a.Files {
		if strings.HasSuffix(f, suffix) {
			return a.Path(f), true
		}
	}
	return "", false
}

// Layout names a model file layout.
type Layout string

const (
	// LayoutFaceAPI is the manifest + weight shard layout of the browser
	// face-api models.
	LayoutFaceAPI Layout = "faceapi"

	// LayoutONNX is the layout consumed by the OpenCV engine.
	LayoutONNX Layout = "onnx"
)

// SpecsFor returns the model specs for a layout. Unknown layouts fall back
// to ONNX.
func SpecsFor(layout Layout) []Spec {
	if layout == LayoutFaceAPI {
		return FaceAPISpecs()
	}
	return ONNXSpecs()
}

// FaceAPISpecs returns the face-api model files: a weights manifest plus one
// or two binary shards per model.
func FaceAPISpecs() []Spec {
	return []Spec{
		{Name: Detector, Files: []string{
			"tiny_face_detector_model-weights_manifest.json",
			"tiny_face_detector_model-shard1",
		}},
		{Name: Landmark, Files: []string{
			"face_landmark_68_model-weights_manifest.json",
			"face_landmark_68_model-shard1",
		}},
		{Name: Recognition, Files: []string{
			"face_recognition_model-weights_manifest.json",
			"face_recognition_model-shard1",
			"face_recognition_model-shard2",
		}},
		{Name: Expression, Files: []string{
			"face_expression_model-weights_manifest.json",
			"face_expression_model-shard1",
		}},
	}
}

// Default asset locations per layout.
const (
	FaceAPIBaseURL = "https://raw.githubusercontent.com/justadudewhohacks/face-api.js/master/weights"
	ONNXBaseURL    = "https://github.com/opencv/opencv_zoo/raw/main/models"
)

// BaseURL returns the default download prefix for a layout.
func BaseURL(layout Layout) string {
	if layout == LayoutFaceAPI {
		return FaceAPIBaseURL
	}
	return ONNXBaseURL
}

// ONNXSpecs returns the model files used by the OpenCV inference engine.
// YuNet emits five facial landmarks alongside each box, so the landmark
// model shares the detector file.
func ONNXSpecs() []Spec {
	const yunet = "face_detection_yunet/face_detection_yunet_2023mar.onnx"
	return []Spec{
		{Name: Detector, Files: []string{yunet}},
		{Name: Landmark, Files: []string{yunet}},
		{Name: Recognition, Files: []string{"face_recognition_sface/face_recognition_sface_2021dec.onnx"}},
		{Name: Expression, Files: []string{"facial_expression_recognition/facial_expression_recognition_mobilefacenet_2022july.onnx"}},
	}
}

// Set is a snapshot of the loaded models handed to the inference engine.
type Set struct {
	assets map[Name]*Asset
}

// NewSet builds a Set from loaded assets.
func NewSet(assets ...*Asset) *Set {
	s := &Set{assets: make(map[Name]*Asset, len(assets))}
	for _, a := range assets {
		s.assets[a.Name] = a
	}
	return s
}

// Get returns the asset for a model, if loaded.
func (s *Set) Get(name Name) (*Asset, bool) {
	if s == nil {
		return nil, false
	}
	a, ok := s.assets[name]
	return a, ok
}

// Ready reports whether every required model is present.
func (s *Set) Ready() bool {
	if s == nil {
		return false
	}
	for _, n := range Names {
		if _, ok := s.assets[n]; !ok {
			return false
		}
	}
	return true
}
