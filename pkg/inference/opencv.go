package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-moodcam/pkg/models"
)

// OpenCV runs YuNet face detection, SFace recognition and a MobileFaceNet
// expression classifier through gocv's DNN module.
//
// Networks are created lazily from the model set on the first Detect and
// rebuilt if the set points at different files.
type OpenCV struct {
	config *Config

	mu         sync.Mutex // Protects inference
	closed     bool
	paths      map[models.Name]string
	detector   *gocv.FaceDetectorYN
	expression *gocv.Net
	recognizer *gocv.Net
}

// NewOpenCV creates an OpenCV engine.
func NewOpenCV(opts ...Option) *OpenCV {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	return &OpenCV{config: cfg}
}

// Detect implements Engine.
func (e *OpenCV) Detect(ctx context.Context, frame Frame, set *models.Set) (*Result, error) {
	if !set.Ready() {
		return nil, WrapError("opencv", ErrModelsNotReady)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, WrapError("opencv", ErrClosed)
	}
	if err := e.ensureNets(set); err != nil {
		return nil, WrapError("opencv", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, WrapError("opencv", err)
	}

	img, err := gocv.IMDecode(frame.Data, gocv.IMReadColor)
	if err != nil {
		return nil, WrapError("opencv", fmt.Errorf("decode image: %w", err))
	}
	defer img.Close()

	if img.Empty() {
		return nil, WrapError("opencv", ErrEmptyFrame)
	}
	width, height := img.Cols(), img.Rows()

	e.detector.SetInputSize(image.Pt(width, height))
	faces := gocv.NewMat()
	defer faces.Close()
	e.detector.Detect(img, &faces)

	if faces.Rows() == 0 {
		return &Result{FrameWidth: width, FrameHeight: height}, nil
	}

	// YuNet output format (15 columns):
	// 0-3: x, y, w, h (bounding box in pixels)
	// 4-13: 5 facial landmarks (x,y pairs)
	// 14: face score
	scores := make([]float64, faces.Rows())
	for r := range scores {
		scores[r] = float64(faces.GetFloatAt(r, 14))
	}
	row := bestFace(scores)

	box := Box{
		X:     float64(faces.GetFloatAt(row, 0)),
		Y:     float64(faces.GetFloatAt(row, 1)),
		W:     float64(faces.GetFloatAt(row, 2)),
		H:     float64(faces.GetFloatAt(row, 3)),
		Score: scores[row],
	}
	landmarks := make([]Point, 0, 5)
	for i := 0; i < 5; i++ {
		landmarks = append(landmarks, Point{
			X: float64(faces.GetFloatAt(row, 4+2*i)),
			Y: float64(faces.GetFloatAt(row, 5+2*i)),
		})
	}

	rect := faceRect(box, width, height, 0.1)
	if rect.Empty() {
		return &Result{FrameWidth: width, FrameHeight: height}, nil
	}
	face := img.Region(rect)
	defer face.Close()

	size := image.Pt(e.config.FaceSize, e.config.FaceSize)

	logits, err := forward(e.expression, face, 1.0/127.5, size, gocv.NewScalar(127.5, 127.5, 127.5, 0))
	if err != nil {
		return nil, WrapError("opencv", fmt.Errorf("expression net: %w", err))
	}

	res := &Result{
		FaceFound:   true,
		Scores:      expressionScores(logits),
		Box:         box,
		Landmarks:   landmarks,
		FrameWidth:  width,
		FrameHeight: height,
	}

	if !e.config.SkipDescriptor {
		desc, err := forward(e.recognizer, face, 1.0, size, gocv.NewScalar(0, 0, 0, 0))
		if err != nil {
			// The descriptor is optional; expression scores are still valid.
			e.config.Logger.Debug("recognition net failed", "error", err)
		} else {
			res.Descriptor = desc
		}
	}

	return res, nil
}

// forward runs a single-input net on img and copies its output.
func forward(net *gocv.Net, img gocv.Mat, scale float64, size image.Point, mean gocv.Scalar) ([]float32, error) {
	blob := gocv.BlobFromImage(img, scale, size, mean, true, false)
	defer blob.Close()

	net.SetInput(blob, "")
	out := net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty output")
	}
	return append([]float32(nil), data...), nil
}

// ensureNets builds the networks for set, rebuilding when paths change.
// Callers must hold e.mu.
func (e *OpenCV) ensureNets(set *models.Set) error {
	paths := make(map[models.Name]string, 3)
	for _, name := range []models.Name{models.Detector, models.Recognition, models.Expression} {
		asset, _ := set.Get(name)
		p, ok := asset.Find(".onnx")
		if !ok {
			return fmt.Errorf("%w: %s has no onnx file", ErrModelsNotReady, name)
		}
		paths[name] = p
	}

	if e.detector != nil && samePaths(e.paths, paths) {
		return nil
	}
	e.closeNets()

	for name, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("model file for %s: %w", name, err)
		}
	}

	det := gocv.NewFaceDetectorYNWithParams(
		paths[models.Detector],
		"", // No config file needed for ONNX
		image.Pt(320, 320),
		float32(e.config.ScoreThreshold),
		float32(e.config.NMSThreshold),
		e.config.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	expr, err := readNet(paths[models.Expression])
	if err != nil {
		det.Close()
		return err
	}
	rec, err := readNet(paths[models.Recognition])
	if err != nil {
		det.Close()
		expr.Close()
		return err
	}

	e.detector = &det
	e.expression = expr
	e.recognizer = rec
	e.paths = paths
	e.config.Logger.Info("inference nets loaded",
		"detector", paths[models.Detector],
		"expression", paths[models.Expression])
	return nil
}

func readNet(path string) (*gocv.Net, error) {
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", path)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &net, nil
}

func samePaths(a, b map[models.Name]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (e *OpenCV) closeNets() {
	if e.detector != nil {
		e.detector.Close()
		e.detector = nil
	}
	if e.expression != nil {
		e.expression.Close()
		e.expression = nil
	}
	if e.recognizer != nil {
		e.recognizer.Close()
		e.recognizer = nil
	}
	e.paths = nil
}

// Close releases the networks. Detect fails with ErrClosed afterwards.
func (e *OpenCV) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.closeNets()
	return nil
}

// Verify OpenCV implements Engine at compile time.
var _ Engine = (*OpenCV)(nil)
