package camera

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// GocvPlatform opens local cameras through OpenCV's VideoCapture.
type GocvPlatform struct {
	// Device is the default device index.
	Device int

	// Facing maps a facing mode to a device index, for machines with
	// both a front and a rear camera.
	Facing map[FacingMode]int
}

// NewGocvPlatform creates a platform with a default device index.
func NewGocvPlatform(device int) *GocvPlatform {
	return &GocvPlatform{Device: device}
}

func (p *GocvPlatform) device(mode FacingMode) int {
	if d, ok := p.Facing[mode]; ok {
		return d
	}
	return p.Device
}

// Open implements Platform.
func (p *GocvPlatform) Open(ctx context.Context, c Constraints) (Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev := p.device(c.FacingMode)

	if runtime.GOOS == "linux" {
		node := fmt.Sprintf("/dev/video%d", dev)
		f, err := os.Open(node)
		if err != nil {
			// ENOENT, EACCES and EBUSY classify directly.
			return nil, Classify(fmt.Errorf("open %s: %w", node, err))
		}
		f.Close()
	}

	vc, err := gocv.OpenVideoCapture(dev)
	if err != nil {
		return nil, Classify(err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, NewError(KindBusy, fmt.Errorf("device %d could not start", dev))
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.Framerate))
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	src := &gocvSource{
		vc:      vc,
		mat:     gocv.NewMat(),
		quality: c.Quality,
	}
	src.track = &gocvTrack{id: uuid.NewString(), src: src}

	// Some drivers open fine and only fail on the first read.
	if _, err := src.Read(ctx); err != nil {
		src.close()
		return nil, NewError(KindBusy, err)
	}
	return src, nil
}

type gocvSource struct {
	mu      sync.Mutex
	vc      *gocv.VideoCapture
	mat     gocv.Mat
	quality int
	seq     uint64
	closed  bool
	track   *gocvTrack
}

func (s *gocvSource) Tracks() []Track {
	return []Track{s.track}
}

func (s *gocvSource) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, ErrReleased
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return Frame{}, fmt.Errorf("camera: empty frame")
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.mat, []int{gocv.IMWriteJpegQuality, s.quality})
	if err != nil {
		return Frame{}, fmt.Errorf("camera: encode frame: %w", err)
	}
	defer buf.Close()

	s.seq++
	return Frame{
		Data:     bytes.Clone(buf.GetBytes()),
		Width:    s.mat.Cols(),
		Height:   s.mat.Rows(),
		Seq:      s.seq,
		Captured: time.Now(),
	}, nil
}

func (s *gocvSource) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.vc.Close()
	s.mat.Close()
}

type gocvTrack struct {
	id  string
	src *gocvSource
}

func (t *gocvTrack) ID() string   { return t.id }
func (t *gocvTrack) Kind() string { return "video" }
func (t *gocvTrack) Stop()        { t.src.close() }
