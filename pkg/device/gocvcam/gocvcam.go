// Package gocvcam implements [device.Camera] with OpenCV video capture.
package gocvcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/quilang-hardware/hardy/pkg/device"
)

var _ device.Camera = (*Camera)(nil)

// Camera opens an OpenCV capture device by index.
type Camera struct {
	index int
}

// New returns a Camera bound to the capture device with the given index
// (0 is the system default).
func New(index int) *Camera { return &Camera{index: index} }

// OpenVideo opens the capture device and requests the given resolution.
func (c *Camera) OpenVideo(ctx context.Context, vc device.VideoConstraints) (device.VideoStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vcap, err := gocv.OpenVideoCapture(c.index)
	if err != nil {
		return nil, fmt.Errorf("gocvcam: open %d: %w", c.index, errors.Join(device.ErrPermissionDenied, err))
	}
	if !vcap.IsOpened() {
		vcap.Close()
		return nil, fmt.Errorf("gocvcam: open %d: %w", c.index, device.ErrUnavailable)
	}
	if vc.Width > 0 {
		vcap.Set(gocv.VideoCaptureFrameWidth, float64(vc.Width))
	}
	if vc.Height > 0 {
		vcap.Set(gocv.VideoCaptureFrameHeight, float64(vc.Height))
	}
	return &stream{vcap: vcap, mat: gocv.NewMat()}, nil
}

type stream struct {
	mu     sync.Mutex
	vcap   *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
}

func (s *stream) Grab() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, device.ErrClosed
	}
	if ok := s.vcap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, errors.New("gocvcam: empty frame")
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("gocvcam: convert frame: %w", err)
	}
	return img, nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	matErr := s.mat.Close()
	capErr := s.vcap.Close()
	if err := errors.Join(matErr, capErr); err != nil {
		return fmt.Errorf("gocvcam: close: %w", err)
	}
	return nil
}
