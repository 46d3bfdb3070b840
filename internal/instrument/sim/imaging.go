package sim

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/tiff"

	"github.com/yndnr/beamcal/internal/core/domain"
)

const (
	maxBlurPasses = 40

	darkLevel  = 30
	lightLevel = 220
)

// Capture renders an image of the specimen pattern with the given settings.
// The capture parameters are applied to the beam, like a real acquisition.
func (m *Microscope) Capture(ctx context.Context, settings domain.CaptureSettings) (*domain.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	w, h, _ := domain.ParseResolution(settings.Resolution)
	left, top := 0, 0
	if r := settings.ReducedArea; r != nil {
		left, top = int(math.Round(float64(w)*r.Left)), int(math.Round(float64(h)*r.Top))
		w = max(1, int(math.Round(float64(w)*r.Width)))
		h = max(1, int(math.Round(float64(h)*r.Height)))
	}

	m.mu.Lock()
	b := m.beams[settings.Channel]
	b.settings.FieldWidth = settings.FieldWidth
	b.settings.Resolution = settings.Resolution
	b.settings.DwellTime = settings.DwellTime
	passes := 0
	if settings.Channel == domain.ChannelElectron {
		defocus := math.Abs(b.settings.WorkingDistance - m.cfg.FocusWorkingDistance)
		passes = min(maxBlurPasses, int(math.Round(defocus/m.cfg.FocusDepth)))
	}
	cell := m.cfg.CellSize
	m.counters.Captures++
	m.mu.Unlock()

	px := checkerboard(w, h, left, top, cell)
	for i := 0; i < passes; i++ {
		px = boxBlur(px)
	}
	img := &domain.Image{Pixels: px, Settings: settings}

	if settings.Save {
		path, err := m.save(img)
		if err != nil {
			return nil, err
		}
		if path != "" {
			m.logger.Debug("sim image saved", "path", path)
		}
	}
	return img, nil
}

// AutoContrast is a no-op on the simulated detector.
func (m *Microscope) AutoContrast(ctx context.Context, ch domain.Channel) error {
	return m.get(ctx, ch, func(*beam) {})
}

func checkerboard(w, h, left, top, cell int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for x := range row {
			if ((x+left)/cell+(y+top)/cell)%2 == 0 {
				row[x] = lightLevel
			} else {
				row[x] = darkLevel
			}
		}
	}
	return img
}

// boxBlur applies one 3x3 mean filter pass with edge replication.
func boxBlur(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(b)
	at := func(x, y int) int {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return int(src.Pix[y*src.Stride+x])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += at(x+dx, y+dy)
				}
			}
			dst.Pix[y*dst.Stride+x] = uint8((sum + 4) / 9)
		}
	}
	return dst
}

func (m *Microscope) save(img *domain.Image) (string, error) {
	dir := img.Settings.SavePath
	if dir == "" {
		dir = m.cfg.SaveDir
	}
	if dir == "" {
		return "", nil
	}
	label := img.Settings.Label
	if label == "" {
		label = time.Now().Format("060102.150405")
	}
	suffix := "_eb"
	if img.Settings.Channel == domain.ChannelIon {
		suffix = "_ib"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sim: create image dir: %w", err)
	}
	path := filepath.Join(dir, label+suffix+".tif")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("sim: create image: %w", err)
	}
	if err := tiff.Encode(f, img.Pixels, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		f.Close()
		return "", fmt.Errorf("sim: encode tiff: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("sim: close image: %w", err)
	}

	m.mu.Lock()
	m.counters.Saved++
	m.mu.Unlock()
	return path, nil
}

// ============================================================================
// Detector
// ============================================================================

// Detect locates features from the simulator's ground truth. The needle tip is
// reported only when it falls inside the image.
func (m *Microscope) Detect(ctx context.Context, img *domain.Image, features []domain.FeatureType, interactive bool) (domain.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Pixels == nil {
		return nil, domain.ErrInvalidArgument.WithDetails("detect: nil image")
	}
	if interactive {
		m.logger.Info("sim detector has no operator; using detected locations")
	}

	m.mu.Lock()
	needle := m.needle
	m.mu.Unlock()

	w, h := float64(img.Width()), float64(img.Height())
	ps := img.PixelSize()
	cx, cy := w/2, h/2

	var vertical float64
	switch img.Settings.Channel {
	case domain.ChannelElectron:
		vertical = needle[1]
	case domain.ChannelIon:
		vertical = needle[2]
	default:
		return nil, domain.ErrInvalidArgument.WithDetails("detect: channel")
	}

	out := make(domain.Detection, 0, len(features))
	for _, ft := range features {
		f := domain.Feature{Type: ft}
		switch ft {
		case domain.FeatureImageCentre:
			f.Location = &domain.PixelPoint{X: cx, Y: cy}
		case domain.FeatureNeedleTip:
			x, y := cx+needle[0]/ps, cy-vertical/ps
			if x >= 0 && x < w && y >= 0 && y < h {
				f.Location = &domain.PixelPoint{X: x, Y: y}
			}
		}
		out = append(out, f)
	}
	return out, nil
}
