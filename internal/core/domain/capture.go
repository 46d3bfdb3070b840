package domain

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Region is a normalized sub-rectangle of the scan field. All values are in [0,1].
type Region struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DefaultFocusRegion is the centred reduced area used for focus images.
var DefaultFocusRegion = Region{Left: 0.3, Top: 0.3, Width: 0.4, Height: 0.4}

// Validate checks that the region lies inside the unit square and is not empty.
func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return ErrInvalidArgument.WithDetails("region must have positive width and height")
	}
	if r.Left < 0 || r.Top < 0 || r.Left+r.Width > 1 || r.Top+r.Height > 1 {
		return ErrInvalidArgument.WithDetails(fmt.Sprintf("region %+v outside [0,1]", r))
	}
	return nil
}

// CaptureSettings parameterizes a single acquisition. Built per call, never persisted.
type CaptureSettings struct {
	Resolution   string  `json:"resolution"`
	DwellTime    float64 `json:"dwell_time"`
	FieldWidth   float64 `json:"hfw"`
	Channel      Channel `json:"channel"`
	Save         bool    `json:"save"`
	AutoContrast bool    `json:"autocontrast"`
	Gamma        bool    `json:"gamma"`
	Label        string  `json:"label,omitempty"`
	SavePath     string  `json:"save_path,omitempty"`
	ReducedArea  *Region `json:"reduced_area,omitempty"`
}

// Validate checks the fields needed by every acquisition.
func (c CaptureSettings) Validate() error {
	if !c.Channel.Valid() {
		return ErrInvalidArgument.WithDetails("capture: channel")
	}
	if c.FieldWidth <= 0 {
		return ErrInvalidArgument.WithDetails("capture: hfw must be positive")
	}
	if c.DwellTime <= 0 {
		return ErrInvalidArgument.WithDetails("capture: dwell_time must be positive")
	}
	if _, _, err := ParseResolution(c.Resolution); err != nil {
		return err
	}
	if c.ReducedArea != nil {
		return c.ReducedArea.Validate()
	}
	return nil
}

// ParseResolution parses a vendor resolution tag such as "768x512".
func ParseResolution(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, ErrInvalidArgument.WithDetails(fmt.Sprintf("resolution %q", s))
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, ErrInvalidArgument.WithDetails(fmt.Sprintf("resolution %q", s))
	}
	return width, height, nil
}

// Image is an acquired intensity buffer together with the settings that produced it.
type Image struct {
	Pixels   *image.Gray
	Settings CaptureSettings
}

// Width returns the buffer width in pixels.
func (i *Image) Width() int { return i.Pixels.Bounds().Dx() }

// Height returns the buffer height in pixels.
func (i *Image) Height() int { return i.Pixels.Bounds().Dy() }

// PixelSize returns the physical size of one pixel in meters. For reduced-area
// captures the field width still refers to the full scan, so the size is derived
// from the full-frame width.
func (i *Image) PixelSize() float64 {
	w := float64(i.Width())
	if r := i.Settings.ReducedArea; r != nil && r.Width > 0 {
		w /= r.Width
	}
	return i.Settings.FieldWidth / w
}
