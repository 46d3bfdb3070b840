package domain

import "fmt"

// FeatureType names something the detector can locate.
type FeatureType int

const (
	FeatureNeedleTip FeatureType = iota + 1
	FeatureImageCentre
)

func (f FeatureType) String() string {
	switch f {
	case FeatureNeedleTip:
		return "needle_tip"
	case FeatureImageCentre:
		return "image_centre"
	default:
		return fmt.Sprintf("feature(%d)", int(f))
	}
}

// PixelPoint is a location in image pixel space, origin top-left, y down.
type PixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Feature pairs a query with its detected location. A nil Location means not detected.
type Feature struct {
	Type     FeatureType `json:"type"`
	Location *PixelPoint `json:"location,omitempty"`
}

// Detected reports whether the feature was located.
func (f Feature) Detected() bool { return f.Location != nil }

// Detection is the detector's answer for one image.
type Detection []Feature

// Lookup returns the location of the given feature or ErrFeatureNotFound.
func (d Detection) Lookup(t FeatureType) (PixelPoint, error) {
	for _, f := range d {
		if f.Type == t && f.Location != nil {
			return *f.Location, nil
		}
	}
	return PixelPoint{}, ErrFeatureNotFound.WithDetails(t.String())
}

// Offset returns the signed pixel displacement from feature `from` to feature `to`.
func (d Detection) Offset(from, to FeatureType) (dx, dy float64, err error) {
	a, err := d.Lookup(from)
	if err != nil {
		return 0, 0, err
	}
	b, err := d.Lookup(to)
	if err != nil {
		return 0, 0, err
	}
	return b.X - a.X, b.Y - a.Y, nil
}
