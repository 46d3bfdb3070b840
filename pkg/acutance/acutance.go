package acutance

import (
	"image"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultRadius is the disk radius of the gradient neighbourhood, in pixels.
const DefaultRadius = 5

// Metric scores an image; higher is sharper.
type Metric interface {
	Score(img *image.Gray) float64
}

// MetricFunc adapts a function to Metric.
type MetricFunc func(img *image.Gray) float64

// Score implements Metric.
func (f MetricFunc) Score(img *image.Gray) float64 { return f(img) }

// Acutance is the median-then-rank-gradient sharpness metric.
type Acutance struct {
	Radius int
	disk   []Offset
}

// New returns an Acutance metric with the default disk radius.
func New() *Acutance {
	return NewWithRadius(DefaultRadius)
}

// NewWithRadius returns an Acutance metric with the given disk radius (minimum 1).
func NewWithRadius(radius int) *Acutance {
	if radius < 1 {
		radius = 1
	}
	return &Acutance{Radius: radius, disk: Disk(radius)}
}

// Score implements Metric.
func (a *Acutance) Score(img *image.Gray) float64 {
	if img == nil || img.Bounds().Empty() {
		return 0
	}
	smoothed := Median(FromGray(img))
	grad := gradient(smoothed, a.disk)
	return stat.Mean(grad.RawMatrix().Data, nil)
}

// FromGray copies an 8-bit image into a dense matrix, rows = y, cols = x.
func FromGray(img *image.Gray) *mat.Dense {
	b := img.Bounds()
	m := mat.NewDense(b.Dy(), b.Dx(), nil)
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		for x, v := range row {
			m.Set(y, x, float64(v))
		}
	}
	return m
}

// Offset is a neighbourhood displacement in pixels.
type Offset struct{ DY, DX int }

// cross is the 3x3 connectivity-1 footprint used by the median filter.
var cross = []Offset{{0, 0}, {-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// Disk returns the offsets (dy, dx) with dx²+dy² <= radius².
func Disk(radius int) []Offset {
	var out []Offset
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= r2 {
				out = append(out, Offset{dy, dx})
			}
		}
	}
	return out
}

// Median applies a cross-shaped 3x3 median filter with replicated edges.
func Median(src *mat.Dense) *mat.Dense {
	rows, cols := src.Dims()
	dst := mat.NewDense(rows, cols, nil)
	window := make([]float64, len(cross))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			for i, o := range cross {
				window[i] = src.At(clamp(y+o.DY, rows), clamp(x+o.DX, cols))
			}
			sort.Float64s(window)
			dst.Set(y, x, window[len(window)/2])
		}
	}
	return dst
}

// Gradient returns the local range (max - min) over a disk of the given radius.
func Gradient(src *mat.Dense, radius int) *mat.Dense {
	return gradient(src, Disk(radius))
}

func gradient(src *mat.Dense, disk []Offset) *mat.Dense {
	rows, cols := src.Dims()
	dst := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			lo, hi := src.At(y, x), src.At(y, x)
			for _, o := range disk {
				yy, xx := y+o.DY, x+o.DX
				if yy < 0 || yy >= rows || xx < 0 || xx >= cols {
					continue
				}
				v := src.At(yy, xx)
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			dst.Set(y, x, hi-lo)
		}
	}
	return dst
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
