package pix2pix_go

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	"gorgonia.org/tensor"
)

// LoadOptions Preprocessing of samples
//
// Size - side of resized square image
// HorizontalFlip - mirror left-right with probability 0.5
// VerticalFlip - mirror top-bottom with probability 0.5
// EdgeLow, EdgeHigh - thresholds of edge detector
// Rand - source of flips. If nil then global source is used
//
type LoadOptions struct {
	Size           int
	HorizontalFlip bool
	VerticalFlip   bool
	EdgeLow        float64
	EdgeHigh       float64
	Rand           *rand.Rand
}

func (opts LoadOptions) coin() bool {
	if opts.Rand == nil {
		return rand.Float64() < 0.5
	}
	return opts.Rand.Float64() < 0.5
}

// ReadImage Decodes JPEG or PNG file and resizes it to size x size with bilinear interpolation
func ReadImage(path string, size int) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open image '%s'", path)
	}
	defer f.Close()
	src, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't decode image '%s'", path)
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// LoadBatch Reads samples: photo is resized, edge map is derived from its grayscale version, both are flipped together and normalized to [-1, 1].
// Any unreadable file aborts whole batch.
func LoadBatch(paths []string, opts LoadOptions) (*Batch, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("Can't load empty batch")
	}
	if opts.Size <= 0 {
		return nil, fmt.Errorf("Image size must be positive, got %d", opts.Size)
	}
	n, s := len(paths), opts.Size
	plane := s * s
	edges := make([]float64, n*plane)
	photos := make([]float64, n*3*plane)
	for k, path := range paths {
		img, err := ReadImage(path, s)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't load sample #%d", k)
		}
		edge := Canny(Grayscale(img), opts.EdgeLow, opts.EdgeHigh)
		// Flip decisions are drawn in this order for every sample
		hflip := opts.coin() && opts.HorizontalFlip
		vflip := opts.coin() && opts.VerticalFlip
		edgeDst := edges[k*plane : (k+1)*plane]
		photoDst := photos[k*3*plane : (k+1)*3*plane]
		for y := 0; y < s; y++ {
			sy := y
			if vflip {
				sy = s - 1 - y
			}
			for x := 0; x < s; x++ {
				sx := x
				if hflip {
					sx = s - 1 - x
				}
				edgeDst[y*s+x] = Normalize(edge.Pix[sy*edge.Stride+sx])
				o := img.PixOffset(sx, sy)
				for c := 0; c < 3; c++ {
					photoDst[c*plane+y*s+x] = Normalize(img.Pix[o+c])
				}
			}
		}
	}
	return &Batch{
		Edges:  tensor.New(tensor.WithShape(n, 1, s, s), tensor.WithBacking(edges)),
		Photos: tensor.New(tensor.WithShape(n, 3, s, s), tensor.WithBacking(photos)),
		Paths:  append([]string(nil), paths...),
	}, nil
}
