package pix2pix_go

import (
	"image"
	"math"
)

const (
	edgeOn  = 255
	edgeOff = 0
)

// tan(22.5) and tan(67.5) for gradient direction quantization
var (
	tan22 = math.Tan(math.Pi / 8)
	tan67 = math.Tan(3 * math.Pi / 8)
)

// Canny Detects edges of grayscale image.
//
// 3x3 Sobel gradients (border replicated), L1 magnitude |gx|+|gy|, non-maximum suppression along
// quantized gradient direction, double threshold with 8-connected hysteresis.
// Pixels with magnitude above high are seeds, pixels above low are kept if connected to a seed.
// Output holds edgeOn for edges and edgeOff elsewhere.
//
func Canny(src *image.Gray, low, high float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		} else if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		} else if y >= h {
			y = h - 1
		}
		return float64(src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	gx := make([]float64, w*h)
	gy := make([]float64, w*h)
	mag := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			dy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) - (at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			i := y*w + x
			gx[i], gy[i] = dx, dy
			mag[i] = math.Abs(dx) + math.Abs(dy)
		}
	}
	magAt := func(x, y int) float64 {
		if x < 0 || x >= w || y < 0 || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	// 0 - suppressed, 1 - weak, 2 - strong
	state := make([]uint8, w*h)
	stack := make([]int, 0, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax, ay := math.Abs(gx[i]), math.Abs(gy[i])
			var keep bool
			switch {
			case ay <= ax*tan22:
				// horizontal gradient: compare left and right
				keep = m > magAt(x-1, y) && m >= magAt(x+1, y)
			case ay > ax*tan67:
				// vertical gradient: compare up and down
				keep = m > magAt(x, y-1) && m >= magAt(x, y+1)
			default:
				if (gx[i] < 0) != (gy[i] < 0) {
					keep = m > magAt(x+1, y-1) && m > magAt(x-1, y+1)
				} else {
					keep = m > magAt(x-1, y-1) && m > magAt(x+1, y+1)
				}
			}
			if !keep {
				continue
			}
			if m > high {
				state[i] = 2
				stack = append(stack, i)
			} else {
				state[i] = 1
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		dst.Pix[(i/w)*dst.Stride+i%w] = edgeOn
		x, y := i%w, i/w
		for ny := y - 1; ny <= y+1; ny++ {
			for nx := x - 1; nx <= x+1; nx++ {
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					continue
				}
				j := ny*w + nx
				if state[j] == 1 {
					state[j] = 2
					stack = append(stack, j)
				}
			}
		}
	}
	return dst
}

// Grayscale Converts image to 8-bit luma with BT.601 weights (0.299 R + 0.587 G + 0.114 B)
func Grayscale(img *image.RGBA) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			o := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			r, g, bl := float64(img.Pix[o]), float64(img.Pix[o+1]), float64(img.Pix[o+2])
			v := math.Round(0.299*r + 0.587*g + 0.114*bl)
			if v > 255 {
				v = 255
			}
			gray.Pix[y*gray.Stride+x] = uint8(v)
		}
	}
	return gray
}
