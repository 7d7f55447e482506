package embedding

import (
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// CLIP pixel statistics. The encoder was trained on RGB input normalized with these
// values; any other channel order or scaling silently degrades retrieval quality.
var (
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// DefaultImageSize is the square input resolution of ViT-B/32 style encoders.
const DefaultImageSize = 224

// Preprocess converts img into the model's input tensor: planar CHW float32 in R, G, B
// order, size x size. The alpha channel is dropped (not composited), the centered square
// of side min(width, height) is resized to size with bicubic (Catmull-Rom) resampling,
// values are rescaled to [0, 1] and normalized per channel with ClipMean and ClipStd.
// Cropping before resizing keeps the working buffers at most size x size plus the crop,
// whatever the aspect ratio.
func Preprocess(img image.Image, size int) []float32 {
	if size <= 0 {
		size = DefaultImageSize
	}
	square := resizeCenterSquare(toOpaqueRGB(img, centerSquare(img.Bounds())), size)

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := square.PixOffset(0, y)
		for x := 0; x < size; x++ {
			p := square.Pix[row+4*x : row+4*x+3]
			for c := 0; c < 3; c++ {
				v := float32(p[c]) / 255
				out[c*plane+y*size+x] = (v - ClipMean[c]) / ClipStd[c]
			}
		}
	}
	return out
}

// centerSquare returns the largest square centered in b.
func centerSquare(b image.Rectangle) image.Rectangle {
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// toOpaqueRGB copies the r region of img into non-premultiplied RGBA and forces alpha to
// 255, which keeps the stored color of transparent pixels instead of blending them to black.
func toOpaqueRGB(img image.Image, r image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func resizeCenterSquare(src *image.NRGBA, size int) *image.NRGBA {
	if src.Bounds().Dx() == size && src.Bounds().Dy() == size {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
