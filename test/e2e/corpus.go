// Package e2e provides end-to-end tests with a generated image corpus and multiple queries.
package e2e

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
)

const (
	blockSize  = 4
	gridBlocks = 8
)

// CorpusImage is one generated image and the split it belongs to.
type CorpusImage struct {
	Split string
	Name  string
	Image image.Image
}

// QueryTestCase defines a query image and the corpus image that must rank first.
// The query is a slightly perturbed copy of a corpus image, so it is never byte-identical.
type QueryTestCase struct {
	Query         image.Image
	ExpectedSplit string
	ExpectedName  string
	Description   string
}

// Corpus holds images and query test cases for E2E tests.
type Corpus struct {
	Images       []CorpusImage
	TestCases    []QueryTestCase
	TotalImages  int
	TotalQueries int
}

// BuildCorpus returns perSplit images for each split and one query per every third image.
// Every image is a grid of random color blocks, so distinct images have distinct embeddings.
func BuildCorpus(splits []string, perSplit int) *Corpus {
	c := &Corpus{}
	seed := int64(1)
	for _, split := range splits {
		for i := 0; i < perSplit; i++ {
			ext := ".png"
			if i%4 == 3 {
				ext = ".jpg"
			}
			img := blockImage(seed)
			name := fmt.Sprintf("%s_%03d%s", split, i, ext)
			c.Images = append(c.Images, CorpusImage{Split: split, Name: name, Image: img})
			if i%3 == 0 {
				c.TestCases = append(c.TestCases, QueryTestCase{
					Query:         perturb(img, seed),
					ExpectedSplit: split,
					ExpectedName:  name,
					Description:   "near duplicate of " + name,
				})
			}
			seed++
		}
	}
	c.TotalImages = len(c.Images)
	c.TotalQueries = len(c.TestCases)
	return c
}

// ImagesInSplit returns the corpus images that belong to split.
func (c *Corpus) ImagesInSplit(split string) []CorpusImage {
	var out []CorpusImage
	for _, img := range c.Images {
		if img.Split == split {
			out = append(out, img)
		}
	}
	return out
}

func blockImage(seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	size := blockSize * gridBlocks
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for by := 0; by < gridBlocks; by++ {
		for bx := 0; bx < gridBlocks; bx++ {
			c := color.RGBA{uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)), 255}
			for y := by * blockSize; y < (by+1)*blockSize; y++ {
				for x := bx * blockSize; x < (bx+1)*blockSize; x++ {
					img.SetRGBA(x, y, c)
				}
			}
		}
	}
	return img
}

// perturb shifts every channel by a small deterministic amount.
func perturb(src *image.RGBA, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(-seed))
	dst := image.NewRGBA(src.Bounds())
	for i := 0; i < len(src.Pix); i += 4 {
		for ch := 0; ch < 3; ch++ {
			v := int(src.Pix[i+ch]) + r.Intn(7) - 3
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			dst.Pix[i+ch] = uint8(v)
		}
		dst.Pix[i+3] = 255
	}
	return dst
}
