package langid

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"math/rand"
	"sort"

	"github.com/gen2brain/go-fitz"
)

const jpegQuality = 85

// samplePageNumbers picks up to k distinct zero-based page numbers out of n,
// in ascending order.
func samplePageNumbers(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	if k >= n {
		pages := make([]int, n)
		for i := range pages {
			pages[i] = i
		}
		return pages
	}
	pages := rand.Perm(n)[:k]
	sort.Ints(pages)
	return pages
}

// RenderSamples renders up to k randomly chosen pages of the PDF at path as
// JPEG images at the given DPI.
func RenderSamples(path string, k, dpi int) ([][]byte, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer doc.Close()

	pages := samplePageNumbers(doc.NumPage(), k)
	if len(pages) == 0 {
		return nil, fmt.Errorf("%s has no pages", path)
	}

	images := make([][]byte, 0, len(pages))
	for _, page := range pages {
		img, err := doc.ImageDPI(page, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("rendering page %d of %s: %w", page+1, path, err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("encoding page %d of %s: %w", page+1, path, err)
		}
		images = append(images, buf.Bytes())
	}
	return images, nil
}
