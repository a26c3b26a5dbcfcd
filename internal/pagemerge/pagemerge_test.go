package pagemerge

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// writePDF creates a real PDF at path with the given page count, one image
// per page on the default A4 canvas.
func writePDF(t *testing.T, path string, pages int) {
	t.Helper()
	imgs := make([]io.Reader, pages)
	for i := range imgs {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 40)), nil); err != nil {
			t.Fatal(err)
		}
		imgs[i] = &buf
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := api.ImportImages(nil, f, imgs, nil, nil); err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
}

func annotationCount(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	annots, err := api.Annotations(f, nil, model.NewDefaultConfiguration())
	if err != nil {
		t.Fatalf("listing annotations of %s: %v", path, err)
	}
	count, _, err := pdfcpu.ListAnnotations(annots)
	if err != nil {
		t.Fatal(err)
	}
	return count
}

func dimsEngine(dims map[string][]types.Dim) *Engine {
	return &Engine{
		conf: model.NewDefaultConfiguration(),
		pageDims: func(path string) ([]types.Dim, error) {
			d, ok := dims[path]
			if !ok {
				return nil, errors.New("no such file")
			}
			return d, nil
		},
		copyFile: func(src, dst string) error { return nil },
	}
}

func TestMergePageCountMismatch(t *testing.T) {
	e := dimsEngine(map[string][]types.Dim{
		"left.pdf":  {{Width: 595, Height: 842}, {Width: 595, Height: 842}},
		"right.pdf": {{Width: 595, Height: 842}},
	})

	err := e.Merge("left.pdf", "right.pdf", "out.pdf", 10)
	if !errors.Is(err, ErrPageCountMismatch) {
		t.Errorf("expected ErrPageCountMismatch, got %v", err)
	}
}

func TestMergeEmptyDocument(t *testing.T) {
	e := dimsEngine(map[string][]types.Dim{
		"left.pdf":  {},
		"right.pdf": {},
	})

	if err := e.Merge("left.pdf", "right.pdf", "out.pdf", 0); err == nil {
		t.Error("expected error for empty document")
	}
}

func TestMergeUnreadableInput(t *testing.T) {
	e := dimsEngine(map[string][]types.Dim{
		"left.pdf": {{Width: 595, Height: 842}},
	})

	if err := e.Merge("left.pdf", "missing.pdf", "out.pdf", 0); err == nil {
		t.Error("expected error for unreadable right document")
	}
}

func TestSplitUnreadableInput(t *testing.T) {
	e := dimsEngine(map[string][]types.Dim{})
	if err := e.Split("missing.pdf", "out.pdf"); err == nil {
		t.Error("expected error for unreadable input")
	}
}

func TestMergeSplitRoundTrip(t *testing.T) {
	dir := t.TempDir()
	left := filepath.Join(dir, "left.pdf")
	right := filepath.Join(dir, "right.pdf")
	dual := filepath.Join(dir, "dual.pdf")
	restored := filepath.Join(dir, "restored.pdf")

	writePDF(t, left, 2)
	writePDF(t, right, 2)

	// A sticky note on page 1 must survive both directions, since pages are
	// re-boxed rather than re-rendered.
	ann := model.NewTextAnnotation(
		*types.NewRectangle(30, 700, 130, 780),
		0, "see translation", "note-1", "", 0, &color.Gray, "reviewer",
		nil, nil, "", "", 0, 0, 2, false, "Comment",
	)
	if err := api.AddAnnotationsFile(left, "", []string{"1"}, ann, nil, false); err != nil {
		t.Fatalf("adding annotation: %v", err)
	}
	if got := annotationCount(t, left); got != 1 {
		t.Fatalf("fixture annotation count = %d, want 1", got)
	}

	origDims, err := api.PageDimsFile(left)
	if err != nil {
		t.Fatal(err)
	}

	e := NewEngine()
	if err := e.Merge(left, right, dual, 0); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	dualDims, err := api.PageDimsFile(dual)
	if err != nil {
		t.Fatal(err)
	}
	if len(dualDims) != len(origDims) {
		t.Fatalf("dual has %d pages, want %d", len(dualDims), len(origDims))
	}
	for i, dim := range dualDims {
		if math.Abs(dim.Width-2*origDims[i].Width) > 0.01 {
			t.Errorf("page %d dual width = %v, want %v", i+1, dim.Width, 2*origDims[i].Width)
		}
		if math.Abs(dim.Height-origDims[i].Height) > 0.01 {
			t.Errorf("page %d dual height = %v, want %v", i+1, dim.Height, origDims[i].Height)
		}
	}
	if got := annotationCount(t, dual); got != 1 {
		t.Errorf("dual annotation count = %d, want 1", got)
	}

	if err := e.Split(dual, restored); err != nil {
		t.Fatalf("Split: %v", err)
	}

	restoredDims, err := api.PageDimsFile(restored)
	if err != nil {
		t.Fatal(err)
	}
	if len(restoredDims) != len(origDims) {
		t.Fatalf("restored has %d pages, want %d", len(restoredDims), len(origDims))
	}
	for i, dim := range restoredDims {
		if math.Abs(dim.Width-origDims[i].Width) > 0.01 {
			t.Errorf("page %d restored width = %v, want %v", i+1, dim.Width, origDims[i].Width)
		}
		if math.Abs(dim.Height-origDims[i].Height) > 0.01 {
			t.Errorf("page %d restored height = %v, want %v", i+1, dim.Height, origDims[i].Height)
		}
	}
	if got := annotationCount(t, restored); got != 1 {
		t.Errorf("restored annotation count = %d, want 1", got)
	}
}

func TestBoxesAt(t *testing.T) {
	pb := boxesAt(0, 0, 1200, 842)
	for name, box := range map[string]*model.Box{
		"media": pb.Media,
		"crop":  pb.Crop,
		"trim":  pb.Trim,
		"bleed": pb.Bleed,
	} {
		if box == nil || box.Rect == nil {
			t.Fatalf("%s box not set", name)
		}
		if box.Rect.Width() != 1200 || box.Rect.Height() != 842 {
			t.Errorf("%s box = %vx%v, want 1200x842", name, box.Rect.Width(), box.Rect.Height())
		}
	}
}
