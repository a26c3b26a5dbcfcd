// Package pagemerge builds side-by-side dual documents: each output page
// shows the original on the left and its translation on the right, separated
// by a configurable gap. Annotations and links survive because pages are
// never re-rendered, only re-boxed and stamped.
package pagemerge

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/pdfduo/pdfduo/internal/fsx"
)

// ErrPageCountMismatch is returned when the two documents to be merged do
// not have the same number of pages.
var ErrPageCountMismatch = errors.New("page counts differ")

// Engine merges and splits documents. The pdfcpu entry points are fields so
// tests can exercise the control flow without real PDFs.
type Engine struct {
	conf *model.Configuration

	pageDims func(string) ([]types.Dim, error)
	copyFile func(src, dst string) error
}

// NewEngine returns an Engine with a default pdfcpu configuration.
func NewEngine() *Engine {
	return &Engine{
		conf:     model.NewDefaultConfiguration(),
		pageDims: api.PageDimsFile,
		copyFile: fsx.CopyFile,
	}
}

func boxesAt(llx, lly, urx, ury float64) *model.PageBoundaries {
	box := &model.Box{Rect: types.NewRectangle(llx, lly, urx, ury)}
	return &model.PageBoundaries{
		Media: box,
		Crop:  box,
		Trim:  box,
		Bleed: box,
	}
}

// Merge writes a dual document to out: page i of left on the left half,
// page i of right on the right half, gap points apart. Both inputs must
// have the same page count.
func (e *Engine) Merge(left, right, out string, gap float64) error {
	leftDims, err := e.pageDims(left)
	if err != nil {
		return fmt.Errorf("reading page dimensions of %s: %w", left, err)
	}
	rightDims, err := e.pageDims(right)
	if err != nil {
		return fmt.Errorf("reading page dimensions of %s: %w", right, err)
	}
	if len(leftDims) != len(rightDims) {
		return fmt.Errorf("%w: %s has %d pages, %s has %d",
			ErrPageCountMismatch, left, len(leftDims), right, len(rightDims))
	}
	if len(leftDims) == 0 {
		return fmt.Errorf("%s has no pages", left)
	}

	// The left document becomes the base; every page canvas is then
	// widened to hold both halves.
	if err := e.copyFile(left, out); err != nil {
		return err
	}

	for i, dim := range leftDims {
		page := strconv.Itoa(i + 1)
		pb := boxesAt(0, 0, 2*dim.Width+gap, dim.Height)
		if err := api.AddBoxesFile(out, "", []string{page}, pb, e.conf); err != nil {
			return fmt.Errorf("widening page %s: %w", page, err)
		}
	}

	// Each right-hand page is stamped onto the widened canvas at its
	// original scale, bottom-right, which lands it exactly past the gap.
	wms := make(map[int]*model.Watermark, len(rightDims))
	for i := range rightDims {
		wm, err := api.PDFWatermark(
			fmt.Sprintf("%s:%d", right, i+1),
			"scalefactor:1 abs, pos:br, rot:0",
			true, false, types.POINTS,
		)
		if err != nil {
			return fmt.Errorf("preparing overlay for page %d: %w", i+1, err)
		}
		wms[i+1] = wm
	}
	if err := api.AddWatermarksMapFile(out, "", wms, e.conf); err != nil {
		return fmt.Errorf("stamping translated pages: %w", err)
	}

	if err := api.OptimizeFile(out, "", e.conf); err != nil {
		return fmt.Errorf("optimizing %s: %w", out, err)
	}
	return nil
}

// Split restores the original single-page view of a gapless dual document by
// shrinking every page's boxes back to the left half. Page content is left
// untouched, so re-merging remains possible.
func (e *Engine) Split(in, out string) error {
	dims, err := e.pageDims(in)
	if err != nil {
		return fmt.Errorf("reading page dimensions of %s: %w", in, err)
	}
	if len(dims) == 0 {
		return fmt.Errorf("%s has no pages", in)
	}

	if err := e.copyFile(in, out); err != nil {
		return err
	}

	for i, dim := range dims {
		page := strconv.Itoa(i + 1)
		pb := boxesAt(0, 0, dim.Width/2, dim.Height)
		if err := api.AddBoxesFile(out, "", []string{page}, pb, e.conf); err != nil {
			return fmt.Errorf("narrowing page %s: %w", page, err)
		}
	}

	if err := api.OptimizeFile(out, "", e.conf); err != nil {
		return fmt.Errorf("optimizing %s: %w", out, err)
	}
	return nil
}

// StampBackRef prints a small note on page 1 naming the preserved original,
// so a reader of the dual document can find the untouched source.
func (e *Engine) StampBackRef(path, backupName string) error {
	wm, err := api.TextWatermark(
		"original: "+backupName,
		"pos:bl, off:10 10, points:8, fillc:#666666, scalefactor:1 abs, rot:0, op:1.0",
		true, false, types.POINTS,
	)
	if err != nil {
		return fmt.Errorf("preparing backup note: %w", err)
	}
	if err := api.AddWatermarksFile(path, "", []string{"1"}, wm, e.conf); err != nil {
		return fmt.Errorf("stamping backup note: %w", err)
	}
	return nil
}
