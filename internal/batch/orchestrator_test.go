package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pdfduo/pdfduo/internal/config"
	"github.com/pdfduo/pdfduo/internal/docset"
	"github.com/pdfduo/pdfduo/internal/exclude"
	"github.com/pdfduo/pdfduo/internal/ledger"
	"github.com/pdfduo/pdfduo/internal/metadata"
	"github.com/pdfduo/pdfduo/internal/translate"
)

type fakeGate struct {
	decisions map[string]exclude.Decision
}

func (g *fakeGate) Evaluate(ctx context.Context, doc docset.Document) exclude.Decision {
	return g.decisions[doc.Name()]
}

type fakeTranslator struct {
	usedOCR bool
	err     error
}

func (f *fakeTranslator) Translate(ctx context.Context, input, outDir string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	stem := strings.TrimSuffix(filepath.Base(input), ".pdf")
	mono := translate.ExpectedMonoPath(outDir, stem, "zh")
	if err := os.WriteFile(mono, []byte("mono"), 0o644); err != nil {
		return "", false, err
	}
	return mono, f.usedOCR, nil
}

type fakeMerger struct {
	mergeErr error
	stamped  []string
}

func (f *fakeMerger) Merge(left, right, out string, gap float64) error {
	if f.mergeErr != nil {
		return f.mergeErr
	}
	return os.WriteFile(out, []byte("merged"), 0o644)
}

func (f *fakeMerger) StampBackRef(path, backupName string) error {
	f.stamped = append(f.stamped, backupName)
	return nil
}

type fakeRecorder struct {
	embedded map[string]string // path -> status
	err      error
}

func (f *fakeRecorder) Embed(path string, rec *metadata.Record) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.embedded == nil {
		f.embedded = make(map[string]string)
	}
	f.embedded[path] = rec.Status
	return false, nil
}

type harness struct {
	orch   *Orchestrator
	repo   *ledger.Memory
	merger *fakeMerger
	rec    *fakeRecorder
	dir    string
	doc    string
	csv    string
}

func newHarness(t *testing.T, gate *fakeGate, trans *fakeTranslator) *harness {
	t.Helper()
	dir := t.TempDir()
	doc := filepath.Join(dir, "Smith-2023-Title.pdf")
	if err := os.WriteFile(doc, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Translator.GapPt = 10

	h := &harness{
		repo:   ledger.NewMemory(),
		merger: &fakeMerger{},
		rec:    &fakeRecorder{},
		dir:    dir,
		doc:    doc,
		csv:    filepath.Join(dir, "batch_log.csv"),
	}
	h.orch = NewOrchestrator(cfg, gate, trans, h.merger, h.rec, h.repo, NewOutcomeLog(h.csv), nil)
	h.orch.pageSizes = func(path string) ([]metadata.PageSize, error) {
		return []metadata.PageSize{{W: 595, H: 842}}, nil
	}
	h.orch.cleanupCSVs = func(dir string, since time.Time) []string { return nil }
	return h
}

func (h *harness) rows(t *testing.T) [][]string {
	t.Helper()
	f, err := os.Open(h.csv)
	if err != nil {
		t.Fatalf("opening outcome log: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records[1:]
}

func TestRunSuccess(t *testing.T) {
	h := newHarness(t, &fakeGate{}, &fakeTranslator{})

	sum, err := h.orch.Run(context.Background(), h.dir)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Done != 1 || sum.Skipped != 0 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}

	// The original now holds the merged document.
	data, err := os.ReadFile(h.doc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "merged" {
		t.Errorf("document contents = %q, want merged output", data)
	}

	// The backup preserves the original and is marked untranslated.
	backup := filepath.Join(h.dir, "Smith-2023-Title_original.pdf")
	backupData, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(backupData) != "original" {
		t.Errorf("backup contents = %q", backupData)
	}
	if h.rec.embedded[backup] != metadata.StatusUntranslated {
		t.Errorf("backup record = %q", h.rec.embedded[backup])
	}

	// The mono intermediate is deleted by default.
	mono := translate.ExpectedMonoPath(h.dir, "Smith-2023-Title", "zh")
	if _, err := os.Stat(mono); !os.IsNotExist(err) {
		t.Error("mono output should be deleted")
	}

	if len(h.merger.stamped) != 1 || h.merger.stamped[0] != "Smith-2023-Title_original.pdf" {
		t.Errorf("stamped = %v", h.merger.stamped)
	}

	rows := h.rows(t)
	if len(rows) != 1 || rows[0][1] != StatusDualMade {
		t.Errorf("rows = %v", rows)
	}
	if rows[0][3] != "ok" {
		t.Errorf("reason = %q, want ok", rows[0][3])
	}
	if n, _ := h.repo.Count(h.doc); n != 0 {
		t.Errorf("ledger count = %d after success", n)
	}
}

func TestRunOCRStatus(t *testing.T) {
	h := newHarness(t, &fakeGate{}, &fakeTranslator{usedOCR: true})

	if _, err := h.orch.Run(context.Background(), h.dir); err != nil {
		t.Fatal(err)
	}
	rows := h.rows(t)
	if rows[0][1] != StatusDualMadeOCR {
		t.Errorf("status = %q, want %q", rows[0][1], StatusDualMadeOCR)
	}
	if rows[0][3] != "ok_ocr" {
		t.Errorf("reason = %q, want ok_ocr", rows[0][3])
	}
}

func TestRunSkip(t *testing.T) {
	gate := &fakeGate{decisions: map[string]exclude.Decision{
		"Smith-2023-Title.pdf": {Skip: true, Reason: "too_many_failures"},
	}}
	h := newHarness(t, gate, &fakeTranslator{})

	sum, err := h.orch.Run(context.Background(), h.dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 1 || sum.Done != 0 {
		t.Errorf("summary = %+v", sum)
	}

	rows := h.rows(t)
	if rows[0][1] != StatusSkipped || rows[0][3] != "too_many_failures" {
		t.Errorf("rows = %v", rows)
	}

	// An untouched original.
	data, _ := os.ReadFile(h.doc)
	if string(data) != "original" {
		t.Errorf("skipped document was modified: %q", data)
	}
}

func TestRunSkipLogsPageCount(t *testing.T) {
	gate := &fakeGate{decisions: map[string]exclude.Decision{
		"Smith-2023-Title.pdf": {Skip: true, Reason: "pages_gt_100", Pages: 137},
	}}
	h := newHarness(t, gate, &fakeTranslator{})

	if _, err := h.orch.Run(context.Background(), h.dir); err != nil {
		t.Fatal(err)
	}
	rows := h.rows(t)
	if rows[0][3] != "pages_gt_100" || rows[0][4] != "137" {
		t.Errorf("rows = %v", rows)
	}
}

func TestRunTranslateFailure(t *testing.T) {
	h := newHarness(t, &fakeGate{}, &fakeTranslator{err: errors.New("boom")})

	sum, err := h.orch.Run(context.Background(), h.dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if n, _ := h.repo.Count(h.doc); n != 1 {
		t.Errorf("ledger count = %d, want 1", n)
	}

	rows := h.rows(t)
	if rows[0][1] != StatusFailed || !strings.HasPrefix(rows[0][3], "translate_failed:") {
		t.Errorf("rows = %v", rows)
	}
}

func TestRunMergeFailure(t *testing.T) {
	h := newHarness(t, &fakeGate{}, &fakeTranslator{})
	h.merger.mergeErr = errors.New("page counts differ")

	sum, err := h.orch.Run(context.Background(), h.dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if n, _ := h.repo.Count(h.doc); n != 1 {
		t.Errorf("ledger count = %d, want 1", n)
	}

	// No temporary merge output left behind.
	matches, _ := filepath.Glob(filepath.Join(h.dir, "*_tmp_*.pdf"))
	if len(matches) != 0 {
		t.Errorf("stray temp files: %v", matches)
	}
}

func TestRunReplaceFailureKeepsSidecar(t *testing.T) {
	h := newHarness(t, &fakeGate{}, &fakeTranslator{})
	realReplace := h.orch.replace
	h.orch.replace = func(src, dst string) error {
		if dst == h.doc {
			return errors.New("sharing violation")
		}
		return realReplace(src, dst)
	}

	sum, err := h.orch.Run(context.Background(), h.dir)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Done != 1 {
		t.Errorf("summary = %+v", sum)
	}

	sidecar := filepath.Join(h.dir, "Smith-2023-Title.pdfduo-merged.pdf")
	data, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if string(data) != "merged" {
		t.Errorf("sidecar contents = %q", data)
	}

	// The original stays untouched.
	orig, _ := os.ReadFile(h.doc)
	if string(orig) != "original" {
		t.Errorf("original was modified: %q", orig)
	}

	rows := h.rows(t)
	if rows[0][1] != StatusDualMade || rows[0][3] != "replace_failed_sidecar_kept" {
		t.Errorf("rows = %v", rows)
	}
}

func TestRunCanceledContext(t *testing.T) {
	h := newHarness(t, &fakeGate{}, &fakeTranslator{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := h.orch.Run(ctx, h.dir)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if sum.Done != 0 {
		t.Errorf("summary = %+v", sum)
	}
}
