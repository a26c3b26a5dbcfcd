// Package batch runs the full pipeline over a document tree: rule
// evaluation, translation, side-by-side merging, metadata embedding and
// atomic replacement, one document at a time.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pdfduo/pdfduo/internal/config"
	"github.com/pdfduo/pdfduo/internal/docset"
	"github.com/pdfduo/pdfduo/internal/exclude"
	"github.com/pdfduo/pdfduo/internal/fsx"
	"github.com/pdfduo/pdfduo/internal/ledger"
	"github.com/pdfduo/pdfduo/internal/metadata"
	"github.com/pdfduo/pdfduo/internal/translate"
)

// The orchestrator's collaborators are small local interfaces so tests can
// run the full control flow with fakes.

type gatekeeper interface {
	Evaluate(ctx context.Context, doc docset.Document) exclude.Decision
}

type translator interface {
	Translate(ctx context.Context, input, outDir string) (monoPath string, usedOCR bool, err error)
}

type merger interface {
	Merge(left, right, out string, gap float64) error
	StampBackRef(path, backupName string) error
}

type recorder interface {
	Embed(path string, rec *metadata.Record) (already bool, err error)
}

// Summary aggregates one batch run.
type Summary struct {
	Done    int
	Skipped int
	Failed  int
}

// Orchestrator processes documents sequentially. Per-document failures are
// logged and counted against the failure ledger; the batch itself never
// aborts on one bad document.
type Orchestrator struct {
	cfg    *config.Config
	logger *slog.Logger

	gate     gatekeeper
	trans    translator
	merge    merger
	meta     recorder
	failures ledger.Repository
	outcomes *OutcomeLog

	// Injection points for tests.
	pageSizes   func(path string) ([]metadata.PageSize, error)
	copyFile    func(src, dst string) error
	replace     func(src, dst string) error
	remove      func(path string) error
	cleanupCSVs func(dir string, since time.Time) []string
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(cfg *config.Config, gate gatekeeper, trans translator, merge merger, meta recorder, failures ledger.Repository, outcomes *OutcomeLog, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:         cfg,
		logger:      logger,
		gate:        gate,
		trans:       trans,
		merge:       merge,
		meta:        meta,
		failures:    failures,
		outcomes:    outcomes,
		pageSizes:   metadata.PageSizes,
		copyFile:    fsx.CopyFile,
		replace:     fsx.ReplaceWithRetry,
		remove:      fsx.DeleteWithRetry,
		cleanupCSVs: translate.CleanupNewCSVs,
	}
}

// Run processes every PDF under root and returns the batch summary. It stops
// early only when ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context, root string) (Summary, error) {
	docs, err := docset.Walk(root)
	if err != nil {
		return Summary{}, err
	}
	o.logger.Info("batch started", "root", root, "candidates", len(docs))

	var sum Summary
	for _, doc := range docs {
		if ctx.Err() != nil {
			o.logger.Warn("batch interrupted", "processed", sum.Done+sum.Skipped+sum.Failed)
			return sum, ctx.Err()
		}
		switch o.process(ctx, doc) {
		case StatusSkipped:
			sum.Skipped++
		case StatusFailed:
			sum.Failed++
		default:
			sum.Done++
		}
	}

	o.logger.Info("batch finished", "done", sum.Done, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}

func (o *Orchestrator) record(row Row) {
	if err := o.outcomes.Append(row); err != nil {
		o.logger.Warn("failed to append outcome row", "pdf", row.PDF, "error", err)
	}
}

// fail records a failure outcome and counts it against the ledger.
func (o *Orchestrator) fail(doc docset.Document, reason string, pages int, start time.Time) string {
	o.logger.Error("document failed", "pdf", doc.Path, "reason", reason)
	o.failures.Increment(doc.Path)
	o.record(Row{
		Status: StatusFailed, PDF: doc.Path, Reason: reason,
		Pages: pages, SizeBytes: doc.Size, Duration: time.Since(start),
	})
	return StatusFailed
}

// process runs the pipeline for one document and returns the outcome status.
func (o *Orchestrator) process(ctx context.Context, doc docset.Document) string {
	start := time.Now()

	if d := o.gate.Evaluate(ctx, doc); d.Skip {
		if !o.cfg.Cleanup.SuppressSkipped {
			o.logger.Info("skipped", "pdf", doc.Path, "reason", d.Reason)
		}
		o.record(Row{
			Status: StatusSkipped, PDF: doc.Path, Reason: d.Reason,
			Pages: d.Pages, SizeBytes: doc.Size, Duration: time.Since(start),
		})
		return StatusSkipped
	}

	sourceSizes, err := o.pageSizes(doc.Path)
	if err != nil {
		o.logger.Warn("could not read source page sizes", "pdf", doc.Path, "error", err)
	}
	pages := len(sourceSizes)

	monoPath, usedOCR, err := o.trans.Translate(ctx, doc.Path, doc.Dir())
	if err != nil {
		status := o.fail(doc, "translate_failed:"+err.Error(), pages, start)
		o.cleanupCSVs(doc.Dir(), start)
		return status
	}

	// The original is preserved before anything overwrites it.
	backupPath := doc.BackupPath()
	if err := o.copyFile(doc.Path, backupPath); err != nil {
		return o.fail(doc, "backup_failed:"+err.Error(), pages, start)
	}

	// The backup carries an untranslated marker so a later run recognizes
	// it even after a rename. Losing the marker is not worth failing the
	// document over.
	if _, err := o.meta.Embed(backupPath, metadata.NewRecord(metadata.StatusUntranslated)); err != nil {
		o.logger.Warn("could not mark backup", "pdf", backupPath, "error", err)
		o.record(Row{
			Status: StatusMetadataFailed, PDF: backupPath, Reason: err.Error(),
			Pages: pages, SizeBytes: doc.Size, Duration: time.Since(start),
		})
	}

	gap := o.cfg.Translator.GapPt
	tmpOut := filepath.Join(doc.Dir(), fmt.Sprintf("%s_tmp_%s.pdf", doc.Stem(), uuid.NewString()[:8]))
	if err := o.merge.Merge(doc.Path, monoPath, tmpOut, gap); err != nil {
		o.remove(tmpOut)
		return o.fail(doc, "merge_failed:"+err.Error(), pages, start)
	}

	rec := metadata.NewRecord(metadata.StatusTranslated)
	rec.Model = o.cfg.Translator.RecordedModel()
	rec.SourcePageSizesPt = sourceSizes
	rec.GapPt = gap
	if resultSizes, err := o.pageSizes(tmpOut); err == nil {
		rec.ResultPageSizesPt = resultSizes
	}
	if _, err := o.meta.Embed(tmpOut, rec); err != nil {
		o.logger.Warn("could not embed translation record", "pdf", tmpOut, "error", err)
		o.record(Row{
			Status: StatusAttachmentFailed, PDF: doc.Path, Reason: err.Error(),
			Pages: pages, SizeBytes: doc.Size, Duration: time.Since(start),
		})
	}
	if err := o.merge.StampBackRef(tmpOut, filepath.Base(backupPath)); err != nil {
		o.logger.Warn("could not stamp backup note", "pdf", tmpOut, "error", err)
	}

	reason := "ok"
	if usedOCR {
		reason = "ok_ocr"
	}
	if err := o.replace(tmpOut, doc.Path); err != nil {
		// The merged document is complete; keep it next to the original
		// instead of losing the work.
		sidecar := fsx.SidecarPath(doc.Path)
		if mvErr := o.replace(tmpOut, sidecar); mvErr != nil {
			o.remove(tmpOut)
			return o.fail(doc, "replace_failed:"+err.Error(), pages, start)
		}
		o.logger.Warn("original still in use, merged copy kept as sidecar",
			"pdf", doc.Path, "sidecar", sidecar, "error", err)
		reason = "replace_failed_sidecar_kept"
	}

	if o.cfg.Cleanup.DeleteMono || o.cfg.Cleanup.DeleteAllExceptFinal {
		if err := o.remove(monoPath); err != nil {
			o.logger.Warn("could not delete mono output", "path", monoPath, "error", err)
		}
	}
	if o.cfg.Cleanup.DeleteAllExceptFinal {
		if err := o.remove(backupPath); err != nil {
			o.logger.Warn("could not delete backup", "path", backupPath, "error", err)
		}
	}

	if removed := o.cleanupCSVs(doc.Dir(), start); len(removed) > 0 {
		o.logger.Debug("removed translator progress files", "dir", doc.Dir(), "files", removed)
	}

	status := StatusDualMade
	if usedOCR {
		status = StatusDualMadeOCR
	}
	o.logger.Info("document translated", "pdf", doc.Path, "ocr", usedOCR, "duration", time.Since(start).Round(time.Second))
	o.record(Row{
		Status: status, PDF: doc.Path, Reason: reason,
		Pages: pages, SizeBytes: doc.Size, Duration: time.Since(start),
	})
	return status
}
