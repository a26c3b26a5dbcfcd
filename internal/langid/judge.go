package langid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Judge samples pages of a document and takes a majority vote over the
// detector's verdicts.
type Judge struct {
	detector Detector
	limiter  *rate.Limiter
	logger   *slog.Logger

	samplePages    int
	dpi            int
	perPageTimeout time.Duration

	// render is swappable for tests.
	render func(path string, k, dpi int) ([][]byte, error)
}

// NewJudge builds a Judge. qps bounds the detector call rate across pages.
func NewJudge(detector Detector, samplePages, dpi int, perPageTimeout time.Duration, qps float64, logger *slog.Logger) *Judge {
	if logger == nil {
		logger = slog.Default()
	}
	if qps <= 0 {
		qps = 1
	}
	return &Judge{
		detector:       detector,
		limiter:        rate.NewLimiter(rate.Limit(qps), 1),
		logger:         logger,
		samplePages:    samplePages,
		dpi:            dpi,
		perPageTimeout: perPageTimeout,
		render:         RenderSamples,
	}
}

// ChineseDominant reports whether the document at path reads as mostly
// Chinese. detail summarizes the vote for the skip-reason string. Pages the
// detector fails on are dropped from the vote; an error is returned only
// when every sampled page failed.
func (j *Judge) ChineseDominant(ctx context.Context, path string) (dominant bool, detail string, err error) {
	images, err := j.render(path, j.samplePages, j.dpi)
	if err != nil {
		return false, "", fmt.Errorf("sampling pages: %w", err)
	}

	var zh, nonZh, failed int
	for i, img := range images {
		if err := j.limiter.Wait(ctx); err != nil {
			return false, "", err
		}

		pageCtx, cancel := context.WithTimeout(ctx, j.perPageTimeout)
		answer, err := j.detector.LabelImage(pageCtx, img)
		cancel()
		if err != nil {
			j.logger.Warn("page label failed", "pdf", path, "sample", i, "error", err)
			failed++
			continue
		}

		switch Normalize(answer) {
		case LabelChinese:
			zh++
		case LabelNonChinese:
			nonZh++
		}
	}

	if zh+nonZh == 0 {
		return false, "", errors.New("no page could be labeled")
	}

	detail = fmt.Sprintf("zh=%d,non_zh=%d,failed=%d,sampled=%d", zh, nonZh, failed, len(images))
	return zh >= nonZh && zh > 0, detail, nil
}
