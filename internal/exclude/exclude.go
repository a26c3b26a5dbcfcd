// Package exclude decides whether a candidate document should be skipped
// before any translation work is attempted. Rules run in a fixed priority
// order; the first matching rule wins and its reason tag is recorded in the
// outcome log.
package exclude

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdfduo/pdfduo/internal/config"
	"github.com/pdfduo/pdfduo/internal/docset"
	"github.com/pdfduo/pdfduo/internal/langid"
	"github.com/pdfduo/pdfduo/internal/ledger"
)

// Skip reason tags, in rule priority order.
const (
	ReasonTooManyFailures   = "too_many_failures"
	ReasonBackupOriginal    = "is_backup_original"
	ReasonGeneratedOutput   = "is_generated_output"
	ReasonAlreadyTranslated = "already_translated_by_metadata" // suffixed with :<info>
	ReasonKeywords          = "contains_exclusion_keywords"
	ReasonBackupExists      = "backup_exists"
	ReasonChineseFilename   = "filename_contains_chinese"
	ReasonBadNamePattern    = "bad_name_pattern"
	ReasonPageCountFailed   = "page_count_failed"
	ReasonTooManyPages      = "pages_gt"         // suffixed with _<limit>
	ReasonTooLarge          = "size_gt"          // suffixed with _<limit>
	ReasonChineseByLabel    = "chinese_pdf_vlm"  // suffixed with :<detail>
)

// Decision is the outcome of the rule chain for one document. Pages carries
// the page count when the chain read it, for the outcome log.
type Decision struct {
	Skip   bool
	Reason string
	Pages  int
}

func skip(reason string) Decision { return Decision{Skip: true, Reason: reason} }

var proceed = Decision{}

// StatusReader reports the embedded translation record of a document.
type StatusReader interface {
	TranslationStatus(path string) (translated bool, reason string, err error)
}

// LanguageJudge decides whether a document's body text is mostly Chinese.
type LanguageJudge interface {
	ChineseDominant(ctx context.Context, path string) (dominant bool, detail string, err error)
}

// Evaluator runs the rule chain. Collaborators are interfaces so tests can
// drive every rule without real PDFs or network calls.
type Evaluator struct {
	rules  config.Rules
	limits config.Limits
	logger *slog.Logger

	ledger ledger.Repository
	status StatusReader
	judge  LanguageJudge

	// pageCount is swappable for tests.
	pageCount func(path string) (int, error)
	// fileExists is swappable for tests.
	fileExists func(path string) bool
}

// New builds an Evaluator. judge may be nil when the language label rule is
// disabled.
func New(rules config.Rules, limits config.Limits, repo ledger.Repository, status StatusReader, judge LanguageJudge, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		rules:     rules,
		limits:    limits,
		logger:    logger,
		ledger:    repo,
		status:    status,
		judge:     judge,
		pageCount: docset.PageCount,
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// nameYearPattern matches the year component of Author-YYYY-Title names.
var nameYearPattern = regexp.MustCompile(`^(19|20)\d{2}$`)

func containsLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// IsNormalizedName reports whether stem follows the Author-YYYY-Title
// convention: at least three dash-separated parts, an author with letters
// but no digits, a plausible publication year in the second part, a title
// with at least one letter, and no CJK text anywhere.
func IsNormalizedName(stem string) bool {
	if langid.ContainsCJK(stem) {
		return false
	}
	parts := strings.Split(stem, "-")
	if len(parts) < 3 {
		return false
	}
	author := strings.TrimSpace(parts[0])
	if !containsLetter(author) || containsDigit(author) {
		return false
	}
	if !nameYearPattern.MatchString(parts[1]) {
		return false
	}
	return containsLetter(strings.Join(parts[2:], "-"))
}

// isGeneratedName reports whether the file is an artifact produced by the
// pipeline itself rather than a source document.
func isGeneratedName(name string) bool {
	stem := strings.TrimSuffix(name, ".pdf")
	switch {
	case strings.Contains(name, ".mono."):
		return true
	case strings.HasSuffix(name, ".pdfduo-merged.pdf"):
		return true
	case strings.HasPrefix(name, "__temp_input_"):
		return true
	case strings.Contains(stem, "_tmp_"):
		return true
	}
	return false
}

// Evaluate runs the rule chain over doc and returns the first matching
// skip decision, or a proceed decision when no rule fires.
func (e *Evaluator) Evaluate(ctx context.Context, doc docset.Document) Decision {
	// Rule 1: circuit breaker on the cross-run failure ledger.
	count, err := e.ledger.Count(doc.Path)
	if err != nil {
		e.logger.Warn("failure ledger unreadable, treating count as zero", "pdf", doc.Path, "error", err)
	} else if count >= e.limits.MaxFailures {
		return skip(ReasonTooManyFailures)
	}

	// Rule 2: preserved originals are never reprocessed.
	if doc.IsBackup() {
		return skip(ReasonBackupOriginal)
	}

	// Rule 3: the pipeline's own artifacts are not inputs.
	if isGeneratedName(doc.Name()) {
		return skip(ReasonGeneratedOutput)
	}

	// Rule 4: embedded metadata. A document already marked translated is
	// done. A read error passes through: a tooling failure must not hide
	// a document from processing.
	if e.rules.SkipTranslatedByMetadata {
		translated, info, err := e.status.TranslationStatus(doc.Path)
		if err != nil {
			e.logger.Warn("metadata check failed, proceeding", "pdf", doc.Path, "error", err)
		} else if translated {
			return skip(ReasonAlreadyTranslated + ":" + info)
		}
	}

	// Rule 5: exclusion keywords in the filename, case-insensitive.
	if e.rules.SkipContainsKeywords {
		name := strings.ToLower(doc.Name())
		for _, kw := range e.rules.Keywords {
			if kw != "" && strings.Contains(name, strings.ToLower(kw)) {
				return skip(ReasonKeywords)
			}
		}
	}

	// Rule 6: an existing backup means a previous run already replaced
	// this document.
	if e.fileExists(doc.BackupPath()) {
		return skip(ReasonBackupExists)
	}

	// Rule 7: a Chinese filename marks the document as already Chinese.
	if e.rules.SkipFilenameContainsChinese && langid.ContainsCJK(doc.Name()) {
		return skip(ReasonChineseFilename)
	}

	// Rule 8: only normalized Author-YYYY-Title names are processed.
	if e.rules.SkipFilenameFormatCheck && !IsNormalizedName(doc.Stem()) {
		return skip(ReasonBadNamePattern)
	}

	// Rules 9 and 10: page count. The count runs regardless of the page
	// limit toggle: an uncountable document is skipped rather than handed
	// to the translator.
	pages, err := e.pageCount(doc.Path)
	if err != nil {
		e.logger.Warn("page count failed", "pdf", doc.Path, "error", err)
		return skip(ReasonPageCountFailed)
	}
	if e.rules.SkipMaxPages && pages > e.limits.MaxPages {
		d := skip(fmt.Sprintf("%s_%d", ReasonTooManyPages, e.limits.MaxPages))
		d.Pages = pages
		return d
	}

	// Rule 11: file size.
	if e.rules.SkipMaxFileSize && doc.Size > e.limits.MaxSizeBytes {
		return skip(fmt.Sprintf("%s_%d", ReasonTooLarge, e.limits.MaxSizeBytes))
	}

	// Rule 12: vision labeling. This rule fails open: a labeler outage
	// must not stall the batch.
	if e.rules.SkipChineseByLabel && e.judge != nil {
		dominant, detail, err := e.judge.ChineseDominant(ctx, doc.Path)
		if err != nil {
			e.logger.Warn("language labeling failed, proceeding", "pdf", doc.Path, "error", err)
		} else if dominant {
			return skip(ReasonChineseByLabel + ":" + detail)
		}
	}

	return proceed
}
