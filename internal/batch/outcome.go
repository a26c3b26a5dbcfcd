package batch

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Outcome statuses written to the CSV log.
const (
	StatusDualMade         = "dual_made_overwrite"
	StatusDualMadeOCR      = "dual_made_overwrite_ocr"
	StatusSkipped          = "skipped"
	StatusFailed           = "failed"
	StatusMetadataFailed   = "metadata_failed"
	StatusAttachmentFailed = "attachment_failed"
)

const timeLayout = "2006/01/02 15:04"

var csvHeader = []string{"time", "status", "pdf", "reason", "pages", "size_bytes", "duration_sec"}

// Row is one outcome log entry.
type Row struct {
	Time      time.Time
	Status    string
	PDF       string
	Reason    string
	Pages     int
	SizeBytes int64
	Duration  time.Duration
}

// OutcomeLog appends batch outcomes to a CSV file, writing the header once
// when the file is new.
type OutcomeLog struct {
	mu   sync.Mutex
	path string
}

// NewOutcomeLog returns an OutcomeLog writing to path.
func NewOutcomeLog(path string) *OutcomeLog {
	return &OutcomeLog{path: path}
}

// Append writes one row, creating the file with a header when needed.
func (l *OutcomeLog) Append(row Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	needHeader := false
	if info, err := os.Stat(l.path); err != nil || info.Size() == 0 {
		needHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening outcome log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing outcome log header: %w", err)
		}
	}

	when := row.Time
	if when.IsZero() {
		when = time.Now()
	}
	record := []string{
		when.Format(timeLayout),
		row.Status,
		row.PDF,
		row.Reason,
		strconv.Itoa(row.Pages),
		strconv.FormatInt(row.SizeBytes, 10),
		strconv.FormatFloat(row.Duration.Seconds(), 'f', 1, 64),
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("writing outcome log row: %w", err)
	}
	w.Flush()
	return w.Error()
}
