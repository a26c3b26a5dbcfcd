// Package metadata embeds and reads the translation record carried inside
// each processed PDF as an embedded file attachment. The record is what
// makes reprocessing idempotent: a document that already carries a
// "translated" record is never translated again.
package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// AttachmentName is the canonical embedded-file name of the record.
const AttachmentName = "pdfduo.meta.json"

// Translation states carried in a record.
const (
	StatusTranslated   = "translated"
	StatusUntranslated = "untranslated"
)

// PageSize is one page's media box dimensions in PDF points.
type PageSize struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Record is the embedded translation record.
type Record struct {
	Status            string     `json:"status"`
	RunTimeUTC        string     `json:"run_time_utc"`
	Model             string     `json:"model,omitempty"`
	SourcePageSizesPt []PageSize `json:"source_page_sizes_pt,omitempty"`
	GapPt             float64    `json:"gap_pt,omitempty"`
	ResultPageSizesPt []PageSize `json:"result_page_sizes_pt,omitempty"`
}

// NewRecord returns a record stamped with the current time.
func NewRecord(status string) *Record {
	return &Record{
		Status:     status,
		RunTimeUTC: time.Now().UTC().Format(time.RFC3339),
	}
}

const recordSchema = `{
  "type": "object",
  "required": ["status", "run_time_utc"],
  "properties": {
    "status": {"type": "string"},
    "run_time_utc": {"type": "string"},
    "model": {"type": "string"},
    "source_page_sizes_pt": {"type": "array", "items": {
      "type": "object",
      "required": ["w", "h"],
      "properties": {"w": {"type": "number"}, "h": {"type": "number"}}
    }},
    "gap_pt": {"type": "number", "minimum": 0},
    "result_page_sizes_pt": {"type": "array", "items": {
      "type": "object",
      "required": ["w", "h"],
      "properties": {"w": {"type": "number"}, "h": {"type": "number"}}
    }}
  }
}`

// Manager embeds and reads records.
type Manager struct {
	schema *jsonschema.Schema
	conf   *model.Configuration
}

// NewManager compiles the record schema and returns a Manager.
func NewManager() (*Manager, error) {
	schema, err := jsonschema.CompileString("pdfduo-record.json", recordSchema)
	if err != nil {
		return nil, fmt.Errorf("compiling record schema: %w", err)
	}
	return &Manager{
		schema: schema,
		conf:   model.NewDefaultConfiguration(),
	}, nil
}

// Decode parses and validates raw record bytes.
func (m *Manager) Decode(data []byte) (*Record, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if err := m.schema.Validate(doc); err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// read extracts the raw record attachment from the PDF at path. A nil byte
// slice with nil error means no record attachment is present.
func (m *Manager) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	atts, err := api.Attachments(f, m.conf)
	if err != nil {
		return nil, fmt.Errorf("listing attachments: %w", err)
	}
	found := false
	for _, a := range atts {
		if a.ID == AttachmentName || strings.Contains(a.FileName, AttachmentName) {
			found = true
			break
		}
	}
	if !found {
		return nil, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	extracted, err := api.ExtractAttachmentsRaw(f, "", []string{AttachmentName}, m.conf)
	if err != nil {
		return nil, fmt.Errorf("extracting record attachment: %w", err)
	}
	for _, a := range extracted {
		if a.Reader == nil {
			continue
		}
		data, err := io.ReadAll(a)
		if err != nil {
			return nil, fmt.Errorf("reading record attachment: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("record attachment %s not extractable", AttachmentName)
}

// ReadRecord returns the record embedded in the PDF at path, or nil when the
// document carries none.
func (m *Manager) ReadRecord(path string) (*Record, error) {
	data, err := m.read(path)
	if err != nil || data == nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("record attachment is empty")
	}
	return m.Decode(data)
}

// Embed attaches rec to the PDF at path, in place. When the document already
// carries a valid record the call is a no-op and already is true.
func (m *Manager) Embed(path string, rec *Record) (already bool, err error) {
	existing, err := m.read(path)
	if err != nil {
		return false, err
	}
	if existing != nil {
		if _, decErr := m.Decode(existing); decErr == nil {
			return true, nil
		}
		// A corrupt record is replaced rather than kept.
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return false, fmt.Errorf("encoding record: %w", err)
	}

	// pdfcpu derives attachment names from the source filename, so the
	// JSON is staged under the canonical name.
	tmpDir, err := os.MkdirTemp("", "pdfduo-meta-*")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(tmpDir)

	tmpFile := filepath.Join(tmpDir, AttachmentName)
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return false, err
	}
	if err := api.AddAttachmentsFile(path, "", []string{tmpFile}, false, m.conf); err != nil {
		return false, fmt.Errorf("embedding record: %w", err)
	}
	return false, nil
}

// TranslationStatus reports whether the PDF at path already carries a
// "translated" record, with a reason string describing what was found.
// Reading failures are reported as such rather than guessed over: the
// caller decides whether to fail open or closed.
func (m *Manager) TranslationStatus(path string) (translated bool, reason string, err error) {
	data, readErr := m.read(path)
	if readErr != nil {
		return false, "metadata_check_failed:" + readErr.Error(), readErr
	}
	if data == nil {
		return false, "no_metadata_found", nil
	}
	if len(data) == 0 {
		return false, "metadata_empty", nil
	}

	rec, decErr := m.Decode(data)
	if decErr != nil {
		return false, "metadata_parse_error:" + decErr.Error(), nil
	}

	switch rec.Status {
	case StatusTranslated:
		return true, "already_translated", nil
	case StatusUntranslated:
		return false, "marked_untranslated", nil
	default:
		return false, "unknown_status:" + rec.Status, nil
	}
}
