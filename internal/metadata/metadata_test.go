package metadata

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// writePDF creates a real single-image-per-page PDF at path.
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

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager()
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestDecode(t *testing.T) {
	m := newTestManager(t)

	t.Run("valid translated record", func(t *testing.T) {
		data := []byte(`{
			"status": "translated",
			"run_time_utc": "2026-08-26T10:00:00Z",
			"model": "test-model",
			"source_page_sizes_pt": [{"w": 595.28, "h": 841.89}],
			"gap_pt": 10,
			"result_page_sizes_pt": [{"w": 1200.56, "h": 841.89}]
		}`)
		rec, err := m.Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if rec.Status != StatusTranslated {
			t.Errorf("Status = %q", rec.Status)
		}
		if rec.GapPt != 10 {
			t.Errorf("GapPt = %v", rec.GapPt)
		}
		if len(rec.SourcePageSizesPt) != 1 || rec.SourcePageSizesPt[0].W != 595.28 {
			t.Errorf("SourcePageSizesPt = %v", rec.SourcePageSizesPt)
		}
	})

	t.Run("not json", func(t *testing.T) {
		if _, err := m.Decode([]byte("not json at all")); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})

	t.Run("missing required field", func(t *testing.T) {
		if _, err := m.Decode([]byte(`{"status": "translated"}`)); err == nil {
			t.Error("expected error for missing run_time_utc")
		}
	})

	t.Run("negative gap rejected", func(t *testing.T) {
		data := []byte(`{"status": "translated", "run_time_utc": "2026-08-26T10:00:00Z", "gap_pt": -5}`)
		if _, err := m.Decode(data); err == nil {
			t.Error("expected error for negative gap_pt")
		}
	})
}

func TestStatusReasons(t *testing.T) {
	m := newTestManager(t)

	statusOf := func(t *testing.T, data []byte) (bool, string) {
		t.Helper()
		rec, err := m.Decode(data)
		if err != nil {
			return false, "metadata_parse_error:" + err.Error()
		}
		switch rec.Status {
		case StatusTranslated:
			return true, "already_translated"
		case StatusUntranslated:
			return false, "marked_untranslated"
		default:
			return false, "unknown_status:" + rec.Status
		}
	}

	t.Run("translated", func(t *testing.T) {
		ok, reason := statusOf(t, []byte(`{"status": "translated", "run_time_utc": "2026-08-26T10:00:00Z"}`))
		if !ok || reason != "already_translated" {
			t.Errorf("got %v, %q", ok, reason)
		}
	})

	t.Run("untranslated", func(t *testing.T) {
		ok, reason := statusOf(t, []byte(`{"status": "untranslated", "run_time_utc": "2026-08-26T10:00:00Z"}`))
		if ok || reason != "marked_untranslated" {
			t.Errorf("got %v, %q", ok, reason)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		ok, reason := statusOf(t, []byte(`{"status": "pending", "run_time_utc": "2026-08-26T10:00:00Z"}`))
		if ok || reason != "unknown_status:pending" {
			t.Errorf("got %v, %q", ok, reason)
		}
	})

	t.Run("parse error", func(t *testing.T) {
		ok, reason := statusOf(t, []byte(`{broken`))
		if ok || !strings.HasPrefix(reason, "metadata_parse_error:") {
			t.Errorf("got %v, %q", ok, reason)
		}
	})
}

func TestEmbedRoundTrip(t *testing.T) {
	m := newTestManager(t)
	path := filepath.Join(t.TempDir(), "doc.pdf")
	writePDF(t, path, 1)

	// A fresh document carries no record.
	if rec, err := m.ReadRecord(path); err != nil || rec != nil {
		t.Fatalf("ReadRecord on fresh PDF = %v, %v", rec, err)
	}
	translated, reason, err := m.TranslationStatus(path)
	if err != nil || translated || reason != "no_metadata_found" {
		t.Fatalf("TranslationStatus on fresh PDF = %v, %q, %v", translated, reason, err)
	}

	rec := NewRecord(StatusTranslated)
	rec.Model = "test-model"
	rec.GapPt = 10
	already, err := m.Embed(path, rec)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if already {
		t.Error("first Embed reported an existing record")
	}

	got, err := m.ReadRecord(path)
	if err != nil {
		t.Fatalf("ReadRecord after Embed: %v", err)
	}
	if got == nil || got.Status != StatusTranslated || got.Model != "test-model" || got.GapPt != 10 {
		t.Errorf("record read back = %+v", got)
	}

	// Embedding again is a no-op that keeps the existing record.
	already, err = m.Embed(path, NewRecord(StatusUntranslated))
	if err != nil {
		t.Fatalf("second Embed: %v", err)
	}
	if !already {
		t.Error("second Embed did not detect the existing record")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	atts, err := api.Attachments(f, m.conf)
	if err != nil {
		t.Fatalf("listing attachments: %v", err)
	}
	count := 0
	for _, a := range atts {
		if a.ID == AttachmentName || strings.Contains(a.FileName, AttachmentName) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("record attachment count = %d, want 1", count)
	}

	translated, reason, err = m.TranslationStatus(path)
	if err != nil || !translated || reason != "already_translated" {
		t.Errorf("TranslationStatus after Embed = %v, %q, %v", translated, reason, err)
	}

	// The original record survived the no-op.
	kept, err := m.ReadRecord(path)
	if err != nil {
		t.Fatalf("ReadRecord after second Embed: %v", err)
	}
	if kept == nil || kept.Status != StatusTranslated || kept.Model != "test-model" {
		t.Errorf("second Embed replaced the record: %+v", kept)
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord(StatusUntranslated)
	if rec.Status != StatusUntranslated {
		t.Errorf("Status = %q", rec.Status)
	}
	if !strings.HasSuffix(rec.RunTimeUTC, "Z") {
		t.Errorf("RunTimeUTC %q is not UTC", rec.RunTimeUTC)
	}
}

func TestInferGap(t *testing.T) {
	sizes := func(ws ...float64) []PageSize {
		out := make([]PageSize, len(ws))
		for i, w := range ws {
			out[i] = PageSize{W: w, H: 800}
		}
		return out
	}

	tests := []struct {
		name   string
		source []PageSize
		result []PageSize
		want   float64
	}{
		{"uniform gap", sizes(100, 100, 100), sizes(210, 210, 210), 10},
		{"no gap", sizes(100, 100), sizes(200, 200), 0},
		{"small negative clamped", sizes(100, 100), sizes(199.8, 199.8), 0},
		{"unmerged pages discarded", sizes(100, 100, 100), sizes(100, 210, 210), 10},
		{"median of even count", sizes(100, 100), sizes(208, 212), 10},
		{"no candidates", sizes(100), sizes(100), 0},
		{"empty input", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferGap(tt.source, tt.result); got != tt.want {
				t.Errorf("InferGap = %v, want %v", got, tt.want)
			}
		})
	}
}
