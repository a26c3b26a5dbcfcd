// Package docset enumerates candidate PDF documents under a root directory
// and exposes the per-document facts the exclusion rules need.
package docset

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// BackupSuffix marks the preserved original next to a translated document.
const BackupSuffix = "_original"

// Document is one PDF candidate discovered by Walk.
type Document struct {
	Path string
	Size int64
}

// Name returns the base filename including extension.
func (d Document) Name() string {
	return filepath.Base(d.Path)
}

// Stem returns the base filename without the .pdf extension.
func (d Document) Stem() string {
	name := d.Name()
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Dir returns the directory containing the document.
func (d Document) Dir() string {
	return filepath.Dir(d.Path)
}

// BackupPath returns where the untranslated original is preserved when this
// document is replaced by its merged translation.
func (d Document) BackupPath() string {
	return filepath.Join(d.Dir(), d.Stem()+BackupSuffix+".pdf")
}

// IsBackup reports whether the document itself is a preserved original.
func (d Document) IsBackup() bool {
	return strings.HasSuffix(d.Stem(), BackupSuffix)
}

// Walk collects every .pdf file under root, in lexical walk order.
func Walk(root string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		docs = append(docs, Document{Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return docs, nil
}

// FromPath builds a Document for a single existing file.
func FromPath(path string) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, err
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("%s is a directory", path)
	}
	return Document{Path: path, Size: info.Size()}, nil
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("counting pages in %s: %w", path, err)
	}
	return n, nil
}
