package report

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/reserve-snapshot/internal/errors"
	"github.com/reserve-snapshot/internal/models"
)

// ErrReportExists is returned when the artifact for a report date is already on disk
var ErrReportExists = stderrors.New("report already exists for this date")

// FileName returns the artifact file name for a report date (YYYY-MM-DD)
func FileName(reportDate string) string {
	return fmt.Sprintf("proof-of-reserve-%s.json", reportDate)
}

// Writer persists snapshots as write-once JSON files
type Writer struct {
	fs  afero.Fs
	dir string
}

// NewWriter creates a writer rooted at dir
func NewWriter(fs afero.Fs, dir string) *Writer {
	return &Writer{fs: fs, dir: dir}
}

// Path returns the artifact path for a report date
func (w *Writer) Path(reportDate string) string {
	return filepath.Join(w.dir, FileName(reportDate))
}

// Prepare creates the output directory and confirms it is writable
func (w *Writer) Prepare() error {
	if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
		return errors.NewFilesystemError("create output directory", w.dir, err)
	}

	probe, err := afero.TempFile(w.fs, w.dir, ".write-check-*")
	if err != nil {
		return errors.NewFilesystemError("write to output directory", w.dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = w.fs.Remove(name)
	return nil
}

// Exists reports whether the artifact for reportDate is already persisted
func (w *Writer) Exists(reportDate string) (bool, error) {
	path := w.Path(reportDate)
	ok, err := afero.Exists(w.fs, path)
	if err != nil {
		return false, errors.NewFilesystemError("stat report", path, err)
	}
	return ok, nil
}

// Write persists s and returns its path. The document is written to a
// temporary file and then committed, so readers see a complete file or
// none. An existing artifact for the same date is never replaced.
func (w *Writer) Write(s *models.PoRSnapshot) (string, error) {
	path := w.Path(s.ReportMetadata.ReportDate)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", errors.NewInternalError("failed to encode snapshot", err)
	}
	data = append(data, '\n')

	exists, err := w.Exists(s.ReportMetadata.ReportDate)
	if err != nil {
		return "", err
	}
	if exists {
		return "", errors.NewFilesystemError("write report", path, ErrReportExists)
	}

	tmp, err := afero.TempFile(w.fs, w.dir, ".proof-of-reserve-*.tmp")
	if err != nil {
		return "", errors.NewFilesystemError("create temp file", w.dir, err)
	}
	tmpName := tmp.Name()

	defer func() {
		_ = w.fs.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", errors.NewFilesystemError("write temp file", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", errors.NewFilesystemError("sync temp file", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.NewFilesystemError("close temp file", tmpName, err)
	}
	if err := w.fs.Chmod(tmpName, 0o644); err != nil {
		return "", errors.NewFilesystemError("chmod temp file", tmpName, err)
	}

	if err := w.commit(tmpName, path); err != nil {
		return "", err
	}
	return path, nil
}

// commit moves the finished temp file to path without replacing an existing
// artifact. On the OS filesystem a hard link fails atomically when path
// exists, so two concurrent runs cannot both commit. Other filesystems, and
// OS filesystems without hard links, fall back to check-then-rename.
func (w *Writer) commit(tmpName, path string) error {
	if _, ok := w.fs.(*afero.OsFs); ok {
		err := os.Link(tmpName, path)
		if err == nil {
			return nil
		}
		if stderrors.Is(err, os.ErrExist) {
			return errors.NewFilesystemError("write report", path, ErrReportExists)
		}
	}

	exists, err := afero.Exists(w.fs, path)
	if err != nil {
		return errors.NewFilesystemError("stat report", path, err)
	}
	if exists {
		return errors.NewFilesystemError("write report", path, ErrReportExists)
	}
	if err := w.fs.Rename(tmpName, path); err != nil {
		return errors.NewFilesystemError("rename report", path, err)
	}
	return nil
}
