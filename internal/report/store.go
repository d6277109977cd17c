package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/reserve-snapshot/internal/models"
)

var fileNamePattern = regexp.MustCompile(`^proof-of-reserve-(\d{4}-\d{2}-\d{2})\.json$`)

// ErrNotFound is returned when no report exists for the requested date
var ErrNotFound = os.ErrNotExist

// Info describes one persisted report
type Info struct {
	ReportDate string    `json:"report_date"`
	FileName   string    `json:"file_name"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"modified_at"`
}

// Store lists and reads persisted reports
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore creates a report store over dir
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// List returns persisted reports, newest report date first. A missing
// directory yields an empty list.
func (s *Store) List() ([]Info, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("failed to list reports in %s: %w", s.dir, err)
	}

	reports := []Info{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		reports = append(reports, Info{
			ReportDate: m[1],
			FileName:   e.Name(),
			Size:       e.Size(),
			ModTime:    e.ModTime().UTC(),
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].ReportDate > reports[j].ReportDate
	})
	return reports, nil
}

// ReadRaw returns the stored bytes of the report for reportDate
func (s *Store) ReadRaw(reportDate string) ([]byte, error) {
	if _, err := time.Parse("2006-01-02", reportDate); err != nil {
		return nil, fmt.Errorf("invalid report date %q: %w", reportDate, err)
	}
	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, FileName(reportDate)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("report %s: %w", reportDate, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read report %s: %w", reportDate, err)
	}
	return data, nil
}

// Read decodes the report for reportDate
func (s *Store) Read(reportDate string) (*models.PoRSnapshot, error) {
	data, err := s.ReadRaw(reportDate)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Latest returns the info of the newest persisted report
func (s *Store) Latest() (*Info, error) {
	reports, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("no reports in %s: %w", s.dir, ErrNotFound)
	}
	return &reports[0], nil
}

// Decode parses a persisted report document
func Decode(data []byte) (*models.PoRSnapshot, error) {
	var snapshot models.PoRSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &snapshot, nil
}
