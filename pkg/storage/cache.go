package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

const (
	// DefaultMaxAge is the staleness window for cached reports.
	DefaultMaxAge = 24 * time.Hour

	// maxCachedReports bounds the cache globally, across providers.
	maxCachedReports = 10

	timestampFormat = "2006-01-02T15-04-05"
	reportPrefix    = "report-"
	reportSuffix    = ".json"
)

// ReportCache keeps the latest scan reports on disk so repeat invocations can
// answer without touching the provider. Filenames embed the provider and the
// creation time; the cache prunes itself to the newest entries.
type ReportCache struct {
	dir string
	now func() time.Time
}

// NewReportCache returns a cache rooted at dir. The directory is created on
// first save.
func NewReportCache(dir string) *ReportCache {
	return &ReportCache{dir: dir, now: time.Now}
}

// entry is one parsed cache filename.
type entry struct {
	name     string
	provider waste.Provider
	created  time.Time
}

// Save writes the report and prunes the cache to the newest
// maxCachedReports entries.
func (c *ReportCache) Save(report *waste.Report) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating report cache dir: %w", err)
	}

	name := reportPrefix + string(report.Provider) + "-" + c.now().UTC().Format(timestampFormat) + reportSuffix
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.dir, name), data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return c.prune()
}

// LoadMostRecent returns the newest cached report if it is younger than
// maxAge. A stale or empty cache reports ok=false without an error. A
// non-positive maxAge falls back to DefaultMaxAge.
func (c *ReportCache) LoadMostRecent(maxAge time.Duration) (*waste.Report, bool, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	entries, err := c.list()
	if err != nil {
		return nil, false, err
	}
	if len(entries) == 0 {
		return nil, false, nil
	}

	newest := entries[len(entries)-1]
	if c.now().UTC().Sub(newest.created) > maxAge {
		return nil, false, nil
	}

	data, err := os.ReadFile(filepath.Join(c.dir, newest.name))
	if err != nil {
		return nil, false, fmt.Errorf("reading cached report: %w", err)
	}
	var report waste.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, fmt.Errorf("decoding cached report %s: %w", newest.name, err)
	}
	return &report, true, nil
}

// list returns parsed cache entries sorted oldest first. Files that do not
// follow the naming scheme are ignored.
func (c *ReportCache) list() ([]entry, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading report cache dir: %w", err)
	}

	var entries []entry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		e, ok := parseName(d.Name())
		if !ok {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].created.Equal(entries[j].created) {
			return entries[i].name < entries[j].name
		}
		return entries[i].created.Before(entries[j].created)
	})
	return entries, nil
}

func (c *ReportCache) prune() error {
	entries, err := c.list()
	if err != nil {
		return err
	}
	for len(entries) > maxCachedReports {
		if err := os.Remove(filepath.Join(c.dir, entries[0].name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("pruning report cache: %w", err)
		}
		entries = entries[1:]
	}
	return nil
}

// parseName extracts provider and creation time from a cache filename of the
// form report-<provider>-<2006-01-02T15-04-05>.json.
func parseName(name string) (entry, bool) {
	if !strings.HasPrefix(name, reportPrefix) || !strings.HasSuffix(name, reportSuffix) {
		return entry{}, false
	}
	core := strings.TrimSuffix(strings.TrimPrefix(name, reportPrefix), reportSuffix)
	parts := strings.SplitN(core, "-", 2)
	if len(parts) != 2 {
		return entry{}, false
	}
	created, err := time.Parse(timestampFormat, parts[1])
	if err != nil {
		return entry{}, false
	}
	return entry{name: name, provider: waste.Provider(parts[0]), created: created}, true
}
