package store

import (
	"time"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

const recentScanCount = 5

// Stats aggregates the whole scan history. TotalSavings and
// TotalOpportunities cover completed scans only.
type Stats struct {
	TotalScans         int          `json:"total_scans"`
	CompletedScans     int          `json:"completed_scans"`
	FailedScans        int          `json:"failed_scans"`
	TotalSavings       float64      `json:"total_savings"`
	TotalOpportunities int          `json:"total_opportunities"`
	RecentScans        []waste.Scan `json:"recent_scans"`
}

// TrendPoint is one day of scanning activity.
type TrendPoint struct {
	Date      string  `json:"date"` // YYYY-MM-DD, UTC
	Savings   float64 `json:"savings"`
	ScanCount int     `json:"scan_count"`
}

// GetStats walks the in-memory index, so it costs nothing on disk.
func (s *Store) GetStats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	s.index.Descend(func(sc *waste.Scan) bool {
		stats.TotalScans++
		switch sc.Status {
		case waste.StatusCompleted:
			stats.CompletedScans++
			stats.TotalSavings += sc.TotalSavings
			stats.TotalOpportunities += sc.OpportunityCount
		case waste.StatusFailed:
			stats.FailedScans++
		}
		if len(stats.RecentScans) < recentScanCount {
			stats.RecentScans = append(stats.RecentScans, *sc)
		}
		return true
	})
	return stats, nil
}

// GetTrendData buckets scans per UTC day over the trailing window, today
// included. Days without scans are zero-filled. Savings count completed
// scans only; scan counts include failures.
func (s *Store) GetTrendData(days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 30
	}

	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	points := make([]TrendPoint, days)
	byDate := make(map[string]*TrendPoint, days)
	for i := range points {
		date := first.AddDate(0, 0, i).Format("2006-01-02")
		points[i] = TrendPoint{Date: date}
		byDate[date] = &points[i]
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	s.index.Descend(func(sc *waste.Scan) bool {
		started := sc.StartedAt.UTC()
		if started.Before(first) {
			// Ids are monotonic, so everything below is older still.
			return false
		}
		if p, ok := byDate[started.Format("2006-01-02")]; ok {
			p.ScanCount++
			if sc.Status == waste.StatusCompleted {
				p.Savings += sc.TotalSavings
			}
		}
		return true
	})
	return points, nil
}
