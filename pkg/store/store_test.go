package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateScanAssignsMonotonicIDs(t *testing.T) {
	s := openTestStore(t)

	first, err := s.CreateScan(waste.ProviderAWS, "us-east-1")
	require.NoError(t, err)
	second, err := s.CreateScan(waste.ProviderGCP, "")
	require.NoError(t, err)

	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, waste.StatusRunning, first.Status)
	assert.False(t, first.StartedAt.IsZero())

	got, err := s.GetScan(first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, waste.ProviderAWS, got.Provider)
	assert.Equal(t, "us-east-1", got.Region)
}

func TestGetScanUnknown(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetScan(404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteScanFinalizesOnce(t *testing.T) {
	s := openTestStore(t)
	sc, err := s.CreateScan(waste.ProviderAWS, "eu-west-1")
	require.NoError(t, err)

	require.NoError(t, s.CompleteScan(sc.ID, 285.50, 3))

	got, err := s.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, waste.StatusCompleted, got.Status)
	assert.InDelta(t, 285.50, got.TotalSavings, 0.001)
	assert.Equal(t, 3, got.OpportunityCount)
	assert.False(t, got.FinishedAt.IsZero())
	assert.Empty(t, got.ErrorMessage)

	require.ErrorIs(t, s.CompleteScan(sc.ID, 1, 1), ErrScanFinal)
	require.ErrorIs(t, s.FailScan(sc.ID, "nope"), ErrScanFinal)
}

func TestFailScanRecordsMessage(t *testing.T) {
	s := openTestStore(t)
	sc, err := s.CreateScan(waste.ProviderAzure, "")
	require.NoError(t, err)

	require.NoError(t, s.FailScan(sc.ID, "connection refused"))

	got, err := s.GetScan(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, waste.StatusFailed, got.Status)
	assert.Equal(t, "connection refused", got.ErrorMessage)
	assert.Zero(t, got.TotalSavings)

	require.ErrorIs(t, s.CompleteScan(sc.ID, 10, 1), ErrScanFinal)
}

func TestSaveAndGetOpportunities(t *testing.T) {
	s := openTestStore(t)
	sc, err := s.CreateScan(waste.ProviderAWS, "us-east-1")
	require.NoError(t, err)
	other, err := s.CreateScan(waste.ProviderAWS, "us-east-1")
	require.NoError(t, err)

	opps := []waste.Opportunity{
		{
			Provider:                waste.ProviderAWS,
			Region:                  "us-east-1",
			ResourceID:              "i-0abc",
			ResourceType:            "ec2:instance",
			Category:                waste.CategoryIdle,
			Confidence:              waste.ConfidenceHigh,
			EstimatedMonthlySavings: 65.50,
			Metadata:                map[string]string{"instance_type": "m5.large"},
		},
		{
			Provider:                waste.ProviderAWS,
			ResourceID:              "vol-9def",
			ResourceType:            "ebs:volume",
			Category:                waste.CategoryUnused,
			Confidence:              waste.ConfidenceMedium,
			EstimatedMonthlySavings: 40.00,
		},
	}
	require.NoError(t, s.SaveOpportunities(sc.ID, opps))
	require.NoError(t, s.SaveOpportunities(other.ID, []waste.Opportunity{
		{ResourceID: "i-elsewhere", EstimatedMonthlySavings: 5},
	}))

	got, err := s.GetOpportunities(sc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "i-0abc", got[0].ResourceID)
	assert.Equal(t, "vol-9def", got[1].ResourceID)
	assert.Equal(t, sc.ID, got[0].ScanID)
	assert.NotZero(t, got[0].ID)
	assert.Greater(t, got[1].ID, got[0].ID)
	assert.Equal(t, map[string]string{"instance_type": "m5.large"}, got[0].Metadata)
	assert.False(t, got[0].DetectedAt.IsZero(), "zero DetectedAt gets stamped")

	// Unknown categories round-trip untouched.
	require.NoError(t, s.SaveOpportunities(sc.ID, []waste.Opportunity{
		{ResourceID: "x", Category: waste.Category("orphaned")},
	}))
	got, err = s.GetOpportunities(sc.ID)
	require.NoError(t, err)
	assert.Equal(t, waste.Category("orphaned"), got[2].Category)
}

func TestSaveOpportunitiesUnknownScan(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveOpportunities(7, []waste.Opportunity{{ResourceID: "i-1"}})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetOpportunities(7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListScansNewestFirst(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 4; i++ {
		_, err := s.CreateScan(waste.ProviderAWS, "")
		require.NoError(t, err)
	}

	all, err := s.ListScans(0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Greater(t, all[0].ID, all[1].ID)

	top, err := s.ListScans(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, all[0].ID, top[0].ID)
}

func TestGetStats(t *testing.T) {
	s := openTestStore(t)

	a, _ := s.CreateScan(waste.ProviderAWS, "")
	b, _ := s.CreateScan(waste.ProviderAWS, "")
	c, _ := s.CreateScan(waste.ProviderGCP, "")
	require.NoError(t, s.CompleteScan(a.ID, 100.25, 2))
	require.NoError(t, s.CompleteScan(b.ID, 49.75, 1))
	require.NoError(t, s.FailScan(c.ID, "boom"))

	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalScans)
	assert.Equal(t, 2, stats.CompletedScans)
	assert.Equal(t, 1, stats.FailedScans)
	assert.InDelta(t, 150.00, stats.TotalSavings, 0.001)
	assert.Equal(t, 3, stats.TotalOpportunities)
	require.Len(t, stats.RecentScans, 3)
	assert.Equal(t, c.ID, stats.RecentScans[0].ID, "recent scans are newest first")
}

func TestGetStatsCapsRecent(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < recentScanCount+3; i++ {
		_, err := s.CreateScan(waste.ProviderAWS, "")
		require.NoError(t, err)
	}
	stats, err := s.GetStats()
	require.NoError(t, err)
	assert.Equal(t, recentScanCount+3, stats.TotalScans)
	assert.Len(t, stats.RecentScans, recentScanCount)
}

func TestGetTrendData(t *testing.T) {
	s := openTestStore(t)

	day := func(offset int) time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	}

	s.now = func() time.Time { return day(-2) }
	a, _ := s.CreateScan(waste.ProviderAWS, "")
	b, _ := s.CreateScan(waste.ProviderAWS, "")

	s.now = func() time.Time { return day(0) }
	require.NoError(t, s.CompleteScan(a.ID, 120, 4))
	require.NoError(t, s.FailScan(b.ID, "boom"))
	c, _ := s.CreateScan(waste.ProviderAWS, "")
	require.NoError(t, s.CompleteScan(c.ID, 30, 1))

	points, err := s.GetTrendData(7)
	require.NoError(t, err)
	require.Len(t, points, 7)

	assert.Equal(t, "2026-03-04", points[0].Date)
	assert.Equal(t, "2026-03-10", points[6].Date)

	// Two scans started two days ago; savings follow the start day.
	assert.Equal(t, 2, points[4].ScanCount)
	assert.InDelta(t, 120, points[4].Savings, 0.001)

	assert.Equal(t, 1, points[6].ScanCount)
	assert.InDelta(t, 30, points[6].Savings, 0.001)

	// Quiet days are zero-filled, not omitted.
	assert.Zero(t, points[1].ScanCount)
	assert.Zero(t, points[1].Savings)
}

func TestReopenRebuildsIndexAndSequence(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	sc, err := s.CreateScan(waste.ProviderAWS, "us-east-1")
	require.NoError(t, err)
	require.NoError(t, s.CompleteScan(sc.ID, 12.5, 1))
	require.NoError(t, s.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	all, err := s2.ListScans(0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, waste.StatusCompleted, all[0].Status)

	next, err := s2.CreateScan(waste.ProviderAWS, "")
	require.NoError(t, err)
	assert.Greater(t, next.ID, sc.ID)
}
