package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vuhp/cloudthrift/pkg/checks"
	"github.com/vuhp/cloudthrift/pkg/events"
	"github.com/vuhp/cloudthrift/pkg/policy"
	"github.com/vuhp/cloudthrift/pkg/storage"
	"github.com/vuhp/cloudthrift/pkg/store"
	"github.com/vuhp/cloudthrift/pkg/vault"
	"github.com/vuhp/cloudthrift/pkg/waste"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	return v
}

func eventTypes(evs []events.Event) []events.Type {
	out := make([]events.Type, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}

func TestExecuteLifecycle(t *testing.T) {
	st := testStore(t)
	cache := storage.NewReportCache(t.TempDir())
	pub := &capturePublisher{}
	connector := &stubConnector{provider: waste.ProviderAWS}
	reg := awsRegistry(connector,
		&stubCheck{name: "volumes", opps: []waste.Opportunity{finding("vol-1", 65.50)}},
		&stubCheck{name: "denied", err: &checks.PermissionDenied{Capability: "rds:DescribeDBInstances"}},
		&stubCheck{name: "instances", opps: []waste.Opportunity{finding("i-2", 40.00), finding("db-3", 180.00)}},
	)
	e := New(
		WithLogger(discardLogger()),
		WithRegistry(reg),
		WithStore(st),
		WithCache(cache),
		WithPublisher(pub),
	)

	report, err := e.Execute(context.Background(), ScanRequest{
		Provider: waste.ProviderAWS,
		Region:   "us-west-2",
	})
	require.NoError(t, err)
	require.Len(t, report.Opportunities, 3)
	assert.InDelta(t, 285.50, report.TotalSavings, 0.001)
	assert.Equal(t, "us-west-2", report.Region)

	// The scan row went running -> completed with matching totals.
	sc, err := st.GetScan(report.ScanID)
	require.NoError(t, err)
	assert.Equal(t, waste.StatusCompleted, sc.Status)
	assert.InDelta(t, 285.50, sc.TotalSavings, 0.001)
	assert.Equal(t, 3, sc.OpportunityCount)
	assert.False(t, sc.FinishedAt.IsZero())
	assert.Empty(t, sc.ErrorMessage)

	persisted, err := st.GetOpportunities(report.ScanID)
	require.NoError(t, err)
	require.Len(t, persisted, 3)
	assert.Equal(t, "vol-1", persisted[0].ResourceID)
	assert.Equal(t, report.ScanID, persisted[0].ScanID)

	cached, ok, err := cache.LoadMostRecent(time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, report.ScanID, cached.ScanID)
	assert.Len(t, cached.Opportunities, 3)

	evs := pub.recorded()
	require.Equal(t, []events.Type{events.TypeScanStarted, events.TypeScanCompleted}, eventTypes(evs))
	assert.Equal(t, report.ScanID, evs[0].ScanID)
	assert.InDelta(t, 285.50, evs[1].TotalSavings, 0.001)
	assert.Equal(t, 3, evs[1].OpportunityCount)
}

func TestExecuteUnknownProviderFailsScan(t *testing.T) {
	st := testStore(t)
	pub := &capturePublisher{}
	e := New(WithLogger(discardLogger()), WithStore(st), WithPublisher(pub))

	report, err := e.Execute(context.Background(), ScanRequest{Provider: waste.ProviderAzure})
	assert.Nil(t, report)

	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, waste.ProviderAzure, perr.Provider)

	scans, err := st.ListScans(10)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, waste.StatusFailed, scans[0].Status)
	assert.Contains(t, scans[0].ErrorMessage, "not supported")
	assert.False(t, scans[0].FinishedAt.IsZero())

	require.Equal(t, []events.Type{events.TypeScanStarted, events.TypeScanFailed}, eventTypes(pub.recorded()))
	assert.Contains(t, pub.recorded()[1].Error, "not supported")
}

func TestExecuteConnectFailureFailsScan(t *testing.T) {
	st := testStore(t)
	boom := errors.New("expired security token")
	connector := &stubConnector{provider: waste.ProviderAWS, err: boom}
	e := New(WithLogger(discardLogger()), WithStore(st),
		WithRegistry(awsRegistry(connector, &stubCheck{name: "volumes"})))

	report, err := e.Execute(context.Background(), ScanRequest{Provider: waste.ProviderAWS})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, boom)

	scans, err := st.ListScans(1)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, waste.StatusFailed, scans[0].Status)
	assert.Contains(t, scans[0].ErrorMessage, "expired security token")
}

func TestExecuteMissingCredentialFailsScan(t *testing.T) {
	st := testStore(t)
	connector := &stubConnector{provider: waste.ProviderAWS}
	e := New(WithLogger(discardLogger()), WithStore(st), WithVault(testVault(t)),
		WithRegistry(awsRegistry(connector, &stubCheck{name: "volumes"})))

	report, err := e.Execute(context.Background(), ScanRequest{
		Provider:     waste.ProviderAWS,
		CredentialID: 42,
	})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, vault.ErrNotFound)
	assert.Zero(t, connector.calls.Load(), "must not connect without the requested credential")

	scans, err := st.ListScans(1)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, waste.StatusFailed, scans[0].Status)
}

func TestExecuteResolvesCredentials(t *testing.T) {
	st := testStore(t)
	v := testVault(t)
	older, err := v.Save(waste.ProviderAWS, "old-keys", map[string]string{"access_key_id": "AKIAOLD"})
	require.NoError(t, err)
	_, err = v.Save(waste.ProviderAWS, "ci-keys", map[string]string{
		"access_key_id":     "AKIANEW",
		"secret_access_key": "swordfish",
	})
	require.NoError(t, err)

	connector := &stubConnector{provider: waste.ProviderAWS}
	e := New(WithLogger(discardLogger()), WithStore(st), WithVault(v),
		WithRegistry(awsRegistry(connector, &stubCheck{name: "volumes"})))

	// Without an id the newest bundle for the provider wins.
	_, err = e.Execute(context.Background(), ScanRequest{Provider: waste.ProviderAWS})
	require.NoError(t, err)
	assert.Equal(t, "AKIANEW", connector.gotOpts.Credentials["access_key_id"])
	assert.Equal(t, "swordfish", connector.gotOpts.Credentials["secret_access_key"])

	// An explicit id overrides recency.
	_, err = e.Execute(context.Background(), ScanRequest{Provider: waste.ProviderAWS, CredentialID: older})
	require.NoError(t, err)
	assert.Equal(t, "AKIAOLD", connector.gotOpts.Credentials["access_key_id"])
}

func TestExecuteAmbientCredentialsWhenVaultEmpty(t *testing.T) {
	st := testStore(t)
	connector := &stubConnector{provider: waste.ProviderAWS}
	e := New(WithLogger(discardLogger()), WithStore(st), WithVault(testVault(t)),
		WithRegistry(awsRegistry(connector, &stubCheck{name: "volumes"})))

	_, err := e.Execute(context.Background(), ScanRequest{Provider: waste.ProviderAWS, Profile: "sandbox"})
	require.NoError(t, err)
	assert.Empty(t, connector.gotOpts.Credentials)
	assert.Equal(t, "sandbox", connector.gotOpts.Profile)
}

func TestExecuteAppliesFilter(t *testing.T) {
	st := testStore(t)
	connector := &stubConnector{provider: waste.ProviderAWS}
	reg := awsRegistry(connector, &stubCheck{name: "volumes", opps: []waste.Opportunity{
		finding("vol-1", 65.50),
		finding("i-2", 40.00),
		finding("db-3", 180.00),
	}})
	e := New(WithLogger(discardLogger()), WithStore(st), WithRegistry(reg))

	filter, err := policy.NewFilter(`savings >= 100.0`)
	require.NoError(t, err)

	report, err := e.Execute(context.Background(), ScanRequest{
		Provider: waste.ProviderAWS,
		Filter:   filter,
	})
	require.NoError(t, err)
	require.Len(t, report.Opportunities, 1)
	assert.Equal(t, "db-3", report.Opportunities[0].ResourceID)
	assert.InDelta(t, 180.00, report.TotalSavings, 0.001)

	// Persistence sees the filtered view, not the raw findings.
	sc, err := st.GetScan(report.ScanID)
	require.NoError(t, err)
	assert.Equal(t, 1, sc.OpportunityCount)
	assert.InDelta(t, 180.00, sc.TotalSavings, 0.001)
	persisted, err := st.GetOpportunities(report.ScanID)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestExecutePublisherFailureDoesNotFailScan(t *testing.T) {
	st := testStore(t)
	connector := &stubConnector{provider: waste.ProviderAWS}
	e := New(WithLogger(discardLogger()), WithStore(st),
		WithPublisher(&capturePublisher{err: errors.New("webhook unreachable")}),
		WithRegistry(awsRegistry(connector, &stubCheck{name: "volumes", opps: []waste.Opportunity{finding("vol-1", 65.50)}})))

	report, err := e.Execute(context.Background(), ScanRequest{Provider: waste.ProviderAWS})
	require.NoError(t, err)

	sc, err := st.GetScan(report.ScanID)
	require.NoError(t, err)
	assert.Equal(t, waste.StatusCompleted, sc.Status)
}

func TestAbortCancelsRunningScan(t *testing.T) {
	st := testStore(t)
	pub := &capturePublisher{}
	started := make(chan struct{})
	connector := &stubConnector{provider: waste.ProviderAWS}
	e := New(WithLogger(discardLogger()), WithStore(st), WithPublisher(pub),
		WithRegistry(awsRegistry(connector, &stubCheck{name: "hang", block: true, started: started})))

	type result struct {
		report *waste.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := e.Execute(context.Background(), ScanRequest{Provider: waste.ProviderAWS})
		done <- result{report, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("check never started")
	}

	scans, err := st.ListScans(1)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	id := scans[0].ID
	assert.Equal(t, waste.StatusRunning, scans[0].Status)

	require.True(t, e.Abort(id))

	res := <-done
	assert.Nil(t, res.report)
	assert.ErrorIs(t, res.err, context.Canceled)

	sc, err := st.GetScan(id)
	require.NoError(t, err)
	assert.Equal(t, waste.StatusFailed, sc.Status)

	// Terminal event still goes out after the abort.
	require.Equal(t, []events.Type{events.TypeScanStarted, events.TypeScanFailed}, eventTypes(pub.recorded()))

	// The handle is gone once the scan settles.
	assert.False(t, e.Abort(id))
}

func TestExecuteWithoutStore(t *testing.T) {
	e := New(WithLogger(discardLogger()))
	_, err := e.Execute(context.Background(), ScanRequest{Provider: waste.ProviderAWS})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no store configured")
}
