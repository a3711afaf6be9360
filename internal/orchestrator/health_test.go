package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppob-wallet-ledger/internal/data/memory"
	"github.com/ppob-wallet-ledger/internal/domain/provider"
)

func TestHealthMonitor_CheckAll(t *testing.T) {
	store := memory.NewRegistrationStore()
	down := &fakeHandler{healthErr: errors.New("503 from upstream")}
	up := &fakeHandler{}

	o, err := New(Options{
		Entries:  []Entry{entry("alpha", 1, 2, down), entry("beta", 2, 2, up)},
		Strategy: StrategyPriority,
		Store:    store,
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	m, err := NewHealthMonitor(o, HealthMonitorConfig{PoolSize: 2, Interval: time.Minute, Timeout: time.Second}, testLogger())
	require.NoError(t, err)
	defer m.Shutdown()

	ctx := context.Background()
	regs := m.CheckAll(ctx)
	require.Len(t, regs, 2)
	assert.Equal(t, provider.StateHealthy, regs[0].Status, "one failure is below max errors")
	assert.Equal(t, 1, regs[0].ErrorCount)
	require.NotNil(t, regs[0].LastCheckedAt)

	regs = m.CheckAll(ctx)
	assert.Equal(t, provider.StateUnhealthy, regs[0].Status)
	assert.Equal(t, "503 from upstream", regs[0].LastError)
	assert.Equal(t, provider.StateHealthy, regs[1].Status)

	saved, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, provider.StateUnhealthy, saved[0].Status)

	down.healthErr = nil
	regs = m.CheckAll(ctx)
	assert.Equal(t, provider.StateHealthy, regs[0].Status, "passing check brings the provider back")
	assert.Equal(t, 0, regs[0].ErrorCount)
}

func TestHealthMonitor_SkipsDisabled(t *testing.T) {
	h := &fakeHandler{healthErr: errors.New("down")}
	e := entry("alpha", 1, 1, h)
	e.Registration.Active = false
	e.Registration.Status = provider.StateDisabled

	o, err := New(Options{Entries: []Entry{e}, Logger: testLogger()})
	require.NoError(t, err)
	m, err := NewHealthMonitor(o, HealthMonitorConfig{Interval: time.Minute}, testLogger())
	require.NoError(t, err)
	defer m.Shutdown()

	regs := m.CheckAll(context.Background())
	assert.Equal(t, provider.StateDisabled, regs[0].Status)
	assert.Nil(t, regs[0].LastCheckedAt)
}

func TestHealthMonitor_StartStops(t *testing.T) {
	o, err := New(Options{Entries: []Entry{entry("alpha", 1, 3, &fakeHandler{})}, Logger: testLogger()})
	require.NoError(t, err)
	m, err := NewHealthMonitor(o, HealthMonitorConfig{Interval: 10 * time.Millisecond}, testLogger())
	require.NoError(t, err)
	defer m.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		reg, _ := o.Registration("alpha")
		return reg.LastCheckedAt != nil
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health monitor did not stop")
	}
}

func TestRestore(t *testing.T) {
	store := memory.NewRegistrationStore()
	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, []provider.Registration{
		{Name: "alpha", Priority: 9, Active: false, MaxErrors: 4},
		{Name: "ghost", Priority: 1, Active: true},
	}))

	o, err := New(Options{
		Entries: []Entry{entry("alpha", 1, 3, &fakeHandler{}), entry("beta", 2, 3, &fakeHandler{})},
		Store:   store,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, o.Restore(ctx))

	reg, ok := o.Registration("alpha")
	require.True(t, ok)
	assert.Equal(t, 9, reg.Priority)
	assert.Equal(t, 4, reg.MaxErrors)
	assert.Equal(t, provider.StateDisabled, reg.Status)

	_, ok = o.Registration("ghost")
	assert.False(t, ok)
}

type failingStore struct {
	provider.NoopRegistrationStore
}

func (failingStore) Upsert(context.Context, []provider.Registration) error {
	return errors.New("registrations table locked")
}

func TestHealthMonitor_CheckAll_LogsSnapshotFailure(t *testing.T) {
	o, err := New(Options{
		Entries:  []Entry{entry("alpha", 1, 2, &fakeHandler{})},
		Strategy: StrategyPriority,
		Store:    failingStore{},
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	m, err := NewHealthMonitor(o, HealthMonitorConfig{PoolSize: 1, Interval: time.Minute, Timeout: time.Second},
		slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, err)
	defer m.Shutdown()

	regs := m.CheckAll(context.Background())
	require.Len(t, regs, 1)
	assert.Equal(t, provider.StateHealthy, regs[0].Status)
	assert.Contains(t, buf.String(), "Health snapshot not saved")
	assert.Contains(t, buf.String(), "registrations table locked")
}
