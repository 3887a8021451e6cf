package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openworm/wormgraph/internal/resilience"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

func TestHealthChecker_Status(t *testing.T) {
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name     string
		database Pinger
		search   Pinger
		want     Status
	}{
		{name: "all healthy", database: pingFunc(ok), search: pingFunc(ok), want: StatusHealthy},
		{name: "search down degrades", database: pingFunc(ok), search: down, want: StatusDegraded},
		{name: "database down", database: down, search: pingFunc(ok), want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker(time.Second)
			hc.RegisterComponent("database", CreateDatabaseHealthCheck(tt.database))
			hc.RegisterComponent("search", CreateSearchHealthCheck(tt.search))
			hc.RegisterComponent("memory", CreateMemoryHealthCheck(0))

			_, ran := hc.Last()
			assert.False(t, ran)

			got := hc.Check(context.Background())
			assert.Equal(t, tt.want, got.Status)
			assert.Len(t, got.Components, 3)
			assert.Equal(t, 1, got.Summary[tt.want])

			last, ran := hc.Last()
			require.True(t, ran)
			assert.Equal(t, got.Status, last.Status)
		})
	}
}

func TestHealthChecker_Timeout(t *testing.T) {
	hc := NewHealthChecker(20 * time.Millisecond)
	hc.RegisterStore("slow", pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ctx.Err()
	}))

	got := hc.Check(context.Background())
	require.Contains(t, got.Components, "slow")
	assert.Equal(t, StatusUnhealthy, got.Status)
	assert.Equal(t, "health check timeout", got.Components["slow"].Message)
}

func TestHealthChecker_RegisterReplaces(t *testing.T) {
	hc := NewHealthChecker(time.Second)
	hc.RegisterStore("database", pingFunc(func(context.Context) error { return errors.New("down") }))
	hc.RegisterStore("database", pingFunc(ok))

	got := hc.Check(context.Background())
	assert.Len(t, got.Components, 1)
	assert.Equal(t, StatusHealthy, got.Status)
}

func TestHealthChecker_PeriodicChecks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hc := NewHealthChecker(time.Second)
	hc.RegisterComponent("memory", CreateMemoryHealthCheck(0))
	hc.StartPeriodicChecks(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ran := hc.Last()
		return ran
	}, time.Second, 5*time.Millisecond)
}

func TestCreateEnrichmentHealthCheck(t *testing.T) {
	cbm := resilience.NewCircuitBreakerManager(resilience.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 1,
	}, zerolog.Nop())
	check := CreateEnrichmentHealthCheck(resilience.NewCircuitBreakerHealthCheck(cbm))
	ctx := context.Background()

	assert.Equal(t, StatusHealthy, check(ctx).Status)

	ext := resilience.NewExternalServiceCircuitBreaker(cbm)
	_, _ = ext.Execute(ctx, "crossref", func(context.Context) (any, error) {
		return nil, errors.New("boom")
	})

	got := check(ctx)
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "open", got.Details["external-crossref"])
}

func TestCreateMemoryHealthCheck(t *testing.T) {
	assert.Equal(t, StatusHealthy, CreateMemoryHealthCheck(0)(context.Background()).Status)
	assert.Equal(t, StatusDegraded, CreateMemoryHealthCheck(1)(context.Background()).Status)
}
