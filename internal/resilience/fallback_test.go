package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/docent/internal/observe"
)

func newGroup(c *clock) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute, Now: c.Now},
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	t.Parallel()

	fg := newGroup(newClock())
	var called []string
	err := fg.Execute(context.Background(), func(_ context.Context, v string) error {
		called = append(called, v)
		return nil
	})
	if err != nil || len(called) != 1 || called[0] != "primary" {
		t.Errorf("err = %v called = %v", err, called)
	}
	if fg.Len() != 2 || fg.Primary() != "primary" {
		t.Errorf("Len = %d Primary = %q", fg.Len(), fg.Primary())
	}
}

func TestFallbackGroup_FailsOver(t *testing.T) {
	t.Parallel()

	fg := newGroup(newClock())
	got, err := ExecuteWithResult(context.Background(), fg, func(_ context.Context, v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return "answer from " + v, nil
	})
	if err != nil || got != "answer from secondary" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()

	fg := newGroup(newClock())
	err := fg.Execute(context.Background(), func(context.Context, string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
		t.Errorf("err = %v, want ErrAllFailed wrapping errTest", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fg := newGroup(newClock())
	failPrimary := func(_ context.Context, v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	}
	for range 2 {
		_ = fg.Execute(ctx, failPrimary)
	}

	var called []string
	_ = fg.Execute(ctx, func(_ context.Context, v string) error {
		called = append(called, v)
		return nil
	})
	if len(called) != 1 || called[0] != "secondary" {
		t.Errorf("called = %v, want only secondary", called)
	}

	checks := fg.Checkers()
	if len(checks) != 2 {
		t.Fatalf("Checkers = %d, want 2", len(checks))
	}
	if err := checks[0].Check(ctx); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("primary check = %v, want ErrCircuitOpen", err)
	}
	if err := checks[1].Check(ctx); err != nil {
		t.Errorf("secondary check = %v", err)
	}
}

func TestFallbackGroup_StopsWhenCancelled(t *testing.T) {
	t.Parallel()

	fg := newGroup(newClock())
	ctx, cancel := context.WithCancel(context.Background())
	var called []string
	err := fg.Execute(ctx, func(ctx context.Context, v string) error {
		called = append(called, v)
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(called) != 1 {
		t.Errorf("called = %v, want only the primary", called)
	}
}

func TestFallbackGroup_RecordsProviderMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	c := newClock()
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: c.Now},
		Kind:           "stt",
		Metrics:        m,
	})
	fg.AddFallback("secondary", "secondary")

	ctx := context.Background()
	call := func(_ context.Context, v string) error {
		if v == "primary" {
			return errTest
		}
		return nil
	}
	// The first call fails over; the second skips the open primary.
	for range 2 {
		if err := fg.Execute(ctx, call); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	requests := map[string]int64{}
	errs := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				provider, _ := dp.Attributes.Value("provider")
				kind, _ := dp.Attributes.Value("kind")
				if kind.AsString() != "stt" {
					t.Errorf("kind = %q, want stt", kind.AsString())
				}
				switch met.Name {
				case "docent.provider.requests":
					status, _ := dp.Attributes.Value("status")
					requests[provider.AsString()+"/"+status.AsString()] += dp.Value
				case "docent.provider.errors":
					errs[provider.AsString()] += dp.Value
				}
			}
		}
	}
	if requests["primary/error"] != 1 || requests["secondary/ok"] != 2 || requests["primary/ok"] != 0 {
		t.Errorf("requests = %v", requests)
	}
	if errs["primary"] != 1 || errs["secondary"] != 0 {
		t.Errorf("errors = %v", errs)
	}
}
