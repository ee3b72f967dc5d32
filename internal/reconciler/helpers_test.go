package reconciler

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/eventsync/internal/clock"
	"github.com/foxseedlab/eventsync/internal/telemetry"
	"github.com/foxseedlab/eventsync/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var testNow = time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id%d", g.n)
}

type testEnv struct {
	store   *fakeStore
	rec     *Reconciler
	metrics *telemetry.Metrics
}

func newTestEnv(sender webhook.Sender, opts Options) *testEnv {
	store := newFakeStore()
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	rec := New(Deps{
		Repo:    store,
		Webhook: sender,
		Clock:   clock.Fixed(testNow),
		IDs:     &seqIDs{},
		Metrics: metrics,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, opts)
	return &testEnv{store: store, rec: rec, metrics: metrics}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func counterValue(c prometheus.Counter) float64 {
	return testutil.ToFloat64(c)
}
