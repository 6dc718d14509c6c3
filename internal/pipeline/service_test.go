package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/price-streamer/internal/backfill"
	"github.com/rickgao/price-streamer/internal/cache"
	"github.com/rickgao/price-streamer/internal/instrument"
	"github.com/rickgao/price-streamer/internal/model"
	"github.com/rickgao/price-streamer/internal/stream"
)

type fakeStreamer struct {
	err     error
	block   bool
	started chan struct{}
	once    sync.Once
}

func newFakeStreamer(block bool, err error) *fakeStreamer {
	return &fakeStreamer{block: block, err: err, started: make(chan struct{})}
}

func (f *fakeStreamer) Run(ctx context.Context) error {
	f.once.Do(func() { close(f.started) })
	if f.block {
		<-ctx.Done()
		return nil
	}
	return f.err
}

func (f *fakeStreamer) Stats() stream.Stats {
	return stream.Stats{State: stream.StateClosed}
}

type fakeBackfiller struct {
	mu      sync.Mutex
	initial []string
	added   []string
	err     error
}

func (f *fakeBackfiller) Run(_ context.Context, instruments []string) backfill.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initial = append(f.initial, instruments...)
	res := backfill.Result{}
	for _, inst := range instruments {
		res.Instruments = append(res.Instruments, backfill.InstrumentResult{Instrument: inst, Err: f.err})
	}
	return res
}

func (f *fakeBackfiller) BackfillInstrument(_ context.Context, inst string) backfill.InstrumentResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, inst)
	return backfill.InstrumentResult{Instrument: inst, Published: 1}
}

func (f *fakeBackfiller) addedInstruments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...)
}

type fakeArchive struct {
	started, stopped bool
}

func (a *fakeArchive) Start(context.Context) error { a.started = true; return nil }
func (a *fakeArchive) Stop(context.Context) error { a.stopped = true; return nil }

func newStore(t *testing.T) (*miniredis.Miniredis, *cache.RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := cache.Connect(context.Background(), cache.Config{Addr: mr.Addr(), ConnectAttempts: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestRunSweepsAndBackfills(t *testing.T) {
	mr, store := newStore(t)
	require.NoError(t, mr.Set("prices:USD_CAD:old-1", "{}"))
	require.NoError(t, mr.Set("prices:USD_CAD:old-2", "{}"))
	require.NoError(t, mr.Set("other:key", "{}"))

	reg := instrument.NewRegistry([]string{"USD_CAD"}, nil, nil)
	bf := &fakeBackfiller{}
	archive := &fakeArchive{}

	svc := New(Config{KeyPrefix: "prices:", Sweep: true}, Components{
		Cache:      store,
		Registry:   reg,
		Backfiller: bf,
		Streamer:   newFakeStreamer(false, nil),
		Archive:    archive,
	}, nil)

	require.NoError(t, svc.Run(context.Background()))

	assert.False(t, mr.Exists("prices:USD_CAD:old-1"))
	assert.False(t, mr.Exists("prices:USD_CAD:old-2"))
	assert.True(t, mr.Exists("other:key"))
	assert.Equal(t, []string{"USD_CAD"}, bf.initial)
	assert.True(t, archive.started)
	assert.True(t, archive.stopped)
}

func TestRunWithoutSweepKeepsKeys(t *testing.T) {
	mr, store := newStore(t)
	require.NoError(t, mr.Set("prices:USD_CAD:old", "{}"))

	svc := New(Config{KeyPrefix: "prices:"}, Components{
		Cache:      store,
		Registry:   instrument.NewRegistry(nil, nil, nil),
		Backfiller: &fakeBackfiller{},
		Streamer:   newFakeStreamer(false, nil),
	}, nil)

	require.NoError(t, svc.Run(context.Background()))
	assert.True(t, mr.Exists("prices:USD_CAD:old"))
}

func TestRunReturnsFatalStreamError(t *testing.T) {
	_, store := newStore(t)
	streamErr := errors.Join(model.ErrAuth, errors.New("401 unauthorized"))

	svc := New(Config{KeyPrefix: "prices:"}, Components{
		Cache:      store,
		Registry:   instrument.NewRegistry([]string{"EUR_USD"}, nil, nil),
		Backfiller: &fakeBackfiller{},
		Streamer:   newFakeStreamer(false, streamErr),
	}, nil)

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAuth)
}

func TestRunFailsOnBackfillAuthError(t *testing.T) {
	_, store := newStore(t)
	streamer := newFakeStreamer(true, nil)

	svc := New(Config{KeyPrefix: "prices:"}, Components{
		Cache:      store,
		Registry:   instrument.NewRegistry([]string{"EUR_USD"}, nil, nil),
		Backfiller: &fakeBackfiller{err: model.ErrAuth},
		Streamer:   streamer,
	}, nil)

	err := svc.Run(context.Background())
	assert.ErrorIs(t, err, model.ErrAuth)

	select {
	case <-streamer.started:
		t.Fatal("stream should not start after a backfill auth failure")
	default:
	}
}

func TestRunSweepCacheUnavailable(t *testing.T) {
	mr, store := newStore(t)
	mr.Close()

	svc := New(Config{KeyPrefix: "prices:", Sweep: true}, Components{
		Cache:      store,
		Registry:   instrument.NewRegistry(nil, nil, nil),
		Backfiller: &fakeBackfiller{},
		Streamer:   newFakeStreamer(true, nil),
	}, nil)

	err := svc.Run(context.Background())
	assert.ErrorIs(t, err, model.ErrCacheUnavailable)
}

func TestRunBackfillsAddedInstruments(t *testing.T) {
	_, store := newStore(t)
	reg := instrument.NewRegistry([]string{"USD_CAD"}, nil, nil)
	bf := &fakeBackfiller{}
	streamer := newFakeStreamer(true, nil)

	svc := New(Config{KeyPrefix: "prices:", BackfillOnAdd: true}, Components{
		Cache:      store,
		Registry:   reg,
		Backfiller: bf,
		Streamer:   streamer,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	<-streamer.started
	reg.Add(ctx, "GBP_USD")
	reg.Remove(ctx, "USD_CAD")

	assert.Eventually(t, func() bool {
		added := bf.addedInstruments()
		return len(added) == 1 && added[0] == "GBP_USD"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunStopsRunnersWhenStreamEnds(t *testing.T) {
	_, store := newStore(t)

	var stopped sync.WaitGroup
	stopped.Add(1)
	runner := RunnerFunc(func(ctx context.Context) error {
		defer stopped.Done()
		<-ctx.Done()
		return nil
	})

	svc := New(Config{KeyPrefix: "prices:"}, Components{
		Cache:      store,
		Registry:   instrument.NewRegistry([]string{"USD_CAD"}, nil, nil),
		Backfiller: &fakeBackfiller{},
		Streamer:   newFakeStreamer(false, nil),
		Runners:    map[string]Runner{"control": runner},
	}, nil)

	require.NoError(t, svc.Run(context.Background()))
	stopped.Wait()
}

func TestRunRunnerFailureStopsService(t *testing.T) {
	_, store := newStore(t)
	streamer := newFakeStreamer(true, nil)

	svc := New(Config{KeyPrefix: "prices:"}, Components{
		Cache:      store,
		Registry:   instrument.NewRegistry([]string{"USD_CAD"}, nil, nil),
		Backfiller: &fakeBackfiller{},
		Streamer:   streamer,
		Runners: map[string]Runner{
			"http": RunnerFunc(func(context.Context) error { return errors.New("address already in use") }),
		},
	}, nil)

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http: address already in use")
}

func TestSupervisorReportsLiveKeys(t *testing.T) {
	mr, store := newStore(t)
	require.NoError(t, mr.Set("prices:USD_CAD:a", "{}"))

	streamer := newFakeStreamer(true, nil)
	svc := New(Config{KeyPrefix: "prices:", SupervisorInterval: 10 * time.Millisecond}, Components{
		Cache:      store,
		Registry:   instrument.NewRegistry([]string{"USD_CAD"}, nil, nil),
		Backfiller: &fakeBackfiller{},
		Streamer:   streamer,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.Run(ctx))
	assert.True(t, mr.Exists("prices:USD_CAD:a"))
}
