package instrument

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingResponder struct {
	mu    sync.Mutex
	sent  []Confirmation
	fails bool
}

func (r *recordingResponder) Respond(_ context.Context, c Confirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails {
		return errors.New("responder down")
	}
	r.sent = append(r.sent, c)
	return nil
}

func (r *recordingResponder) last(t *testing.T) Confirmation {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent)
	return r.sent[len(r.sent)-1]
}

func TestRegistry_Initial(t *testing.T) {
	r := NewRegistry([]string{"USD_CAD", "EUR_USD", ""}, nil, nil)

	assert.Equal(t, []string{"EUR_USD", "USD_CAD"}, r.List())
	assert.True(t, r.Contains("USD_CAD"))
	assert.False(t, r.Contains("GBP_USD"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_AddRemove(t *testing.T) {
	resp := &recordingResponder{}
	r := NewRegistry([]string{"USD_CAD"}, resp, nil)
	ctx := context.Background()

	assert.True(t, r.Add(ctx, "GBP_USD"))
	assert.True(t, r.Contains("GBP_USD"))
	c := resp.last(t)
	assert.Equal(t, StatusSuccess, c.Status)
	assert.Equal(t, "Added GBP_USD to streaming", c.Message)
	assert.Equal(t, []string{"GBP_USD", "USD_CAD"}, c.ActiveInstruments)
	assert.Nil(t, c.InstrumentCount)

	assert.True(t, r.Remove(ctx, "GBP_USD"))
	assert.False(t, r.Contains("GBP_USD"))
	c = resp.last(t)
	assert.Equal(t, "Removed GBP_USD from streaming", c.Message)
	assert.Equal(t, []string{"USD_CAD"}, c.ActiveInstruments)
}

func TestRegistry_NoOpsStillConfirm(t *testing.T) {
	resp := &recordingResponder{}
	r := NewRegistry([]string{"USD_CAD"}, resp, nil)
	ctx := context.Background()

	assert.False(t, r.Add(ctx, "USD_CAD"))
	assert.False(t, r.Remove(ctx, "GBP_USD"))

	require.Len(t, resp.sent, 2)
	for _, c := range resp.sent {
		assert.Equal(t, StatusSuccess, c.Status)
		assert.Equal(t, []string{"USD_CAD"}, c.ActiveInstruments)
	}
}

func TestRegistry_EmptyName(t *testing.T) {
	resp := &recordingResponder{}
	r := NewRegistry(nil, resp, nil)

	assert.False(t, r.Add(context.Background(), ""))
	c := resp.last(t)
	assert.Equal(t, StatusError, c.Status)
	assert.Equal(t, 0, r.Len())
	assert.NotNil(t, c.ActiveInstruments)
}

func TestRegistry_ReportActive(t *testing.T) {
	resp := &recordingResponder{}
	r := NewRegistry([]string{"USD_CAD", "EUR_USD"}, resp, nil)

	active := r.ReportActive(context.Background())
	assert.Equal(t, []string{"EUR_USD", "USD_CAD"}, active)

	c := resp.last(t)
	require.NotNil(t, c.InstrumentCount)
	assert.Equal(t, 2, *c.InstrumentCount)
}

func TestRegistry_ResponderFailureIsNotFatal(t *testing.T) {
	resp := &recordingResponder{fails: true}
	r := NewRegistry(nil, resp, nil)

	assert.True(t, r.Add(context.Background(), "EUR_USD"))
	assert.True(t, r.Contains("EUR_USD"))
}

func TestRegistry_Subscribe(t *testing.T) {
	r := NewRegistry([]string{"USD_CAD"}, nil, nil)
	ctx := context.Background()

	ch, cancel := r.Subscribe()
	other, cancelOther := r.Subscribe()
	defer cancelOther()

	r.Add(ctx, "GBP_USD")
	r.Add(ctx, "GBP_USD") // no-op, no change
	r.Remove(ctx, "GBP_USD")

	assert.Equal(t, Change{Instrument: "GBP_USD", Kind: ChangeAdded}, <-ch)
	assert.Equal(t, Change{Instrument: "GBP_USD", Kind: ChangeRemoved}, <-ch)
	assert.Equal(t, Change{Instrument: "GBP_USD", Kind: ChangeAdded}, <-other)

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok, "channel closed after cancel")

	r.Add(ctx, "EUR_USD")
	<-other // second subscriber still receives
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(nil, ResponderFunc(func(context.Context, Confirmation) error { return nil }), nil)
	ctx := context.Background()
	names := []string{"EUR_USD", "GBP_USD", "USD_JPY", "USD_CAD"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				name := names[(i+j)%len(names)]
				if j%2 == 0 {
					r.Add(ctx, name)
				} else {
					r.Remove(ctx, name)
				}
				r.Contains(name)
				r.List()
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), len(names))
}
