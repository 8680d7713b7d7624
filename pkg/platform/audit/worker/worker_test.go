package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "transitpass/pkg/domain"
	audit "transitpass/pkg/platform/audit"
	"transitpass/pkg/platform/audit/store/memory"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if p.err == nil {
			p.records = append(p.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func seed(t *testing.T, store *memory.InMemoryStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, store.Append(context.Background(), audit.Event{
			UserID: id.UserID(i + 1),
			Action: audit.EventPaymentVerified.String(),
		}))
	}
}

func TestRelay_FlushPublishesAndMarks(t *testing.T) {
	store := memory.NewInMemoryStore()
	seed(t, store, 3)
	producer := &fakeProducer{}
	relay := NewRelay(store, producer, "transitpass.audit",
		WithBatchSize(2),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "published entries are not resent")

	require.Len(t, producer.records, 3)
	assert.Equal(t, "transitpass.audit", producer.records[0].Topic)
	assert.Equal(t, "1", string(producer.records[0].Key))
	assert.Equal(t, "event_type", producer.records[0].Headers[0].Key)
	assert.Equal(t, "payment_verified", string(producer.records[0].Headers[0].Value))
}

func TestRelay_ProduceFailureLeavesEntriesPending(t *testing.T) {
	store := memory.NewInMemoryStore()
	seed(t, store, 2)
	producer := &fakeProducer{err: errors.New("broker down")}
	relay := NewRelay(store, producer, "transitpass.audit")

	_, err := relay.Flush(context.Background())
	require.Error(t, err)

	pending, err := store.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	producer.err = nil
	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := memory.NewInMemoryStore()
	relay := NewRelay(store, &fakeProducer{}, "transitpass.audit")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, relay.Run(ctx))
}
