package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySinkRecordsAndFilters(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	events := []Event{
		{Timestamp: time.Now(), LoanID: "LN-1", Action: ActionStatusChanged, From: "approved", To: "document_collection"},
		{Timestamp: time.Now(), LoanID: "LN-2", Action: ActionExceptionOpened, Subject: "EXC-1", Severity: "low"},
		{Timestamp: time.Now(), LoanID: "LN-1", Action: ActionCommunicationDrafted, Subject: "status_update"},
	}
	for _, e := range events {
		require.NoError(t, sink.Publish(ctx, e))
	}

	assert.Len(t, sink.Events(), 3)
	byLoan := sink.ByLoan("LN-1")
	require.Len(t, byLoan, 2)
	assert.Equal(t, ActionStatusChanged, byLoan[0].Action)
	assert.Equal(t, ActionCommunicationDrafted, byLoan[1].Action)
	assert.Empty(t, sink.ByLoan("LN-3"))
	assert.NoError(t, sink.Close())
}

func TestAsyncPublisherForwardsInOrder(t *testing.T) {
	sink := NewMemorySink()
	async := NewAsyncPublisher(sink, 16, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = async.Run(ctx)
		close(done)
	}()

	for i := 0; i < 5; i++ {
		require.NoError(t, async.Publish(context.Background(), Event{
			LoanID: "LN-1", Action: ActionStatusChanged,
		}))
	}

	assert.Eventually(t, func() bool {
		return len(sink.Events()) == 5
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	require.NoError(t, async.Close())
}

func TestAsyncPublisherFlushesOnShutdown(t *testing.T) {
	sink := NewMemorySink()
	async := NewAsyncPublisher(sink, 16, nil)

	// Queue before the worker starts, then let a cancelled run drain.
	for i := 0; i < 4; i++ {
		require.NoError(t, async.Publish(context.Background(), Event{LoanID: "LN-2", Action: ActionExceptionOpened}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = async.Run(ctx)

	assert.Len(t, sink.Events(), 4)
}

func TestAsyncPublisherDropsWhenFull(t *testing.T) {
	sink := NewMemorySink()
	async := NewAsyncPublisher(sink, 2, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, async.Publish(context.Background(), Event{LoanID: "LN-3", Action: ActionStatusChanged}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = async.Run(ctx)

	assert.Len(t, sink.Events(), 2, "overflow beyond the buffer is dropped")
}
