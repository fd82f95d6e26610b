package binstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filegrind/binstream-go/wire"
)

func TestProgressQueueDelivers(t *testing.T) {
	q := NewProgressQueue(4, nil)
	defer q.Close()

	id := wire.NewStreamID()
	q.Publish(ProgressNotification{StreamID: id, BytesTransferred: 10, TotalBytes: 100})
	q.Publish(ProgressNotification{StreamID: id, BytesTransferred: 100, TotalBytes: 100, Complete: true})

	first := <-q.Notifications()
	assert.Equal(t, uint64(10), first.BytesTransferred)
	assert.False(t, first.Complete)

	second := <-q.Notifications()
	assert.Equal(t, uint64(100), second.BytesTransferred)
	assert.True(t, second.Complete)

	assert.Equal(t, uint64(0), q.Dropped())
}

func TestProgressQueueDropsWhenFull(t *testing.T) {
	q := NewProgressQueue(2, nil)
	defer q.Close()

	for i := 0; i < 5; i++ {
		q.Publish(ProgressNotification{BytesTransferred: uint64(i)})
	}

	assert.Equal(t, uint64(3), q.Dropped())
	assert.Len(t, q.Notifications(), 2)
}

func TestProgressQueueCloseIsIdempotent(t *testing.T) {
	q := NewProgressQueue(1, nil)
	q.Close()
	q.Close()

	_, open := <-q.Notifications()
	require.False(t, open)
}
