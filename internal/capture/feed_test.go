package capture

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestASRFeedWriteRead(t *testing.T) {
	t.Parallel()

	feed, err := NewASRFeed(64)
	require.NoError(t, err)

	feed.Write([]byte{1, 2, 3, 4})
	assert.Equal(t, 4, feed.Buffered())

	buf := make([]byte, 8)
	n, err := feed.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])
}

func TestASRFeedEmptyReadDoesNotBlock(t *testing.T) {
	t.Parallel()

	feed, err := NewASRFeed(64)
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := feed.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestASRFeedDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	feed, err := NewASRFeed(8)
	require.NoError(t, err)

	feed.Write([]byte{1, 2, 3, 4, 5, 6})
	feed.Write([]byte{7, 8, 9, 10})

	buf := make([]byte, 16)
	n, err := feed.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 6, 7, 8, 9, 10}, buf[:n],
		"oldest bytes are evicted, newest survive")
	assert.Equal(t, uint64(2), feed.Dropped())
}

func TestASRFeedOversizedWrite(t *testing.T) {
	t.Parallel()

	feed, err := NewASRFeed(8)
	require.NoError(t, err)

	feed.Write(bytes.Repeat([]byte{0xAA}, 100))
	assert.Equal(t, 8, feed.Buffered())
}

func TestASRFeedInvalidCapacity(t *testing.T) {
	t.Parallel()

	_, err := NewASRFeed(0)
	assert.Error(t, err)
}
