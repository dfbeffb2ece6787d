package master

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yqhp/freq-engine/pkg/protocol"
	"yqhp/freq-engine/pkg/types"
)

// handle runs h on one end of a pipe and returns the other end.
func handle(t *testing.T, h *ClientHandler) (net.Conn, <-chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })

	done := make(chan struct{})
	go func() {
		h.Handle(context.Background(), server)
		close(done)
	}()
	return client, done
}

func waitHandled(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return")
	}
}

func TestClientHandlerJob(t *testing.T) {
	stats := NewStats()
	h := NewClientHandler(NewDistributor(newFakeDispatcher(2), zap.NewNop(), stats), zap.NewNop(), stats)
	client, done := handle(t, h)

	go func() {
		_ = protocol.NewEncoder(client).Encode(&types.Job{
			Documents: []types.Document{
				{Name: "a.txt", Content: "Hello world! Hello user."},
				{Name: "b.txt", Content: "nothing here"},
			},
			Keywords: []string{" hello ", "world", "HELLO", ""},
		})
	}()

	var result types.AggregateResult
	require.NoError(t, protocol.NewDecoder(bufio.NewReader(client)).Decode(&result))
	waitHandled(t, done)

	assert.Equal(t, []string{"hello", "world"}, result.KeywordOrder)
	assert.Equal(t, []string{"a.txt", "b.txt"}, result.FileOrder)
	assert.InDelta(t, 50.0, result.Percentage("hello", "a.txt"), 1e-9)
	assert.InDelta(t, 25.0, result.Percentage("world", "a.txt"), 1e-9)
	assert.Zero(t, result.Percentage("hello", "b.txt"))
	assert.GreaterOrEqual(t, result.TotalProcessingMs, int64(0))
	assert.Equal(t, int64(1), stats.Snapshot().JobsHandled)
}

func TestClientHandlerEmptyRequest(t *testing.T) {
	h := NewClientHandler(NewDistributor(newFakeDispatcher(1), zap.NewNop(), nil), zap.NewNop(), nil)
	client, done := handle(t, h)

	require.NoError(t, client.Close())
	waitHandled(t, done)
}

func TestClientHandlerBlankLine(t *testing.T) {
	h := NewClientHandler(NewDistributor(newFakeDispatcher(1), zap.NewNop(), nil), zap.NewNop(), nil)
	client, done := handle(t, h)

	_, err := client.Write([]byte("\n"))
	require.NoError(t, err)
	waitHandled(t, done)

	// closed without a reply
	_, err = client.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestClientHandlerMalformedRequest(t *testing.T) {
	fake := newFakeDispatcher(1)
	h := NewClientHandler(NewDistributor(fake, zap.NewNop(), nil), zap.NewNop(), nil)
	client, done := handle(t, h)

	_, err := client.Write([]byte("{not json}\n"))
	require.NoError(t, err)
	waitHandled(t, done)

	_, err = client.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Empty(t, fake.assigned)
}

func TestClientHandlerNoSlaves(t *testing.T) {
	h := NewClientHandler(NewDistributor(newFakeDispatcher(0), zap.NewNop(), nil), zap.NewNop(), nil)
	client, done := handle(t, h)

	go func() {
		_ = protocol.NewEncoder(client).Encode(&types.Job{
			Documents: []types.Document{{Name: "a.txt", Content: "a"}},
			Keywords:  []string{"a"},
		})
	}()

	var result types.AggregateResult
	require.NoError(t, protocol.NewDecoder(client).Decode(&result))
	waitHandled(t, done)

	assert.Empty(t, result.FileOrder)
	assert.Equal(t, []string{"a"}, result.KeywordOrder)
	assert.Empty(t, result.Matrix["a"])
}
