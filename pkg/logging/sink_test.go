package logging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogWriter struct {
	mu      sync.Mutex
	batches [][]LogEntry
	err     error
}

func (m *mockLogWriter) WriteBatch(ctx context.Context, entries []LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	batch := make([]LogEntry, len(entries))
	copy(batch, entries)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *mockLogWriter) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func (m *mockLogWriter) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func TestDBSink_FullBatchesWrittenEagerly(t *testing.T) {
	writer := &mockLogWriter{}
	sink := NewDBSink(DBSinkConfig{Writer: writer, BufferSize: 100, BatchSize: 10, FlushInterval: time.Hour})
	defer sink.Close()

	for i := 0; i < 25; i++ {
		sink.Write(LogEntry{Timestamp: time.Now(), Level: "info", Message: "poll"})
	}

	assert.Eventually(t, func() bool { return writer.batchCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 20, writer.total())
}

func TestDBSink_FlushWritesPartialBatch(t *testing.T) {
	writer := &mockLogWriter{}
	sink := NewDBSink(DBSinkConfig{Writer: writer, BatchSize: 50, FlushInterval: time.Hour})
	defer sink.Close()

	for i := 0; i < 3; i++ {
		sink.Write(LogEntry{Level: "warn", Message: "skip malformed"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sink.Flush(ctx))
	assert.Equal(t, 3, writer.total())
}

func TestDBSink_CloseDrains(t *testing.T) {
	writer := &mockLogWriter{}
	sink := NewDBSink(DBSinkConfig{Writer: writer, BatchSize: 100, FlushInterval: time.Hour})

	for i := 0; i < 7; i++ {
		sink.Write(LogEntry{Message: "x"})
	}
	require.NoError(t, sink.Close())
	assert.Equal(t, 7, writer.total())

	// Writes after close are ignored.
	sink.Write(LogEntry{Message: "late"})
	assert.NoError(t, sink.Flush(context.Background()))
	assert.Equal(t, 7, writer.total())
}

func TestDBSink_WriterErrorSurfacesOnFlush(t *testing.T) {
	writer := &mockLogWriter{err: errors.New("db down")}
	sink := NewDBSink(DBSinkConfig{Writer: writer, FlushInterval: time.Hour})
	defer sink.Close()

	sink.Write(LogEntry{Message: "x"})
	err := sink.Flush(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestNewDBSink_PanicsWithoutWriter(t *testing.T) {
	assert.Panics(t, func() { NewDBSink(DBSinkConfig{}) })
}
