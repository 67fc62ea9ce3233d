package logging

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"
)

// LogEntry is a single log line as handed to a Sink.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Service   string
	Message   string
	Fields    map[string]string
	TraceID   string
	Caller    string
}

// LogWriter persists batches of entries.
type LogWriter interface {
	WriteBatch(ctx context.Context, entries []LogEntry) error
}

// Sink receives log entries alongside the primary zerolog output.
type Sink interface {
	// Write queues an entry. It must never block the caller.
	Write(entry LogEntry)
	// Flush blocks until queued entries are written or ctx ends.
	Flush(ctx context.Context) error
	Close() error
}

// DBSink buffers entries on a channel and writes them in batches from a
// single background goroutine.
type DBSink struct {
	writer       LogWriter
	entries      chan LogEntry
	flushReq     chan chan error
	interval     time.Duration
	batchSize    int
	writeTimeout time.Duration

	wg     sync.WaitGroup
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// DBSinkConfig configures a DBSink.
type DBSinkConfig struct {
	Writer LogWriter
	// BufferSize is the queue capacity (default 1000). Entries beyond it are dropped.
	BufferSize int
	// BatchSize is the max entries per write (default 100).
	BatchSize int
	// FlushInterval is how often a partial batch is written (default 2s).
	FlushInterval time.Duration
}

// NewDBSink starts a sink. Close must be called to stop the writer goroutine.
func NewDBSink(cfg DBSinkConfig) *DBSink {
	if cfg.Writer == nil {
		panic("logging: DBSink requires a non-nil Writer")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	s := &DBSink{
		writer:       cfg.Writer,
		entries:      make(chan LogEntry, cfg.BufferSize),
		flushReq:     make(chan chan error),
		interval:     cfg.FlushInterval,
		batchSize:    cfg.BatchSize,
		writeTimeout: 5 * time.Second,
		done:         make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Write queues an entry, dropping it when the buffer is full.
func (s *DBSink) Write(entry LogEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.entries <- entry:
	default:
		fmt.Fprintf(os.Stderr, "[DBSink] buffer full, dropping log entry: %s\n", entry.Message)
	}
}

// Flush writes everything queued so far.
func (s *DBSink) Flush(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil
	}

	reply := make(chan error, 1)
	select {
	case s.flushReq <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the writer goroutine.
func (s *DBSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *DBSink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	batch := make([]LogEntry, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		defer cancel()
		err := s.writer.WriteBatch(ctx, batch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[DBSink] failed to write batch of %d entries: %v\n", len(batch), err)
		}
		batch = batch[:0]
		return err
	}
	add := func(e LogEntry) {
		batch = append(batch, e)
		if len(batch) >= s.batchSize {
			_ = flush()
		}
	}

	for {
		select {
		case e := <-s.entries:
			add(e)
		case <-ticker.C:
			_ = flush()
		case reply := <-s.flushReq:
			// Pull in whatever is already queued before answering.
			for pending := len(s.entries); pending > 0; pending-- {
				add(<-s.entries)
			}
			reply <- flush()
		case <-s.done:
			for {
				select {
				case e := <-s.entries:
					add(e)
				default:
					_ = flush()
					return
				}
			}
		}
	}
}

// getCaller returns file:line for the frame skip levels up.
func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			file = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}
