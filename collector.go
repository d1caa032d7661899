package scopez

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector buffers finalized records for batch export.
// Register Collect as a finalizer or listener.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field alignment optimized for readability over memory efficiency
type Collector struct {
	records      []*Record
	recordsCh    chan *Record
	stopCh       chan struct{}
	done         chan struct{}
	droppedCount atomic.Int64
	mu           sync.Mutex
	closeOnce    sync.Once
	closed       atomic.Bool
	syncMode     atomic.Bool // Bypass channel for synchronous collection.
}

// NewCollector creates a collector whose intake channel holds bufferSize
// records.
func NewCollector(bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	c := &Collector{
		records:   make([]*Record, 0, 8),
		recordsCh: make(chan *Record, bufferSize),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go c.start()
	return c
}

// start receives records from the channel until Close.
func (c *Collector) start() {
	defer close(c.done)

	for {
		select {
		case <-c.stopCh:
			// Drain remaining records before shutdown.
			for {
				select {
				case rec := <-c.recordsCh:
					c.buffer(rec)
				default:
					return
				}
			}
		case rec := <-c.recordsCh:
			c.buffer(rec)
		}
	}
}

// Close stops the intake goroutine after draining queued records.
// Records collected afterwards are dropped.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopCh)
		select {
		case <-c.done:
		case <-time.After(100 * time.Millisecond):
		}
	})
}

// Collect queues a finalized record. If the intake channel is full, the
// record is dropped and the drop counter is incremented. In sync mode the
// record is buffered directly.
func (c *Collector) Collect(record *Record) {
	if record == nil || c.closed.Load() {
		c.droppedCount.Add(1)
		return
	}

	if c.syncMode.Load() {
		c.buffer(record)
		return
	}

	select {
	case c.recordsCh <- record:
	default:
		c.droppedCount.Add(1)
	}
}

func (c *Collector) buffer(record *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
}

// Export returns the buffered records in arrival order and clears the buffer.
func (c *Collector) Export() []*Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return nil
	}

	result := make([]*Record, len(c.records))
	copy(result, c.records)

	// Only shrink if the buffer is very oversized to avoid allocation churn.
	if cap(c.records) > 256 && len(c.records) < cap(c.records)/8 {
		c.records = make([]*Record, 0, cap(c.records)/4)
	} else {
		clear(c.records)
		c.records = c.records[:0]
	}

	return result
}

// Count returns the number of buffered records.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// DroppedCount returns the number of records dropped due to backpressure or
// after Close.
func (c *Collector) DroppedCount() int64 {
	return c.droppedCount.Load()
}

// SetSyncMode enables synchronous collection.
// Makes tests deterministic by eliminating async behavior.
func (c *Collector) SetSyncMode(sync bool) {
	c.syncMode.Store(sync)
}

// Reset clears all buffered records and the drop counter.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.records)
	c.records = c.records[:0]
	c.droppedCount.Store(0)
}
