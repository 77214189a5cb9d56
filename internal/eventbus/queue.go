package eventbus

import (
	"time"

	"go.uber.org/zap"
)

// Queue defers an emission until the next flush.
func (b *Bus) Queue(name string, data any) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	b.queue = append(b.queue, queuedEvent{name: name, data: data, queuedAt: time.Now()})
}

// FlushQueue emits every queued event in enqueue order and returns how many
// were emitted. A flush started while another is running returns 0 and emits
// nothing; events queued during a flush wait for the next one.
func (b *Bus) FlushQueue() int {
	b.queueMu.Lock()
	if len(b.queue) == 0 || b.flushing {
		b.queueMu.Unlock()
		return 0
	}
	b.flushing = true
	pending := b.queue
	b.queue = nil
	b.queueMu.Unlock()

	defer func() {
		b.queueMu.Lock()
		b.flushing = false
		b.queueMu.Unlock()
	}()

	for _, q := range pending {
		b.Emit(q.name, q.data)
	}

	if len(pending) > 1 {
		b.logger.Debug("EventBus flushed queue", zap.Int("count", len(pending)))
	}
	return len(pending)
}

// FlushQueueNextTick flushes on a separate goroutine and delivers the count
// on the returned channel.
func (b *Bus) FlushQueueNextTick() <-chan int {
	done := make(chan int, 1)
	go func() {
		done <- b.FlushQueue()
		close(done)
	}()
	return done
}

// FlushQueueDelayed schedules a flush after delay. Calling it again before the
// timer fires replaces the pending flush.
func (b *Bus) FlushQueueDelayed(delay time.Duration) {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}

	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	if b.flushTimer != nil {
		b.flushTimer.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.FlushQueue()
		b.queueMu.Lock()
		if b.flushTimer == timer {
			b.flushTimer = nil
		}
		b.queueMu.Unlock()
	})
	b.flushTimer = timer
}

// QueueLength returns the number of queued events.
func (b *Bus) QueueLength() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return len(b.queue)
}

// ClearQueue drops queued events and cancels any delayed flush.
func (b *Bus) ClearQueue() {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	b.queue = nil
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
}
