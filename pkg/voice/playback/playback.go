// Package playback orders assistant audio for the listener. Chunks arrive
// from the network with jitter; the queue guarantees they are played strictly
// in arrival order, one at a time.
package playback

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("playback: queue closed")

// Player renders one chunk and returns when it has finished playing.
type Player interface {
	Play(chunk []byte) error
}

// Queue is a strict-FIFO playback queue. A single drain goroutine pops
// chunks and plays them sequentially, so a chunk starts only after every
// chunk enqueued before it has finished.
type Queue struct {
	player Player
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	closed bool

	done chan struct{}
}

func NewQueue(player Player, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		player: player,
		logger: logger,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.drain()
	return q
}

// Enqueue appends one chunk. Empty chunks are dropped.
func (q *Queue) Enqueue(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	q.chunks = append(q.chunks, buf)
	q.cond.Signal()
	return nil
}

// Reset discards every buffered chunk. A chunk already handed to the player
// finishes; nothing queued behind it survives. Used on barge-in.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.chunks = nil
	q.mu.Unlock()
}

// Buffered reports how many chunks are waiting.
func (q *Queue) Buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// Close stops the drain goroutine. Buffered chunks are discarded. Close is
// idempotent and safe from any goroutine.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.chunks = nil
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) drain() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.chunks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		chunk := q.chunks[0]
		q.chunks = q.chunks[1:]
		q.mu.Unlock()

		if err := q.player.Play(chunk); err != nil {
			q.logger.Warn("playback chunk failed", "bytes", len(chunk), "error", err)
		}
	}
}
