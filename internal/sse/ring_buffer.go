package sse

import (
	"strconv"
	"sync"
)

const defaultRingBufferSize = 200

// RingBuffer keeps the most recent events so a reconnecting client can
// resume from its Last-Event-ID.
type RingBuffer struct {
	mu       sync.RWMutex
	capacity int
	items    []SSEEvent
	start    int
	size     int
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultRingBufferSize
	}

	return &RingBuffer{
		capacity: capacity,
		items:    make([]SSEEvent, capacity),
	}
}

func (rb *RingBuffer) Push(event SSEEvent) {
	if rb == nil {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size < rb.capacity {
		rb.items[(rb.start+rb.size)%rb.capacity] = event
		rb.size++
		return
	}

	rb.items[rb.start] = event
	rb.start = (rb.start + 1) % rb.capacity
}

// Since returns events with a sequence greater than lastID, oldest first.
// An empty or unparsable lastID yields nothing: fresh clients load the
// active list over the REST API instead of replaying history.
func (rb *RingBuffer) Since(lastID string) []SSEEvent {
	if rb == nil || lastID == "" {
		return nil
	}

	lastSeq, err := strconv.ParseInt(lastID, 10, 64)
	if err != nil {
		return nil
	}

	rb.mu.RLock()
	defer rb.mu.RUnlock()

	result := make([]SSEEvent, 0, rb.size)
	for i := 0; i < rb.size; i++ {
		event := rb.items[(rb.start+i)%rb.capacity]
		seq, err := strconv.ParseInt(event.ID, 10, 64)
		if err != nil || seq <= lastSeq {
			continue
		}
		result = append(result, event)
	}
	return result
}
