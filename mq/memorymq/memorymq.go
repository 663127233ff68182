// Package memorymq is an in-process MessageQueue with SQS-like delays and
// visibility timeouts, for single-process runs and tests.
package memorymq

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/zlnvch/letterbox/mq"
)

// pollWait mirrors the long-poll window of a real queue, shortened.
const pollWait = time.Second

type MemoryMessageQueue struct {
	mu       sync.Mutex
	ready    []mq.Message
	inFlight map[string]*time.Timer
	nextId   int
	notify   chan struct{}
	closed   bool
}

func NewMemoryMessageQueue() *MemoryMessageQueue {
	return &MemoryMessageQueue{
		inFlight: make(map[string]*time.Timer),
		notify:   make(chan struct{}, 1),
	}
}

func (q *MemoryMessageQueue) push(body string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.nextId++
	q.ready = append(q.ready, mq.Message{Id: strconv.Itoa(q.nextId), Body: body})
	q.signal()
}

// signal must be called with mu held.
func (q *MemoryMessageQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryMessageQueue) Send(ctx context.Context, body string) error {
	q.push(body)
	return nil
}

func (q *MemoryMessageQueue) SendDelayed(ctx context.Context, body string, delaySeconds int32) error {
	if delaySeconds <= 0 {
		q.push(body)
		return nil
	}
	if delaySeconds > mq.MaxDelaySeconds {
		delaySeconds = mq.MaxDelaySeconds
	}
	time.AfterFunc(time.Duration(delaySeconds)*time.Second, func() { q.push(body) })
	return nil
}

func (q *MemoryMessageQueue) Receive(ctx context.Context, visibilityTimeout int32) (*mq.Message, error) {
	timer := time.NewTimer(pollWait)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			msg := q.ready[0]
			q.ready = q.ready[1:]
			// Redeliver unless deleted before the visibility timeout
			q.inFlight[msg.Id] = time.AfterFunc(time.Duration(visibilityTimeout)*time.Second, func() {
				q.mu.Lock()
				defer q.mu.Unlock()
				if _, ok := q.inFlight[msg.Id]; !ok || q.closed {
					return
				}
				delete(q.inFlight, msg.Id)
				q.ready = append(q.ready, msg)
				q.signal()
			})
			if len(q.ready) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return &msg, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-q.notify:
		}
	}
}

func (q *MemoryMessageQueue) Delete(ctx context.Context, msg *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.inFlight[msg.Id]; ok {
		t.Stop()
		delete(q.inFlight, msg.Id)
	}
	return nil
}

// Close stops redelivery timers and drops pending messages.
func (q *MemoryMessageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	for id, t := range q.inFlight {
		t.Stop()
		delete(q.inFlight, id)
	}
	q.ready = nil
}
