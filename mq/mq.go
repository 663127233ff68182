package mq

import "context"

// MaxDelaySeconds is the longest delay a queue accepts for one message.
const MaxDelaySeconds = 900

type MessageQueue interface {
	Send(ctx context.Context, body string) error
	// SendDelayed hides the message from consumers for delaySeconds,
	// capped at MaxDelaySeconds.
	SendDelayed(ctx context.Context, body string, delaySeconds int32) error
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	Id   string
	Body string
}
