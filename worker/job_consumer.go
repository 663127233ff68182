package worker

import (
	"context"
	"errors"
	"time"

	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/mq"
)

type JobHandler interface {
	HandleJob(ctx context.Context, job Job) error
}

type JobConsumer struct {
	jobsQueue mq.MessageQueue
	handler   JobHandler
}

func NewJobConsumer(jobsQueue mq.MessageQueue, handler JobHandler) *JobConsumer {
	return &JobConsumer{
		jobsQueue: jobsQueue,
		handler:   handler,
	}
}

// Jobs are short; a failed job becomes visible again after a minute
const visibilityTimeout = 60

func (c *JobConsumer) Run(shutdownCtx context.Context) {
	for {
		msg, err := c.jobsQueue.Receive(shutdownCtx, visibilityTimeout)

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			logging.Log.Printf("jobConsumer receive error: %v", err)
			continue
		}

		if msg == nil {
			continue
		}

		c.process(msg)
	}
}

func (c *JobConsumer) process(msg *mq.Message) {
	job, err := DecodeJob(msg.Body)
	if err != nil {
		// Malformed jobs never succeed, drop them instead of redelivering forever
		logging.Log.WithError(err).Warnf("Dropping malformed job %s", msg.Id)
		if err := c.jobsQueue.Delete(context.Background(), msg); err != nil {
			logging.Log.Printf("jobConsumer delete error: %v", err)
		}
		return
	}

	// timeout should be a little less than queue visibility timeout
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(visibilityTimeout-1)*time.Second)
	defer cancel()

	if err := c.handler.HandleJob(ctx, job); err != nil {
		logging.Log.WithError(err).WithField("job", job.Type).Error("Job failed, leaving it for redelivery")
		return
	}

	if err := c.jobsQueue.Delete(context.Background(), msg); err != nil {
		logging.Log.Printf("jobConsumer delete error: %v", err)
	}
}
