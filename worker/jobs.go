package worker

import (
	"encoding/json"
	"fmt"
)

type JobType string

const (
	// JobCheckDelivery delivers a scheduled letter once its instant has passed.
	JobCheckDelivery JobType = "check_delivery"
	// JobCleanupLetter removes the sealed attachments of an opened or deleted letter.
	JobCleanupLetter JobType = "cleanup_letter"
	// JobPushKey copies an identity's current public key onto its peers' pairing edges.
	JobPushKey JobType = "push_key"
)

type Job struct {
	Type       JobType `json:"type"`
	LetterId   string  `json:"letterId,omitempty"`
	IdentityId string  `json:"identityId,omitempty"`
}

func (j Job) Encode() (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeJob(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, err
	}
	switch job.Type {
	case JobCheckDelivery, JobCleanupLetter:
		if job.LetterId == "" {
			return Job{}, fmt.Errorf("job %s missing letter id", job.Type)
		}
	case JobPushKey:
		if job.IdentityId == "" {
			return Job{}, fmt.Errorf("job %s missing identity id", job.Type)
		}
	default:
		return Job{}, fmt.Errorf("unknown job type %q", job.Type)
	}
	return job, nil
}
