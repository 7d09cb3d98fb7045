// Package activejob routes background-job envelopes consumed from a topic to
// registered handlers. A topic carrying envelopes is declared with
// route.WithActiveJob and consumed through the adapter Consumer.
package activejob

import (
	"encoding/json"
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// Envelope is the wire format of one enqueued job.
type Envelope struct {
	Job        string          `json:"job"`
	Args       json.RawMessage `json:"args"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Job is a decoded envelope together with the record it arrived in.
type Job struct {
	Name       string
	Args       json.RawMessage
	EnqueuedAt time.Time
	Message    kafka.Message
}

// UnmarshalArgs decodes the job arguments into v.
func (j Job) UnmarshalArgs(v any) error {
	return json.Unmarshal(j.Args, v)
}
