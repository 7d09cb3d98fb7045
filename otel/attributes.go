package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrTopic       = attribute.Key("messaging.destination.name")
	AttrPartition   = attribute.Key("messaging.kafka.partition")
	AttrGroup       = attribute.Key("messaging.consumer.group.name")
	AttrJobKind     = attribute.Key("consumer.job.kind")
	AttrStrategy    = attribute.Key("consumer.strategy")
	AttrBatchStatus = attribute.Key("consumer.batch.status")
	AttrErrorType   = attribute.Key("consumer.error.type")
)

// Batch status values
const (
	StatusSuccess = "success"
	StatusRetried = "retried"
	StatusDLQ     = "dlq"
	StatusSkipped = "skipped"
)

// Error type values
const (
	ErrorFetchLoop = "connection.listener.fetch_loop.error"
	ErrorDispatch  = "dead_letter.dispatch.error"
	ErrorCommit    = "commit.error"
)
