package mockkafka

import (
	"time"

	"github.com/hugolhafner/go-consumer/kafka"
)

// MessageBuilder provides a fluent interface for building test messages.
// Coordinates left unset are filled in by AddMessages.
type MessageBuilder struct {
	message kafka.Message
}

// Msg creates a new MessageBuilder with the given key and value.
func Msg(key, value string) *MessageBuilder {
	return &MessageBuilder{
		message: kafka.Message{
			Key:       []byte(key),
			Value:     []byte(value),
			Offset:    -1,
			Timestamp: time.Now(),
		},
	}
}

// MsgBytes creates a new MessageBuilder with byte slices for key and value.
func MsgBytes(key, value []byte) *MessageBuilder {
	return &MessageBuilder{
		message: kafka.Message{
			Key:       key,
			Value:     value,
			Offset:    -1,
			Timestamp: time.Now(),
		},
	}
}

// WithOffset sets the message's offset.
func (b *MessageBuilder) WithOffset(offset int64) *MessageBuilder {
	b.message.Offset = offset
	return b
}

// WithTimestamp sets the message's timestamp.
func (b *MessageBuilder) WithTimestamp(ts time.Time) *MessageBuilder {
	b.message.Timestamp = ts
	return b
}

// WithHeader appends a header. Duplicate keys are allowed.
func (b *MessageBuilder) WithHeader(key string, value []byte) *MessageBuilder {
	b.message.Headers = append(b.message.Headers, kafka.Header{Key: key, Value: value})
	return b
}

// WithLeaderEpoch sets the leader epoch.
func (b *MessageBuilder) WithLeaderEpoch(epoch int32) *MessageBuilder {
	b.message.LeaderEpoch = epoch
	return b
}

// Build returns the constructed Message.
func (b *MessageBuilder) Build() kafka.Message {
	return b.message
}

// SimpleMessage creates a Message with just key and value as strings.
func SimpleMessage(key, value string) kafka.Message {
	return Msg(key, value).Build()
}

// SimpleMessages creates multiple Messages from key-value pairs.
// key, value argument pairs
func SimpleMessages(keyValuePairs ...string) []kafka.Message {
	if len(keyValuePairs)%2 != 0 {
		panic("SimpleMessages requires an even number of arguments (key-value pairs)")
	}

	messages := make([]kafka.Message, 0, len(keyValuePairs)/2)
	for i := 0; i < len(keyValuePairs); i += 2 {
		messages = append(messages, SimpleMessage(keyValuePairs[i], keyValuePairs[i+1]))
	}
	return messages
}
