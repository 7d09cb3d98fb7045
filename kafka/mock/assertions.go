package mockkafka

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hugolhafner/go-consumer/kafka"
)

// AssertProducedCount verifies that exactly n records were produced.
func (c *Client) AssertProducedCount(tb testing.TB, expected int) {
	tb.Helper()

	actual := len(c.ProducedRecords())
	require.Equal(tb, expected, actual, "expected %d records, got %d", expected, actual)
}

// AssertProducedCountForTopic verifies that exactly n records were produced to a topic.
func (c *Client) AssertProducedCountForTopic(tb testing.TB, topic string, expected int) {
	tb.Helper()

	actual := len(c.ProducedRecordsForTopic(topic))
	require.Equal(tb, expected, actual, "expected %d records produced to topic %q, got %d", expected, topic, actual)
}

// AssertProduced verifies that a record with the given key and value was produced to the topic.
func (c *Client) AssertProduced(tb testing.TB, topic string, key, value []byte) {
	tb.Helper()

	records := c.ProducedRecordsForTopic(topic)
	for _, r := range records {
		if bytes.Equal(r.Key, key) && bytes.Equal(r.Value, value) {
			return
		}
	}

	tb.Errorf(
		"expected record with key=%q value=%q to be produced to topic %q, but it was not found",
		string(key), string(value), topic,
	)
}

// AssertProducedString is a convenience method for string keys and values.
func (c *Client) AssertProducedString(tb testing.TB, topic, key, value string) {
	tb.Helper()
	c.AssertProduced(tb, topic, []byte(key), []byte(value))
}

// AssertNotProduced verifies that no record with the given key was produced to the topic.
func (c *Client) AssertNotProduced(tb testing.TB, topic string, key []byte) {
	tb.Helper()

	records := c.ProducedRecordsForTopic(topic)
	for _, r := range records {
		if bytes.Equal(r.Key, key) {
			tb.Errorf(
				"expected no record with key=%q to be produced to topic %q, but found value=%q",
				string(key), topic, string(r.Value),
			)
			return
		}
	}
}

// AssertNoProducedRecords verifies that no records were produced.
func (c *Client) AssertNoProducedRecords(tb testing.TB) {
	tb.Helper()

	records := c.ProducedRecords()
	require.Empty(tb, records, "expected no produced records, got %d", len(records))
}

// AssertProducedHeader verifies that a produced record with the given key carries
// a specific header.
func (c *Client) AssertProducedHeader(tb testing.TB, topic string, key []byte, headerKey string, headerValue []byte) {
	tb.Helper()

	records := c.ProducedRecordsForTopic(topic)
	for _, r := range records {
		if bytes.Equal(r.Key, key) {
			actual, ok := kafka.HeaderValue(r.Headers, headerKey)
			require.True(tb, ok, "record with key=%q missing header %q", string(key), headerKey)
			require.True(
				tb, bytes.Equal(actual, headerValue), "record with key=%q has header %q=%q, expected %q", string(key),
				headerKey, string(actual), string(headerValue),
			)
			return
		}
	}

	tb.Errorf("no record with key=%q found in topic %q", string(key), topic)
}

// AssertMarkedOffset verifies the marked offset for a partition. The marked
// offset is the next offset to fetch, one past the last consumed message.
func (c *Client) AssertMarkedOffset(tb testing.TB, tp kafka.TopicPartition, expected int64) {
	tb.Helper()

	offsets := c.MarkedOffsets()
	actual, ok := offsets[tp]
	require.True(tb, ok, "expected marked offset for %s, but none found", tp)
	require.Equal(
		tb, expected, actual.Offset,
		"expected marked offset %d for %s, got %d", expected, tp, actual.Offset,
	)
}

// AssertNothingMarked verifies that no offsets are currently marked.
func (c *Client) AssertNothingMarked(tb testing.TB) {
	tb.Helper()

	offsets := c.MarkedOffsets()
	require.Empty(tb, offsets, "expected no marked offsets, got %d", len(offsets))
}

// AssertCommitted verifies that some offset was committed for the partition.
func (c *Client) AssertCommitted(tb testing.TB, tp kafka.TopicPartition) {
	tb.Helper()

	_, ok := c.CommittedOffset(tp)
	require.True(tb, ok, "committed offset not found for %s", tp)
}

// AssertCommittedOffset verifies that a specific offset was committed.
func (c *Client) AssertCommittedOffset(tb testing.TB, tp kafka.TopicPartition, expected int64) {
	tb.Helper()

	actual, ok := c.CommittedOffset(tp)
	require.True(tb, ok, "expected offset %d to be committed for %s, but none found", expected, tp)
	require.Equal(
		tb, expected, actual.Offset,
		"expected offset %d to be committed for %s, got %d", expected, tp, actual.Offset,
	)
}

// AssertCommittedAtLeast verifies that the committed offset is at least the expected value.
func (c *Client) AssertCommittedAtLeast(tb testing.TB, tp kafka.TopicPartition, minOffset int64) {
	tb.Helper()

	actual, ok := c.CommittedOffset(tp)
	require.True(tb, ok, "expected offset >= %d to be committed for %s, but none found", minOffset, tp)
	require.GreaterOrEqual(
		tb, actual.Offset, minOffset,
		"expected committed offset >= %d for %s, got %d", minOffset, tp, actual.Offset,
	)
}

// AssertNothingCommitted verifies that no offsets were committed.
func (c *Client) AssertNothingCommitted(tb testing.TB) {
	tb.Helper()

	offsets := c.CommittedOffsets()
	require.Empty(tb, offsets, "expected no committed offsets, got %d", len(offsets))
}

// AssertPaused verifies that the partition is currently paused.
func (c *Client) AssertPaused(tb testing.TB, tp kafka.TopicPartition) {
	tb.Helper()

	require.True(tb, c.IsPaused(tp), "expected partition %s to be paused", tp)
}

// AssertNotPaused verifies that the partition is not currently paused.
func (c *Client) AssertNotPaused(tb testing.TB, tp kafka.TopicPartition) {
	tb.Helper()

	require.False(tb, c.IsPaused(tp), "expected partition %s to not be paused", tp)
}

// AssertSeekedTo verifies that Seek was called for the partition with the offset.
func (c *Client) AssertSeekedTo(tb testing.TB, tp kafka.TopicPartition, offset int64) {
	tb.Helper()

	calls := c.SeekCalls(tp)
	for _, o := range calls {
		if o == offset {
			return
		}
	}

	tb.Errorf("expected seek to offset %d on %s, got seeks %v", offset, tp, calls)
}

// AssertSubscribed verifies that the client is subscribed to the given topics.
func (c *Client) AssertSubscribed(tb testing.TB, topics ...string) {
	tb.Helper()

	subs := make(map[string]bool)
	for _, s := range c.Subscriptions() {
		subs[s] = true
	}

	for _, topic := range topics {
		if !subs[topic] {
			tb.Errorf("expected client to be subscribed to topic %q, but it is not", topic)
		}
	}
}

// AssertAssigned verifies that the given partitions are currently assigned.
func (c *Client) AssertAssigned(tb testing.TB, partitions ...kafka.TopicPartition) {
	tb.Helper()

	assigned := make(map[kafka.TopicPartition]bool)
	for _, tp := range c.Rebalance().Assigned() {
		assigned[tp] = true
	}

	for _, tp := range partitions {
		if !assigned[tp] {
			tb.Errorf("expected partition %s to be assigned, but it is not", tp)
		}
	}
}

// AssertClosed verifies that Close() was called.
func (c *Client) AssertClosed(tb testing.TB) {
	tb.Helper()

	require.True(tb, c.IsClosed(), "expected client to be closed")
}

// AssertNotClosed verifies that Close() was not called.
func (c *Client) AssertNotClosed(tb testing.TB) {
	tb.Helper()

	require.False(tb, c.IsClosed(), "expected client to not be closed, but it is")
}
