package mockkafka

// Option is a functional option for configuring a mock Client.
type Option func(*Client)

// WithMaxPollRecords sets the maximum number of messages returned per
// BatchPoll call. Default is 100, matching the real client.
func WithMaxPollRecords(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPollRecords = n
		}
	}
}

// WithGroupID sets the consumer group id reported by GroupID.
func WithGroupID(id string) Option {
	return func(c *Client) {
		c.groupID = id
	}
}

// WithPollError configures an error to be returned by all BatchPoll calls.
func WithPollError(err error) Option {
	return func(c *Client) {
		c.pollErr = func() error { return err }
	}
}

// WithCommitError configures an error to be returned by all CommitMarked calls.
func WithCommitError(err error) Option {
	return func(c *Client) {
		c.commitErr = func() error { return err }
	}
}

// WithProduceError configures an error to be returned by Produce for every
// topic. ProduceAsync swallows the error like the real client does.
func WithProduceError(err error) Option {
	return func(c *Client) {
		c.produceErr = func(string) error { return err }
	}
}

// WithPingError configures an error to be returned by Ping.
func WithPingError(err error) Option {
	return func(c *Client) {
		c.pingErr = err
	}
}
