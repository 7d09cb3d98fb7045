package route

// SubscriptionGroup is a named set of topics consumed over one broker
// connection. Topics in the same group share a poll loop and a jobs queue
// shard.
type SubscriptionGroup struct {
	ID     string
	Topics []*Topic
}

func NewSubscriptionGroup(id string, topics ...*Topic) *SubscriptionGroup {
	return &SubscriptionGroup{ID: id, Topics: topics}
}

// TopicNames returns the subscription list in declaration order.
func (g *SubscriptionGroup) TopicNames() []string {
	names := make([]string, 0, len(g.Topics))
	for _, t := range g.Topics {
		names = append(names, t.Name)
	}

	return names
}

// Topic looks up a routed topic by name.
func (g *SubscriptionGroup) Topic(name string) (*Topic, bool) {
	for _, t := range g.Topics {
		if t.Name == name {
			return t, true
		}
	}

	return nil, false
}

// Validate checks the group and every topic in it. Returned errors are
// always InvalidConfigurationError values.
func (g *SubscriptionGroup) Validate() error {
	if g.ID == "" {
		return InvalidConfigurationError{Field: "subscription_group.id", Reason: "must not be empty"}
	}

	if len(g.Topics) == 0 {
		return InvalidConfigurationError{
			Field: "subscription_group." + g.ID + ".topics", Reason: "must contain at least one topic",
		}
	}

	seen := make(map[string]struct{}, len(g.Topics))
	for _, t := range g.Topics {
		if err := t.Validate(); err != nil {
			return err
		}

		if _, dup := seen[t.Name]; dup {
			return InvalidConfigurationError{
				Field: "subscription_group." + g.ID + ".topics", Reason: "topic " + t.Name + " routed twice",
			}
		}
		seen[t.Name] = struct{}{}
	}

	return nil
}
