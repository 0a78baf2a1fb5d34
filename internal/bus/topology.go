package bus

import (
	"fmt"

	"github.com/pulseops-lab/pulseops/internal/core/partition"
)

// Topology maps tenants to topics.
//
// Kafka partitions natively by record key, so everything goes to one topic.
// Transports without partitions get Partitions topics named "<topic>.pNN",
// each consumed by its own sequential handler.
type Topology struct {
	Topic      string
	Partitions int
	Native     bool
}

// TopicFor returns the topic carrying orgID's events.
func (t Topology) TopicFor(orgID string) string {
	if t.Native || t.Partitions <= 1 {
		return t.Topic
	}
	return t.partitionTopic(partition.For(orgID, t.Partitions))
}

// Topics lists every topic a consumer must subscribe to.
func (t Topology) Topics() []string {
	if t.Native || t.Partitions <= 1 {
		return []string{t.Topic}
	}
	topics := make([]string, 0, t.Partitions)
	for i := 0; i < t.Partitions; i++ {
		topics = append(topics, t.partitionTopic(i))
	}
	return topics
}

func (t Topology) partitionTopic(i int) string {
	return fmt.Sprintf("%s.p%02d", t.Topic, i)
}
