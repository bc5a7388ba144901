package mqttbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/anggasct/junction"
	"github.com/anggasct/junction/pkg/feed"
)

// DefaultSnapshotTopic matches snapshots for both approaches; the approach is the second topic level
const DefaultSnapshotTopic = "junction/+/snapshot"

// SnapshotMessage is the payload a camera node publishes for one approach.
// Seq ties the two approaches' messages for the same instant together.
type SnapshotMessage struct {
	Seq uint64 `json:"seq"`
	junction.TrafficSnapshot
}

// Subscriber receives per-approach snapshots and latches them into pairs
type Subscriber struct {
	client mqtt.Client
	topic  string
	qos    byte
	latch  *feed.Latch
	logger *slog.Logger
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	SnapshotTopic string // e.g., "junction/+/snapshot"
	QoS           byte
}

// NewSubscriber creates a subscriber feeding latch
func NewSubscriber(client mqtt.Client, config SubscriberConfig, latch *feed.Latch, logger *slog.Logger) *Subscriber {
	if config.SnapshotTopic == "" {
		config.SnapshotTopic = DefaultSnapshotTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client: client,
		topic:  config.SnapshotTopic,
		qos:    config.QoS,
		latch:  latch,
		logger: logger.With("component", "mqtt-subscriber"),
	}
}

// Subscribe subscribes to the snapshot topic
func (s *Subscriber) Subscribe() error {
	token := s.client.Subscribe(s.topic, s.qos, s.handleSnapshot)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to snapshot topic: %w", token.Error())
	}
	s.logger.Info("subscribed", "topic", s.topic)
	return nil
}

// Unsubscribe removes the snapshot subscription
func (s *Subscriber) Unsubscribe() error {
	token := s.client.Unsubscribe(s.topic)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe from snapshot topic: %w", token.Error())
	}
	return nil
}

// handleSnapshot decodes one approach's snapshot and offers it to the latch
func (s *Subscriber) handleSnapshot(_ mqtt.Client, msg mqtt.Message) {
	approach, err := approachFromTopic(msg.Topic())
	if err != nil {
		s.logger.Warn("dropping snapshot", "topic", msg.Topic(), "error", err)
		return
	}

	var payload SnapshotMessage
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		s.logger.Warn("error unmarshaling snapshot", "topic", msg.Topic(), "error", err)
		return
	}

	if pair, ok := s.latch.Offer(payload.Seq, approach, payload.TrafficSnapshot); ok {
		s.logger.Debug("pair complete",
			"seq", payload.Seq,
			"ns_queue", pair.NS.QueueLength,
			"sn_queue", pair.SN.QueueLength)
	}
}

// approachFromTopic extracts the approach from an MQTT topic
// Example: "junction/north_south/snapshot" -> ApproachA
func approachFromTopic(topic string) (junction.Approach, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return junction.ApproachA, fmt.Errorf("topic %q has no approach level", topic)
	}
	return junction.ParseApproach(parts[1])
}
