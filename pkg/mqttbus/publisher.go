package mqttbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/anggasct/junction"
)

// Default outbound topics; {junction} is replaced with the junction name
const (
	DefaultFrameTopic = "junction/{junction}/frame"
	DefaultPhaseTopic = "junction/{junction}/phase"
)

// PhaseMessage is published on every phase change
type PhaseMessage struct {
	Tick          uint64    `json:"tick"`
	At            time.Time `json:"at"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Reason        string    `json:"reason"`
	ServedSeconds float64   `json:"served_seconds"`
	GreenSeconds  float64   `json:"green_seconds"`
}

// Publisher publishes frames from a channel and phase changes as an observer
type Publisher struct {
	junction.BaseObserver

	client mqtt.Client
	logger *slog.Logger

	// Input channel (read by publisher, written by the simulation runner)
	FrameChan chan junction.Frame

	frameTopic string
	phaseTopic string
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	Junction   string
	FrameTopic string // e.g., "junction/{junction}/frame"
	PhaseTopic string // e.g., "junction/{junction}/phase"
}

// NewPublisher creates a new MQTT publisher reading frames from frameChan
func NewPublisher(client mqtt.Client, config PublisherConfig, frameChan chan junction.Frame, logger *slog.Logger) *Publisher {
	if config.FrameTopic == "" {
		config.FrameTopic = DefaultFrameTopic
	}
	if config.PhaseTopic == "" {
		config.PhaseTopic = DefaultPhaseTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:     client,
		logger:     logger.With("component", "mqtt-publisher"),
		FrameChan:  frameChan,
		frameTopic: formatTopic(config.FrameTopic, config.Junction),
		phaseTopic: formatTopic(config.PhaseTopic, config.Junction),
	}
}

// Start begins publishing frames from the channel
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("starting", "topic", p.frameTopic)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, shutting down")
			return

		case frame, ok := <-p.FrameChan:
			if !ok {
				p.logger.Info("frame channel closed, shutting down")
				return
			}
			if err := p.PublishFrame(frame); err != nil {
				p.logger.Warn("error publishing frame", "error", err)
			}
		}
	}
}

// PublishFrame publishes a single frame without retention
func (p *Publisher) PublishFrame(frame junction.Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return p.publish(p.frameTopic, 0, false, payload)
}

// OnTransition publishes the phase change, retained so late subscribers see the current phase
func (p *Publisher) OnTransition(change junction.PhaseChange, ctx *junction.TickContext) {
	msg := PhaseMessage{
		Tick:          change.Tick,
		At:            change.At,
		From:          string(change.From),
		To:            string(change.To),
		Reason:        string(change.Reason),
		ServedSeconds: change.Served.Seconds(),
		GreenSeconds:  change.GreenDuration.Seconds(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Warn("error marshaling phase change", "error", err)
		return
	}
	if err := p.publish(p.phaseTopic, 1, true, payload); err != nil {
		p.logger.Warn("error publishing phase change", "error", err)
	}
}

func (p *Publisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

// formatTopic replaces the {junction} placeholder with the junction name
func formatTopic(topicPattern, name string) string {
	return strings.ReplaceAll(topicPattern, "{junction}", name)
}
