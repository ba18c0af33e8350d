package api

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gaitworks/flexion/internal/fusion"
	"github.com/gaitworks/flexion/internal/pose"
)

// Publisher pushes fused angle updates to a live dashboard.
type Publisher interface {
	PublishFused(sessionID string, joint pose.JointID, sample fusion.FrameAngle) error
}

// MQTTPublisher publishes fused angles over MQTT, one topic per session
// and joint: flexion/sessions/<id>/fused/<joint>.
type MQTTPublisher struct {
	client mqtt.Client
}

// NewMQTTPublisher connects to the broker and returns a publisher. The
// broker URL uses paho's scheme form, e.g. "tcp://localhost:1883".
func NewMQTTPublisher(brokerURL, clientID string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTTPublisher{client: client}, nil
}

type fusedMessage struct {
	SessionID   string  `json:"session_id"`
	Joint       string  `json:"joint"`
	FrameIndex  int     `json:"frame_index"`
	TimestampMS float64 `json:"timestamp_ms"`
	AngleDeg    float64 `json:"angle_deg"`
}

// PublishFused sends one fused sample at QoS 0; the dashboard only wants
// the freshest value.
func (p *MQTTPublisher) PublishFused(sessionID string, joint pose.JointID, sample fusion.FrameAngle) error {
	payload, err := json.Marshal(fusedMessage{
		SessionID:   sessionID,
		Joint:       string(joint),
		FrameIndex:  sample.FrameIndex,
		TimestampMS: sample.TimestampMS,
		AngleDeg:    sample.AngleDeg,
	})
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("flexion/sessions/%s/fused/%s", sessionID, joint)
	if token := p.client.Publish(topic, 0, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
