package models

import "time"

// ChannelMessageType discriminates telemetry channel envelopes.
type ChannelMessageType string

const (
	// Server to client.
	ChannelConnected    ChannelMessageType = "connected"
	ChannelSensorUpdate ChannelMessageType = "sensor_update"
	ChannelNewAlert     ChannelMessageType = "new_alert"

	// Client to server control frames.
	ChannelSubscribeTank   ChannelMessageType = "subscribe_tank"
	ChannelUnsubscribeTank ChannelMessageType = "unsubscribe_tank"
)

// ChannelMessage is the envelope for all telemetry channel traffic.
// Exactly one of Reading/Alert is set for data messages; ResourceID is
// set for control frames.
type ChannelMessage struct {
	Type       ChannelMessageType `json:"type"`
	Timestamp  time.Time          `json:"timestamp,omitempty"`
	ResourceID string             `json:"resource_id,omitempty"`
	Reading    *SensorReading     `json:"reading,omitempty"`
	Alert      *AlertEvent        `json:"alert,omitempty"`
}
