package conn

// Event topics published by the connection manager.
const (
	TopicConnected    = "channel.connected"
	TopicDisconnected = "channel.disconnected"
	TopicUnbound      = "channel.unbound"
	TopicReading      = "channel.reading"
	TopicAlert        = "channel.alert"
)

// ConnectedEvent is the payload for channel.connected.
type ConnectedEvent struct {
	Identity string
}

// DisconnectedEvent is the payload for channel.disconnected. Final is
// true when the retry budget is exhausted and the manager has gone idle;
// the UI surfaces this as "offline".
type DisconnectedEvent struct {
	Identity string
	Reason   string
	Final    bool
}

// UnboundEvent is the payload for channel.unbound, published when a
// binding is torn down by Unbind or replaced by a rebind. Subscriptions
// from the old binding are invalid once this fires.
type UnboundEvent struct {
	Identity string
}
