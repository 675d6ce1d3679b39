package domain

// ConnectionState tracks the connector's view of the source-chain endpoint.
// Owned exclusively by the connector.
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
)
