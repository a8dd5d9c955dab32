package mqttsup

import "time"

// ConnectionState is one observed transition of the supervisor's connection.
type ConnectionState struct {
	IsConnected   bool
	AttemptNumber int
	LastError     error
	UpdatedAt     time.Time
}

// IncomingMessage is a single message delivered on any subscribed topic.
type IncomingMessage struct {
	Topic   string
	Payload []byte
}

// queuedMessage is an offline-queue entry awaiting publish once the
// supervisor reconnects.
type queuedMessage struct {
	topic     string
	payload   []byte
	enqueued  time.Time
}
