package types

import "time"

// SlaveState is the connection state of a registered slave.
type SlaveState string

const (
	// SlaveStateConnected indicates the slave connection is live.
	SlaveStateConnected SlaveState = "connected"
	// SlaveStateDisconnected indicates the connection was lost or closed.
	SlaveStateDisconnected SlaveState = "disconnected"
)

// SlaveInfo is a read-only view of a registered slave.
type SlaveInfo struct {
	ID          int64      `json:"id"`
	Address     string     `json:"address"`
	State       SlaveState `json:"state"`
	ConnectedAt time.Time  `json:"connected_at"`
}

// SlaveEvent represents a slave lifecycle event.
type SlaveEvent struct {
	Type    SlaveEventType
	SlaveID int64
	Slave   *SlaveInfo
}

// SlaveEventType defines the type of slave event.
type SlaveEventType string

const (
	// SlaveEventRegistered indicates a slave was registered.
	SlaveEventRegistered SlaveEventType = "registered"
	// SlaveEventUnregistered indicates a slave was removed.
	SlaveEventUnregistered SlaveEventType = "unregistered"
)
