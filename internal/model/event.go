// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected      EventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected   EventType = "DEVICE_DISCONNECTED"
	EventDeviceError          EventType = "DEVICE_ERROR"
	EventTransactionCompleted EventType = "TRANSACTION_COMPLETED"
	EventSettlementCompleted  EventType = "SETTLEMENT_COMPLETED"
	EventDrawerOpened         EventType = "DRAWER_OPENED"
	EventBarcodeScanned       EventType = "BARCODE_SCANNED"
	EventLoyaltyCard          EventType = "LOYALTY_CARD"
)

// DeviceEvent represents an event in the system
type DeviceEvent struct {
	ID        uuid.UUID              `json:"id"`
	EventType EventType              `json:"event_type"`
	DeviceID  string                 `json:"device_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Severity  string                 `json:"severity"` // INFO, WARNING, ERROR
}

// NewDeviceEvent creates an INFO event stamped with the current time
func NewDeviceEvent(eventType EventType, deviceID, source string, data map[string]interface{}) DeviceEvent {
	return DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		DeviceID:  deviceID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Severity:  "INFO",
	}
}
