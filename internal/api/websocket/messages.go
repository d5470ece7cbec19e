package websocket

import (
	"time"

	"github.com/google/uuid"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeRunProgress   MessageType = "run_progress"
	MessageTypeRunReport     MessageType = "run_report"
	MessageTypeScanCompleted MessageType = "scan_completed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`

	// runID is used for per-client filtering; uuid.Nil reaches everyone.
	runID uuid.UUID
}

// ScanCompletedData summarises a finished discovery scan.
type ScanCompletedData struct {
	Units     int                      `json:"units"`
	Conflicts []*types.ValidationError `json:"conflicts,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewProgressMessage(p types.Progress) Message {
	msg := NewMessage(MessageTypeRunProgress, p)
	msg.runID = p.RunID
	return msg
}

func NewReportMessage(report *types.SyncReport) Message {
	msg := NewMessage(MessageTypeRunReport, report.View())
	msg.runID = report.RunID
	return msg
}

func NewScanCompletedMessage(units int, conflicts []*types.ValidationError) Message {
	return NewMessage(MessageTypeScanCompleted, ScanCompletedData{Units: units, Conflicts: conflicts})
}
