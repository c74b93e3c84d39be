package events

import (
	"encoding/json"
	"time"
)

const (
	TypePing     = "ping"
	TypeProgress = "progress"
	TypeStatus   = "job_status"
	TypeRecords  = "records_saved"
)

type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	JobID     string          `json:"job_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func MakeEvent(reqID, typ string, v int, data any) string {
	return makeEvent(reqID, "", typ, v, data)
}

// MakeJobEvent is MakeEvent for events that belong to a harvest job.
func MakeJobEvent(jobID, typ string, data any) string {
	return makeEvent("", jobID, typ, 1, data)
}

func makeEvent(reqID, jobID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		JobID:     jobID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
