package tracking

import (
	"net/http"

	"github.com/matst80/slask-grid/pkg/types"
)

type Tracking interface {
	TrackSession(sessionId string, r *http.Request)
	TrackFilter(sessionId string, name string, tokens []string, results int)
	TrackSort(sessionId string, field string, direction string)
	TrackEdit(sessionId string, record types.RecordId, field string)
	TrackCommit(sessionId string, changes int)
	TrackReset(sessionId string, dropped int)
	TrackReplace(sessionId string, records int)
}

type BaseEvent struct {
	SessionId string `json:"session_id"`
	Event     uint16 `json:"event"`
}

type SessionEvent struct {
	*BaseEvent
	UserAgent    string `json:"user_agent,omitempty"`
	Ip           string `json:"ip,omitempty"`
	Language     string `json:"language,omitempty"`
	PragmaHeader string `json:"pragma,omitempty"`
}

type FilterEvent struct {
	*BaseEvent
	Name            string   `json:"name"`
	Tokens          []string `json:"tokens"`
	NumberOfResults int      `json:"noi"`
}

type SortEvent struct {
	*BaseEvent
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

type EditEvent struct {
	*BaseEvent
	Record types.RecordId `json:"record"`
	Field  string         `json:"field"`
}

type CommitEvent struct {
	*BaseEvent
	Changes int `json:"changes"`
}

type ResetEvent struct {
	*BaseEvent
	Dropped int `json:"dropped"`
}

type ReplaceEvent struct {
	*BaseEvent
	Records int `json:"records"`
}
