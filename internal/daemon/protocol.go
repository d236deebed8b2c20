package daemon

import (
	"encoding/json"
	"time"
)

const (
	MethodSearch  = "Search"
	MethodSources = "Sources"
	MethodStatus  = "Status"
	MethodStop    = "Stop"
)

type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RespError      `json:"error,omitempty"`
}

type RespError struct {
	Message string `json:"message"`
}

type SearchParams struct {
	Source   string `json:"source"`
	Query    string `json:"query"`
	MaxPages int    `json:"max_pages,omitempty"`
}

type StatusResult struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	InFlight  int       `json:"in_flight"`
	Served    uint64    `json:"served"`
}
