// Package state owns the visited set and the mode controller that moves
// crawl state from memory to the persistent store.
package state

import "time"

// Mode is the backing of the frontier and visited set.
type Mode int

const (
	// InMemory keeps state in process collections. It is the initial mode.
	InMemory Mode = iota
	// Persistent serves state from the store. It is terminal.
	Persistent
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	if m == Persistent {
		return "persistent"
	}
	return "in_memory"
}

// SwitchReason explains a cutover.
type SwitchReason string

// Cutover reasons.
const (
	ReasonNone          SwitchReason = ""
	ReasonPageThreshold SwitchReason = "page_threshold"
	ReasonLatency       SwitchReason = "latency"
	ReasonConfigured    SwitchReason = "configured"
)

// ModeState is the controller's view of the crawl state. It is returned by
// value; only the Controller mutates it.
type ModeState struct {
	Mode                    Mode          `json:"mode"`
	VisitedCount            int           `json:"visited_count"`
	SwitchDeadline          time.Time     `json:"switch_deadline"`
	BaselineFoundURLLatency time.Duration `json:"baseline_found_url_latency"`
	LastDeleteLatency       time.Duration `json:"last_delete_latency"`
	SwitchedAt              time.Time     `json:"switched_at,omitempty"`
	SwitchReason            SwitchReason  `json:"switch_reason,omitempty"`
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
