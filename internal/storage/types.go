package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the journal backend.
type Config struct {
	// Driver is "file", "sqlite" or ""/"none" (disabled).
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ActivityEntry records one dispatched activity. Keep it compact and
// schema-stable.
type ActivityEntry struct {
	At                time.Time `json:"at"`
	Activity          string    `json:"activity"`
	ChannelID         string    `json:"channel_id,omitempty"`
	ChannelName       string    `json:"channel_name,omitempty"`
	Surface           string    `json:"surface,omitempty"`
	Phase             string    `json:"phase,omitempty"`
	Reason            string    `json:"reason,omitempty"`
	CommentsProcessed int       `json:"comments_processed,omitempty"`
	TookMS            int64     `json:"took_ms"`
	Error             string    `json:"error,omitempty"`
}

// Summary aggregates journal entries for reporting.
type Summary struct {
	Since      time.Time      `json:"since"`
	Total      int            `json:"total"`
	ByActivity map[string]int `json:"by_activity"`
	ByChannel  map[string]int `json:"by_channel"`
	Comments   int            `json:"comments"`
	Failures   int            `json:"failures"`
}

func newSummary(since time.Time) Summary {
	return Summary{
		Since:      since,
		ByActivity: map[string]int{},
		ByChannel:  map[string]int{},
	}
}

func (s *Summary) add(e ActivityEntry) {
	s.Total++
	s.ByActivity[e.Activity]++
	if e.ChannelID != "" {
		s.ByChannel[e.ChannelID]++
	}
	s.Comments += e.CommentsProcessed
	if e.Error != "" {
		s.Failures++
	}
}
