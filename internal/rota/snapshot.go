package rota

// ChannelStatus is a read-only view of one channel's scheduling state.
type ChannelStatus struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Surface           string `json:"surface"`
	Phase             Phase  `json:"phase"`
	Complete          bool   `json:"complete"`
	CommentsProcessed int64  `json:"comments_processed"`
}

// Snapshot is a point-in-time view of the router. Toggle values are the
// resolved booleans as of the call, never stale relative to configuration.
type Snapshot struct {
	Current         ChannelStatus   `json:"current"`
	Channels        []ChannelStatus `json:"channels"`
	ShortsEnabled   bool            `json:"shorts_enabled"`
	IndexingEnabled bool            `json:"indexing_enabled"`
	Paused          bool            `json:"paused"`
	Cycle           uint64          `json:"cycle"`
	LiveActive      bool            `json:"live_active"`
}

// Status returns a read-only snapshot of the router state.
func (r *Router) Status() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	channels := make([]ChannelStatus, len(r.states))
	for i, st := range r.states {
		channels[i] = channelStatus(st)
	}
	return Snapshot{
		Current:         channels[r.cur],
		Channels:        channels,
		ShortsEnabled:   r.toggles.ShortsEnabled(),
		IndexingEnabled: r.toggles.IndexingEnabled(),
		Paused:          r.paused,
		Cycle:           r.cycle,
		LiveActive:      r.liveActive,
	}
}

func channelStatus(st *channelState) ChannelStatus {
	return ChannelStatus{
		ID:                st.ch.ID,
		Name:              st.ch.Name,
		Surface:           st.ch.Surface,
		Phase:             st.phase,
		Complete:          st.phase == PhaseComplete,
		CommentsProcessed: st.comments,
	}
}
