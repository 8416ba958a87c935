package rota

// toggleState is the resolved value of both feature flags at decision time.
type toggleState struct {
	shorts   bool
	indexing bool
}

type tableKey struct {
	phase   Phase
	toggles toggleState
}

// activityTable is the explicit (phase, toggle-state) → Activity mapping.
// All 16 combinations are spelled out so the mapping is exhaustively
// testable rather than scattered across conditionals.
//
// A disabled flag never rewrites stored phase; it only redirects the
// decision for that phase. A channel sitting in the shorts phase with
// shorts disabled is decided as video indexing, and as channel-complete if
// indexing is disabled too.
var activityTable = map[tableKey]Activity{
	{PhaseComments, toggleState{true, true}}:   ActivityComments,
	{PhaseComments, toggleState{true, false}}:  ActivityComments,
	{PhaseComments, toggleState{false, true}}:  ActivityComments,
	{PhaseComments, toggleState{false, false}}: ActivityComments,

	{PhaseShorts, toggleState{true, true}}:   ActivityShorts,
	{PhaseShorts, toggleState{true, false}}:  ActivityShorts,
	{PhaseShorts, toggleState{false, true}}:  ActivityIndexing,
	{PhaseShorts, toggleState{false, false}}: ActivityChannelComplete,

	{PhaseIndexing, toggleState{true, true}}:   ActivityIndexing,
	{PhaseIndexing, toggleState{false, true}}:  ActivityIndexing,
	{PhaseIndexing, toggleState{true, false}}:  ActivityChannelComplete,
	{PhaseIndexing, toggleState{false, false}}: ActivityChannelComplete,

	{PhaseComplete, toggleState{true, true}}:   ActivityChannelComplete,
	{PhaseComplete, toggleState{true, false}}:  ActivityChannelComplete,
	{PhaseComplete, toggleState{false, true}}:  ActivityChannelComplete,
	{PhaseComplete, toggleState{false, false}}: ActivityChannelComplete,
}

// activityFor resolves the decision for a stored phase under the given
// toggle state.
func activityFor(p Phase, t toggleState) Activity {
	if a, ok := activityTable[tableKey{p, t}]; ok {
		return a
	}
	// Unknown phase values cannot be constructed through the public API.
	return ActivityChannelComplete
}

// phaseEnabled reports whether the work belonging to phase p is currently
// enabled. Comments cannot be toggled off; complete carries no work.
func phaseEnabled(p Phase, t toggleState) bool {
	switch p {
	case PhaseComments:
		return true
	case PhaseShorts:
		return t.shorts
	case PhaseIndexing:
		return t.indexing
	default:
		return false
	}
}
