package livecheck

import "context"

// Checker is the upstream "is any channel live" query. Implementations may
// be slow; wrap them in a Poller before handing them to the router.
type Checker interface {
	IsAnyChannelLive(ctx context.Context) (bool, error)
}

// Func adapts a function to the Checker interface.
type Func func(ctx context.Context) (bool, error)

func (f Func) IsAnyChannelLive(ctx context.Context) (bool, error) { return f(ctx) }

// Static is a fixed verdict. Used in tests and as the headless default when
// no upstream is wired in.
type Static bool

func (s Static) IsAnyChannelLive(context.Context) (bool, error) { return bool(s), nil }
