package workers

import (
	"context"
	"time"

	logx "rotabot/pkg/logx"

	"rotabot/internal/rota"
)

// NoopSet returns a worker set that logs each dispatch and sleeps for a
// short simulated work window. Useful for running the daemon without any
// real automation attached, and as the default when no workers are wired.
func NoopSet(log logx.Logger) Set {
	if log.IsZero() {
		log = logx.Nop()
	}
	n := &noop{log: log, workFor: 2 * time.Second}
	return Set{Comments: n, Shorts: n, Index: n, LiveChat: n}
}

type noop struct {
	log     logx.Logger
	workFor time.Duration
}

func (n *noop) sleep(ctx context.Context) error {
	t := time.NewTimer(n.workFor)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (n *noop) EngageComments(ctx context.Context, ch rota.Channel) (int, error) {
	n.log.Info("noop comment engagement", logx.String("channel", ch.ID))
	if err := n.sleep(ctx); err != nil {
		return 0, err
	}
	return 0, nil
}

func (n *noop) ScheduleShorts(ctx context.Context, ch rota.Channel) error {
	n.log.Info("noop shorts scheduling", logx.String("channel", ch.ID))
	return n.sleep(ctx)
}

func (n *noop) IndexVideos(ctx context.Context, ch rota.Channel) error {
	n.log.Info("noop video indexing", logx.String("channel", ch.ID))
	return n.sleep(ctx)
}

func (n *noop) ServeLiveChat(ctx context.Context, d rota.Decision) error {
	n.log.Info("noop live chat session", logx.String("channel", d.ChannelID), logx.String("surface", d.Surface))
	return n.sleep(ctx)
}
