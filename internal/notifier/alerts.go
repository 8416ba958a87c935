package notifier

import (
	"context"
	"fmt"

	"rotabot/internal/eventbus"
	"rotabot/internal/rota"
	kit "rotabot/internal/transport"
)

// Alerter turns scheduler bus events into operator notifications.
//
// It is intentionally dumb: formatting and priority mapping only. Queueing,
// rate limiting and dedup all happen in the Service.
type Alerter struct {
	svc    *Service
	bus    eventbus.Bus
	target kit.ChatTarget
}

func NewAlerter(svc *Service, bus eventbus.Bus, target kit.ChatTarget) *Alerter {
	return &Alerter{svc: svc, bus: bus, target: target}
}

// Run consumes bus events until ctx is cancelled. Intended to run under a
// supervisor.
func (a *Alerter) Run(ctx context.Context) {
	if a.svc == nil || a.bus == nil || a.target.ChatID == 0 {
		return
	}
	ch, unsub := a.bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			text, prio := formatAlert(ev)
			if text == "" {
				continue
			}
			_ = a.svc.Notify(ctx, kit.Notification{
				Priority: prio,
				Target:   a.target,
				Text:     text,
			})
		}
	}
}

func formatAlert(ev eventbus.Event) (text string, priority int) {
	switch ev.Type {
	case rota.EventLiveStart:
		return "live stream detected, switching to live chat", 7
	case rota.EventLiveStop:
		return "live stream ended, resuming channel rotation", 5
	case rota.EventCycleComplete:
		if ce, ok := ev.Data.(rota.CycleEvent); ok {
			return fmt.Sprintf("full roster cycle #%d complete, starting over", ce.Cycle), 5
		}
		return "full roster cycle complete, starting over", 5
	case rota.EventSignalRejected:
		if sr, ok := ev.Data.(rota.SignalRejection); ok {
			return fmt.Sprintf("rejected %s signal for %s: %s", sr.Signal, sr.ChannelID, sr.Error), 7
		}
		return "rejected completion signal", 7
	default:
		return "", 0
	}
}
