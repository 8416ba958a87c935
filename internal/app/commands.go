package app

import (
	"context"
	"fmt"
	"strings"

	logx "rotabot/pkg/logx"

	"rotabot/internal/config"
	"rotabot/internal/rota"
	kit "rotabot/internal/transport"
)

// Commands is the owner-gated Telegram command surface. All commands are
// read-or-toggle operations on the scheduler; anything heavier belongs in
// config.
type Commands struct {
	adapter kit.Adapter
	router  *rota.Router
	cfgm    *config.Manager
	log     logx.Logger
}

func newCommands(adapter kit.Adapter, router *rota.Router, cfgm *config.Manager, log logx.Logger) *Commands {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Commands{adapter: adapter, router: router, cfgm: cfgm, log: log}
}

func (c *Commands) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m := up.Message
			if m == nil || !strings.HasPrefix(m.Text, "/") {
				continue
			}
			if !c.isOwner(m.FromID) {
				c.log.Debug("command from non-owner ignored",
					logx.Int64("from", m.FromID),
					logx.String("user", m.FromUsername))
				continue
			}
			c.handle(ctx, m)
		}
	}
}

func (c *Commands) isOwner(userID int64) bool {
	cfg := c.cfgm.Get()
	if cfg == nil || len(cfg.Telegram.OwnerUserIDs) == 0 {
		// No owners configured: commands are disabled, not public.
		return false
	}
	for _, id := range cfg.Telegram.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Commands) handle(ctx context.Context, m *kit.Message) {
	cmd := strings.ToLower(strings.Fields(m.Text)[0])
	// Strip the @botname suffix used in group chats.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	var reply string
	switch cmd {
	case "/status":
		reply = renderStatus(c.router.Status())
	case "/pause":
		c.router.Pause()
		reply = "scheduler paused; live-chat takeover stays armed"
	case "/resume":
		c.router.Resume()
		reply = "scheduler resumed"
	case "/help", "/start":
		reply = helpText
	default:
		reply = "unknown command; try /help"
	}

	to := kit.ChatTarget{ChatID: m.ChatID}
	if _, err := c.adapter.SendText(ctx, to, reply, &kit.SendOptions{DisablePreview: true}); err != nil {
		c.log.Warn("command reply failed", logx.String("cmd", cmd), logx.Err(err))
	}
}

const helpText = `/status - roster phases and scheduler state
/pause - pause rotation (idle decisions)
/resume - resume rotation
/help - this text`

func renderStatus(s rota.Snapshot) string {
	var b strings.Builder

	state := "running"
	if s.Paused {
		state = "paused"
	}
	if s.LiveActive {
		state += ", live chat active"
	}
	fmt.Fprintf(&b, "scheduler: %s (cycle %d)\n", state, s.Cycle)
	fmt.Fprintf(&b, "toggles: shorts=%s indexing=%s\n", onOff(s.ShortsEnabled), onOff(s.IndexingEnabled))

	for _, ch := range s.Channels {
		marker := "  "
		if ch.ID == s.Current.ID {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%s [%s]", marker, ch.Name, ch.Phase)
		if ch.Complete {
			b.WriteString(" done")
		}
		if ch.CommentsProcessed > 0 {
			fmt.Fprintf(&b, " (%d comments)", ch.CommentsProcessed)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
