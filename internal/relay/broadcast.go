package relay

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oz-solar/jerry/internal/config"
	"github.com/oz-solar/jerry/internal/gateway"
	"github.com/oz-solar/jerry/internal/segment"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration parses a 5-field cron expression and returns the duration
// until the next fire time. Returns 0 on parse error.
func nextCronDuration(expr string) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	next := sched.Next(time.Now())
	d := time.Until(next)
	if d < 0 {
		return 0
	}
	return d
}

// RunBroadcasts posts a scheduled tip to the configured channel on the cron
// schedule. It blocks until ctx is cancelled. A disabled or misconfigured
// schedule returns immediately.
func (b *Bot) RunBroadcasts(ctx context.Context, cfg config.BroadcastConfig) {
	if !cfg.Enabled || cfg.Cron == "" || cfg.ChannelID == "" {
		return
	}

	d := nextCronDuration(cfg.Cron)
	if d <= 0 {
		log.Printf("relay: invalid broadcast cron %q, broadcasts disabled", cfg.Cron)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			b.fireBroadcast(ctx, cfg)
			if d := nextCronDuration(cfg.Cron); d > 0 {
				timer.Reset(d)
			} else {
				return
			}
		}
	}
}

// fireBroadcast generates and posts a single scheduled message. A model
// failure suppresses the post entirely; the escalation notice is meant for
// someone who asked a question, not a whole channel.
func (b *Bot) fireBroadcast(ctx context.Context, cfg config.BroadcastConfig) {
	text := b.gen.Generate(ctx, gateway.Request{
		Transcript:     []gateway.Entry{{Role: gateway.RoleUser, Text: cfg.Prompt}},
		ContextSnippet: b.snippet(),
		Mode:           gateway.ModeBroadcast,
	})
	if text == "" || text == gateway.EscalationNotice {
		log.Printf("relay: broadcast produced nothing postable, skipping")
		return
	}

	units := segment.Split(text)
	b.dispatcher.DispatchChannel(cfg.ChannelID, "", units)
	log.Printf("relay: posted scheduled broadcast to %s (%d units)", cfg.ChannelID, len(units))
}
