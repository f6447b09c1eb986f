package strategy

import (
	"context"
	"time"

	"github.com/chidi150c/liqreversion/internal/domain"
	"github.com/chidi150c/liqreversion/internal/events"
)

// onCommand applies one operator instruction from the Control Plane, per
// spec §4.6.
func (c *Core) onCommand(ctx context.Context, cmd events.Command) {
	var result events.CommandResult
	switch cmd.Kind {
	case events.CmdPause:
		if c.state == domain.PausedRiskLimit {
			result = events.CommandResult{OK: false, Reason: "cannot pause/resume out of PAUSED_RISK_LIMIT; wait for cooldown or day rollover"}
			break
		}
		c.setState(domain.PausedManual, "operator pause")
		result = events.CommandResult{OK: true}

	case events.CmdResume:
		if c.state == domain.PausedRiskLimit {
			result = events.CommandResult{OK: false, Reason: "cannot manually resume from PAUSED_RISK_LIMIT; wait for cooldown or day rollover"}
			break
		}
		c.setState(domain.Running, "operator resume")
		result = events.CommandResult{OK: true}

	case events.CmdFlatten:
		c.flatten(ctx, time.Now().UTC())
		result = events.CommandResult{OK: true}

	case events.CmdSetMode:
		// The request is acknowledged and logged only: the core keeps the
		// broker it was constructed with, so the adapter in use does not change.
		c.logger.Warn("mode change requested; adapter is not switched at runtime", "mode", cmd.Mode)
		result = events.CommandResult{OK: true}

	default:
		result = events.CommandResult{OK: false, Reason: "unrecognized command"}
	}

	if cmd.Reply != nil {
		cmd.Reply <- result
	}
}

// onShutdown flattens any open position before acknowledging, per spec §5
// ("after flatten completes").
func (c *Core) onShutdown(ctx context.Context, sd events.Shutdown) {
	c.flatten(ctx, time.Now().UTC())
	c.setState(domain.Shutdown, "termination signal")
	if sd.Reply != nil {
		sd.Reply <- struct{}{}
	}
}
