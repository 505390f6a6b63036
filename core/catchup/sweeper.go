package catchup

import (
	"context"
	"time"
)

// RunSweeper calls SweepOnce every SweepInterval until ctx is done.
func (svc *Service) RunSweeper(ctx context.Context) error {
	if svc.deps.Conf.SweepInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(svc.deps.Conf.SweepInterval)
	defer ticker.Stop()

	svc.deps.Logger.Info("catchup: sweeper started", map[string]interface{}{"interval": svc.deps.Conf.SweepInterval.String()})
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			svc.SweepOnce()
		}
	}
}

// SweepOnce evicts terminal sessions kept longer than TerminalRetention
// and discards sessions left idle longer than IdleTimeout. It returns the number of evicted sessions.
func (svc *Service) SweepOnce() int {
	conf := svc.deps.Conf
	now := svc.deps.Clock.Now()

	var evicted int
	for _, sess := range svc.list() {
		if since, ok := sess.terminalSince(); ok {
			if now.Sub(since) >= conf.TerminalRetention {
				svc.remove(sess)
				evicted++
			}
			continue
		}
		if conf.IdleTimeout > 0 && now.Sub(sess.lastActivity()) >= conf.IdleTimeout {
			svc.deps.Logger.Info("catchup: discarding idle session", map[string]interface{}{"session": sess.ID(), "lesson": sess.LessonID()})
			svc.remove(sess)
			evicted++
		}
	}
	return evicted
}
