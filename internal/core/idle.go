package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"uwuchat/internal/protocol"
)

// DemoteIdle marks every Active or Busy user whose last action is at
// least threshold old as Inactive and broadcasts the change. Returns the
// demoted names. Users come back on their next frame, not here.
func (s *State) DemoteIdle(threshold time.Duration) []string {
	now := time.Now()
	var demoted []string

	s.mu.Lock()
	for _, u := range s.users.order {
		if u.Status != protocol.StatusActive && u.Status != protocol.StatusBusy {
			continue
		}
		if u.idleFor(now) < threshold {
			continue
		}
		u.Status = protocol.StatusInactive
		s.publish(s.group, protocol.EncodeChangedStatus([]byte(u.Name), protocol.StatusInactive))
		demoted = append(demoted, u.Name)
	}
	s.mu.Unlock()

	if len(demoted) > 0 {
		metricIdleDemotions.Add(float64(len(demoted)))
	}
	return demoted
}

// RunIdleDetector sweeps for idle users every period until ctx is
// canceled.
func RunIdleDetector(ctx context.Context, st *State, period, threshold time.Duration, log zerolog.Logger) {
	log = log.With().Str("component", "idle").Logger()
	log.Debug().Dur("period", period).Dur("threshold", threshold).Msg("idle detector running")

	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if names := st.DemoteIdle(threshold); len(names) > 0 {
				log.Info().Strs("users", names).Msg("idle users demoted")
			}
		}
	}
}
