package main

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"

	"uwuchat/internal/core"
)

// RunStats logs process and room stats every interval until ctx is
// canceled. Idle servers stay quiet. CPU numbers are host percentages
// sampled since the previous tick.
func RunStats(ctx context.Context, st *core.State, interval time.Duration, log zerolog.Logger) {
	log = log.With().Str("component", "stats").Logger()

	// Seed the sampler so the first tick reports a real delta.
	_, _ = cpu.Percent(0, false)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var mem runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			users := st.UserCount()
			if users == 0 {
				continue
			}
			cpuPct := 0.0
			if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
				cpuPct = percents[0]
			}
			runtime.ReadMemStats(&mem)
			log.Info().
				Int("users", users).
				Int("channels", st.ChannelCount()).
				Float64("cpu_pct", cpuPct).
				Float64("heap_mb", float64(mem.HeapAlloc)/1024/1024).
				Int("goroutines", runtime.NumGoroutine()).
				Msg("server stats")
		}
	}
}
