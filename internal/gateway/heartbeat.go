package gateway

import (
	"context"
	"log/slog"
	"time"
)

const (
	healthCheckInterval = 30 * time.Second
	// stuckThreshold is how long a job may sit in the running set without any
	// scheduler event before health reports it stuck. Pipeline stage timeouts
	// keep legitimate runs well under this.
	stuckThreshold = 15 * time.Minute
)

// HeartbeatMonitor derives a coarse health signal from scheduler activity.
// Every job transition flows through the gateway's event callback, so
// "running jobs but no events for a long time" is a reliable hung-pipeline
// indicator. Broadcasts an "agent.health" SSE event whenever the status
// changes.
type HeartbeatMonitor struct {
	gw         *Gateway
	lastStatus string // suppresses no-change broadcasts
}

func newHeartbeatMonitor(gw *Gateway) *HeartbeatMonitor {
	return &HeartbeatMonitor{gw: gw}
}

func (h *HeartbeatMonitor) run(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evaluate()
		}
	}
}

func (h *HeartbeatMonitor) evaluate() {
	hs := h.computeStatus()
	if hs.Status != h.lastStatus {
		h.lastStatus = hs.Status
		h.gw.broadcaster.send(SSEEvent{Type: "agent.health", Payload: hs})
		slog.Info("gateway: health changed", "status", hs.Status, "message", hs.Message)
	}
}

// computeStatus is safe to call from any goroutine.
func (h *HeartbeatMonitor) computeStatus() HeartbeatStatus {
	st := h.gw.sched.Status()
	h.gw.mu.RLock()
	lastAt := h.gw.lastEventAt
	h.gw.mu.RUnlock()

	hs := HeartbeatStatus{ActiveJobs: len(st.Running)}
	if !lastAt.IsZero() {
		hs.LastActivityAt = lastAt.UTC().Format(time.RFC3339)
	}

	if st.Paused {
		hs.Status = "paused"
		hs.Message = "Scheduler is paused; queued jobs wait until resume."
		return hs
	}
	if len(st.Running) == 0 {
		hs.Status = "idle"
		hs.Message = "No job running. Waiting for a webhook, poll, or manual trigger."
		return hs
	}

	if since := time.Since(lastAt); since > stuckThreshold {
		hs.Status = "stuck"
		if !lastAt.IsZero() {
			hs.StuckForSecs = int64(since.Seconds())
		}
		hs.Message = "Jobs are marked running but no scheduler events have arrived. A pipeline stage may be hung past its timeout."
		return hs
	}
	hs.Status = "alive"
	hs.Message = "Analysis in progress."
	return hs
}
