// Package health serves the relay's /healthz document: liveness plus process
// and hub statistics.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// HubStats is the part of the hub the report needs.
type HubStats interface {
	SubscriberCount() int
	Capacity() int
}

type Status struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	Sessions      int     `json:"sessions"`
	Subscribers   int     `json:"subscribers"`
	HubCapacity   int     `json:"hub_capacity"`
	RSSBytes      uint64  `json:"rss_bytes,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
	Threads       int32   `json:"threads,omitempty"`
}

type Reporter struct {
	started  time.Time
	hub      HubStats
	sessions func() int
	proc     *process.Process
	logger   *slog.Logger
}

// NewReporter builds a reporter for the current process. sessions may be nil.
func NewReporter(hub HubStats, sessions func() int, logger *slog.Logger) *Reporter {
	r := &Reporter{
		started:  time.Now(),
		hub:      hub,
		sessions: sessions,
		logger:   logger,
	}
	proc, err := process.NewProcessWithContext(context.Background(), int32(os.Getpid()))
	if err != nil {
		logger.Warn("process stats unavailable", "error", err)
	} else {
		r.proc = proc
	}
	return r
}

// Snapshot gathers the current status. Process statistics that cannot be
// read are left zero.
func (r *Reporter) Snapshot(ctx context.Context) Status {
	st := Status{
		Status:        "ok",
		UptimeSeconds: time.Since(r.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		Subscribers:   r.hub.SubscriberCount(),
		HubCapacity:   r.hub.Capacity(),
	}
	if r.sessions != nil {
		st.Sessions = r.sessions()
	}
	if r.proc == nil {
		return st
	}

	if mem, err := r.proc.MemoryInfoWithContext(ctx); err == nil {
		st.RSSBytes = mem.RSS
	}
	if cpu, err := r.proc.CPUPercentWithContext(ctx); err == nil {
		st.CPUPercent = cpu
	}
	if threads, err := r.proc.NumThreadsWithContext(ctx); err == nil {
		st.Threads = threads
	}
	return st
}

func (r *Reporter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.Snapshot(req.Context())); err != nil {
		r.logger.Warn("write health response", "error", err)
	}
}
