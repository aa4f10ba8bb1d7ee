package ws

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

// HealthReport is the body of GET /api/health.
type HealthReport struct {
	OK         bool           `json:"ok"`
	Status     session.Status `json:"status"`
	UptimeSec  float64        `json:"uptimeSec"`
	Goroutines int            `json:"goroutines"`
	WSClients  int            `json:"wsClients"`
	Process    *ProcessStats  `json:"process,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// ProcessStats describes the server process as seen by the OS.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	VMSBytes   uint64  `json:"vmsBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
}

// Health reports process resource usage alongside the session status.
type Health struct {
	started time.Time
	proc    *process.Process
	procErr error
}

func NewHealth() *Health {
	h := &Health{started: time.Now()}
	h.proc, h.procErr = process.NewProcess(int32(os.Getpid()))
	return h
}

// Report collects a fresh HealthReport. Process stats are omitted, with the
// reason in Error, when the OS refuses to provide them.
func (h *Health) Report(snap session.Snapshot, wsClients int) HealthReport {
	r := HealthReport{
		OK:         true,
		Status:     snap.Status,
		UptimeSec:  time.Since(h.started).Seconds(),
		Goroutines: runtime.NumGoroutine(),
		WSClients:  wsClients,
	}
	if h.procErr != nil {
		r.Error = h.procErr.Error()
		return r
	}
	ps, err := processStats(h.proc)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Process = ps
	return r
}

func processStats(p *process.Process) (*ProcessStats, error) {
	mem, err := p.MemoryInfo()
	if err != nil {
		return nil, err
	}
	ps := &ProcessStats{PID: p.Pid, RSSBytes: mem.RSS, VMSBytes: mem.VMS}
	if cpu, err := p.CPUPercent(); err == nil {
		ps.CPUPercent = cpu
	}
	if n, err := p.NumThreads(); err == nil {
		ps.Threads = n
	}
	return ps, nil
}
