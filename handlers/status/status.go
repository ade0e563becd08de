// Package status implements a JSON server-status handler.
package status

import (
	"encoding/json"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/X4/lwan/core/http"
	"github.com/X4/lwan/core/router"
)

type state struct {
	started time.Time
	proc    *process.Process
}

type report struct {
	UptimeSeconds int64   `json:"uptime_seconds"`
	Goroutines    int     `json:"goroutines"`
	CPUs          int     `json:"cpus"`
	RSSBytes      uint64  `json:"rss_bytes,omitempty"`
	CPUPercent    float64 `json:"cpu_percent,omitempty"`
}

// New returns the status handler descriptor.
func New() *router.Handler {
	return &router.Handler{
		Init: func(args map[string]string) (any, error) {
			proc, err := process.NewProcess(int32(os.Getpid()))
			if err != nil {
				return nil, err
			}
			return &state{started: time.Now(), proc: proc}, nil
		},
		Handle: serve,
	}
}

func serve(req *http.Request, resp *http.Response, data any) http.Status {
	st := data.(*state)

	r := report{
		UptimeSeconds: int64(time.Since(st.started).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	if n, err := cpu.Counts(true); err == nil {
		r.CPUs = n
	}
	if mem, err := st.proc.MemoryInfo(); err == nil {
		r.RSSBytes = mem.RSS
	}
	if pct, err := st.proc.CPUPercent(); err == nil {
		r.CPUPercent = pct
	}

	out, err := json.Marshal(r)
	if err != nil {
		return http.StatusInternalError
	}

	resp.Mime = "application/json"
	resp.Write(out)
	return http.StatusOK
}
