package hub

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Health is served on /healthz.
type Health struct {
	Status     string  `json:"status"`
	Instance   string  `json:"instance"`
	Uptime     string  `json:"uptime"`
	Hub        Stats   `json:"hub"`
	Goroutines int     `json:"goroutines"`
	RSSBytes   uint64  `json:"rssBytes,omitempty"`
	CPUPercent float64 `json:"cpuPercent,omitempty"`
	OpenFDs    int32   `json:"openFds,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{
		Status:     "ok",
		Instance:   s.hub.Instance(),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Hub:        s.hub.Stats(),
		Goroutines: runtime.NumGoroutine(),
	}
	processStats(r, &h)
	writeJSON(w, http.StatusOK, h)
}

// processStats fills in what the platform can report; unsupported metrics
// are left zero.
func processStats(r *http.Request, h *Health) {
	p, err := process.NewProcessWithContext(r.Context(), int32(os.Getpid()))
	if err != nil {
		log.Debugf("process stats unavailable: %v", err)
		return
	}
	if mem, err := p.MemoryInfoWithContext(r.Context()); err == nil {
		h.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(r.Context()); err == nil {
		h.CPUPercent = cpu
	}
	if fds, err := p.NumFDsWithContext(r.Context()); err == nil {
		h.OpenFDs = fds
	}
}
