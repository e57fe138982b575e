package httpapi

import (
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/R3E-Network/fund_layer/internal/httputil"
)

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// InfoResponse is the /info payload.
type InfoResponse struct {
	Status     string         `json:"status"`
	Service    string         `json:"service"`
	Version    string         `json:"version"`
	UptimeSecs int64          `json:"uptime_secs"`
	Timestamp  string         `json:"timestamp"`
	Statistics map[string]any `json:"statistics,omitempty"`
	System     map[string]any `json:"system,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.fund.Vault().Paused() {
		status = "paused"
	}
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Service:   "fund-layer",
		Version:   h.version,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	stats := h.fund.Stats(r.Context())
	resp := InfoResponse{
		Status:     "active",
		Service:    "fund-layer",
		Version:    h.version,
		UptimeSecs: int64(time.Since(h.started).Seconds()),
		Timestamp:  time.Now().Format(time.RFC3339),
		Statistics: map[string]any{
			"asset":             stats.Asset,
			"total_assets":      stats.TotalAssets,
			"total_shares":      stats.TotalShares,
			"idle_balance":      stats.IdleBalance,
			"weighted_apy_bps":  stats.WeightedAPYBps,
			"rewards_harvested": stats.RewardsHarvested,
			"paused":            stats.Paused,
		},
		System: systemStats(),
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// systemStats samples host CPU and memory. Failures leave the field out
// rather than failing the request.
func systemStats() map[string]any {
	out := make(map[string]any)
	if usage, err := cpu.Percent(0, false); err == nil && len(usage) > 0 {
		out["cpu_percent"] = usage[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		out["mem_total_bytes"] = vm.Total
		out["mem_used_percent"] = vm.UsedPercent
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
