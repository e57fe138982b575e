// Package httpapi exposes the fund and escrow services over REST.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/fund_layer/internal/app/domain/rental"
	"github.com/R3E-Network/fund_layer/internal/app/metrics"
	escrowsvc "github.com/R3E-Network/fund_layer/internal/app/services/escrow"
	fundsvc "github.com/R3E-Network/fund_layer/internal/app/services/fund"
	"github.com/R3E-Network/fund_layer/internal/errors"
	"github.com/R3E-Network/fund_layer/internal/httputil"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// Config wires the handler's dependencies.
type Config struct {
	Fund    *fundsvc.Service
	Escrow  *escrowsvc.Service
	Version string
	Logger  *logger.Logger

	// Admin wraps the adapter-administration, maintenance, and deduct routes.
	// Nil leaves them open, for deployments without authentication.
	Admin mux.MiddlewareFunc
}

// Handler serves the REST API.
type Handler struct {
	fund    *fundsvc.Service
	escrow  *escrowsvc.Service
	version string
	started time.Time
	admin   mux.MiddlewareFunc
	log     *logger.Logger
}

// New creates the API handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Fund == nil {
		return nil, errors.Validation("fund service required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	admin := cfg.Admin
	if admin == nil {
		admin = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		fund:    cfg.Fund,
		escrow:  cfg.Escrow,
		version: cfg.Version,
		started: time.Now(),
		admin:   admin,
		log:     log,
	}, nil
}

// Router builds the route table. Escrow routes are registered only when the
// escrow service is configured.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	r.HandleFunc("/deposits", h.handleDeposit).Methods("POST")
	r.HandleFunc("/withdrawals", h.handleWithdraw).Methods("POST")
	r.HandleFunc("/stats", h.handleStats).Methods("GET")
	r.HandleFunc("/users/{user}/balance", h.handleBalance).Methods("GET")
	r.HandleFunc("/users/{user}/transactions", h.handleTransactions).Methods("GET")

	r.HandleFunc("/reservations", h.handleReserve).Methods("POST")
	r.HandleFunc("/reservations/release", h.handleRelease).Methods("POST")
	r.Handle("/reservations/deduct", h.admin(http.HandlerFunc(h.handleDeduct))).Methods("POST")

	r.HandleFunc("/adapters", h.handleListAdapters).Methods("GET")
	r.Handle("/adapters/{id}", h.admin(http.HandlerFunc(h.handleUpdateAdapter))).Methods("PATCH")
	r.Handle("/adapters/{id}", h.admin(http.HandlerFunc(h.handleRemoveAdapter))).Methods("DELETE")

	ops := r.PathPrefix("/ops").Subrouter()
	ops.Use(h.admin)
	ops.HandleFunc("/invest", h.handleInvest).Methods("POST")
	ops.HandleFunc("/harvest", h.handleHarvest).Methods("POST")
	ops.HandleFunc("/rebalance", h.handleRebalance).Methods("POST")
	ops.HandleFunc("/pause", h.handlePause).Methods("POST")
	ops.HandleFunc("/unpause", h.handleUnpause).Methods("POST")
	ops.HandleFunc("/emergency-exit", h.handleEmergencyExit).Methods("POST")
	ops.HandleFunc("/tuning", h.handleTuning).Methods("PATCH")

	if h.escrow != nil {
		r.HandleFunc("/devices", h.handleRegisterDevice).Methods("POST")
		r.HandleFunc("/devices", h.handleListDevices).Methods("GET")
		r.HandleFunc("/devices/{id}", h.handleGetDevice).Methods("GET")
		r.HandleFunc("/devices/{id}", h.handleUpdateDevice).Methods("PATCH")

		r.HandleFunc("/rentals", h.handleOpenRental).Methods("POST")
		r.HandleFunc("/rentals", h.handleListRentals).Methods("GET")
		r.HandleFunc("/rentals/{id}", h.handleGetRental).Methods("GET")
		r.HandleFunc("/rentals/{id}/close", h.handleCloseRental).Methods("POST")
		r.HandleFunc("/rentals/{id}/settle", h.handleSettleRental).Methods("POST")
	}

	return r
}

// =============================================================================
// Pool endpoints
// =============================================================================

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var input struct {
		User       string `json:"user"`
		Amount     int64  `json:"amount"`
		AutoInvest bool   `json:"auto_invest"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	input.User = strings.TrimSpace(input.User)
	if input.User == "" {
		httputil.BadRequest(w, "user required")
		return
	}

	minted, err := h.fund.Deposit(r.Context(), input.User, input.Amount, input.AutoInvest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]interface{}{
		"user":   input.User,
		"amount": input.Amount,
		"shares": minted,
	})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var input struct {
		User   string `json:"user"`
		Shares int64  `json:"shares"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	input.User = strings.TrimSpace(input.User)
	if input.User == "" {
		httputil.BadRequest(w, "user required")
		return
	}

	paid, err := h.fund.Withdraw(r.Context(), input.User, input.Shares)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"user":   input.User,
		"shares": input.Shares,
		"amount": paid,
	})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	httputil.WriteSuccess(w, h.fund.Balance(r.Context(), user))
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	txs, err := h.fund.Transactions(r.Context(), user, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, txs)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.fund.Stats(r.Context()))
}

// =============================================================================
// Reservation endpoints
// =============================================================================

type reservationInput struct {
	User   string `json:"user"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var input reservationInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if err := h.fund.Reserve(r.Context(), input.User, input.Amount, input.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, h.fund.Balance(r.Context(), input.User))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var input reservationInput
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if err := h.fund.Release(r.Context(), input.User, input.Amount, input.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, h.fund.Balance(r.Context(), input.User))
}

func (h *Handler) handleDeduct(w http.ResponseWriter, r *http.Request) {
	var input struct {
		User      string `json:"user"`
		Amount    int64  `json:"amount"`
		Recipient string `json:"recipient"`
		Reference string `json:"reference"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	deducted, err := h.fund.Deduct(r.Context(), input.User, input.Amount, input.Recipient, input.Reference)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"deducted": deducted,
		"balance":  h.fund.Balance(r.Context(), input.User),
	})
}

// =============================================================================
// Adapter administration
// =============================================================================

func (h *Handler) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	records, err := h.fund.Adapters(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, records)
}

func (h *Handler) handleUpdateAdapter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var input struct {
		Weight *int64 `json:"weight"`
		Active *bool  `json:"active"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.Weight == nil && input.Active == nil {
		httputil.BadRequest(w, "nothing to update")
		return
	}

	if input.Weight != nil {
		if err := h.fund.SetAdapterWeight(r.Context(), id, *input.Weight); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if input.Active != nil {
		if err := h.fund.SetAdapterActive(r.Context(), id, *input.Active); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	records, err := h.fund.Adapters(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	for _, rec := range records {
		if rec.ID == id {
			httputil.WriteSuccess(w, rec)
			return
		}
	}
	httputil.WriteError(w, errors.NotFound("adapter", id))
}

func (h *Handler) handleRemoveAdapter(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.fund.RemoveAdapter(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Maintenance endpoints
// =============================================================================

func (h *Handler) handleInvest(w http.ResponseWriter, r *http.Request) {
	invested, err := h.fund.Invest(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"invested": invested})
}

func (h *Handler) handleHarvest(w http.ResponseWriter, r *http.Request) {
	total, err := h.fund.Harvest(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"rewards": total})
}

func (h *Handler) handleRebalance(w http.ResponseWriter, r *http.Request) {
	recalled, invested, err := h.fund.Rebalance(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"recalled": recalled, "invested": invested})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.fund.Vault().Pause()
	h.log.Warn("vault paused via API")
	httputil.WriteSuccess(w, map[string]bool{"paused": true})
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	h.fund.Vault().Unpause()
	h.log.Info("vault unpaused via API")
	httputil.WriteSuccess(w, map[string]bool{"paused": false})
}

func (h *Handler) handleEmergencyExit(w http.ResponseWriter, r *http.Request) {
	recovered := h.fund.EmergencyExit(r.Context())
	h.log.WithField("recovered", recovered).Warn("emergency exit via API")
	httputil.WriteSuccess(w, map[string]int64{"recovered": recovered})
}

func (h *Handler) handleTuning(w http.ResponseWriter, r *http.Request) {
	var input struct {
		InvestmentRatioBps    *int64 `json:"investment_ratio_bps"`
		MinInvestment         *int64 `json:"min_investment"`
		RebalanceIntervalSecs *int64 `json:"rebalance_interval_secs"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.InvestmentRatioBps == nil && input.MinInvestment == nil && input.RebalanceIntervalSecs == nil {
		httputil.BadRequest(w, "nothing to update")
		return
	}

	if input.InvestmentRatioBps != nil {
		if err := h.fund.SetInvestmentRatio(*input.InvestmentRatioBps); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if input.MinInvestment != nil {
		if err := h.fund.SetMinInvestment(*input.MinInvestment); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if input.RebalanceIntervalSecs != nil {
		if err := h.fund.SetRebalanceInterval(time.Duration(*input.RebalanceIntervalSecs) * time.Second); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	httputil.WriteSuccess(w, map[string]bool{"updated": true})
}

// =============================================================================
// Device endpoints
// =============================================================================

func (h *Handler) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Owner         string `json:"owner"`
		Name          string `json:"name"`
		Asset         string `json:"asset"`
		HourlyRate    int64  `json:"hourly_rate"`
		DepositAmount int64  `json:"deposit_amount"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	dev, err := h.escrow.RegisterDevice(r.Context(), rental.Device{
		Owner:         strings.TrimSpace(input.Owner),
		Name:          strings.TrimSpace(input.Name),
		Asset:         input.Asset,
		HourlyRate:    input.HourlyRate,
		DepositAmount: input.DepositAmount,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, dev)
}

func (h *Handler) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.escrow.Devices(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, devices)
}

func (h *Handler) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := h.escrow.Device(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, dev)
}

func (h *Handler) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Active *bool `json:"active"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}
	if input.Active == nil {
		httputil.BadRequest(w, "nothing to update")
		return
	}

	dev, err := h.escrow.SetDeviceActive(r.Context(), mux.Vars(r)["id"], *input.Active)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, dev)
}

// =============================================================================
// Rental endpoints
// =============================================================================

func (h *Handler) handleOpenRental(w http.ResponseWriter, r *http.Request) {
	var input struct {
		DeviceID string `json:"device_id"`
		Renter   string `json:"renter"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	opened, err := h.escrow.OpenRental(r.Context(), input.DeviceID, strings.TrimSpace(input.Renter))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, opened)
}

func (h *Handler) handleListRentals(w http.ResponseWriter, r *http.Request) {
	rentals, err := h.escrow.Rentals(r.Context(), r.URL.Query().Get("renter"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, rentals)
}

func (h *Handler) handleGetRental(w http.ResponseWriter, r *http.Request) {
	rented, err := h.escrow.Rental(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, rented)
}

func (h *Handler) handleCloseRental(w http.ResponseWriter, r *http.Request) {
	var input struct {
		UsageHours int64 `json:"usage_hours"`
	}
	if !httputil.DecodeJSON(w, r, &input) {
		return
	}

	closed, err := h.escrow.CloseRental(r.Context(), mux.Vars(r)["id"], input.UsageHours)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, closed)
}

func (h *Handler) handleSettleRental(w http.ResponseWriter, r *http.Request) {
	settled, err := h.escrow.SettleRental(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, settled)
}
