// Package keeper runs the vault's periodic maintenance: harvesting adapter
// rewards and rebalancing allocations on cron schedules.
package keeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/fund_layer/internal/app/metrics"
	fundsvc "github.com/R3E-Network/fund_layer/internal/app/services/fund"
	"github.com/R3E-Network/fund_layer/internal/app/system"
	"github.com/R3E-Network/fund_layer/internal/errors"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// Config holds the keeper's schedules in cron syntax. Empty disables a job.
type Config struct {
	HarvestSchedule   string // e.g. "@hourly"
	RebalanceSchedule string // e.g. "@daily"
	JobTimeout        time.Duration
	Logger            *logger.Logger
}

// Keeper schedules vault maintenance jobs.
type Keeper struct {
	fund    *fundsvc.Service
	cron    *cron.Cron
	cfg     Config
	log     *logger.Logger
	baseCtx context.Context
}

var _ system.Service = (*Keeper)(nil)

// New creates a keeper for the given fund service.
func New(fund *fundsvc.Service, cfg Config) (*Keeper, error) {
	if fund == nil {
		return nil, errors.Validation("fund service required")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("keeper")
	}
	return &Keeper{
		fund: fund,
		cron: cron.New(),
		cfg:  cfg,
		log:  log,
	}, nil
}

func (k *Keeper) Name() string { return "keeper" }

// Start registers the configured jobs and starts the scheduler.
func (k *Keeper) Start(ctx context.Context) error {
	k.baseCtx = ctx
	if k.baseCtx == nil {
		k.baseCtx = context.Background()
	}

	if k.cfg.HarvestSchedule != "" {
		if _, err := k.cron.AddFunc(k.cfg.HarvestSchedule, k.runHarvest); err != nil {
			return errors.Validation("invalid harvest schedule %q: %v", k.cfg.HarvestSchedule, err)
		}
	}
	if k.cfg.RebalanceSchedule != "" {
		if _, err := k.cron.AddFunc(k.cfg.RebalanceSchedule, k.runRebalance); err != nil {
			return errors.Validation("invalid rebalance schedule %q: %v", k.cfg.RebalanceSchedule, err)
		}
	}

	k.cron.Start()
	k.log.WithFields(map[string]interface{}{
		"harvest": k.cfg.HarvestSchedule, "rebalance": k.cfg.RebalanceSchedule,
	}).Info("keeper started")
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (k *Keeper) Stop(ctx context.Context) error {
	stopped := k.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunHarvestNow triggers the harvest job immediately.
func (k *Keeper) RunHarvestNow() { k.runHarvest() }

// RunRebalanceNow triggers the rebalance job immediately.
func (k *Keeper) RunRebalanceNow() { k.runRebalance() }

func (k *Keeper) runHarvest() {
	ctx, cancel := k.jobContext()
	defer cancel()

	start := time.Now()
	total, err := k.fund.Harvest(ctx)
	metrics.RecordKeeperRun("harvest", time.Since(start), err == nil)
	if err != nil {
		k.log.WithError(err).Warn("scheduled harvest failed")
		return
	}
	k.log.WithField("rewards", total).Info("scheduled harvest complete")
}

func (k *Keeper) runRebalance() {
	ctx, cancel := k.jobContext()
	defer cancel()

	start := time.Now()
	recalled, invested, err := k.fund.Rebalance(ctx)
	metrics.RecordKeeperRun("rebalance", time.Since(start), err == nil)
	if err != nil {
		// Cooldown rejections are routine, not alarming.
		if errors.Is(err, errors.KindState) {
			k.log.WithError(err).Debug("scheduled rebalance skipped")
		} else {
			k.log.WithError(err).Warn("scheduled rebalance failed")
		}
		return
	}
	k.log.WithFields(map[string]interface{}{
		"recalled": recalled, "invested": invested,
	}).Info("scheduled rebalance complete")
}

func (k *Keeper) jobContext() (context.Context, context.CancelFunc) {
	base := k.baseCtx
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, k.cfg.JobTimeout)
}
