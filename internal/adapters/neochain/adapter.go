// Package neochain adapts deployed Neo N3 yield strategy contracts to the
// vault's strategy interface. One adapter can front several redundant
// deployments of the same strategy; a health-aware selector routes new funds
// to a live deployment and reads aggregate across all of them.
package neochain

import (
	"context"

	"github.com/R3E-Network/fund_layer/internal/chain"
	"github.com/R3E-Network/fund_layer/internal/errors"
	"github.com/R3E-Network/fund_layer/internal/vault"
	"github.com/R3E-Network/fund_layer/pkg/logger"
)

// Config configures a chain-backed strategy adapter.
type Config struct {
	ID      string
	Account string // the vault's Hash160, owner of strategy shares
	Logger  *logger.Logger
}

// Adapter fronts one yield strategy with one or more on-chain deployments.
type Adapter struct {
	id          string
	account     string
	selector    *vault.Selector
	deployments []*Deployment
	log         *logger.Logger
}

// New creates a chain-backed adapter with no deployments registered.
func New(cfg Config) (*Adapter, error) {
	if cfg.ID == "" {
		return nil, errors.Validation("adapter id required")
	}
	if cfg.Account == "" {
		return nil, errors.Validation("vault account required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("adapter." + cfg.ID)
	}
	return &Adapter{
		id:       cfg.ID,
		account:  cfg.Account,
		selector: vault.NewSelector(log),
		log:      log,
	}, nil
}

// AddDeployment registers a contract deployment with the adapter's selector.
func (a *Adapter) AddDeployment(d *Deployment, weightBps int64, makeDefault bool) error {
	if d == nil {
		return errors.Validation("deployment required")
	}
	if err := a.selector.Register(d, weightBps, makeDefault); err != nil {
		return err
	}
	a.deployments = append(a.deployments, d)
	return nil
}

func (a *Adapter) ID() string { return a.id }

// Deposit routes funds to the selected deployment and returns the strategy
// shares minted there.
func (a *Adapter) Deposit(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, errors.Validation("deposit amount must be positive")
	}
	dep, err := a.selectDeployment(ctx)
	if err != nil {
		return 0, err
	}
	params := []chain.ContractParam{
		chain.Hash160Param(a.account),
		chain.IntParam(amount),
	}
	minted, err := a.execInt(ctx, dep, "deposit", params)
	if err != nil {
		return 0, err
	}
	a.log.WithFields(map[string]interface{}{
		"deployment": dep.Name(),
		"amount":     amount,
		"shares":     minted,
	}).Info("strategy deposit confirmed")
	return minted, nil
}

// Withdraw redeems shares, draining deployments in registration order until
// the requested share count is covered.
func (a *Adapter) Withdraw(ctx context.Context, shares int64) (int64, error) {
	if shares <= 0 {
		return 0, errors.Validation("share amount must be positive")
	}
	var total, remaining int64
	remaining = shares
	for _, dep := range a.deployments {
		if remaining == 0 {
			break
		}
		held, err := dep.readInt(ctx, "sharesOf", []chain.ContractParam{chain.Hash160Param(a.account)})
		if err != nil || held == 0 {
			continue
		}
		take := held
		if take > remaining {
			take = remaining
		}
		params := []chain.ContractParam{
			chain.Hash160Param(a.account),
			chain.IntParam(take),
		}
		amount, err := a.execInt(ctx, dep, "withdraw", params)
		if err != nil {
			a.log.WithError(err).WithField("deployment", dep.Name()).Warn("strategy withdraw failed")
			continue
		}
		total += amount
		remaining -= take
	}
	if remaining == shares {
		return 0, errors.State("no deployment could redeem %d shares", shares)
	}
	return total, nil
}

// Harvest collects rewards from every deployment. Individual failures are
// tolerated; the call fails only when no deployment answered.
func (a *Adapter) Harvest(ctx context.Context) (int64, error) {
	var total int64
	ok := false
	for _, dep := range a.deployments {
		rewards, err := a.execInt(ctx, dep, "harvest", []chain.ContractParam{chain.Hash160Param(a.account)})
		if err != nil {
			a.log.WithError(err).WithField("deployment", dep.Name()).Warn("harvest failed")
			continue
		}
		total += rewards
		ok = true
	}
	if !ok && len(a.deployments) > 0 {
		return 0, errors.External("harvest", errors.State("all deployments failed"))
	}
	return total, nil
}

// EmergencyExit pulls whatever each deployment can return.
func (a *Adapter) EmergencyExit(ctx context.Context) (int64, error) {
	var total int64
	ok := false
	for _, dep := range a.deployments {
		amount, err := a.execInt(ctx, dep, "emergencyExit", []chain.ContractParam{chain.Hash160Param(a.account)})
		if err != nil {
			a.log.WithError(err).WithField("deployment", dep.Name()).Error("emergency exit failed")
			continue
		}
		total += amount
		ok = true
	}
	if !ok && len(a.deployments) > 0 {
		return 0, errors.External("emergency exit", errors.State("all deployments failed"))
	}
	return total, nil
}

// TotalAssets sums the vault's underlying value across deployments.
func (a *Adapter) TotalAssets(ctx context.Context) (int64, error) {
	return a.sumReads(ctx, "assetsOf")
}

// TotalShares sums the vault's strategy shares across deployments.
func (a *Adapter) TotalShares(ctx context.Context) (int64, error) {
	return a.sumReads(ctx, "sharesOf")
}

// ConvertToShares quotes at the selected deployment's share price.
func (a *Adapter) ConvertToShares(ctx context.Context, amount int64) (int64, error) {
	dep, err := a.selectDeployment(ctx)
	if err != nil {
		return 0, err
	}
	return dep.readInt(ctx, "convertToShares", []chain.ContractParam{chain.IntParam(amount)})
}

// ConvertToAssets quotes at the selected deployment's share price.
func (a *Adapter) ConvertToAssets(ctx context.Context, shares int64) (int64, error) {
	dep, err := a.selectDeployment(ctx)
	if err != nil {
		return 0, err
	}
	return dep.readInt(ctx, "convertToAssets", []chain.ContractParam{chain.IntParam(shares)})
}

// APY reports the best advertised yield among healthy deployments.
func (a *Adapter) APY(ctx context.Context) (int64, error) {
	if len(a.deployments) == 0 {
		return 0, errors.State("no deployments registered")
	}
	return a.selector.BestAPY(ctx), nil
}

// PendingRewards sums unharvested rewards across deployments.
func (a *Adapter) PendingRewards(ctx context.Context) (int64, error) {
	return a.sumReads(ctx, "pendingRewards")
}

// IsActive reports whether any deployment currently accepts funds.
func (a *Adapter) IsActive(ctx context.Context) bool {
	for _, dep := range a.deployments {
		if healthy, err := dep.Healthy(ctx); err == nil && healthy {
			return true
		}
	}
	return false
}

func (a *Adapter) selectDeployment(ctx context.Context) (*Deployment, error) {
	p, err := a.selector.Select(ctx)
	if err != nil {
		return nil, err
	}
	dep, ok := p.(*Deployment)
	if !ok {
		return nil, errors.Internal("selector returned foreign protocol", nil)
	}
	return dep, nil
}

// execInt submits a state-changing invocation, waits for execution, and
// decodes the integer the contract method returns.
func (a *Adapter) execInt(ctx context.Context, dep *Deployment, method string, params []chain.ContractParam) (int64, error) {
	res, err := dep.client.InvokeFunctionAndWait(ctx, dep.scriptHash, method, params, true)
	if err != nil {
		return 0, errors.External("invoke "+method, err)
	}
	if res.VMState != "HALT" {
		return 0, errors.External(method+" reverted", errors.State("vm state %s", res.VMState))
	}
	if res.AppLog == nil || len(res.AppLog.Executions) == 0 || len(res.AppLog.Executions[0].Stack) == 0 {
		return 0, errors.External(method, errors.State("no execution result"))
	}
	n, err := chain.ParseInt64(res.AppLog.Executions[0].Stack[0])
	if err != nil {
		return 0, errors.External("decode "+method+" result", err)
	}
	return n, nil
}

func (a *Adapter) sumReads(ctx context.Context, method string) (int64, error) {
	var total int64
	var lastErr error
	ok := false
	for _, dep := range a.deployments {
		n, err := dep.readInt(ctx, method, []chain.ContractParam{chain.Hash160Param(a.account)})
		if err != nil {
			lastErr = err
			continue
		}
		total += n
		ok = true
	}
	if !ok && lastErr != nil {
		return 0, lastErr
	}
	return total, nil
}
