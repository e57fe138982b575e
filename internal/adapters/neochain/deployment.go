package neochain

import (
	"context"

	"github.com/R3E-Network/fund_layer/internal/chain"
	"github.com/R3E-Network/fund_layer/internal/errors"
)

// Deployment is one on-chain instance of a yield strategy contract. Several
// deployments of the same strategy can back a single adapter; the selector
// decides which one takes new funds.
type Deployment struct {
	name       string
	scriptHash string
	client     *chain.Client
}

// NewDeployment wraps a deployed strategy contract.
func NewDeployment(name, scriptHash string, client *chain.Client) (*Deployment, error) {
	if name == "" || scriptHash == "" {
		return nil, errors.Validation("deployment name and script hash required")
	}
	if client == nil {
		return nil, errors.Validation("RPC client required")
	}
	return &Deployment{name: name, scriptHash: scriptHash, client: client}, nil
}

func (d *Deployment) Name() string    { return d.name }
func (d *Deployment) Address() string { return d.scriptHash }

// Healthy probes the contract's state and reports whether it accepts funds.
func (d *Deployment) Healthy(ctx context.Context) (bool, error) {
	state, err := d.getState(ctx)
	if err != nil {
		return false, err
	}
	return state.Active, nil
}

// APY reads the strategy's advertised yield in basis points.
func (d *Deployment) APY(ctx context.Context) (int64, error) {
	state, err := d.getState(ctx)
	if err != nil {
		return 0, err
	}
	return state.APYBps, nil
}

func (d *Deployment) getState(ctx context.Context) (*chain.StrategyState, error) {
	res, err := d.client.InvokeFunction(ctx, d.scriptHash, "getState", nil)
	if err != nil {
		return nil, errors.External("query strategy state", err)
	}
	if res.State != "HALT" {
		return nil, errors.External("strategy state faulted", errors.State("%s", res.Exception))
	}
	if len(res.Stack) == 0 {
		return nil, errors.External("strategy state", errors.State("empty result stack"))
	}
	state, err := chain.ParseStrategyState(res.Stack[0])
	if err != nil {
		return nil, errors.External("decode strategy state", err)
	}
	return state, nil
}

// readInt invokes a read-only contract method returning a single integer.
func (d *Deployment) readInt(ctx context.Context, method string, params []chain.ContractParam) (int64, error) {
	res, err := d.client.InvokeFunction(ctx, d.scriptHash, method, params)
	if err != nil {
		return 0, errors.External("invoke "+method, err)
	}
	if res.State != "HALT" {
		return 0, errors.External(method+" faulted", errors.State("%s", res.Exception))
	}
	if len(res.Stack) == 0 {
		return 0, errors.External(method, errors.State("empty result stack"))
	}
	n, err := chain.ParseInt64(res.Stack[0])
	if err != nil {
		return 0, errors.External("decode "+method+" result", err)
	}
	return n, nil
}
