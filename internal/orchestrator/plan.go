package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/shipyard/internal/build"
)

// Plan is a YAML manifest deploying several contracts to one network in a
// single run.
type Plan struct {
	Network   string      `yaml:"network"`
	Verify    bool        `yaml:"verify,omitempty"`
	Contracts []PlanEntry `yaml:"contracts"`
}

// PlanEntry describes one contract within a plan.
type PlanEntry struct {
	Contract string   `yaml:"contract"`
	Args     []string `yaml:"args,omitempty"`
	Value    string   `yaml:"value,omitempty"` // wei, decimal
}

// LoadPlan reads and validates a deployment plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return &plan, nil
}

// Validate checks the plan for structural problems before anything touches
// the chain.
func (p *Plan) Validate() error {
	if p.Network == "" {
		return fmt.Errorf("network is required")
	}
	if len(p.Contracts) == 0 {
		return fmt.Errorf("plan has no contracts")
	}
	seen := make(map[string]bool, len(p.Contracts))
	for i, entry := range p.Contracts {
		if entry.Contract == "" {
			return fmt.Errorf("contracts[%d]: contract name is required", i)
		}
		if seen[entry.Contract] {
			return fmt.Errorf("contracts[%d]: duplicate contract %q", i, entry.Contract)
		}
		seen[entry.Contract] = true
		if _, err := entry.ValueWei(); err != nil {
			return fmt.Errorf("contracts[%d]: %w", i, err)
		}
	}
	return nil
}

// ValueWei parses the entry's value field as decimal wei.
func (e *PlanEntry) ValueWei() (*big.Int, error) {
	if e.Value == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(e.Value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid value %q", e.Value)
	}
	return v, nil
}

// RunPlan deploys every contract in the plan concurrently. All deployments
// share one broadcaster and nonce manager, so transactions from the same
// signer get unique consecutive nonces regardless of goroutine order.
// Outcomes are returned in plan order; the first error cancels the rest.
func (o *Orchestrator) RunPlan(ctx context.Context, dir string, plan *Plan) ([]*DeployOutcome, error) {
	net, err := o.resolver.Resolve(plan.Network)
	if err != nil {
		return nil, err
	}

	// Resolve all artifacts up front so one typo doesn't leave half the
	// plan on chain.
	type prepared struct {
		entry    PlanEntry
		builder  build.Builder
		artifact *build.Artifact
	}
	client, err := o.dial(ctx, net.RPCURL)
	if err != nil {
		return nil, err
	}
	b := o.newBroadcaster(client, net)

	entries := make([]prepared, len(plan.Contracts))
	for i, entry := range plan.Contracts {
		builder, artifact, err := o.lookupArtifact(dir, entry.Contract)
		if err != nil {
			return nil, err
		}
		entries[i] = prepared{entry: entry, builder: builder, artifact: artifact}
	}

	outcomes := make([]*DeployOutcome, len(entries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range entries {
		g.Go(func() error {
			value, _ := p.entry.ValueWei()
			outcome, err := o.deployOne(gctx, b, p.builder, net, DeployRequest{
				Dir:      dir,
				Network:  plan.Network,
				Contract: p.entry.Contract,
				Args:     p.entry.Args,
				Value:    value,
				Verify:   plan.Verify,
			}, p.artifact)

			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
