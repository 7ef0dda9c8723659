package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/xraph/feeledger"
	"github.com/xraph/feeledger/collector"
	"github.com/xraph/feeledger/policy"
	"github.com/xraph/feeledger/types"
)

// deploymentFile is the YAML deployment: genesis overrides on top of
// feeledger.DefaultGenesis, the swap pairs used to classify transfers, and
// an optional script of steps. Addresses and amounts are strings so that
// hex and 256-bit values survive YAML's number resolution.
type deploymentFile struct {
	Administrator        string                `yaml:"administrator"`
	Token                *types.Token          `yaml:"token"`
	InitialSupply        string                `yaml:"initialSupply"`
	FeeReceiver          string                `yaml:"feeReceiver"`
	SwapRouter           string                `yaml:"swapRouter"`
	LiquidityOwner       string                `yaml:"liquidityOwner"`
	Collectors           []collectorSpec       `yaml:"collectors"`
	Config               *policy.Configuration `yaml:"config"`
	Excluded             []string              `yaml:"excluded"`
	AutoprocessFees      bool                  `yaml:"autoprocessFees"`
	AutoprocessThreshold string                `yaml:"autoprocessThreshold"`
	Pairs                []string              `yaml:"pairs"`
	Steps                []step                `yaml:"steps"`
}

type collectorSpec struct {
	Address string    `yaml:"address"`
	Share   types.BPS `yaml:"share"`
}

// deployment is a parsed deploymentFile.
type deployment struct {
	Genesis feeledger.Genesis
	Pairs   []common.Address
	Steps   []step
}

// readDeployment reads path. An empty path yields the default genesis for
// admin with no pairs or steps.
func readDeployment(path, admin string) (*deployment, error) {
	var f deploymentFile
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read deployment: %w", err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse deployment %s: %w", path, err)
		}
	}
	if admin != "" {
		f.Administrator = admin
	}
	return f.resolve()
}

func (f *deploymentFile) resolve() (*deployment, error) {
	if f.Administrator == "" {
		return nil, fmt.Errorf("deployment: administrator is required")
	}
	admin, err := feeledger.ParseAddress(f.Administrator)
	if err != nil {
		return nil, fmt.Errorf("deployment: administrator: %w", err)
	}

	g := feeledger.DefaultGenesis(admin)
	if f.Token != nil {
		g.Token = *f.Token
	}
	if f.InitialSupply != "" {
		if g.InitialSupply, err = feeledger.ParseAmount(f.InitialSupply); err != nil {
			return nil, fmt.Errorf("deployment: initialSupply: %w", err)
		}
	}
	overrides := []struct {
		name  string
		value string
		dst   *common.Address
	}{
		{"feeReceiver", f.FeeReceiver, &g.FeeReceiver},
		{"swapRouter", f.SwapRouter, &g.SwapRouter},
		{"liquidityOwner", f.LiquidityOwner, &g.LiquidityOwner},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		if *o.dst, err = feeledger.ParseAddress(o.value); err != nil {
			return nil, fmt.Errorf("deployment: %s: %w", o.name, err)
		}
	}
	if len(f.Collectors) > 0 {
		g.Collectors = make([]collector.Collector, len(f.Collectors))
		for i, c := range f.Collectors {
			a, err := feeledger.ParseAddress(c.Address)
			if err != nil {
				return nil, fmt.Errorf("deployment: collectors[%d]: %w", i, err)
			}
			g.Collectors[i] = collector.Collector{Address: a, Share: c.Share}
		}
	}
	if f.Config != nil {
		g.Config = *f.Config
	}
	if g.Excluded, err = parseAddresses(f.Excluded); err != nil {
		return nil, fmt.Errorf("deployment: excluded: %w", err)
	}
	g.AutoprocessFees = f.AutoprocessFees
	if f.AutoprocessThreshold != "" {
		if g.AutoprocessThreshold, err = feeledger.ParseAmount(f.AutoprocessThreshold); err != nil {
			return nil, fmt.Errorf("deployment: autoprocessThreshold: %w", err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	pairs, err := parseAddresses(f.Pairs)
	if err != nil {
		return nil, fmt.Errorf("deployment: pairs: %w", err)
	}
	return &deployment{Genesis: g, Pairs: pairs, Steps: f.Steps}, nil
}

func parseAddresses(in []string) ([]common.Address, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]common.Address, len(in))
	for i, s := range in {
		a, err := feeledger.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}
