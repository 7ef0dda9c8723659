// Package swap declares the collaborators the fee engine calls out to: a
// Router that converts tokens into another asset, and a Classifier that
// decides whether a transfer is a buy, a sell or a plain transfer.
package swap

//go:generate mockgen -destination swapmock/swapmock.go -package swapmock github.com/xraph/feeledger/swap Router,Classifier

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/feeledger/types"
)

// Class is the category of a transfer, which selects the fee rate.
type Class int

const (
	Plain Class = iota
	Buy
	Sell
)

func (c Class) String() string {
	switch c {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "plain"
	}
}

// NativeToken stands for the chain's native asset as a conversion target.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Router converts amount of the fee token into tokenOut, delivers the output
// to recipient, and reports how much tokenOut was produced. For the
// liquidity share the recipient is the liquidity owner, who receives the
// resulting position. Implementations must honor ctx deadlines.
type Router interface {
	Convert(ctx context.Context, amount types.Amount, tokenOut, recipient common.Address) (types.Amount, error)
}

// RouterFunc adapts a function to Router.
type RouterFunc func(ctx context.Context, amount types.Amount, tokenOut, recipient common.Address) (types.Amount, error)

// Convert calls f.
func (f RouterFunc) Convert(ctx context.Context, amount types.Amount, tokenOut, recipient common.Address) (types.Amount, error) {
	return f(ctx, amount, tokenOut, recipient)
}

// Classifier categorizes a transfer.
type Classifier interface {
	Classify(from, to common.Address) Class
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(from, to common.Address) Class

// Classify calls f.
func (f ClassifierFunc) Classify(from, to common.Address) Class { return f(from, to) }

// PlainOnly classifies every transfer as Plain.
var PlainOnly Classifier = ClassifierFunc(func(common.Address, common.Address) Class { return Plain })

// PairSet is a Classifier backed by a set of liquidity-pool addresses:
// sending to a pool is a sell, receiving from one is a buy. Safe for
// concurrent use.
type PairSet struct {
	mu    sync.RWMutex
	pairs map[common.Address]struct{}
}

// NewPairSet returns a PairSet holding pairs.
func NewPairSet(pairs ...common.Address) *PairSet {
	s := &PairSet{pairs: make(map[common.Address]struct{}, len(pairs))}
	for _, p := range pairs {
		s.pairs[p] = struct{}{}
	}
	return s
}

// Set adds or removes a pool address.
func (s *PairSet) Set(pair common.Address, isPair bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isPair {
		s.pairs[pair] = struct{}{}
		return
	}
	delete(s.pairs, pair)
}

// Contains reports whether pair is a registered pool.
func (s *PairSet) Contains(pair common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[pair]
	return ok
}

// Classify implements Classifier. A transfer to a pool wins over one from a
// pool.
func (s *PairSet) Classify(from, to common.Address) Class {
	switch {
	case s.Contains(to):
		return Sell
	case s.Contains(from):
		return Buy
	default:
		return Plain
	}
}

var _ Classifier = (*PairSet)(nil)
