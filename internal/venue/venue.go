// Package venue defines the external swap venue contract and a rate-table
// venue that settles against its own reserve accounts in the ledger.
package venue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/shopspring/decimal"
)

var (
	ErrNoRoute        = errors.New("venue: no route for pair")
	ErrZeroOutput     = errors.New("venue: swap yields zero output")
	ErrOutputTooLarge = errors.New("venue: output exceeds 64 bits")
)

// Ledger is the balance view a venue settles against. Every transfer must keep
// the mint of both accounts equal.
type Ledger interface {
	Balance(account model.Key) uint64
	OpenAccount(account, owner, mint model.Key) *model.TokenAccount
	Transfer(from, to model.Key, amount uint64) error
}

type Request struct {
	Source      model.Key
	Destination model.Key
	InMint      model.Key
	OutMint     model.Key
	AmountIn    uint64
}

// Venue executes a swap. The ledger trusts only the resulting balance deltas,
// never the reported output.
type Venue interface {
	Name() string
	Swap(ctx context.Context, ledger Ledger, req Request) (uint64, error)
}

type pair struct {
	in, out model.Key
}

// RateVenue quotes fixed rates (output units per input unit) and settles out
// of reserve accounts owned by its identity.
type RateVenue struct {
	name     string
	identity model.Key
	feeBps   uint16

	mu    sync.RWMutex
	rates map[pair]decimal.Decimal
}

func NewRateVenue(name string, feeBps uint16) *RateVenue {
	return &RateVenue{
		name:     name,
		identity: model.Derive("venue", []byte(name)),
		feeBps:   feeBps,
		rates:    make(map[pair]decimal.Decimal),
	}
}

func (v *RateVenue) Name() string {
	return v.name
}

// Identity owns the venue's reserve accounts.
func (v *RateVenue) Identity() model.Key {
	return v.identity
}

// ReserveAccount is the venue's custody account for mint.
func (v *RateVenue) ReserveAccount(mint model.Key) model.Key {
	return model.WalletAccount(v.identity, mint)
}

func (v *RateVenue) SetRate(in, out model.Key, rate decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rates[pair{in: canonical(in), out: canonical(out)}] = rate
}

// LoadRates sets every "<in mint>:<out mint>" entry of rates to its decimal
// value. Nothing is applied if any entry is malformed.
func (v *RateVenue) LoadRates(rates map[string]string) error {
	parsed := make(map[pair]decimal.Decimal, len(rates))
	for route, raw := range rates {
		inRaw, outRaw, ok := strings.Cut(route, ":")
		if !ok {
			return fmt.Errorf("venue %s: route %q is not <in>:<out>", v.name, route)
		}
		in, err := model.ParseKey(strings.TrimSpace(inRaw))
		if err != nil {
			return fmt.Errorf("venue %s: route %q: %w", v.name, route, err)
		}
		out, err := model.ParseKey(strings.TrimSpace(outRaw))
		if err != nil {
			return fmt.Errorf("venue %s: route %q: %w", v.name, route, err)
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil || rate.Sign() <= 0 {
			return fmt.Errorf("venue %s: route %q: invalid rate %q", v.name, route, raw)
		}
		parsed[pair{in: canonical(in), out: canonical(out)}] = rate
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for p, rate := range parsed {
		v.rates[p] = rate
	}
	return nil
}

// canonical quotes wrapped native the same as native.
func canonical(mint model.Key) model.Key {
	if mint == model.WrappedNativeMint {
		return model.NativeMint
	}
	return mint
}

func (v *RateVenue) Quote(in, out model.Key, amountIn uint64) (uint64, error) {
	v.mu.RLock()
	rate, ok := v.rates[pair{in: canonical(in), out: canonical(out)}]
	v.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s -> %s", ErrNoRoute, in, out)
	}
	keep := decimal.NewFromInt(int64(model.BpsDenominator - int(v.feeBps))).Div(decimal.NewFromInt(model.BpsDenominator))
	out64 := decimal.NewFromUint64(amountIn).Mul(rate).Mul(keep).Floor()
	if out64.Sign() <= 0 {
		return 0, ErrZeroOutput
	}
	bi := out64.BigInt()
	if !bi.IsUint64() {
		return 0, ErrOutputTooLarge
	}
	return bi.Uint64(), nil
}

func (v *RateVenue) Swap(ctx context.Context, ledger Ledger, req Request) (uint64, error) {
	out, err := v.Quote(req.InMint, req.OutMint, req.AmountIn)
	if err != nil {
		return 0, err
	}
	inReserve := v.ReserveAccount(req.InMint)
	ledger.OpenAccount(inReserve, v.identity, req.InMint)
	if err := ledger.Transfer(req.Source, inReserve, req.AmountIn); err != nil {
		return 0, fmt.Errorf("venue %s: pull input: %w", v.name, err)
	}
	outReserve := v.ReserveAccount(req.OutMint)
	ledger.OpenAccount(outReserve, v.identity, req.OutMint)
	if err := ledger.Transfer(outReserve, req.Destination, out); err != nil {
		return 0, fmt.Errorf("venue %s: pay output: %w", v.name, err)
	}
	return out, nil
}
