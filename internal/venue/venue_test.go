package venue

import (
	"context"
	"testing"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mintA = model.NamedKey("mint/a")
	mintB = model.NamedKey("mint/b")
)

// book is a minimal ledger of token accounts.
type book map[model.Key]*model.TokenAccount

func (b book) Balance(account model.Key) uint64 {
	if acc, ok := b[account]; ok {
		return acc.Amount
	}
	return 0
}

func (b book) OpenAccount(account, owner, mint model.Key) *model.TokenAccount {
	if acc, ok := b[account]; ok {
		return acc
	}
	acc := &model.TokenAccount{Key: account, Owner: owner, Mint: mint}
	b[account] = acc
	return acc
}

func (b book) Transfer(from, to model.Key, amount uint64) error {
	src, ok := b[from]
	if !ok || src.Amount < amount {
		return assert.AnError
	}
	src.Amount -= amount
	b[to].Amount += amount
	return nil
}

func TestQuote(t *testing.T) {
	v := NewRateVenue("router", 30)
	v.SetRate(model.NativeMint, mintA, decimal.RequireFromString("0.15"))

	out, err := v.Quote(model.NativeMint, mintA, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(149_550), out)

	out, err = v.Quote(model.WrappedNativeMint, mintA, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(149_550), out)

	_, err = v.Quote(mintA, model.NativeMint, 1)
	assert.ErrorIs(t, err, ErrNoRoute)
	_, err = v.Quote(model.NativeMint, mintA, 1)
	assert.ErrorIs(t, err, ErrZeroOutput)
}

func TestSwapSettlesAgainstReserves(t *testing.T) {
	v := NewRateVenue("router", 0)
	v.SetRate(mintA, mintB, decimal.NewFromInt(2))

	ledger := book{}
	source := model.AssociatedKey(model.NamedKey("fund"), mintA)
	dest := model.AssociatedKey(model.NamedKey("fund"), mintB)
	ledger.OpenAccount(source, model.NamedKey("fund"), mintA).Amount = 100
	ledger.OpenAccount(dest, model.NamedKey("fund"), mintB)
	ledger.OpenAccount(v.ReserveAccount(mintB), v.Identity(), mintB).Amount = 1_000

	out, err := v.Swap(context.Background(), ledger, Request{Source: source, Destination: dest, InMint: mintA, OutMint: mintB, AmountIn: 100})
	require.NoError(t, err)
	assert.Equal(t, uint64(200), out)
	assert.Zero(t, ledger.Balance(source))
	assert.Equal(t, uint64(200), ledger.Balance(dest))
	assert.Equal(t, uint64(100), ledger.Balance(v.ReserveAccount(mintA)))
	assert.Equal(t, uint64(800), ledger.Balance(v.ReserveAccount(mintB)))

	_, err = v.Swap(context.Background(), ledger, Request{Source: source, Destination: dest, InMint: mintA, OutMint: mintB, AmountIn: 100})
	assert.Error(t, err)
}

func TestLoadRates(t *testing.T) {
	v := NewRateVenue("router", 0)
	require.NoError(t, v.LoadRates(map[string]string{
		model.NativeMint.String() + ":" + mintA.String(): "0.15",
	}))
	out, err := v.Quote(model.NativeMint, mintA, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), out)

	for _, bad := range []map[string]string{
		{"no-separator": "1"},
		{"0x12:" + mintA.String(): "1"},
		{mintB.String() + ":" + mintA.String(): "zero"},
		{mintB.String() + ":" + mintA.String(): "-1"},
	} {
		assert.Error(t, v.LoadRates(bad))
	}
	_, err = v.Quote(mintB, mintA, 100)
	assert.ErrorIs(t, err, ErrNoRoute)
}
