package ledger

import (
	"context"
	"sort"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/oracle"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/pkg/metrics"
)

// BasketEntry names one fund asset for valuation: its fund whitelist entry,
// its token vault and the price account of its feed.
type BasketEntry struct {
	Whitelist model.Key `json:"whitelist"`
	Vault     model.Key `json:"vault"`
	Oracle    model.Key `json:"oracle"`
}

type holding struct {
	entry  *model.WhitelistEntry
	vault  *model.TokenAccount
	price  oracle.Price
	amount uint64
	value  uint64
}

type valuation struct {
	base      uint64
	basePrice oracle.Price
	priced    bool
	holdings  []holding
	nav       uint64
}

func (v *valuation) holding(mint model.Key) (holding, bool) {
	for _, h := range v.holdings {
		if h.entry.Mint == mint {
			return h, true
		}
	}
	return holding{}, false
}

// value computes the fund NAV over a caller supplied basket. The basket must
// list every enabled fund asset exactly once, ascending by mint.
func (t *txn) value(f *model.Fund, cfg *model.ProtocolConfig, baseOracle model.Key, basket []BasketEntry) (*valuation, error) {
	v := &valuation{base: t.st.Balance(f.Vault)}
	v.nav = v.base
	if f.EnabledTokenCount == 0 {
		if len(basket) != 0 {
			return nil, apperrors.Reject(apperrors.CodeInvalidRemainingAccounts, "fund holds no tokens but a basket was supplied")
		}
		return v, nil
	}
	if len(basket) != int(f.EnabledTokenCount) {
		return nil, apperrors.Rejectf(apperrors.CodeInvalidRemainingAccounts,
			"basket has %d entries, fund has %d enabled tokens", len(basket), f.EnabledTokenCount)
	}

	basePrice, err := t.basePrice(cfg, baseOracle)
	if err != nil {
		return nil, err
	}
	v.basePrice = basePrice
	v.priced = true

	var prev model.Key
	for i, entry := range basket {
		wl, ok := t.st.Whitelist[entry.Whitelist]
		if !ok || wl.Scope != model.ScopeFund || wl.Owner != f.Key || !wl.Enabled {
			return nil, apperrors.Rejectf(apperrors.CodeInvalidRemainingAccounts, "basket entry %d is not an enabled asset of the fund", i)
		}
		if i > 0 && !prev.Less(wl.Mint) {
			return nil, apperrors.Rejectf(apperrors.CodeInvalidWhitelistOrder, "basket entry %d is out of order or duplicated", i)
		}
		prev = wl.Mint

		vault, ok := t.st.Accounts[entry.Vault]
		if entry.Vault != wl.Vault || !ok || vault.Mint != wl.Mint || vault.Owner != f.Key {
			return nil, apperrors.Rejectf(apperrors.CodeInvalidTokenVault, "basket entry %d names the wrong token vault", i)
		}
		price, err := t.price(entry.Oracle, wl.Feed, cfg.OracleProgram)
		if err != nil {
			return nil, err
		}
		worth, err := oracle.TokenValueInBase(vault.Amount, wl.Decimals, price, basePrice)
		if err != nil {
			return nil, err
		}
		if v.nav, err = add(v.nav, worth); err != nil {
			return nil, err
		}
		v.holdings = append(v.holdings, holding{entry: wl, vault: vault, price: price, amount: vault.Amount, value: worth})
	}
	return v, nil
}

// EnumerateBasket lists the fund's enabled assets in the order valuation
// expects, pointing each at the price account of its bound feed.
func EnumerateBasket(st *State, fund model.Key) []BasketEntry {
	var entries []*model.WhitelistEntry
	for _, wl := range st.Whitelist {
		if wl.Scope == model.ScopeFund && wl.Owner == fund && wl.Enabled {
			entries = append(entries, wl)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Mint.Less(entries[j].Mint) })

	basket := make([]BasketEntry, 0, len(entries))
	for _, wl := range entries {
		basket = append(basket, BasketEntry{Whitelist: wl.Key, Vault: wl.Vault, Oracle: wl.Feed})
	}
	return basket
}

// FillBasket completes a basketed operation from the ledger's own records.
func FillBasket(st *State, op Basketed) error {
	f, ok := st.Funds[op.BasketFund()]
	if !ok {
		return apperrors.Rejectf(apperrors.CodeAccountNotFound, "fund %s not found", op.BasketFund())
	}
	cfg, ok := st.Configs[f.Config]
	if !ok {
		return apperrors.Rejectf(apperrors.CodeAccountNotFound, "config %s not found", f.Config)
	}
	op.SetBasket(cfg.BaseFeed, EnumerateBasket(st, f.Key))
	return nil
}

type HoldingValue struct {
	Mint   model.Key `json:"mint"`
	Vault  model.Key `json:"vault"`
	Amount uint64    `json:"amount"`
	Value  uint64    `json:"value"`
}

type NavReport struct {
	Fund        model.Key      `json:"fund"`
	Base        uint64         `json:"base"`
	Holdings    []HoldingValue `json:"holdings"`
	Nav         uint64         `json:"nav"`
	TotalShares uint64         `json:"total_shares"`
	Timestamp   int64          `json:"timestamp"`
}

// NAV values the fund at the current ledger time over its full basket.
func (e *Engine) NAV(ctx context.Context, fund model.Key) (*NavReport, error) {
	var report *NavReport
	err := e.store.View(ctx, func(st *State) error {
		t := &txn{ctx: ctx, e: e, st: st, now: e.Now()}
		f, cfg, err := t.fund(fund)
		if err != nil {
			return err
		}
		v, err := t.value(f, cfg, cfg.BaseFeed, EnumerateBasket(st, fund))
		if err != nil {
			return err
		}
		report = &NavReport{
			Fund:        fund,
			Base:        v.base,
			Holdings:    make([]HoldingValue, 0, len(v.holdings)),
			Nav:         v.nav,
			TotalShares: f.TotalShares,
			Timestamp:   t.now,
		}
		for _, h := range v.holdings {
			report.Holdings = append(report.Holdings, HoldingValue{Mint: h.entry.Mint, Vault: h.vault.Key, Amount: h.amount, Value: h.value})
		}
		return nil
	})
	if err == nil {
		metrics.FundNav.WithLabelValues(fund.String()).Set(float64(report.Nav))
	}
	return report, err
}
