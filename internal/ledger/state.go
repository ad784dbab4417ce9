package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/GoPolymarket/fundgate/internal/model"
)

var (
	ErrAccountMissing      = errors.New("ledger: account does not exist")
	ErrMintMismatch        = errors.New("ledger: mint mismatch")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrBalanceOverflow     = errors.New("ledger: balance overflow")
)

// State is the full set of ledger records. Batches mutate a private copy and
// the store swaps it in only when every operation succeeded.
type State struct {
	Configs     map[model.Key]*model.ProtocolConfig
	Whitelist   map[model.Key]*model.WhitelistEntry
	Funds       map[model.Key]*model.Fund
	Withdrawals map[model.Key]*model.WithdrawRequest
	Locks       map[model.Key]*model.TradingLock
	LimitOrders map[model.Key]*model.LimitOrder
	DcaOrders   map[model.Key]*model.DcaOrder
	Strategies  map[model.Key]*model.Strategy
	Accounts    map[model.Key]*model.TokenAccount
	Prices      map[model.Key]*model.PriceAccount
}

func NewState() *State {
	return &State{
		Configs:     make(map[model.Key]*model.ProtocolConfig),
		Whitelist:   make(map[model.Key]*model.WhitelistEntry),
		Funds:       make(map[model.Key]*model.Fund),
		Withdrawals: make(map[model.Key]*model.WithdrawRequest),
		Locks:       make(map[model.Key]*model.TradingLock),
		LimitOrders: make(map[model.Key]*model.LimitOrder),
		DcaOrders:   make(map[model.Key]*model.DcaOrder),
		Strategies:  make(map[model.Key]*model.Strategy),
		Accounts:    make(map[model.Key]*model.TokenAccount),
		Prices:      make(map[model.Key]*model.PriceAccount),
	}
}

func cloneMap[T any](src map[model.Key]*T, copyFn func(T) T) map[model.Key]*T {
	dst := make(map[model.Key]*T, len(src))
	for k, v := range src {
		c := copyFn(*v)
		dst[k] = &c
	}
	return dst
}

func same[T any](v T) T { return v }

func (s *State) Clone() *State {
	return &State{
		Configs:     cloneMap(s.Configs, same[model.ProtocolConfig]),
		Whitelist:   cloneMap(s.Whitelist, same[model.WhitelistEntry]),
		Funds:       cloneMap(s.Funds, same[model.Fund]),
		Withdrawals: cloneMap(s.Withdrawals, same[model.WithdrawRequest]),
		Locks:       cloneMap(s.Locks, same[model.TradingLock]),
		LimitOrders: cloneMap(s.LimitOrders, same[model.LimitOrder]),
		DcaOrders:   cloneMap(s.DcaOrders, same[model.DcaOrder]),
		Strategies: cloneMap(s.Strategies, func(v model.Strategy) model.Strategy {
			v.Allocations = append([]model.Allocation(nil), v.Allocations...)
			return v
		}),
		Accounts: cloneMap(s.Accounts, same[model.TokenAccount]),
		Prices:   cloneMap(s.Prices, same[model.PriceAccount]),
	}
}

// Balance returns the amount held by account, zero when it does not exist.
func (s *State) Balance(account model.Key) uint64 {
	if acc, ok := s.Accounts[account]; ok {
		return acc.Amount
	}
	return 0
}

// OpenAccount returns the account, creating an empty one when missing.
func (s *State) OpenAccount(account, owner, mint model.Key) *model.TokenAccount {
	if acc, ok := s.Accounts[account]; ok {
		return acc
	}
	acc := &model.TokenAccount{Key: account, Mint: mint, Owner: owner}
	s.Accounts[account] = acc
	return acc
}

func (s *State) CloseAccount(account model.Key) {
	delete(s.Accounts, account)
}

// Transfer moves amount between two existing accounts of the same mint.
func (s *State) Transfer(from, to model.Key, amount uint64) error {
	src, ok := s.Accounts[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountMissing, from)
	}
	dst, ok := s.Accounts[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountMissing, to)
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, from, to)
	}
	if amount == 0 || from == to {
		return nil
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, from, src.Amount, amount)
	}
	if dst.Amount+amount < dst.Amount {
		return ErrBalanceOverflow
	}
	src.Amount -= amount
	dst.Amount += amount
	return nil
}

// Mint credits amount out of thin air; used for shares and external funding.
func (s *State) Mint(account model.Key, amount uint64) error {
	acc, ok := s.Accounts[account]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountMissing, account)
	}
	if acc.Amount+amount < acc.Amount {
		return ErrBalanceOverflow
	}
	acc.Amount += amount
	return nil
}

func (s *State) Burn(account model.Key, amount uint64) error {
	acc, ok := s.Accounts[account]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAccountMissing, account)
	}
	if acc.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, account, acc.Amount, amount)
	}
	acc.Amount -= amount
	return nil
}

// SharesOf sums every share account of the fund. Equals Fund.TotalShares.
func (s *State) SharesOf(fund *model.Fund) uint64 {
	var total uint64
	for _, acc := range s.Accounts {
		if acc.Mint == fund.ShareMint {
			total += acc.Amount
		}
	}
	return total
}

// Record kinds persisted by the SQL store.
const (
	KindConfig    = "config"
	KindWhitelist = "whitelist"
	KindFund      = "fund"
	KindWithdraw  = "withdraw"
	KindLock      = "lock"
	KindLimit     = "limit_order"
	KindDca       = "dca_order"
	KindStrategy  = "strategy"
	KindAccount   = "account"
	KindPrice     = "price"
)

// RecordKinds lists every record kind in persistence order.
func RecordKinds() []string {
	return []string{KindConfig, KindWhitelist, KindFund, KindWithdraw, KindLock, KindLimit, KindDca, KindStrategy, KindAccount, KindPrice}
}

// RecordID addresses a single persisted record.
type RecordID struct {
	Kind string
	Key  model.Key
}

func encodeAll[T any](out map[RecordID][]byte, kind string, m map[model.Key]*T) error {
	for k, v := range m {
		body, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, k, err)
		}
		out[RecordID{Kind: kind, Key: k}] = body
	}
	return nil
}

// Records encodes the state as one JSON body per record.
func (s *State) Records() (map[RecordID][]byte, error) {
	out := make(map[RecordID][]byte)
	steps := []func() error{
		func() error { return encodeAll(out, KindConfig, s.Configs) },
		func() error { return encodeAll(out, KindWhitelist, s.Whitelist) },
		func() error { return encodeAll(out, KindFund, s.Funds) },
		func() error { return encodeAll(out, KindWithdraw, s.Withdrawals) },
		func() error { return encodeAll(out, KindLock, s.Locks) },
		func() error { return encodeAll(out, KindLimit, s.LimitOrders) },
		func() error { return encodeAll(out, KindDca, s.DcaOrders) },
		func() error { return encodeAll(out, KindStrategy, s.Strategies) },
		func() error { return encodeAll(out, KindAccount, s.Accounts) },
		func() error { return encodeAll(out, KindPrice, s.Prices) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeInto[T any](m map[model.Key]*T, key model.Key, body []byte) error {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return err
	}
	m[key] = &v
	return nil
}

// Put decodes one persisted record into the state.
func (s *State) Put(id RecordID, body []byte) error {
	var err error
	switch id.Kind {
	case KindConfig:
		err = decodeInto(s.Configs, id.Key, body)
	case KindWhitelist:
		err = decodeInto(s.Whitelist, id.Key, body)
	case KindFund:
		err = decodeInto(s.Funds, id.Key, body)
	case KindWithdraw:
		err = decodeInto(s.Withdrawals, id.Key, body)
	case KindLock:
		err = decodeInto(s.Locks, id.Key, body)
	case KindLimit:
		err = decodeInto(s.LimitOrders, id.Key, body)
	case KindDca:
		err = decodeInto(s.DcaOrders, id.Key, body)
	case KindStrategy:
		err = decodeInto(s.Strategies, id.Key, body)
	case KindAccount:
		err = decodeInto(s.Accounts, id.Key, body)
	case KindPrice:
		err = decodeInto(s.Prices, id.Key, body)
	default:
		return fmt.Errorf("unknown record kind %q", id.Kind)
	}
	if err != nil {
		return fmt.Errorf("decode %s %s: %w", id.Kind, id.Key, err)
	}
	return nil
}
