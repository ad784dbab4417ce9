package model

import (
	"fmt"
	"strings"
)

const (
	BpsDenominator = 10_000
	// BaseDecimals is the precision of the base currency (1e9 units per whole unit).
	BaseDecimals = 9
	// MaxStrategyTokens bounds the allocation vector of a strategy fund.
	MaxStrategyTokens = 8
)

type FundType uint8

const (
	FundTypeTrading  FundType = 0
	FundTypeStrategy FundType = 1
)

func (t FundType) String() string {
	switch t {
	case FundTypeTrading:
		return "trading"
	case FundTypeStrategy:
		return "strategy"
	default:
		return fmt.Sprintf("fund_type(%d)", uint8(t))
	}
}

type Side uint8

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts "buy"/"sell" or the raw side number. Unknown numbers
// are kept so the engine rejects them as an invalid side.
func (s *Side) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "buy", "0":
		*s = SideBuy
	case "sell", "1":
		*s = SideSell
	default:
		var n uint8
		if _, err := fmt.Sscanf(string(text), "%d", &n); err == nil {
			*s = Side(n)
			return nil
		}
		return fmt.Errorf("invalid side %q", text)
	}
	return nil
}

type OrderStatus uint8

const (
	OrderStatusOpen      OrderStatus = 0
	OrderStatusExecuted  OrderStatus = 1
	OrderStatusCancelled OrderStatus = 2
	OrderStatusCompleted OrderStatus = 3
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusOpen:
		return "open"
	case OrderStatusExecuted:
		return "executed"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusCompleted:
		return "completed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func (s OrderStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *OrderStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "open":
		*s = OrderStatusOpen
	case "executed":
		*s = OrderStatusExecuted
	case "cancelled":
		*s = OrderStatusCancelled
	case "completed":
		*s = OrderStatusCompleted
	default:
		return fmt.Errorf("invalid order status %q", text)
	}
	return nil
}

// ProtocolConfig holds the protocol-wide fee and risk parameters.
type ProtocolConfig struct {
	Key                 Key    `json:"key"`
	ConfigID            uint64 `json:"config_id"`
	Admin               Key    `json:"admin"`
	Keeper              Key    `json:"keeper"`
	FeeTreasury         Key    `json:"fee_treasury"`
	BaseFeed            Key    `json:"base_feed"`
	OracleProgram       Key    `json:"oracle_program"`
	DepositFeeBps       uint16 `json:"deposit_fee_bps"`
	WithdrawFeeBps      uint16 `json:"withdraw_fee_bps"`
	TradeFeeBps         uint16 `json:"trade_fee_bps"`
	MaxManagerFeeBps    uint16 `json:"max_manager_fee_bps"`
	MaxSlippageBps      uint16 `json:"max_slippage_bps"`
	MinManagerDeposit   uint64 `json:"min_manager_deposit"`
	MinWithdrawTimelock int64  `json:"min_withdraw_timelock"`
	MaxWithdrawTimelock int64  `json:"max_withdraw_timelock"`
}

type WhitelistScope uint8

const (
	ScopeGlobal WhitelistScope = 0
	ScopeFund   WhitelistScope = 1
)

// WhitelistEntry binds an asset to its oracle feed. Global entries are owned
// by a config, fund entries by a fund and carry the fund's custody vault.
type WhitelistEntry struct {
	Key      Key            `json:"key"`
	Scope    WhitelistScope `json:"scope"`
	Owner    Key            `json:"owner"`
	Mint     Key            `json:"mint"`
	Decimals uint8          `json:"decimals"`
	Feed     Key            `json:"feed"`
	Enabled  bool           `json:"enabled"`
	Vault    Key            `json:"vault,omitempty"`
}

type Fund struct {
	Key                Key      `json:"key"`
	Config             Key      `json:"config"`
	Manager            Key      `json:"manager"`
	FundID             uint64   `json:"fund_id"`
	FundType           FundType `json:"fund_type"`
	ShareMint          Key      `json:"share_mint"`
	Vault              Key      `json:"vault"`
	TotalShares        uint64   `json:"total_shares"`
	ManagerFeeBps      uint16   `json:"manager_fee_bps"`
	MinInvestorDeposit uint64   `json:"min_investor_deposit"`
	WithdrawTimelock   int64    `json:"withdraw_timelock"`
	EnabledTokenCount  uint16   `json:"enabled_token_count"`
	ActiveLimitCount   uint16   `json:"active_limit_count"`
	ActiveDcaCount     uint16   `json:"active_dca_count"`
	NextOrderID        uint64   `json:"next_order_id"`
	CreatedAt          int64    `json:"created_at"`
}

// WithdrawRequest is the single live redemption of an investor. Its existence
// is what blocks a second request.
type WithdrawRequest struct {
	Key       Key    `json:"key"`
	Fund      Key    `json:"fund"`
	Investor  Key    `json:"investor"`
	Shares    uint64 `json:"shares"`
	CreatedAt int64  `json:"created_at"`
}

type TradingLock struct {
	Key            Key    `json:"key"`
	Fund           Key    `json:"fund"`
	Locked         bool   `json:"locked"`
	Borrowed       uint64 `json:"borrowed"`
	ExpectedMinOut uint64 `json:"expected_min_out"`
	SnapshotBase   uint64 `json:"snapshot_base"`
	SnapshotOutput uint64 `json:"snapshot_output"`
	OutputMint     Key    `json:"output_mint"`
}

type LimitOrder struct {
	Key            Key         `json:"key"`
	Fund           Key         `json:"fund"`
	OrderID        uint64      `json:"order_id"`
	Side           Side        `json:"side"`
	Mint           Key         `json:"mint"`
	AmountIn       uint64      `json:"amount_in"`
	MinOut         uint64      `json:"min_out"`
	LimitPrice     int64       `json:"limit_price"`
	PriceExpo      int32       `json:"price_expo"`
	MaxSlippageBps uint16      `json:"max_slippage_bps"`
	PriceFeed      Key         `json:"price_feed"`
	OracleProgram  Key         `json:"oracle_program"`
	CreatedAt      int64       `json:"created_at"`
	Expiry         int64       `json:"expiry"`
	Status         OrderStatus `json:"status"`
}

type DcaOrder struct {
	Key             Key         `json:"key"`
	Fund            Key         `json:"fund"`
	OrderID         uint64      `json:"order_id"`
	Side            Side        `json:"side"`
	Mint            Key         `json:"mint"`
	TotalAmount     uint64      `json:"total_amount"`
	SliceAmount     uint64      `json:"slice_amount"`
	RemainingAmount uint64      `json:"remaining_amount"`
	IntervalSecs    int64       `json:"interval_secs"`
	LastExecTs      int64       `json:"last_exec_ts"`
	MinOut          uint64      `json:"min_out"`
	MaxSlippageBps  uint16      `json:"max_slippage_bps"`
	PriceFeed       Key         `json:"price_feed"`
	OracleProgram   Key         `json:"oracle_program"`
	Expiry          int64       `json:"expiry"`
	Status          OrderStatus `json:"status"`
}

type Allocation struct {
	Mint      Key    `json:"mint"`
	WeightBps uint16 `json:"weight_bps"`
}

type Strategy struct {
	Key                   Key          `json:"key"`
	Fund                  Key          `json:"fund"`
	Allocations           []Allocation `json:"allocations"`
	RebalanceThresholdBps uint16       `json:"rebalance_threshold_bps"`
	SlippageBps           uint16       `json:"slippage_bps"`
	CooldownSecs          int64        `json:"cooldown_secs"`
	LastRebalanceTs       int64        `json:"last_rebalance_ts"`
}

// TokenAccount is any balance-holding account: wallets, vaults, escrows and
// share balances alike.
type TokenAccount struct {
	Key    Key    `json:"key"`
	Mint   Key    `json:"mint"`
	Owner  Key    `json:"owner"`
	Amount uint64 `json:"amount"`
}

// PriceAccount is an oracle observation: value = Price * 10^Expo.
type PriceAccount struct {
	Key         Key    `json:"key"`
	Owner       Key    `json:"owner"`
	Price       int64  `json:"price"`
	Conf        uint64 `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}
