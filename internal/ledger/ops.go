package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
)

// Operation is one ledger instruction. The set is closed: only this package
// can implement it.
type Operation interface {
	Name() string
	apply(t *txn) error
}

// Operation names as they appear on the wire.
const (
	OpInitializeConfig  = "initialize_config"
	OpUpdateConfig      = "update_config"
	OpSetKeeper         = "set_keeper"
	OpRevokeKeeper      = "revoke_keeper"
	OpAddToken          = "add_token"
	OpRemoveToken       = "remove_token"
	OpInitializeFund    = "initialize_fund"
	OpDeposit           = "deposit"
	OpRequestWithdraw   = "request_withdraw"
	OpCancelWithdraw    = "cancel_withdraw"
	OpExecuteWithdraw   = "execute_withdraw"
	OpBorrowForSwap     = "borrow_for_swap"
	OpSwap              = "swap"
	OpSettleSwap        = "settle_swap"
	OpCreateLimitOrder  = "create_limit_order"
	OpExecuteLimitOrder = "execute_limit_order"
	OpCancelLimitOrder  = "cancel_limit_order"
	OpCreateDcaOrder    = "create_dca_order"
	OpExecuteDcaOrder   = "execute_dca_order"
	OpCancelDcaOrder    = "cancel_dca_order"
	OpSetStrategy       = "set_strategy"
	OpRebalanceStrategy = "rebalance_strategy"
	OpSweepWsol         = "sweep_wsol"
)

var registry = map[string]func() Operation{
	OpInitializeConfig:  func() Operation { return &InitializeConfig{} },
	OpUpdateConfig:      func() Operation { return &UpdateConfig{} },
	OpSetKeeper:         func() Operation { return &SetKeeper{} },
	OpRevokeKeeper:      func() Operation { return &RevokeKeeper{} },
	OpAddToken:          func() Operation { return &AddToken{} },
	OpRemoveToken:       func() Operation { return &RemoveToken{} },
	OpInitializeFund:    func() Operation { return &InitializeFund{} },
	OpDeposit:           func() Operation { return &Deposit{} },
	OpRequestWithdraw:   func() Operation { return &RequestWithdraw{} },
	OpCancelWithdraw:    func() Operation { return &CancelWithdraw{} },
	OpExecuteWithdraw:   func() Operation { return &ExecuteWithdraw{} },
	OpBorrowForSwap:     func() Operation { return &BorrowForSwap{} },
	OpSwap:              func() Operation { return &Swap{} },
	OpSettleSwap:        func() Operation { return &SettleSwap{} },
	OpCreateLimitOrder:  func() Operation { return &CreateLimitOrder{} },
	OpExecuteLimitOrder: func() Operation { return &ExecuteLimitOrder{} },
	OpCancelLimitOrder:  func() Operation { return &CancelLimitOrder{} },
	OpCreateDcaOrder:    func() Operation { return &CreateDcaOrder{} },
	OpExecuteDcaOrder:   func() Operation { return &ExecuteDcaOrder{} },
	OpCancelDcaOrder:    func() Operation { return &CancelDcaOrder{} },
	OpSetStrategy:       func() Operation { return &SetStrategy{} },
	OpRebalanceStrategy: func() Operation { return &RebalanceStrategy{} },
	OpSweepWsol:         func() Operation { return &SweepWsol{} },
}

// OperationNames lists every operation the ledger accepts.
func OperationNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsOperation reports whether name is an operation the ledger accepts.
func IsOperation(name string) bool {
	_, ok := registry[name]
	return ok
}

// DecodeOperation builds the named operation from its JSON arguments. Unknown
// fields are rejected.
func DecodeOperation(name string, args json.RawMessage) (Operation, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("unknown operation %q", name))
	}
	op := factory()
	if len(bytes.TrimSpace(args)) == 0 {
		return op, nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(op); err != nil {
		return nil, apperrors.NewInvalidRequest(fmt.Sprintf("invalid arguments for %s: %v", name, err))
	}
	return op, nil
}

// OperationInfo describes an operation for clients: its wire name and the
// JSON argument fields it accepts.
type OperationInfo struct {
	Name     string   `json:"name"`
	Args     []string `json:"args"`
	Basketed bool     `json:"basketed"`
}

// Operations lists every operation sorted by name.
func Operations() []OperationInfo {
	names := OperationNames()
	infos := make([]OperationInfo, 0, len(names))
	for _, name := range names {
		op := registry[name]()
		_, basketed := op.(Basketed)
		infos = append(infos, OperationInfo{
			Name:     name,
			Args:     argNames(reflect.TypeOf(op).Elem()),
			Basketed: basketed,
		})
	}
	return infos
}

// argNames lists the JSON argument names of an operation, flattening
// embedded parameter structs.
func argNames(t reflect.Type) []string {
	names := []string{}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			names = append(names, argNames(field.Type)...)
			continue
		}
		tag, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if tag == "" || tag == "-" {
			continue
		}
		names = append(names, tag)
	}
	return names
}

// Basketed is implemented by operations that value the fund over a basket,
// so a dispatcher can fill it in from the ledger.
type Basketed interface {
	Operation
	BasketFund() model.Key
	SetBasket(baseOracle model.Key, basket []BasketEntry)
}
