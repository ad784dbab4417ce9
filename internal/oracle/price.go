package oracle

import (
	"errors"

	"github.com/GoPolymarket/fundgate/internal/model"
	"github.com/GoPolymarket/fundgate/internal/pkg/apperrors"
	"github.com/GoPolymarket/fundgate/internal/pkg/fixedpoint"
	"github.com/holiman/uint256"
)

const (
	DefaultMaxAgeSeconds = 60
	DefaultMaxConfBps    = 200
)

// Price is a validated observation: value = Value * 10^Expo.
type Price struct {
	Value int64
	Expo  int32
}

// Validator applies the freshness and confidence rules to price accounts.
type Validator struct {
	MaxAgeSeconds int64
	MaxConfBps    uint16
}

func NewValidator(maxAgeSeconds int64, maxConfBps uint16) Validator {
	if maxAgeSeconds <= 0 {
		maxAgeSeconds = DefaultMaxAgeSeconds
	}
	if maxConfBps == 0 {
		maxConfBps = DefaultMaxConfBps
	}
	return Validator{MaxAgeSeconds: maxAgeSeconds, MaxConfBps: maxConfBps}
}

// Check verifies that acc is the expected feed, owned by program, and returns
// its price when fresh and tight enough.
func (v Validator) Check(acc *model.PriceAccount, feed, program model.Key, now int64) (Price, error) {
	if acc == nil || acc.Key != feed {
		return Price{}, apperrors.Reject(apperrors.CodeInvalidOracle, "oracle account does not match the bound feed")
	}
	if acc.Owner != program {
		return Price{}, apperrors.Reject(apperrors.CodeInvalidOracle, "oracle account not owned by the oracle program")
	}
	if now-acc.PublishTime > v.MaxAgeSeconds {
		return Price{}, apperrors.Rejectf(apperrors.CodeStaleOracle, "price published at %d is older than %ds", acc.PublishTime, v.MaxAgeSeconds)
	}
	if acc.Price <= 0 {
		return Price{}, apperrors.Reject(apperrors.CodeInvalidOracle, "oracle price must be positive")
	}
	maxConf, err := fixedpoint.Bps(uint64(acc.Price), v.MaxConfBps)
	if err != nil {
		return Price{}, mathErr(err)
	}
	if acc.Conf > maxConf {
		return Price{}, apperrors.Rejectf(apperrors.CodeInvalidOracleConfidence, "confidence %d exceeds %d", acc.Conf, maxConf)
	}
	return Price{Value: acc.Price, Expo: acc.Expo}, nil
}

// TokenValueInBase converts amount of a token with the given decimals into
// base-currency units using token and base prices quoted in the same unit.
func TokenValueInBase(amount uint64, decimals uint8, token, base Price) (uint64, error) {
	if token.Value <= 0 || base.Value <= 0 {
		return 0, apperrors.Reject(apperrors.CodeInvalidOracle, "oracle price must be positive")
	}
	scale := int(token.Expo) - int(decimals) - int(base.Expo) + model.BaseDecimals
	v, err := fixedpoint.Ratio([]uint64{amount, uint64(token.Value)}, []uint64{uint64(base.Value)}, scale)
	if err != nil {
		return 0, mathErr(err)
	}
	return v, nil
}

// ExpectedBaseOut is the base-currency value of selling amount of a token.
func ExpectedBaseOut(amount uint64, decimals uint8, token, base Price) (uint64, error) {
	return TokenValueInBase(amount, decimals, token, base)
}

// ExpectedTokenOut is the token amount bought with baseAmount of base currency.
func ExpectedTokenOut(baseAmount uint64, decimals uint8, token, base Price) (uint64, error) {
	if token.Value <= 0 || base.Value <= 0 {
		return 0, apperrors.Reject(apperrors.CodeInvalidOracle, "oracle price must be positive")
	}
	scale := int(base.Expo) - int(token.Expo) + int(decimals) - model.BaseDecimals
	v, err := fixedpoint.Ratio([]uint64{baseAmount, uint64(base.Value)}, []uint64{uint64(token.Value)}, scale)
	if err != nil {
		return 0, mathErr(err)
	}
	return v, nil
}

// ScalePrice re-expresses price*10^expo with targetExpo, truncating. The
// result is kept in 256 bits: a fine target exponent can push a valid price
// far past int64.
func ScalePrice(price int64, expo, targetExpo int32) (*uint256.Int, error) {
	if price <= 0 {
		return nil, apperrors.Reject(apperrors.CodeInvalidOracle, "oracle price must be positive")
	}
	v := uint256.NewInt(uint64(price))
	diff := int64(expo) - int64(targetExpo)
	if diff < -fixedpoint.MaxPow10 {
		return new(uint256.Int), nil
	}
	abs := diff
	if abs < 0 {
		abs = -abs
	}
	p, err := fixedpoint.Pow10(uint(abs))
	if err != nil {
		return nil, mathErr(err)
	}
	if diff < 0 {
		return v.Div(v, p), nil
	}
	if _, overflow := v.MulOverflow(v, p); overflow {
		return nil, apperrors.Reject(apperrors.CodeMathOverflow, "scaled price overflows")
	}
	return v, nil
}

func mathErr(err error) error {
	if errors.Is(err, fixedpoint.ErrOverflow) || errors.Is(err, fixedpoint.ErrDivByZero) || errors.Is(err, fixedpoint.ErrExponentMax) {
		return apperrors.RejectWrap(apperrors.CodeMathOverflow, "arithmetic overflow", err)
	}
	return err
}
