package apperrors

// Code is a ledger rejection kind. Each failing condition reports exactly one.
type Code string

const (
	// configuration validation
	CodeInvalidFeeBps         Code = "InvalidFeeBps"
	CodeInvalidTimelock       Code = "InvalidTimelock"
	CodeInvalidScope          Code = "InvalidScope"
	CodeAlreadyInitialized    Code = "AlreadyInitialized"
	CodeInvalidKeeper         Code = "InvalidKeeper"
	CodeInvalidStrategyConfig Code = "InvalidStrategyConfig"
	CodeInvalidFundType       Code = "InvalidFundType"
	CodeInvalidSwapProgram    Code = "InvalidSwapProgram"

	// authorization
	CodeUnauthorized    Code = "Unauthorized"
	CodeInvalidReceiver Code = "InvalidReceiver"

	// basket integrity
	CodeInvalidRemainingAccounts Code = "InvalidRemainingAccounts"
	CodeInvalidWhitelistOrder    Code = "InvalidWhitelistOrder"
	CodeInvalidOracle            Code = "InvalidOracle"
	CodeStaleOracle              Code = "StaleOracle"
	CodeInvalidOracleConfidence  Code = "InvalidOracleConfidence"
	CodeInvalidTokenVault        Code = "InvalidTokenVault"
	CodeInvalidOrderVault        Code = "InvalidOrderVault"
	CodeAccountNotFound          Code = "AccountNotFound"

	// economic guards
	CodeInvalidNav            Code = "InvalidNav"
	CodeMathOverflow          Code = "MathOverflow"
	CodeDepositTooSmall       Code = "DepositTooSmall"
	CodeZeroShares            Code = "ZeroShares"
	CodeInsufficientShares    Code = "InsufficientShares"
	CodeInsufficientLiquidity Code = "InsufficientLiquidity"
	CodeInsufficientFunds     Code = "InsufficientFunds"
	CodeInvalidMinOut         Code = "InvalidMinOut"
	CodeInvalidWithdrawal     Code = "InvalidWithdrawal"
	CodeInvalidOrderSide      Code = "InvalidOrderSide"
	CodeInvalidDcaInterval    Code = "InvalidDcaInterval"
	CodeInvalidDcaSlice       Code = "InvalidDcaSlice"

	// state
	CodeWithdrawTimelock         Code = "WithdrawTimelock"
	CodeFundLocked               Code = "FundLocked"
	CodeFundNotLocked            Code = "FundNotLocked"
	CodeMissingSettleInstruction Code = "MissingSettleInstruction"
	CodeInvalidSettleInstruction Code = "InvalidSettleInstruction"
	CodeTokenVaultNotEmpty       Code = "TokenVaultNotEmpty"
	CodeOrderNotOpen             Code = "OrderNotOpen"
	CodeOrderExpired             Code = "OrderExpired"
	CodeOrderNotTriggered        Code = "OrderNotTriggered"
	CodeDcaNotReady              Code = "DcaNotReady"
	CodeDcaCompleted             Code = "DcaCompleted"
	CodeMaxActiveDca             Code = "MaxActiveDca"
	CodeRebalanceNotNeeded       Code = "RebalanceNotNeeded"
	CodeWsolNotCleared           Code = "WsolNotCleared"
)

// Type groups a code into its error category.
func (c Code) Type() ErrorType {
	switch c {
	case CodeInvalidFeeBps, CodeInvalidTimelock, CodeInvalidScope, CodeAlreadyInitialized,
		CodeInvalidKeeper, CodeInvalidStrategyConfig, CodeInvalidFundType, CodeInvalidSwapProgram:
		return ErrConfigInvalid
	case CodeUnauthorized, CodeInvalidReceiver:
		return ErrUnauthorized
	case CodeInvalidRemainingAccounts, CodeInvalidWhitelistOrder, CodeInvalidOracle, CodeStaleOracle,
		CodeInvalidOracleConfidence, CodeInvalidTokenVault, CodeInvalidOrderVault:
		return ErrBasketIntegrity
	case CodeAccountNotFound:
		return ErrNotFound
	case CodeInvalidNav, CodeMathOverflow, CodeDepositTooSmall, CodeZeroShares, CodeInsufficientShares,
		CodeInsufficientLiquidity, CodeInsufficientFunds, CodeInvalidMinOut, CodeInvalidWithdrawal,
		CodeInvalidOrderSide, CodeInvalidDcaInterval, CodeInvalidDcaSlice:
		return ErrEconomicGuard
	default:
		return ErrStateConflict
	}
}
