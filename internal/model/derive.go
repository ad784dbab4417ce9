package model

// Domain tags for keyless escrow authorities and escrow base accounts.
const (
	TagLimitOrderVaultAuth = "limit_order_vault_auth"
	TagLimitOrderBaseVault = "limit_order_sol_vault"
	TagDcaOrderVaultAuth   = "dca_order_vault_auth"
	TagDcaOrderBaseVault   = "dca_order_sol_vault"
)

func ConfigKey(configID uint64) Key {
	return Derive("config", U64(configID))
}

func FundKey(config, manager Key, fundID uint64) Key {
	return Derive("fund", config[:], manager[:], U64(fundID))
}

func VaultKey(fund Key) Key {
	return Derive("vault", fund[:])
}

func ShareMintKey(fund Key) Key {
	return Derive("share_mint", fund[:])
}

func TradingLockKey(fund Key) Key {
	return Derive("trading", fund[:])
}

func StrategyKey(fund Key) Key {
	return Derive("strategy", fund[:])
}

func GlobalWhitelistKey(config, mint Key) Key {
	return Derive("global_whitelist", config[:], mint[:])
}

func FundWhitelistKey(fund, mint Key) Key {
	return Derive("whitelist", fund[:], mint[:])
}

func WithdrawRequestKey(fund, investor Key) Key {
	return Derive("withdraw", fund[:], investor[:])
}

func LimitOrderKey(fund Key, orderID uint64) Key {
	return Derive("limit_order", fund[:], U64(orderID))
}

func DcaOrderKey(fund Key, orderID uint64) Key {
	return Derive("dca_order", fund[:], U64(orderID))
}

// AssociatedKey is the canonical token account of owner for mint.
func AssociatedKey(owner, mint Key) Key {
	return Derive("associated", owner[:], mint[:])
}

// WalletAccount returns the account holding owner's balance of mint. Native
// balances live on the owner key itself.
func WalletAccount(owner, mint Key) Key {
	if mint == NativeMint {
		return owner
	}
	return AssociatedKey(owner, mint)
}

func EscrowAuthority(order Key, tag string) Key {
	return Derive(tag, order[:])
}

func EscrowBaseVault(order Key, tag string) Key {
	return Derive(tag, order[:])
}

// TokenVaultKey is the fund's custody account for mint.
func TokenVaultKey(fund, mint Key) Key {
	return AssociatedKey(fund, mint)
}

func WsolVaultKey(fund Key) Key {
	return AssociatedKey(fund, WrappedNativeMint)
}
