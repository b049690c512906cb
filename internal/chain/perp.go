package chain

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ampleforth/spot-vault/internal/appraiser"
	"github.com/ampleforth/spot-vault/internal/twap"
	"github.com/ampleforth/spot-vault/internal/utils"
	"github.com/ampleforth/spot-vault/internal/vault"
)

const (
	perpABIJSON = `[
		{"inputs":[],"name":"deviationRatio","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"getTVL","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"totalSupply","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"maturedReserveBalance","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"seniorTrancheCollateral","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[],"name":"totalTrancheDebt","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
	erc20ABIJSON = `[
		{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`
)

var (
	perpABI  = mustABI(perpABIJSON)
	erc20ABI = mustABI(erc20ABIJSON)
)

// PerpContract reads the perpetual claim system's on-chain accounting. It
// serves both the rebalance engine (deviation ratio, TVL, supply) and the
// appraisal pipeline (reserve and tranche views of the same state).
type PerpContract struct {
	client  *Client
	address common.Address
}

// NewPerpContract builds a perp system adapter.
func NewPerpContract(client *Client, address string) (*PerpContract, error) {
	if address == "" {
		return nil, ErrMissingAddress
	}
	return &PerpContract{client: client, address: common.HexToAddress(address)}, nil
}

// DeviationRatio reads the system backing ratio, rescaled from the
// provider's 8-decimal fixed point.
func (p *PerpContract) DeviationRatio() (sdkmath.LegacyDec, error) {
	value, err := p.readUint("deviationRatio")
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	return sdkmath.LegacyNewDecFromIntWithPrec(value, utils.RatioDecimals), nil
}

// TVL reads the system-wide backing value in underlying base units.
func (p *PerpContract) TVL() (sdkmath.Int, error) {
	return p.readUint("getTVL")
}

// TotalSupply reads the outstanding perp token supply.
func (p *PerpContract) TotalSupply() (sdkmath.Int, error) {
	return p.readUint("totalSupply")
}

// ReserveTVL aliases TVL for the appraisal-side interface.
func (p *PerpContract) ReserveTVL() (sdkmath.Int, error) {
	return p.TVL()
}

// ReserveSupply aliases TotalSupply for the appraisal-side interface.
func (p *PerpContract) ReserveSupply() (sdkmath.Int, error) {
	return p.TotalSupply()
}

// MaturedReserveBalance reads how much of the reserve sits in the matured
// form of the underlying.
func (p *PerpContract) MaturedReserveBalance() (sdkmath.Int, error) {
	return p.readUint("maturedReserveBalance")
}

// SeniorClaim reads the collateral backing the senior tranche.
func (p *PerpContract) SeniorClaim() (sdkmath.Int, error) {
	return p.readUint("seniorTrancheCollateral")
}

// TotalDebt reads the outstanding senior tranche debt.
func (p *PerpContract) TotalDebt() (sdkmath.Int, error) {
	return p.readUint("totalTrancheDebt")
}

func (p *PerpContract) readUint(method string) (sdkmath.Int, error) {
	outputs, err := p.client.call(p.address, perpABI, method)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if len(outputs) != 1 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s returned %d values", ErrBadResponse, method, len(outputs))
	}
	value, err := asBigInt(outputs[0])
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sdkmath.NewIntFromBigInt(value), nil
}

// ERC20Balances reads the vault account's token holdings live on every call.
type ERC20Balances struct {
	client     *Client
	underlying common.Address
	perp       common.Address
	holder     common.Address
}

// NewERC20Balances builds a balance reader for the vault's account.
func NewERC20Balances(client *Client, underlyingToken, perpToken, holder string) (*ERC20Balances, error) {
	if underlyingToken == "" || perpToken == "" || holder == "" {
		return nil, ErrMissingAddress
	}
	return &ERC20Balances{
		client:     client,
		underlying: common.HexToAddress(underlyingToken),
		perp:       common.HexToAddress(perpToken),
		holder:     common.HexToAddress(holder),
	}, nil
}

// UnderlyingBalance reads the holder's underlying token balance.
func (b *ERC20Balances) UnderlyingBalance() (sdkmath.Int, error) {
	return b.balanceOf(b.underlying)
}

// PerpBalance reads the holder's perp token balance.
func (b *ERC20Balances) PerpBalance() (sdkmath.Int, error) {
	return b.balanceOf(b.perp)
}

func (b *ERC20Balances) balanceOf(token common.Address) (sdkmath.Int, error) {
	outputs, err := b.client.call(token, erc20ABI, "balanceOf", b.holder)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if len(outputs) != 1 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: balanceOf returned %d values", ErrBadResponse, len(outputs))
	}
	value, err := asBigInt(outputs[0])
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return sdkmath.NewIntFromBigInt(value), nil
}

var (
	_ vault.PerpSystem            = (*PerpContract)(nil)
	_ appraiser.ReserveAccounting = (*PerpContract)(nil)
	_ appraiser.TrancheAccounting = (*PerpContract)(nil)
	_ twap.PerpAccounting         = (*PerpContract)(nil)
	_ vault.BalanceReader         = (*ERC20Balances)(nil)
)
