package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/ampleforth/spot-vault/internal/logger"
	"github.com/ampleforth/spot-vault/internal/vault"
)

const (
	routerABIJSON = `[
		{"inputs":[{"internalType":"uint256","name":"underlyingAmtIn","type":"uint256"}],"name":"swapUnderlyingForPerps","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"},
		{"inputs":[{"internalType":"uint256","name":"perpAmtIn","type":"uint256"}],"name":"swapPerpsForUnderlying","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
	]`

	defaultMineTimeout = 3 * time.Minute
	txGasLimit         = 600_000
)

var (
	routerABI = mustABI(routerABIJSON)

	ErrMissingPrivateKey = errors.New("signer private key not configured")
	ErrTxReverted        = errors.New("swap transaction reverted")
)

// Router submits swap transactions against the perp system's rollover venue
// and reports the received amount as the signer's counter-asset balance
// delta across the transaction.
type Router struct {
	client   *Client
	logger   zerolog.Logger
	address  common.Address
	key      *ecdsa.PrivateKey
	signer   common.Address
	balances *ERC20Balances
	chainID  *big.Int
}

// NewRouter builds a transaction-sending swap adapter. The private key hex
// must belong to the account holding the vault's tokens.
func NewRouter(client *Client, address, privateKeyHex string, balances *ERC20Balances, chainID int64) (*Router, error) {
	if address == "" {
		return nil, ErrMissingAddress
	}
	if privateKeyHex == "" {
		return nil, ErrMissingPrivateKey
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer key: %w", err)
	}
	return &Router{
		client:   client,
		logger:   logger.GetForComponent("swap_router"),
		address:  common.HexToAddress(address),
		key:      key,
		signer:   crypto.PubkeyToAddress(key.PublicKey),
		balances: balances,
		chainID:  big.NewInt(chainID),
	}, nil
}

// SwapUnderlyingForPerps trades underlying into perp tokens and returns the
// perp amount received.
func (r *Router) SwapUnderlyingForPerps(amountIn sdkmath.Int) (sdkmath.Int, error) {
	return r.swap("swapUnderlyingForPerps", amountIn, r.balances.PerpBalance)
}

// SwapPerpsForUnderlying trades perp tokens into underlying and returns the
// underlying amount received.
func (r *Router) SwapPerpsForUnderlying(amountIn sdkmath.Int) (sdkmath.Int, error) {
	return r.swap("swapPerpsForUnderlying", amountIn, r.balances.UnderlyingBalance)
}

func (r *Router) swap(method string, amountIn sdkmath.Int, counterBalance func() (sdkmath.Int, error)) (sdkmath.Int, error) {
	before, err := counterBalance()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read pre-swap balance: %w", err)
	}

	receipt, err := r.send(method, amountIn.BigInt())
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s tx %s", ErrTxReverted, method, receipt.TxHash.Hex())
	}

	after, err := counterBalance()
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("failed to read post-swap balance: %w", err)
	}
	received := after.Sub(before)
	if received.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: counter-asset balance decreased across %s", ErrBadResponse, method)
	}

	r.logger.Info().
		Str("method", method).
		Str("amountIn", amountIn.String()).
		Str("received", received.String()).
		Str("txHash", receipt.TxHash.Hex()).
		Msg("Swap confirmed")
	return received, nil
}

func (r *Router) send(method string, amountIn *big.Int) (*ethtypes.Receipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultMineTimeout)
	defer cancel()

	eth, err := r.client.dial(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := routerABI.Pack(method, amountIn)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	nonce, err := eth.PendingNonceAt(ctx, r.signer)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &r.address,
		Gas:      txGasLimit,
		GasPrice: gasPrice,
		Data:     payload,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(r.chainID), r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s tx: %w", method, err)
	}
	if err := eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send %s tx: %w", method, err)
	}

	r.logger.Debug().Str("method", method).Str("txHash", signed.Hash().Hex()).Msg("Swap transaction submitted")
	receipt, err := bind.WaitMined(ctx, eth, signed)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for %s tx: %w", method, err)
	}
	return receipt, nil
}

var _ vault.SwapVenue = (*Router)(nil)
