/*
Chain adapters for the external collaborators: the perp system contract, the
round-based price feeds, the target-rate oracle, the pool observers and the
swap venue. Everything is an eth_call or a signed transaction over JSON-RPC;
the core packages only see the collaborator interfaces.
*/

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/ampleforth/spot-vault/internal/logger"
)

const defaultCallTimeout = 10 * time.Second

var (
	ErrMissingRPCURL  = errors.New("ethereum rpc url not configured")
	ErrMissingAddress = errors.New("contract address not configured")
	ErrBadResponse    = errors.New("unexpected contract response")
)

// Client is a lazily-dialed JSON-RPC connection shared by all adapters.
type Client struct {
	rpcURL  string
	timeout time.Duration
	logger  zerolog.Logger

	mu  sync.Mutex
	eth *ethclient.Client
}

// NewClient builds a client for the given JSON-RPC endpoint. The connection
// is established on first use.
func NewClient(rpcURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{
		rpcURL:  rpcURL,
		timeout: timeout,
		logger:  logger.GetForComponent("chain_client"),
	}
}

func (c *Client) dial(ctx context.Context) (*ethclient.Client, error) {
	if c.rpcURL == "" {
		return nil, ErrMissingRPCURL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		return c.eth, nil
	}
	eth, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.rpcURL, err)
	}
	c.eth = eth
	c.logger.Info().Str("endpoint", c.rpcURL).Msg("Connected to JSON-RPC endpoint")
	return eth, nil
}

// call packs a read-only contract call and unpacks its outputs.
func (c *Client) call(contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	eth, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	res, err := eth.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	outputs, err := parsed.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return outputs, nil
}

func mustABI(abiJSON string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic("failed to parse ABI: " + err.Error())
	}
	return parsed
}

func asBigInt(output interface{}) (*big.Int, error) {
	value, ok := output.(*big.Int)
	if !ok || value == nil {
		return nil, fmt.Errorf("%w: expected *big.Int, got %T", ErrBadResponse, output)
	}
	return value, nil
}
