package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// EthereumRPCURL is the JSON-RPC endpoint for all chain reads and swaps.
	EthereumRPCURL string
	// ChainID is the EVM chain ID used for transaction signing.
	ChainID int64

	// SignerPrivateKey is the hex private key of the vault's account. Only
	// required in live mode.
	SignerPrivateKey string
	// VaultOwner is the identity allowed to change vault parameters.
	VaultOwner string

	// LiveExecution enables real swap transactions. When false the vault
	// runs in read-only mode and only logs what it would do.
	LiveExecution bool

	// PerpSystemAddress is the perpetual claim system contract.
	PerpSystemAddress string
	// RouterAddress is the swap venue contract.
	RouterAddress string
	// UnderlyingTokenAddress and PerpTokenAddress are the two vault assets.
	UnderlyingTokenAddress string
	PerpTokenAddress       string
	// WrapperAddress is the wrapped-underlying token used by the TWAP pools.
	WrapperAddress string
	// WrappedPoolAddress is the WETH/wrapped-underlying pool.
	WrappedPoolAddress string
	// PerpPoolAddress is the USD-stable/perp pool.
	PerpPoolAddress string
	// EthUsdFeedAddress and UsdStableFeedAddress are round-based USD feeds.
	EthUsdFeedAddress    string
	UsdStableFeedAddress string
	// TargetRateOracleAddress is the CPI/target-rate median oracle.
	TargetRateOracleAddress string

	// TwapWindow is the pool observation lookback.
	TwapWindow time.Duration
	// MaxFeedAge is the staleness bound on reference feed rounds.
	MaxFeedAge time.Duration
	// RebalanceInterval is the manager's cycle period.
	RebalanceInterval time.Duration

	// WebPort is the dashboard/API listen port.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required unless noted.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	EthereumRPCURL, err = getEnv("ETHEREUM_RPC_URL")
	if err != nil {
		return err
	}

	ChainID, err = getEnvAsInt64("CHAIN_ID")
	if err != nil {
		return err
	}

	VaultOwner, err = getEnv("VAULT_OWNER")
	if err != nil {
		return err
	}

	LiveExecution = os.Getenv("LIVE_EXECUTION") == "true"
	if LiveExecution {
		SignerPrivateKey, err = getEnv("SIGNER_PRIVATE_KEY")
		if err != nil {
			return err
		}
	} else {
		SignerPrivateKey = os.Getenv("SIGNER_PRIVATE_KEY")
	}

	if err := loadContractConfig(); err != nil {
		return err
	}

	TwapWindow, err = getEnvAsDuration("TWAP_WINDOW_SECONDS")
	if err != nil {
		return err
	}

	MaxFeedAge, err = getEnvAsDuration("MAX_FEED_AGE_SECONDS")
	if err != nil {
		return err
	}

	RebalanceInterval, err = getEnvAsDuration("REBALANCE_INTERVAL_SECONDS")
	if err != nil {
		return err
	}

	WebPort = os.Getenv("WEB_PORT")
	if WebPort == "" {
		WebPort = "8080"
	}

	log.Debug().
		Int64("ChainID", ChainID).
		Bool("LiveExecution", LiveExecution).
		Dur("TwapWindow", TwapWindow).
		Dur("RebalanceInterval", RebalanceInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// loadContractConfig loads the contract addresses.
func loadContractConfig() error {
	var err error

	PerpSystemAddress, err = getEnv("PERP_SYSTEM_ADDRESS")
	if err != nil {
		return err
	}
	RouterAddress, err = getEnv("ROUTER_ADDRESS")
	if err != nil {
		return err
	}
	UnderlyingTokenAddress, err = getEnv("UNDERLYING_TOKEN_ADDRESS")
	if err != nil {
		return err
	}
	PerpTokenAddress, err = getEnv("PERP_TOKEN_ADDRESS")
	if err != nil {
		return err
	}
	WrapperAddress, err = getEnv("WRAPPER_ADDRESS")
	if err != nil {
		return err
	}
	WrappedPoolAddress, err = getEnv("WRAPPED_POOL_ADDRESS")
	if err != nil {
		return err
	}
	PerpPoolAddress, err = getEnv("PERP_POOL_ADDRESS")
	if err != nil {
		return err
	}
	EthUsdFeedAddress, err = getEnv("ETH_USD_FEED_ADDRESS")
	if err != nil {
		return err
	}
	UsdStableFeedAddress, err = getEnv("USD_STABLE_FEED_ADDRESS")
	if err != nil {
		return err
	}
	TargetRateOracleAddress, err = getEnv("TARGET_RATE_ORACLE_ADDRESS")
	if err != nil {
		return err
	}

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt64 retrieves an environment variable as an int64. Returns error if not set or invalid.
func getEnvAsInt64(key string) (int64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration retrieves an environment variable holding whole seconds.
func getEnvAsDuration(key string) (time.Duration, error) {
	seconds, err := getEnvAsInt64(key)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive number of seconds")
	}
	return time.Duration(seconds) * time.Second, nil
}
