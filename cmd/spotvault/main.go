package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ampleforth/spot-vault/internal/appraiser"
	"github.com/ampleforth/spot-vault/internal/chain"
	"github.com/ampleforth/spot-vault/internal/config"
	"github.com/ampleforth/spot-vault/internal/logger"
	"github.com/ampleforth/spot-vault/internal/manager"
	"github.com/ampleforth/spot-vault/internal/state"
	"github.com/ampleforth/spot-vault/internal/twap"
	"github.com/ampleforth/spot-vault/internal/utils"
	"github.com/ampleforth/spot-vault/internal/vault"
	"github.com/ampleforth/spot-vault/internal/web"
)

// disabledVenue stands in for the swap router when live execution is off.
// Every swap attempt fails loudly instead of silently simulating.
type disabledVenue struct{}

var errLiveExecutionDisabled = errors.New("live execution disabled; set LIVE_EXECUTION=true to trade")

func (disabledVenue) SwapUnderlyingForPerps(sdkmath.Int) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), errLiveExecutionDisabled
}

func (disabledVenue) SwapPerpsForUnderlying(sdkmath.Int) (sdkmath.Int, error) {
	return sdkmath.ZeroInt(), errLiveExecutionDisabled
}

// main is the entry point for the vault daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Spot vault starting...")

	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load active rebalance parameters, seeding defaults on first run.
	params, err := state.LoadActiveVaultParameters(manager.DefaultConfigName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load active vault parameters")
	}
	if params == nil {
		log.Info().Msg("No active vault parameters found, saving defaults.")
		defaults := config.DefaultRebalanceParameters
		if _, err := state.SaveVaultParameters(defaults, manager.DefaultConfigName, manager.DefaultConfigVersion, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default vault parameters")
		}
		params = &defaults
	}
	log.Info().Msg("Vault parameters loaded successfully.")

	// --- 2. Chain Adapters ---
	client := chain.NewClient(config.EthereumRPCURL, 0)

	perp, err := chain.NewPerpContract(client, config.PerpSystemAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize perp system adapter")
	}
	balances, err := chain.NewERC20Balances(client, config.UnderlyingTokenAddress, config.PerpTokenAddress, config.VaultOwner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize balance reader")
	}

	ethFeed, err := chain.NewRoundFeed(client, config.EthUsdFeedAddress, utils.FeedDecimals)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ETH/USD feed")
	}
	usdFeed, err := chain.NewRoundFeed(client, config.UsdStableFeedAddress, utils.FeedDecimals)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize USD-stable feed")
	}
	targetRate, err := chain.NewTargetRateFeed(client, config.TargetRateOracleAddress, 18)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize target-rate oracle")
	}
	wrappedPool, err := chain.NewPool(client, config.WrappedPoolAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize wrapped-underlying pool")
	}
	perpPool, err := chain.NewPool(client, config.PerpPoolAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize perp pool")
	}
	wrapper, err := chain.NewWrapper(client, config.WrapperAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize wrapper adapter")
	}

	// --- 3. Swap Venue (with Safety Switch) ---
	var venue vault.SwapVenue
	if config.LiveExecution {
		log.Warn().Msg("Initializing vault in LIVE mode. Real transactions will be broadcast.")
		router, err := chain.NewRouter(client, config.RouterAddress, config.SignerPrivateKey, balances, config.ChainID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize swap router")
		}
		venue = router
	} else {
		log.Warn().Msg("LIVE_EXECUTION is not enabled. Swaps are disabled; running in read-only mode.")
		venue = disabledVenue{}
	}

	// --- 4. Core Components ---
	v, err := vault.New(vault.Config{
		Owner:      config.VaultOwner,
		PerpSystem: perp,
		SwapVenue:  venue,
		Balances:   balances,
		Params:     *params,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault")
	}

	appr, err := appraiser.New(appraiser.Config{
		Owner:            config.VaultOwner,
		ReferenceOracle:  usdFeed,
		TargetRateOracle: targetRate,
		Reserve:          perp,
		Tranches:         perp,
		Bounds:           config.DefaultAppraisalBounds,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create appraiser")
	}

	pricer, err := twap.New(twap.Config{
		EthFeed:       ethFeed,
		UsdStableFeed: usdFeed,
		WrappedPool:   wrappedPool,
		PerpPool:      perpPool,
		Wrapped:       wrapper,
		Perp:          perp,
		Target:        targetRate,
		Window:        config.TwapWindow,
		MaxFeedAge:    config.MaxFeedAge,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create twap pricer")
	}

	// --- 5. Web Server ---
	webServer := web.NewWebServer(config.WebPort, appr, manager.DefaultConfigName)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vault web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 6. Main Loop ---
	m, err := manager.New(manager.Config{
		Vault:     v,
		Appraiser: appr,
		Pricer:    pricer,
		Persist:   true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create manager")
	}

	log.Info().Str("interval", config.RebalanceInterval.String()).Msg("Starting vault main loop")
	ctx := context.Background()
	m.RunLoop(ctx, config.RebalanceInterval)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
