/*
Drops the vault's Postgres tables and rebuilds them from the current schema.
All rebalance history and parameter versions are lost. Refuses to run unless
--yes is passed; there is no way to undo this against a production database.

Usage: go run ./scripts --yes
*/

package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ampleforth/spot-vault/internal/logger"
	"github.com/ampleforth/spot-vault/internal/state"
)

func main() {
	confirmed := flag.Bool("yes", false, "confirm dropping all vault tables")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}
	logger.Initialize(os.Getenv("LOG_LEVEL"))

	if !*confirmed {
		log.Fatal().Msg("This wipes all rebalance history and parameter versions. Re-run with --yes to confirm.")
	}

	dbCfg := state.DBConfig{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     envOrInt("DB_PORT", 5432),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}
	if dbCfg.User == "" || dbCfg.DBName == "" {
		log.Fatal().Msg("DB_USER and DB_NAME must be set")
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("dbname", dbCfg.DBName).
		Msg("Resetting vault database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	dropSQL := `
		DROP TABLE IF EXISTS rebalance_records CASCADE;
		DROP TABLE IF EXISTS vault_parameters CASCADE;
	`
	if _, err := state.DB.Exec(dropSQL); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop vault tables")
	}

	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate schema")
	}

	log.Info().Msg("Vault database reset complete. Defaults will be reseeded on next daemon start.")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}
