package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/meridianfi/feemanager/internal/auth"
	"github.com/meridianfi/feemanager/internal/config"
	"github.com/meridianfi/feemanager/internal/engine"
	"github.com/meridianfi/feemanager/internal/hub"
	"github.com/meridianfi/feemanager/internal/logger"
	"github.com/meridianfi/feemanager/internal/routing"
	"github.com/meridianfi/feemanager/internal/state"
	"github.com/meridianfi/feemanager/internal/token"
	"github.com/meridianfi/feemanager/internal/web"
)

// main is the entry point for the fee manager service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Fee Manager Starting...")

	// Initialize Database Connection (receipt store, optional)
	dbEnabled := os.Getenv("DB_HOST") != ""
	var recorder engine.Recorder
	if dbEnabled {
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
		r, err := state.NewRecorder()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create receipt recorder")
		}
		recorder = r
	} else {
		log.Warn().Msg("DB_HOST not set. Operation receipts will not be persisted.")
	}

	// --- 2. Collaborator Initialization (with Safety Switch) ---
	// Only the simulated hub and ledger are wired today. Anything other than
	// an explicit FM_MODE=sim halts startup so the binary can never run with
	// half-configured live collaborators.
	var (
		engineHub    hub.Hub
		engineLedger token.Ledger
	)

	if config.Mode == "sim" {
		log.Info().Msg("Initializing in SIM mode with in-memory hub and ledger.")
		ledger := token.NewMemoryLedger()
		seedSimBalances(ledger)
		engineLedger = ledger
		engineHub = hub.NewMemoryHub(config.HubAddress, ledger)
	} else {
		log.Fatal().Msg("FM_MODE is not set to 'sim'. Halting to prevent accidental execution. Set FM_MODE=sim to run.")
	}

	// --- 3. Engine Initialization with Dependency Injection ---
	roles, err := auth.NewRegistry(config.SuperAdmin, config.Admins)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap role registry")
	}

	eng, err := engine.New(engine.Config{
		Hub:      engineHub,
		Ledger:   engineLedger,
		Roles:    roles,
		Self:     config.EngineAddress,
		Recorder: recorder,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create fee engine")
	}

	companion, err := routing.NewCompanion(engineHub)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create routing companion")
	}

	// --- 4. Start Web Server ---
	webServer := web.NewWebServer(config.WebPort, eng, companion, dbEnabled)
	go func() {
		log.Info().Str("port", config.WebPort).Msg("Starting fee manager web server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Wait for Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received, exiting")
}

// seedSimBalances gives the engine account a working balance of the tokens
// named in FM_SIM_TOKENS so fills can run end to end without a faucet.
func seedSimBalances(ledger *token.MemoryLedger) {
	tokens, err := config.SimTokens()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse FM_SIM_TOKENS")
	}
	for _, tkn := range tokens {
		ledger.Mint(tkn, config.EngineAddress, uint256.NewInt(1_000_000_000))
		log.Info().Str("token", tkn.Hex()).Msg("Seeded simulated fee balance")
	}
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
