package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Mode selects how the engine's collaborators are wired ("sim" is the only
	// supported value; anything else halts startup).
	Mode string

	// WebPort is the port the query/admin HTTP server listens on.
	WebPort string

	// EngineAddress is the account the engine acts as: it owns every position
	// it opens on the hub and holds the collected fee balances.
	EngineAddress common.Address

	// HubAddress is the swap-execution hub's account, the spender of every
	// allowance the engine grants.
	HubAddress common.Address

	// SuperAdmin is the bootstrap principal allowed to manage admin membership.
	SuperAdmin common.Address

	// Admins are the principals initially granted the admin role.
	Admins []common.Address
)

// LoadConfig loads configuration from environment variables and sets the
// global config vars. Address-valued variables are validated eagerly so a
// typo fails startup instead of a later role check.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Mode = os.Getenv("FM_MODE")

	WebPort = os.Getenv("FM_WEB_PORT")
	if WebPort == "" {
		WebPort = "8080"
	}

	EngineAddress, err = getEnvAsAddress("FM_ENGINE_ADDRESS")
	if err != nil {
		return err
	}

	HubAddress, err = getEnvAsAddress("FM_HUB_ADDRESS")
	if err != nil {
		return err
	}

	SuperAdmin, err = getEnvAsAddress("FM_SUPER_ADMIN")
	if err != nil {
		return err
	}

	Admins, err = getEnvAsAddressList("FM_ADMINS")
	if err != nil {
		return err
	}

	log.Info().
		Str("mode", Mode).
		Str("webPort", WebPort).
		Str("superAdmin", SuperAdmin.Hex()).
		Int("admins", len(Admins)).
		Msg("Application configuration loaded")

	return nil
}

// SimTokens parses FM_SIM_TOKENS, the fee tokens the simulation seeds the
// engine account with. The variable may be unset.
func SimTokens() ([]common.Address, error) {
	return getEnvAsAddressList("FM_SIM_TOKENS")
}

// getEnv retrieves a required environment variable.
func getEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", errors.New("required environment variable not set: " + key)
	}
	return value, nil
}

// getEnvAsAddress retrieves a required environment variable holding a hex
// token/account address.
func getEnvAsAddress(key string) (common.Address, error) {
	value, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("environment variable %s is not a valid hex address: %s", key, value)
	}
	return common.HexToAddress(value), nil
}

// getEnvAsAddressList parses a comma-separated list of hex addresses. The
// variable may be unset; an empty list is legal (the super-admin can grant
// admins later).
func getEnvAsAddressList(key string) ([]common.Address, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	addresses := make([]common.Address, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !common.IsHexAddress(part) {
			return nil, fmt.Errorf("environment variable %s contains an invalid hex address: %s", key, part)
		}
		addresses = append(addresses, common.HexToAddress(part))
	}
	return addresses, nil
}
