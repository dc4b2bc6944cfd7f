package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const envPrefix = "AUTODL_"

// loadEnvFiles loads .env and then .env.local. Variables already present in the
// process environment win over .env; .env.local overrides both.
func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("load .env.local: %w", err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sPORT: %w", envPrefix, err)
		}
		cfg.Port = port
	}
	if v, ok := lookup("LOG_DIR"); ok {
		cfg.LogDir = v
	}
	if v, ok := lookup("DOWNLOADER_PATH"); ok {
		cfg.DownloaderPath = v
	}
	if v, ok := lookup("RELOCATOR_PATH"); ok {
		cfg.RelocatorPath = v
	}
	if v, ok := lookup("STATIC_DIR"); ok {
		cfg.StaticDir = v
	}
	if err := lookupBool("DELETE_SOURCE_AFTER_MOVE", &cfg.DeleteSourceAfterMove); err != nil {
		return err
	}
	if err := lookupBool("WORLD_READABLE", &cfg.MakeWorldReadable); err != nil {
		return err
	}
	if v, ok := lookup("SUBMIT_RATE"); ok {
		rate, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sSUBMIT_RATE: %w", envPrefix, err)
		}
		cfg.SubmitRatePerMinute = rate
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func lookupBool(key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = b
	return nil
}
