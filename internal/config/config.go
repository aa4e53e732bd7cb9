package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	// Lending policy
	HorizonDays      int
	MaxExtensionDays int
	DueSoonDays      int
	DailyFineRate    float64
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	horizon, err := intEnv("LOAN_HORIZON_DAYS", 180)
	if err != nil {
		return nil, err
	}
	maxExtension, err := intEnv("MAX_EXTENSION_DAYS", 30)
	if err != nil {
		return nil, err
	}
	dueSoon, err := intEnv("DUE_SOON_DAYS", 3)
	if err != nil {
		return nil, err
	}
	fineRate, err := floatEnv("DAILY_FINE_RATE", 10.0)
	if err != nil {
		return nil, err
	}

	return &Config{
		DBSource:         dbSource,
		Port:             port,
		Env:              env,
		HorizonDays:      horizon,
		MaxExtensionDays: maxExtension,
		DueSoonDays:      dueSoon,
		DailyFineRate:    fineRate,
	}, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", name, raw)
	}
	return v, nil
}

func floatEnv(name string, fallback float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative number, got %q", name, raw)
	}
	return v, nil
}
