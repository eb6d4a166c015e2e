package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from a .env file at path into the process
// environment, without overriding anything already set. A missing file is
// not an error — most deployments set real environment variables directly
// and never ship a .env at all.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// SubstrateConfig is the struct-decoded counterpart to the individual
// GetEnv/RequireEnv calls: a single decode pass for the handful of values
// an entrypoint needs at startup, tagged the way joeshaw/envdecode expects.
type SubstrateConfig struct {
	DatabaseURL        string  `env:"DATABASE_URL,required"`
	RedisAddr          string  `env:"REDIS_ADDR"`
	LogLevel           string  `env:"LOG_LEVEL,default=info"`
	LogFormat          string  `env:"LOG_FORMAT,default=json"`
	DispatchRatePerSec float64 `env:"DISPATCH_RATE_PER_SECOND,default=0"`
	DispatchBurst      int     `env:"DISPATCH_BURST,default=1"`
}

// DecodeSubstrateConfig decodes SubstrateConfig from the process
// environment.
func DecodeSubstrateConfig() (SubstrateConfig, error) {
	var cfg SubstrateConfig
	if err := envdecode.Decode(&cfg); err != nil {
		return SubstrateConfig{}, fmt.Errorf("decode substrate config: %w", err)
	}
	return cfg, nil
}
