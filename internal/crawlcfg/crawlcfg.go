// Package crawlcfg loads crawler configuration from viper, layered
// over defaults, an optional config file, and environment variables,
// with godotenv loaded first so a local .env file works the same as
// exported env vars.
package crawlcfg

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the crawler's full runtime configuration.
type Config struct {
	// Concurrency is N_INFLIGHT, the scheduler's fixed ceiling on
	// simultaneous in-flight fetches.
	Concurrency int
	// DataDir is the working directory holding data.db and state.gob.
	DataDir string
	// SeedURL seeds the frontier on a cold start (empty store).
	SeedURL string
	// StatusAddr is the status HTTP endpoint's bind address; empty
	// disables it.
	StatusAddr string
	// CheckpointInterval is how often the crawl command writes an
	// advisory snapshot in addition to the mandatory shutdown one.
	CheckpointInterval time.Duration
	// UserAgent is the agent name robots.txt rules are evaluated for.
	// Outgoing requests always send fetcher.UserAgent.
	UserAgent string
	// Debug selects verbose, human-readable logging.
	Debug bool
}

const envPrefix = "CRAWLER"

// setDefaults gives every key a safe default so the binary runs with
// zero configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("concurrency", 16)
	v.SetDefault("data_dir", ".")
	v.SetDefault("seed_url", "https://en.wikipedia.org")
	v.SetDefault("status_addr", ":8080")
	v.SetDefault("checkpoint_interval", 5*time.Minute)
	v.SetDefault("user_agent", "crawler")
	v.SetDefault("debug", false)
}

// Load builds a Config from (in increasing priority) built-in defaults,
// an optional config file named by configPath, and environment
// variables prefixed CRAWLER_ (e.g. CRAWLER_CONCURRENCY).
func Load(configPath string) (Config, error) {
	_ = godotenv.Load() // a missing .env is not an error

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, err
			}
		}
	}

	return Config{
		Concurrency:        v.GetInt("concurrency"),
		DataDir:            v.GetString("data_dir"),
		SeedURL:            v.GetString("seed_url"),
		StatusAddr:         v.GetString("status_addr"),
		CheckpointInterval: v.GetDuration("checkpoint_interval"),
		UserAgent:          v.GetString("user_agent"),
		Debug:              v.GetBool("debug"),
	}, nil
}
