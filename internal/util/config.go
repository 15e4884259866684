package util

import "github.com/spf13/viper"

// FSRetryConfig returns the retry configuration for output filesystem
// operations. Keys fs-retry.attempts, fs-retry.initial-wait and
// fs-retry.max-wait override the defaults; --no-fs-retry disables retries.
func FSRetryConfig() *RetryConfig {
	cfg := DefaultRetryConfig()
	if viper.GetBool("no-fs-retry") {
		cfg.MaxAttempts = 1
		return cfg
	}
	if n := viper.GetInt("fs-retry.attempts"); n > 0 {
		cfg.MaxAttempts = n
	}
	if d := viper.GetDuration("fs-retry.initial-wait"); d > 0 {
		cfg.InitialWait = d
	}
	if d := viper.GetDuration("fs-retry.max-wait"); d > 0 {
		cfg.MaxWait = d
	}
	if cfg.MaxWait < cfg.InitialWait {
		cfg.MaxWait = cfg.InitialWait
	}
	return cfg
}
