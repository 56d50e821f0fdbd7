package scorestore

import (
	"time"

	"github.com/okian/crowdfund/pkg/logger"
)

// Option applies a configuration option to the ScoreStore.
type Option func(*ScoreStore)

// WithValidation toggles rejection of scores and tiers that match no
// active catalog option.
func WithValidation(enabled bool) Option {
	return func(s *ScoreStore) {
		s.validate = enabled
	}
}

// WithStrictWallet toggles hex address checking of wallet keys.
func WithStrictWallet(enabled bool) Option {
	return func(s *ScoreStore) {
		s.strictWallet = enabled
	}
}

// WithTimeout bounds every operation against the record store.
func WithTimeout(d time.Duration) Option {
	return func(s *ScoreStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *ScoreStore) {
		if l != nil {
			s.logger = l
		}
	}
}
