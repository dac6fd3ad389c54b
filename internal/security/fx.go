package security

import (
	"github.com/watchkeep/watchkeep/internal/clock"
	"github.com/watchkeep/watchkeep/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("security",
	fx.Provide(newCipher),
	fx.Provide(newRateLimiter),
)

func newCipher(cfg config.Config) (*Cipher, error) {
	return NewCipher(cfg.EncryptionSecret)
}

func newRateLimiter(cfg config.Config, clk clock.Clock) *RateLimiter {
	return NewRateLimiter(clk, cfg.RateLimitMaxRequests, cfg.RateLimitWindow)
}
