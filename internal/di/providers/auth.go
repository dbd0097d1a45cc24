package providers

import (
	"github.com/samber/do/v2"

	"github.com/pairsync/pairsync-server/internal/auth"
	"github.com/pairsync/pairsync-server/internal/config"
)

// ProvideTokenService loads or generates the token key and provides the
// PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	key, err := auth.LoadOrGenerateKey(cfg.KeyPath())
	if err != nil {
		return nil, err
	}
	cfg.Auth.AccessTokenKey = key

	log.Info("Authentication key loaded",
		"key_path", cfg.KeyPath(),
		"access_token_duration", cfg.Auth.AccessTokenDuration,
	)

	return auth.NewTokenService(key, cfg.Auth.AccessTokenDuration)
}
