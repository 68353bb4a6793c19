package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/globals"
)

// Claims are the identity claims extracted from a verified ID token.
type Claims struct {
	Email string `json:"email"`
	Nick  string `json:"nickname"`
}

// Authenticate verifies a given OIDC ID token against the named provider
// from the configuration. It returns the user's id (the verified e-mail
// address) and the preferred nickname, or empty strings if no provider is
// configured. The user id must be unique across the user base.
func Authenticate(idToken, oidcProvider string, cfg *config.Config) (string, string, error) {
	if idToken == "" || len(cfg.OIDCConfigs) == 0 {
		return "", "", nil
	}
	var oidcConf *config.OIDCConfig
	for i := range cfg.OIDCConfigs {
		if cfg.OIDCConfigs[i].Name == oidcProvider {
			oidcConf = &cfg.OIDCConfigs[i]
			break
		}
	}
	if oidcConf == nil {
		globals.AppLogger.Debug("no oidc config found for provider", "provider", oidcProvider)
		return "", "", nil
	}
	provider, err := oidc.NewProvider(context.Background(), oidcConf.ProviderUrl)
	if err != nil {
		return "", "", err
	}
	conf := oidc.Config{}
	if oidcConf.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = oidcConf.ClientId
	}
	verifier := provider.Verifier(&conf)
	verifiedIdToken, err := verifier.Verify(context.Background(), idToken)
	if err != nil {
		globals.AppLogger.Error("could not verify id token", "error", err)
		return "", "", err
	}

	claims := Claims{}
	if err := verifiedIdToken.Claims(&claims); err != nil {
		return "", "", err
	}
	return claims.Email, claims.Nick, nil
}
