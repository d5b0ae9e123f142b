package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
)

const (
	scopeEarthEngine = "https://www.googleapis.com/auth/earthengine"
	scopeCloud       = "https://www.googleapis.com/auth/cloud-platform"
	defaultTokenURL  = "https://oauth2.googleapis.com/token"
)

type serviceAccountKey struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

// tokenSource returns the token source for cfg, or nil when the client
// should send unauthenticated requests.
func tokenSource(ctx context.Context, cfg Config) (oauth2.TokenSource, error) {
	switch {
	case cfg.AccessToken != "":
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken}), nil
	case cfg.CredentialsFile != "":
		return serviceAccountTokenSource(ctx, cfg.CredentialsFile)
	default:
		return nil, nil
	}
}

func serviceAccountTokenSource(ctx context.Context, path string) (oauth2.TokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}
	if key.Type != "service_account" || key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("credentials file %s is not a service account key", path)
	}

	conf := &jwt.Config{
		Email:        key.ClientEmail,
		PrivateKey:   []byte(key.PrivateKey),
		PrivateKeyID: key.PrivateKeyID,
		TokenURL:     key.TokenURI,
		Scopes:       []string{scopeEarthEngine, scopeCloud},
	}
	if conf.TokenURL == "" {
		conf.TokenURL = defaultTokenURL
	}
	return conf.TokenSource(ctx), nil
}
