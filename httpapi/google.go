package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inframind/inframind/schema"
	"pkt.systems/pslog"
)

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// googleVerifier checks Google ID tokens against the tokeninfo endpoint.
// Empty clientID disables Google sign-in entirely.
type googleVerifier struct {
	clientID string
	endpoint string
	http     *http.Client
	log      pslog.Logger
}

func newGoogleVerifier(clientID string, logger pslog.Logger) *googleVerifier {
	return &googleVerifier{
		clientID: strings.TrimSpace(clientID),
		endpoint: googleTokenInfoURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      logger,
	}
}

func (g *googleVerifier) enabled() bool {
	return g != nil && g.clientID != ""
}

// googleClaims is the subset of tokeninfo fields the login flow needs.
// tokeninfo reports booleans as strings.
type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Audience      string `json:"aud"`
	Expiry        string `json:"exp"`
}

// verify validates an ID token and returns its claims. A token Google
// rejects maps to ErrInvalidCredentials; an unreachable endpoint maps
// to ErrProviderUnavailable so the client can retry.
func (g *googleVerifier) verify(ctx context.Context, idToken string) (googleClaims, error) {
	if !g.enabled() {
		return googleClaims{}, fmt.Errorf("%w: google sign-in is not configured", schema.ErrInvalidRequest)
	}
	if strings.TrimSpace(idToken) == "" {
		return googleClaims{}, fmt.Errorf("%w: id_token is required", schema.ErrInvalidRequest)
	}
	u := g.endpoint + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return googleClaims{}, fmt.Errorf("build tokeninfo request: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return googleClaims{}, fmt.Errorf("%w: tokeninfo: %v", schema.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if g.log != nil {
			g.log.Warn("google token rejected", "status", resp.StatusCode)
		}
		return googleClaims{}, schema.ErrInvalidCredentials
	}
	var claims googleClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return googleClaims{}, fmt.Errorf("%w: tokeninfo decode: %v", schema.ErrProviderUnavailable, err)
	}
	if claims.Audience != g.clientID {
		if g.log != nil {
			g.log.Warn("google token audience mismatch")
		}
		return googleClaims{}, schema.ErrInvalidCredentials
	}
	if claims.EmailVerified != "true" || claims.Email == "" {
		return googleClaims{}, schema.ErrInvalidCredentials
	}
	return claims, nil
}
