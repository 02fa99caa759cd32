package github

import (
	"context"
	"coursesync/internal/apperrors"
	"coursesync/internal/gateway"
	"coursesync/internal/gateway/rest"
	"coursesync/internal/roster"
	"crypto/rsa"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer exchanges a GitHub App JWT for installation tokens and
// caches them until one minute before they expire.
type TokenIssuer struct {
	api   *rest.Client
	appID int64
	key   *rsa.PrivateKey
	now   func() time.Time

	mu    sync.Mutex
	cache map[int64]installationToken
}

type installationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewTokenIssuer parses the app's PEM private key.
func NewTokenIssuer(api *rest.Client, appID int64, privateKeyPEM []byte) (*TokenIssuer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing GitHub App private key: %w", err)
	}
	return &TokenIssuer{
		api:   api,
		appID: appID,
		key:   key,
		now:   time.Now,
		cache: make(map[int64]installationToken),
	}, nil
}

// InstallationToken returns a token for the course's app installation.
func (i *TokenIssuer) InstallationToken(ctx context.Context, course roster.Course) (string, error) {
	if !course.HasOrg() {
		return "", apperrors.Linkage("course", strconv.FormatInt(course.ID, 10),
			fmt.Sprintf("course %s has no linked organization", course.Name))
	}

	i.mu.Lock()
	cached, ok := i.cache[course.InstallationID]
	i.mu.Unlock()
	if ok && i.now().Before(cached.ExpiresAt.Add(-time.Minute)) {
		return cached.Token, nil
	}

	appToken, err := i.appJWT()
	if err != nil {
		return "", err
	}
	var tok installationToken
	path := fmt.Sprintf("app/installations/%d/access_tokens", course.InstallationID)
	if _, err := i.api.Do(ctx, rest.Request{Method: http.MethodPost, Path: path, Token: appToken}, &tok); err != nil {
		return "", fmt.Errorf("issuing installation token for %s: %w", course.OrgName, err)
	}

	i.mu.Lock()
	i.cache[course.InstallationID] = tok
	i.mu.Unlock()
	return tok.Token, nil
}

// appJWT signs the short-lived app assertion. Issued-at is backdated to
// tolerate clock drift against GitHub.
func (i *TokenIssuer) appJWT() (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(i.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing app JWT: %w", err)
	}
	return signed, nil
}

var _ gateway.TokenIssuer = (*TokenIssuer)(nil)
