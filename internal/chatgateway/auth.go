package chatgateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenRefreshSkew = time.Minute

// TokenSource yields the credential placed on outbound platform calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a long-lived bot token used verbatim.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("empty bot token")
	}
	return string(t), nil
}

// AppCredentials mints short-lived signed tokens from an application id and
// shared signing secret, for platforms that accept JWT bearer credentials.
// Tokens are cached until shortly before expiry.
type AppCredentials struct {
	appID  string
	secret []byte
	ttl    time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	cached    string
	expiresAt time.Time
}

// NewAppCredentials creates a JWT token source. A non-positive ttl defaults
// to five minutes.
func NewAppCredentials(appID, secret string, ttl time.Duration) *AppCredentials {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AppCredentials{
		appID:  appID,
		secret: []byte(secret),
		ttl:    ttl,
		clock:  time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (a *AppCredentials) WithClock(clock func() time.Time) *AppCredentials {
	if clock != nil {
		a.clock = clock
	}
	return a
}

func (a *AppCredentials) Token(context.Context) (string, error) {
	if a.appID == "" || len(a.secret) == 0 {
		return "", errors.New("app credentials missing id or secret")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock()
	if a.cached != "" && now.Before(a.expiresAt.Add(-tokenRefreshSkew)) {
		return a.cached, nil
	}

	expiresAt := now.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    a.appID,
		Subject:   a.appID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", err
	}
	a.cached = signed
	a.expiresAt = expiresAt
	return signed, nil
}
