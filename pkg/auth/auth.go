// Package auth implements nonce-based challenge-response authentication
// for blockchain wallets. A client requests a challenge, signs the login
// message with its wallet key, and on successful verification receives a
// bearer token carrying the wallet address. Wallet addresses are compared
// case-insensitively throughout.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/privaterag/privaterag/internal/keyValStore"
)

const (
	// ServiceName appears in the signed login message. Changing it
	// invalidates every signature produced against the old template.
	ServiceName = "PrivateRAG"

	// TokenTTL is the bearer-token lifetime.
	TokenTTL = 12 * time.Hour
)

// LoginMessage builds the exact text a wallet must sign for a challenge.
// The nonce is bound into the message so a signature cannot be replayed
// against a different challenge.
func LoginMessage(wallet, nonce string) string {
	return fmt.Sprintf("Login to %s with wallet %s. Nonce: %s", ServiceName, wallet, nonce)
}

// Service is the challenge-response authenticator.
type Service struct {
	nonces *NonceStore
	users  *UserStore
	secret []byte
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithClock overrides the time source. Used by tests to exercise expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
			s.nonces.now = now
			s.users.now = now
		}
	}
}

// NewService builds an authenticator over the given store. The secret
// signs bearer tokens and must not be empty.
func NewService(kv *keyValStore.KeyValStore, secret string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is not set")
	}

	s := &Service{
		nonces: NewNonceStore(kv),
		users:  NewUserStore(kv),
		secret: []byte(secret),
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Users exposes the account store for read paths.
func (s *Service) Users() *UserStore {
	return s.users
}

// RequestChallenge issues a fresh nonce for the wallet, replacing any
// outstanding one.
func (s *Service) RequestChallenge(walletAddress string) (string, error) {
	wallet := strings.ToLower(walletAddress)
	nonce, err := s.nonces.Issue(wallet)
	if err != nil {
		return "", err
	}
	s.log.Debug("challenge issued", "wallet", wallet)
	return nonce, nil
}

// Verify checks the signature over the outstanding challenge and mints a
// bearer token. On success the nonce is consumed and a minimal account
// record is provisioned for first-time wallets.
func (s *Service) Verify(walletAddress, signature string) (string, error) {
	wallet := strings.ToLower(walletAddress)

	nonce, err := s.nonces.Peek(wallet)
	if err != nil {
		return "", err
	}

	recovered, err := recoverAddress(LoginMessage(wallet, nonce), signature)
	if err != nil {
		return "", err
	}
	if recovered != wallet {
		return "", ErrWalletMismatch
	}

	if err := s.nonces.Consume(wallet, nonce); err != nil {
		return "", err
	}

	if err := s.users.Ensure(wallet); err != nil {
		return "", fmt.Errorf("auth: cannot provision user: %w", err)
	}

	token, err := s.mintToken(wallet)
	if err != nil {
		return "", err
	}

	s.log.Info("wallet verified", "wallet", wallet)
	return token, nil
}

// Authenticate validates a bearer token and returns the case-folded wallet
// address it asserts. This is the sole identity gate for owner-scoped
// operations.
func (s *Service) Authenticate(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(
		token,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return strings.ToLower(claims.Subject), nil
}

func (s *Service) mintToken(wallet string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   wallet,
		ExpiresAt: jwt.NewNumericDate(s.now().Add(TokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: cannot sign token: %w", err)
	}
	return token, nil
}
