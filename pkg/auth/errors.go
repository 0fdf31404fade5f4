package auth

import "errors"

var (
	// challenge-response failures (verify path)
	ErrChallengeNotFound = errors.New("auth: no outstanding challenge for wallet")
	ErrChallengeExpired  = errors.New("auth: challenge expired")
	ErrSignatureInvalid  = errors.New("auth: signature invalid")
	ErrWalletMismatch    = errors.New("auth: signature does not match wallet")

	// bearer-token failures (authenticated request path)
	ErrTokenInvalid   = errors.New("auth: token invalid")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenMalformed = errors.New("auth: token payload malformed")
)
