package auth

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

// recoverAddress recovers the signing wallet address from an EIP-191
// personal-sign signature over message. The returned address is lowercase
// hex. Signatures are 65 bytes; the recovery byte is accepted as 0/1 or
// the 27/28 form wallets emit.
func recoverAddress(message, signature string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return "", ErrSignatureInvalid
	}

	// do not mutate the caller's bytes
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return "", ErrSignatureInvalid
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", ErrSignatureInvalid
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}
