package nova

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const ivSize = 12

// encryptPayload seals data with AES-256-GCM under the base64 key the
// gateway issued. Wire format: IV(12) || ciphertext || tag(16), base64.
func encryptPayload(data []byte, keyB64 string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return "", fmt.Errorf("bad payload key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	payload := append(iv, aead.Seal(nil, iv, data, nil)...)
	return base64.StdEncoding.EncodeToString(payload), nil
}

// decryptPayload reverses encryptPayload.
func decryptPayload(encryptedB64, keyB64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encryptedB64)
	if err != nil {
		return nil, fmt.Errorf("bad payload encoding: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("bad payload key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(raw) < ivSize {
		return nil, errors.New("payload too short")
	}

	return aead.Open(nil, raw[:ivSize], raw[ivSize:], nil)
}
