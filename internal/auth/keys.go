package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	keyAlphabet  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	rawKeyLength = 48
)

// HashKey returns the SHA-256 hex digest of a raw API key. Only the
// digest is ever stored or compared; the raw secret never touches disk.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateKey creates a new random API key like "llm_<48-char-random>".
// The prefix is purely for operational grep-ability and carries no
// security meaning; the random part alone holds >256 bits of entropy.
func GenerateKey(prefix string) (string, error) {
	buf := make([]byte, rawKeyLength)
	max := big.NewInt(int64(len(keyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate key material: %w", err)
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return prefix + "_" + string(buf), nil
}
