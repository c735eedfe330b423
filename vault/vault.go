/*
Package vault seals monetary amounts for storage.

PURPOSE:
  Gross and net salary are never written as plaintext. Seal produces an
  authenticated ciphertext bound to a scope (employee, period, field) so a
  sealed gross cannot be swapped into another record or another column.

FORMAT:
  version(1) || nonce(12) || AES-256-GCM(ciphertext + tag)

DETERMINISM:
  The nonce is a synthetic IV, HMAC-SHA256(macKey, scope || amount)
  truncated to 12 bytes. Sealing the same amount under the same scope yields
  the same bytes, which keeps payroll runs byte-for-byte reproducible. Keys
  for encryption and nonce derivation are split from one secret with HKDF.

SEE ALSO:
  - payroll/pipeline.go: seals gross/net before saving
*/
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/hkdf"
)

const formatV1 byte = 1

var (
	ErrMalformed = errors.New("vault: malformed sealed amount")
	ErrOpen      = errors.New("vault: authentication failed")
)

// Sealer is implemented by AESGCM; tests may substitute their own.
type Sealer interface {
	Seal(scope string, amount decimal.Decimal) ([]byte, error)
	Open(scope string, sealed []byte) (decimal.Decimal, error)
}

// AESGCM seals amounts with AES-256-GCM and a synthetic nonce.
type AESGCM struct {
	aead   cipher.AEAD
	macKey []byte
}

// New derives the encryption and nonce keys from secret. The secret must be
// at least 16 bytes.
func New(secret []byte) (*AESGCM, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("vault: secret must be at least 16 bytes, got %d", len(secret))
	}
	kdf := hkdf.New(sha256.New, secret, nil, []byte("payroll-engine/vault/v1"))
	encKey := make([]byte, 32)
	macKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	if _, err := io.ReadFull(kdf, macKey); err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}
	return &AESGCM{aead: aead, macKey: macKey}, nil
}

// Seal encrypts amount, normalized to two decimals, under scope.
func (v *AESGCM) Seal(scope string, amount decimal.Decimal) ([]byte, error) {
	plaintext := []byte(amount.StringFixed(2))

	mac := hmac.New(sha256.New, v.macKey)
	mac.Write([]byte(scope))
	mac.Write([]byte{0})
	mac.Write(plaintext)
	nonce := mac.Sum(nil)[:v.aead.NonceSize()]

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+v.aead.Overhead())
	out = append(out, formatV1)
	out = append(out, nonce...)
	out = v.aead.Seal(out, nonce, plaintext, []byte(scope))
	return out, nil
}

// Open authenticates and decrypts a sealed amount.
func (v *AESGCM) Open(scope string, sealed []byte) (decimal.Decimal, error) {
	ns := v.aead.NonceSize()
	if len(sealed) < 1+ns+v.aead.Overhead() || sealed[0] != formatV1 {
		return decimal.Zero, ErrMalformed
	}
	nonce := sealed[1 : 1+ns]
	plaintext, err := v.aead.Open(nil, nonce, sealed[1+ns:], []byte(scope))
	if err != nil {
		return decimal.Zero, ErrOpen
	}
	amount, err := decimal.NewFromString(string(plaintext))
	if err != nil {
		return decimal.Zero, ErrMalformed
	}
	return amount, nil
}

// Scope builds the associated data binding a sealed amount to its record field.
func Scope(employeeID, period, field string) string {
	return employeeID + "|" + period + "|" + field
}
