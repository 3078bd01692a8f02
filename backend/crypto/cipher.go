// Copyright (C) 2025 timevault.app <dev@timevault.app>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"
)

const nonceSize = 12 // GCM standard nonce size

// ErrCryptoFailure covers every decrypt failure: empty input, wrong key,
// truncated or tampered ciphertext, or plaintext that is not valid text.
// Callers cannot distinguish a wrong key from corruption, on purpose.
var ErrCryptoFailure = errors.New("decryption failed")

// Cipher encrypts and decrypts capsule content with one process-wide
// secret. There is no per-capsule key derivation: a key compromise
// decrypts every capsule ever stored. Accepted risk, documented in the
// deployment notes.
type Cipher struct {
	key []byte
}

func NewCipher(secret string) *Cipher {
	hash := sha256.Sum256([]byte(secret))
	return &Cipher{key: hash[:]}
}

// Encrypt returns a base64 ciphertext with the nonce prefixed. Empty input
// stays empty rather than going through the cipher.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("cipher creation failed: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("GCM creation failed: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *Cipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", ErrCryptoFailure
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCryptoFailure
	}
	if len(data) < nonceSize {
		return "", ErrCryptoFailure
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("cipher creation failed: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("GCM creation failed: %w", err)
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", ErrCryptoFailure
	}

	if !utf8.Valid(plaintext) {
		return "", ErrCryptoFailure
	}

	return string(plaintext), nil
}
