// SPDX-License-Identifier: MPL-2.0

// Package secrets fetches the encrypted private-test credential, decrypts
// it, and installs it as an SSH identity for the duration of a callback.
// The decrypted key never survives the test run: cleanup runs on every exit
// path, including failures.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrBadCiphertext is returned when the encrypted blob cannot be decrypted
// with the given key material.
var ErrBadCiphertext = errors.New("bad ciphertext")

// Material is the symmetric key pair provided by the CI provider's
// encrypted environment variables.
type Material struct {
	// KeyHex is the hex-encoded AES-256 key.
	KeyHex string
	// IVHex is the hex-encoded CBC initialization vector.
	IVHex string
}

// Present reports whether both halves of the key material are set.
func (m Material) Present() bool {
	return m.KeyHex != "" && m.IVHex != ""
}

// Decrypt decrypts an AES-256-CBC blob with the raw hex key/IV convention
// used by "openssl enc -aes-256-cbc -K <hex> -iv <hex>": no salt header,
// zero-padded short keys, PKCS#7 block padding.
func (m Material) Decrypt(ciphertext []byte) ([]byte, error) {
	key, err := decodeHexPadded(m.KeyHex, 32)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	iv, err := decodeHexPadded(m.IVHex, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: length %d is not a positive multiple of the block size",
			ErrBadCiphertext, len(ciphertext))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return stripPKCS7(plaintext)
}

// decodeHexPadded decodes a hex string and zero-pads it to size bytes,
// matching openssl's handling of short -K/-iv arguments.
func decodeHexPadded(s string, size int) ([]byte, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) > size {
		return nil, fmt.Errorf("hex value longer than %d bytes", size)
	}
	out := make([]byte, size)
	copy(out, raw)
	return out, nil
}

// stripPKCS7 removes PKCS#7 padding from a decrypted block sequence.
func stripPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrBadCiphertext)
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrBadCiphertext)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("%w: invalid padding", ErrBadCiphertext)
		}
	}
	return data[:len(data)-pad], nil
}
