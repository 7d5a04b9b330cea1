package pairing

import (
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/go-hap/controller/haperr"
)

// pairingNonce builds the 12-byte nonce HAP uses for the one-shot AEAD
// wrapping inside a pairing message: four zero bytes followed by an 8-byte
// ASCII label (spec.md §4.3 "AEAD nonces for pairing").
func pairingNonce(label string) []byte {
	if len(label) != 8 {
		panic("pairing: nonce label must be 8 bytes")
	}
	nonce := make([]byte, 12)
	copy(nonce[4:], label)
	return nonce
}

// sealWithLabel encrypts plaintext under key using the fixed pairing-message
// nonce for label (e.g. "PS-Msg05").
func sealWithLabel(key []byte, label string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, haperr.Proto("constructing AEAD cipher", err)
	}
	return aead.Seal(nil, pairingNonce(label), plaintext, nil), nil
}

// openWithLabel decrypts ciphertext under key for the pairing-message label,
// returning an Authentication error on tag failure.
func openWithLabel(key []byte, label string, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, haperr.Proto("constructing AEAD cipher", err)
	}
	plain, err := aead.Open(nil, pairingNonce(label), ciphertext, nil)
	if err != nil {
		return nil, haperr.Auth("AEAD tag verification failed for "+label, err)
	}
	return plain, nil
}
