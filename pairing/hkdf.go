package pairing

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// derive runs HKDF-SHA-512 over secret with the given salt/info strings,
// returning length bytes. Every key and session-ID derivation in spec.md
// §4.3's table goes through this one helper.
func derive(secret, salt, info []byte, length int) []byte {
	r := hkdf.New(sha512.New, secret, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		// HKDF-SHA-512 can only fail to produce 255*64 bytes; every
		// derivation here asks for well under that, so this is
		// unreachable in practice.
		panic("pairing: hkdf expand failed: " + err.Error())
	}
	return out
}

// Salt/info labels from spec.md §4.3's derivation table.
var (
	saltPairSetupEncrypt  = []byte("Pair-Setup-Encrypt-Salt")
	infoPairSetupEncrypt  = []byte("Pair-Setup-Encrypt-Info")
	saltControllerSign    = []byte("Pair-Setup-Controller-Sign-Salt")
	infoControllerSign    = []byte("Pair-Setup-Controller-Sign-Info")
	saltAccessorySign     = []byte("Pair-Setup-Accessory-Sign-Salt")
	infoAccessorySign     = []byte("Pair-Setup-Accessory-Sign-Info")
	saltPairVerifyEncrypt = []byte("Pair-Verify-Encrypt-Salt")
	infoPairVerifyEncrypt = []byte("Pair-Verify-Encrypt-Info")
	saltPairVerifyResume  = []byte("Pair-Verify-Resume-Salt")
	infoPairVerifyResume  = []byte("Pair-Verify-Resume-Info")
	infoControlWriteKey   = []byte("Control-Write-Encryption-Key")
	infoControlReadKey    = []byte("Control-Read-Encryption-Key")
	saltControl           = []byte("Control-Salt")
	infoResumeRequest     = []byte("Pair-Resume-Request-Info")
	infoResumeResponse    = []byte("Pair-Resume-Response-Info")
	infoResumeSecret      = []byte("Pair-Resume-Shared-Secret-Info")
)
