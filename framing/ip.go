package framing

import (
	"encoding/binary"
	"fmt"
)

// SealIP splits plaintext into ≤IPMaxPlaintext chunks and seals each one as
// an independent HTTP/TCP frame: a 2-byte little-endian length prefix (the
// frame's AAD) followed by the ChaCha20-Poly1305 ciphertext and 16-byte tag.
func (f *Framer) SealIP(plaintext []byte) ([]byte, error) {
	var out []byte
	for len(plaintext) > 0 {
		n := len(plaintext)
		if n > IPMaxPlaintext {
			n = IPMaxPlaintext
		}
		chunk := plaintext[:n]
		plaintext = plaintext[n:]

		aad := make([]byte, 2)
		binary.LittleEndian.PutUint16(aad, uint16(n))

		counter := f.writeCounter.Next()
		sealed, err := f.sealAEAD(f.writeKey, counter, chunk, aad)
		if err != nil {
			return nil, err
		}
		if Trace {
			fmt.Printf("framing: sealed IP frame #%d, %d plaintext bytes\n", counter, n)
		}

		out = append(out, aad...)
		out = append(out, sealed...)
	}
	return out, nil
}

// OpenIP consumes one or more length-prefixed frames from buf, returning the
// concatenated plaintext and the number of bytes of buf consumed. It stops
// and returns what it has as soon as buf no longer holds a complete frame,
// so callers can feed it partial reads.
//
// A frame whose AEAD tag fails to verify is dropped rather than returned as
// an error, and OpenIP resumes from the next length prefix in buf (spec.md
// §7 recovery policy). The read counter still advances for the dropped
// frame — the sender consumed that nonce value whether or not the tag
// verified on our end, so counter and stream position must move together
// for the next frame to stand any chance of decrypting. This matches the
// teacher's tolerant treatment of malformed ASDUs in session.Transport,
// which logs and continues rather than tearing down the link.
func (f *Framer) OpenIP(buf []byte) (plaintext []byte, consumed int, err error) {
	for {
		if len(buf) < 2 {
			return plaintext, consumed, nil
		}
		n := int(binary.LittleEndian.Uint16(buf[:2]))
		frameLen := 2 + n + 16
		if len(buf) < frameLen {
			return plaintext, consumed, nil
		}

		aad := buf[:2]
		ciphertext := buf[2:frameLen]
		counter := f.readCounter.Next()
		opened, openErr := f.openAEAD(f.readKey, counter, ciphertext, aad)
		if openErr != nil {
			if Trace {
				fmt.Printf("framing: dropping undecryptable IP frame at counter %d\n", counter)
			}
			buf = buf[frameLen:]
			consumed += frameLen
			continue
		}
		plaintext = append(plaintext, opened...)
		buf = buf[frameLen:]
		consumed += frameLen
	}
}
