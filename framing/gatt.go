package framing

import "fmt"

// SealGATT splits plaintext into ≤GATTMaxPlaintext chunks and seals each one
// as an independent GATT frame: ChaCha20-Poly1305 ciphertext and tag, with
// no AAD and no length prefix — GATT write/indication boundaries already
// delimit frames (spec.md §4.4).
func (f *Framer) SealGATT(plaintext []byte) ([][]byte, error) {
	var frames [][]byte
	for len(plaintext) > 0 {
		n := len(plaintext)
		if n > GATTMaxPlaintext {
			n = GATTMaxPlaintext
		}
		chunk := plaintext[:n]
		plaintext = plaintext[n:]

		counter := f.writeCounter.Next()
		sealed, err := f.sealAEAD(f.writeKey, counter, chunk, nil)
		if err != nil {
			return nil, err
		}
		if Trace {
			fmt.Printf("framing: sealed GATT frame #%d, %d plaintext bytes\n", counter, n)
		}
		frames = append(frames, sealed)
	}
	return frames, nil
}

// OpenGATT decrypts a single GATT frame (one indication's worth of bytes).
// Unlike OpenIP it propagates AEAD failures to the caller instead of
// swallowing them: the GATT transport already isolates frame boundaries at
// the indication/read level, so a failed tag here means something is
// actually wrong with the peripheral or the session, not a resync-able
// stream desync.
func (f *Framer) OpenGATT(frame []byte) ([]byte, error) {
	counter := f.readCounter.Next()
	return f.openAEAD(f.readKey, counter, frame, nil)
}
