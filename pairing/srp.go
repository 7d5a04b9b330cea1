package pairing

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"math/big"

	"github.com/go-hap/controller/haperr"
)

// srpGroup3072N and srpGroup3072G are the safe prime and generator of
// RFC 5054's 3072-bit MODP group ("group 15"), the group HAP mandates for
// Pair-Setup's SRP-6a exchange.
var srpGroup3072N = mustHex(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA06D98A0864D87602733EC86A64521F2B18177B200CBBE117577A615D6C770988C0BAD946E208E24FA074E5AB3143DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF",
)
var srpGroup3072G = big.NewInt(5)

func mustHex(s string) *big.Int {
	clean := make([]byte, 0, len(s))
	for _, r := range s {
		if r != ' ' && r != '\n' {
			clean = append(clean, byte(r))
		}
	}
	n, ok := new(big.Int).SetString(string(clean), 16)
	if !ok {
		panic("pairing: malformed SRP group constant")
	}
	return n
}

// srpUsername is the fixed SRP identity HAP uses for Pair-Setup.
const srpUsername = "Pair-Setup"

// errSRPZero is the abort condition for a zero public key or scrambling
// parameter (SRP-6a safeguard against a degenerate key agreement).
var errSRPZero = errors.New("pairing: SRP public value is zero mod N")

// srpClient holds the ephemeral state of one Pair-Setup SRP-6a exchange.
type srpClient struct {
	salt   []byte
	serverB *big.Int

	a *big.Int // private ephemeral
	A *big.Int // public ephemeral

	key []byte // session key K, 64 bytes (SHA-512 output)
}

// srpHash is SHA-512, the hash HAP uses throughout Pair-Setup's SRP math.
func srpHash(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func srpPad(x *big.Int, size int) []byte {
	b := x.Bytes()
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// newSRPClient generates the client ephemeral private/public pair and
// derives the shared session key and M1 proof from the server's salt and B,
// and the PIN typed by the user. Mirrors Pair-Setup M3 in spec.md §4.3.
func newSRPClient(salt []byte, serverB *big.Int, pin string) (*srpClient, []byte, error) {
	n := srpGroup3072N
	g := srpGroup3072G
	size := (n.BitLen() + 7) / 8

	if serverB.Sign() == 0 || new(big.Int).Mod(serverB, n).Sign() == 0 {
		return nil, nil, haperr.Auth("SRP server public key is zero mod N", errSRPZero)
	}

	// Full field-size private exponent, wider than the minimum RFC 5054
	// recommends — only strengthens the ephemeral key, never narrows it.
	priv := make([]byte, size)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, haperr.Transp("reading random SRP private key", err)
	}
	a := new(big.Int).SetBytes(priv)
	a.Mod(a, n)
	A := new(big.Int).Exp(g, a, n)

	k := new(big.Int).SetBytes(srpHash(srpPad(n, size), srpPad(g, size)))
	k.Mod(k, n)

	x := new(big.Int).SetBytes(srpHash(salt, srpHash([]byte(srpUsername+":"+pin))))

	u := new(big.Int).SetBytes(srpHash(srpPad(A, size), srpPad(serverB, size)))
	if u.Sign() == 0 {
		return nil, nil, haperr.Auth("SRP scrambling parameter u is zero", errSRPZero)
	}

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(g, x, n)
	kgx := new(big.Int).Mul(k, gx)
	base := new(big.Int).Sub(serverB, kgx)
	base.Mod(base, n)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, a)
	s := new(big.Int).Exp(base, exp, n)

	key := srpHash(srpPad(s, size))

	hN := srpHash(srpPad(n, size))
	hG := srpHash(srpPad(g, size))
	hNxorG := make([]byte, len(hN))
	for i := range hN {
		hNxorG[i] = hN[i] ^ hG[i]
	}
	hI := srpHash([]byte(srpUsername))

	m1 := srpHash(hNxorG, hI, salt, srpPad(A, size), srpPad(serverB, size), key)

	c := &srpClient{salt: salt, serverB: serverB, a: a, A: A, key: key}
	return c, m1, nil
}

// verifyM2 checks the server's SRP proof against the client's own
// computation; a mismatch is a Pair-Setup authentication failure
// (spec.md §4.3 M4, ProofMismatch).
func (c *srpClient) verifyM2(size int, m1, m2 []byte) error {
	want := srpHash(srpPad(c.A, size), m1, c.key)
	if subtle.ConstantTimeCompare(want, m2) != 1 {
		return haperr.Auth("SRP M2 proof mismatch", nil)
	}
	return nil
}

func (c *srpClient) fieldSize() int {
	return (srpGroup3072N.BitLen() + 7) / 8
}
