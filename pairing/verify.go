package pairing

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"github.com/go-hap/controller/haperr"
	"github.com/go-hap/controller/tlv"
)

// VerifyClient drives the M1..M4 exchange of Pair-Verify, deriving the two
// session AEAD keys on success (spec.md §4.3).
type VerifyClient struct {
	identity *Identity

	ourPriv []byte
	ourPub  []byte

	accessoryPub []byte
	sharedSecret []byte
	encryptKey   []byte
	sessionID    []byte

	ControllerToAccessoryKey []byte
	AccessoryToControllerKey []byte
}

// NewVerifyClient starts a Pair-Verify exchange against a previously
// completed Pair-Setup identity.
func NewVerifyClient(identity *Identity) *VerifyClient {
	return &VerifyClient{identity: identity}
}

// generateEphemeral creates the ephemeral Curve25519 key pair, shared by
// BuildM1 and by ResumeClient's fallback-to-full-verify path.
func (c *VerifyClient) generateEphemeral() error {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return haperr.Transp("generating Curve25519 private key", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return haperr.Proto("computing Curve25519 public key", err)
	}
	c.ourPriv = priv
	c.ourPub = pub
	return nil
}

// BuildM1 generates the ephemeral Curve25519 key pair and emits it.
func (c *VerifyClient) BuildM1() ([]byte, error) {
	if err := c.generateEphemeral(); err != nil {
		return nil, err
	}
	return tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m1}},
		{Tag: tagPublicKey, Value: c.ourPub},
	}), nil
}

// ParseM2 computes the shared secret, decrypts the accessory's signed
// identity, and rejects a substituted accessory pairing ID.
func (c *VerifyClient) ParseM2(buf []byte) error {
	items, err := tlv.Decode(buf)
	if err != nil {
		return haperr.Proto("decoding M2", err)
	}
	if errVal, ok := items.Get(tagError); ok {
		return pairingErrorTLV(errVal)
	}
	state, ok := items.Get(tagState)
	if !ok || len(state) != 1 || state[0] != m2 {
		return haperr.Proto("M2: missing or wrong State tag", nil)
	}
	accessoryPub, ok := items.Get(tagPublicKey)
	if !ok {
		return haperr.Proto("M2: missing PublicKey tag", nil)
	}
	encrypted, ok := items.Get(tagEncryptedData)
	if !ok {
		return haperr.Proto("M2: missing EncryptedData tag", nil)
	}

	shared, err := curve25519.X25519(c.ourPriv, accessoryPub)
	if err != nil {
		return haperr.Proto("computing Curve25519 shared secret", err)
	}
	c.accessoryPub = accessoryPub
	c.sharedSecret = shared
	c.encryptKey = derive(shared, saltPairVerifyEncrypt, infoPairVerifyEncrypt, 32)
	c.sessionID = derive(shared, saltPairVerifyResume, infoPairVerifyResume, 8)

	inner, err := openWithLabel(c.encryptKey, "PV-Msg02", encrypted)
	if err != nil {
		return err
	}
	innerItems, err := tlv.Decode(inner)
	if err != nil {
		return haperr.Proto("decoding M2 sub-TLV", err)
	}
	identifier, ok := innerItems.Get(tagIdentifier)
	if !ok {
		return haperr.Proto("M2: missing Identifier in sub-TLV", nil)
	}
	signature, ok := innerItems.Get(tagSignature)
	if !ok {
		return haperr.Proto("M2: missing Signature in sub-TLV", nil)
	}

	// Substitution check: the identifier inside the encrypted envelope
	// must match the accessory this controller originally paired with.
	if string(identifier) != c.identity.AccessoryPairingID {
		return haperr.Auth("M2 accessory identifier does not match stored pairing", nil)
	}

	signed := concatBytes(accessoryPub, identifier, c.ourPub)
	if !ed25519.Verify(ed25519.PublicKey(c.identity.AccessoryLTPK), signed, signature) {
		return haperr.Auth("M2 accessory signature verification failed", nil)
	}
	return nil
}

// BuildM3 signs the controller's own identity and emits the AEAD-wrapped
// sub-TLV.
func (c *VerifyClient) BuildM3() ([]byte, error) {
	signed := concatBytes(c.ourPub, []byte(c.identity.ControllerPairingID), c.accessoryPub)
	signature := ed25519.Sign(ed25519.PrivateKey(c.identity.ControllerLTSK), signed)

	inner := tlv.Encode(tlv.Items{
		{Tag: tagIdentifier, Value: []byte(c.identity.ControllerPairingID)},
		{Tag: tagSignature, Value: signature},
	})
	encrypted, err := sealWithLabel(c.encryptKey, "PV-Msg03", inner)
	if err != nil {
		return nil, err
	}

	return tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m3}},
		{Tag: tagEncryptedData, Value: encrypted},
	}), nil
}

// ParseM4 checks the final State/Error tags and derives the two session
// keys on success.
func (c *VerifyClient) ParseM4(buf []byte) error {
	items, err := tlv.Decode(buf)
	if err != nil {
		return haperr.Proto("decoding M4", err)
	}
	if errVal, ok := items.Get(tagError); ok {
		return pairingErrorTLV(errVal)
	}
	state, ok := items.Get(tagState)
	if !ok || len(state) != 1 || state[0] != m4 {
		return haperr.Proto("M4: missing or wrong State tag", nil)
	}

	c.ControllerToAccessoryKey = derive(c.sharedSecret, saltControl, infoControlWriteKey, 32)
	c.AccessoryToControllerKey = derive(c.sharedSecret, saltControl, infoControlReadKey, 32)
	return nil
}

// SessionID returns the 8-byte resume session ID derived in ParseM2, for
// callers that want to cache it for a later Pair-Resume.
func (c *VerifyClient) SessionID() []byte { return c.sessionID }

// SharedSecret exposes the Curve25519 shared secret for Pair-Resume
// derivations. The root package's clients cache it, with SessionID, as the
// resume credentials a caller can persist for a later connection.
func (c *VerifyClient) SharedSecret() []byte { return c.sharedSecret }
