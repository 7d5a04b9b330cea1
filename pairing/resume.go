package pairing

import (
	"github.com/go-hap/controller/haperr"
	"github.com/go-hap/controller/tlv"
)

// ResumeClient drives Pair-Resume, the fast re-handshake that replaces a
// full Pair-Verify when a session ID from a prior Pair-Verify is cached
// (spec.md §4.3). It wraps a VerifyClient so it can fall back to the full
// ceremony using the exact same M1/M2 bytes if the accessory declines to
// resume.
type ResumeClient struct {
	verify       *VerifyClient
	sessionID    []byte
	cachedSecret []byte
	salt         []byte

	requestKey  []byte
	responseKey []byte

	// Resumed is set once ParseM2 confirms a successful resume.
	Resumed bool

	ControllerToAccessoryKey []byte
	AccessoryToControllerKey []byte
}

// NewResumeClient prepares a resume attempt. sessionID and cachedSharedSecret
// must come from a VerifyClient.SessionID/SharedSecret of a prior, successful
// Pair-Verify against the same identity.
func NewResumeClient(identity *Identity, sessionID, cachedSharedSecret []byte) *ResumeClient {
	return &ResumeClient{
		verify:       NewVerifyClient(identity),
		sessionID:    sessionID,
		cachedSecret: cachedSharedSecret,
	}
}

// Verify exposes the embedded full Pair-Verify state machine, used to
// continue the ceremony when the accessory declines to resume.
func (c *ResumeClient) Verify() *VerifyClient { return c.verify }

// BuildM1 generates a fresh ephemeral key pair (reused by the fallback path
// if needed) and emits the resume request: the same PublicKey tag a plain
// Pair-Verify M1 would carry, plus an EncryptedData tag proving possession
// of the cached shared secret.
func (c *ResumeClient) BuildM1() ([]byte, error) {
	if err := c.verify.generateEphemeral(); err != nil {
		return nil, err
	}

	c.salt = concatBytes(c.verify.ourPub, c.sessionID)
	c.requestKey = derive(c.cachedSecret, c.salt, infoResumeRequest, 32)
	c.responseKey = derive(c.cachedSecret, c.salt, infoResumeResponse, 32)

	encrypted, err := sealWithLabel(c.requestKey, "PR-Msg01", nil)
	if err != nil {
		return nil, err
	}

	return tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m1}},
		{Tag: tagPublicKey, Value: c.verify.ourPub},
		{Tag: tagEncryptedData, Value: encrypted},
	}), nil
}

// ParseM2 tries to decrypt buf as a resume response first. If that fails —
// the accessory replied with a standard Pair-Verify M2 instead — it falls
// back to the full verify path using the same bytes, per spec.md §4.3.
func (c *ResumeClient) ParseM2(buf []byte) error {
	items, err := tlv.Decode(buf)
	if err != nil {
		return haperr.Proto("decoding resume M2", err)
	}
	if errVal, ok := items.Get(tagError); ok {
		return pairingErrorTLV(errVal)
	}
	encrypted, ok := items.Get(tagEncryptedData)
	if !ok {
		return haperr.Proto("M2: missing EncryptedData tag", nil)
	}

	if _, err := openWithLabel(c.responseKey, "PR-Msg02", encrypted); err == nil {
		newSecret := derive(c.cachedSecret, c.salt, infoResumeSecret, 32)
		c.ControllerToAccessoryKey = derive(newSecret, saltControl, infoControlWriteKey, 32)
		c.AccessoryToControllerKey = derive(newSecret, saltControl, infoControlReadKey, 32)
		c.Resumed = true
		return nil
	}

	// Not a resume response: hand the same bytes to the full Pair-Verify
	// path, which already owns the matching ephemeral key pair.
	return c.verify.ParseM2(buf)
}
