package pairing

import (
	"crypto/ed25519"
	"regexp"

	"github.com/google/uuid"

	"github.com/go-hap/controller/haperr"
	"github.com/go-hap/controller/tlv"
)

// pinPattern is the literal PIN shape HAP requires, spec.md §4.7.
var pinPattern = regexp.MustCompile(`^\d{3}-\d{2}-\d{3}$`)

// ValidatePin reports whether pin matches the required "NNN-NN-NNN" shape.
func ValidatePin(pin string) error {
	if !pinPattern.MatchString(pin) {
		return haperr.Invalid("PIN must match NNN-NN-NNN", nil)
	}
	return nil
}

// SetupClient drives the M1..M6 exchange of Pair-Setup. It is a pure state
// machine: every Build/Parse method only touches its own fields, never I/O
// (spec.md §4.3).
type SetupClient struct {
	pin string

	srp             *srpClient
	m1Sent          bool
	m3Proof         []byte
	setupEncryptKey []byte

	iosDeviceX          []byte
	iosDevicePairingID  string
	iosDeviceLTSK       ed25519.PrivateKey
	iosDeviceLTPK       ed25519.PublicKey
	accessoryX          []byte

	// Result is populated once ParseM6 succeeds.
	Result *Identity
}

// NewSetupClient validates pin and returns a fresh Pair-Setup state machine.
func NewSetupClient(pin string) (*SetupClient, error) {
	if err := ValidatePin(pin); err != nil {
		return nil, err
	}
	return &SetupClient{pin: pin}, nil
}

// BuildM1 emits the Pair-Setup start request.
func (c *SetupClient) BuildM1() []byte {
	c.m1Sent = true
	return tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m1}},
		{Tag: tagMethod, Value: []byte{methodPairSetupWithAuth}},
	})
}

// ParseM2 consumes the accessory's salt and SRP public key B.
func (c *SetupClient) ParseM2(buf []byte) error {
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
	salt, ok := items.Get(tagSalt)
	if !ok {
		return haperr.Proto("M2: missing Salt tag", nil)
	}
	pub, ok := items.Get(tagPublicKey)
	if !ok {
		return haperr.Proto("M2: missing PublicKey tag", nil)
	}

	srpCl, m1, err := newSRPClient(salt, bytesToBigInt(pub), c.pin)
	if err != nil {
		return err
	}
	c.srp = srpCl
	c.m3Proof = m1
	return nil
}

// BuildM3 emits the client's SRP public key and M1 proof.
func (c *SetupClient) BuildM3() ([]byte, error) {
	if c.srp == nil {
		return nil, haperr.Proto("BuildM3 called before ParseM2", nil)
	}
	return tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m3}},
		{Tag: tagPublicKey, Value: srpPad(c.srp.A, c.srp.fieldSize())},
		{Tag: tagProof, Value: c.m3Proof},
	}), nil
}

// ParseM4 verifies the accessory's SRP M2 proof.
func (c *SetupClient) ParseM4(buf []byte) error {
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
	proof, ok := items.Get(tagProof)
	if !ok {
		return haperr.Proto("M4: missing Proof tag", nil)
	}
	if err := c.srp.verifyM2(c.srp.fieldSize(), c.m3Proof, proof); err != nil {
		return err
	}

	c.setupEncryptKey = derive(c.srp.key, saltPairSetupEncrypt, infoPairSetupEncrypt, 32)
	c.iosDeviceX = derive(c.srp.key, saltControllerSign, infoControllerSign, 32)
	c.accessoryX = derive(c.srp.key, saltAccessorySign, infoAccessorySign, 32)
	return nil
}

// BuildM5 generates the controller's long-term Ed25519 identity, signs it
// over the derived iOSDeviceX, and emits the AEAD-wrapped sub-TLV.
func (c *SetupClient) BuildM5() ([]byte, error) {
	pub, priv, err := newControllerKeyPair()
	if err != nil {
		return nil, haperr.Transp("generating controller long-term key", err)
	}
	c.iosDeviceLTPK = pub
	c.iosDeviceLTSK = priv
	c.iosDevicePairingID = uuid.New().String()

	signed := concatBytes(c.iosDeviceX, []byte(c.iosDevicePairingID), c.iosDeviceLTPK)
	signature := ed25519.Sign(c.iosDeviceLTSK, signed)

	inner := tlv.Encode(tlv.Items{
		{Tag: tagIdentifier, Value: []byte(c.iosDevicePairingID)},
		{Tag: tagPublicKey, Value: c.iosDeviceLTPK},
		{Tag: tagSignature, Value: signature},
	})

	encrypted, err := sealWithLabel(c.setupEncryptKey, "PS-Msg05", inner)
	if err != nil {
		return nil, err
	}

	return tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m5}},
		{Tag: tagEncryptedData, Value: encrypted},
	}), nil
}

// ParseM6 decrypts and verifies the accessory's identity, finishing the
// ceremony and populating Result.
func (c *SetupClient) ParseM6(buf []byte) error {
	items, err := tlv.Decode(buf)
	if err != nil {
		return haperr.Proto("decoding M6", err)
	}
	if errVal, ok := items.Get(tagError); ok {
		return pairingErrorTLV(errVal)
	}
	state, ok := items.Get(tagState)
	if !ok || len(state) != 1 || state[0] != m6 {
		return haperr.Proto("M6: missing or wrong State tag", nil)
	}
	encrypted, ok := items.Get(tagEncryptedData)
	if !ok {
		return haperr.Proto("M6: missing EncryptedData tag", nil)
	}

	inner, err := openWithLabel(c.setupEncryptKey, "PS-Msg06", encrypted)
	if err != nil {
		return err
	}

	innerItems, err := tlv.Decode(inner)
	if err != nil {
		return haperr.Proto("decoding M6 sub-TLV", err)
	}
	accessoryPairingID, ok := innerItems.Get(tagIdentifier)
	if !ok {
		return haperr.Proto("M6: missing Identifier in sub-TLV", nil)
	}
	accessoryLTPK, ok := innerItems.Get(tagPublicKey)
	if !ok {
		return haperr.Proto("M6: missing PublicKey in sub-TLV", nil)
	}
	signature, ok := innerItems.Get(tagSignature)
	if !ok {
		return haperr.Proto("M6: missing Signature in sub-TLV", nil)
	}

	signed := concatBytes(c.accessoryX, accessoryPairingID, accessoryLTPK)
	if !ed25519.Verify(ed25519.PublicKey(accessoryLTPK), signed, signature) {
		return haperr.Auth("accessory M6 signature verification failed", nil)
	}

	c.Result = &Identity{
		AccessoryPairingID:  string(accessoryPairingID),
		AccessoryLTPK:       append([]byte(nil), accessoryLTPK...),
		ControllerPairingID: c.iosDevicePairingID,
		ControllerLTSK:      append([]byte(nil), c.iosDeviceLTSK...),
		ControllerLTPK:      append([]byte(nil), c.iosDeviceLTPK...),
	}
	return nil
}

func concatBytes(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
