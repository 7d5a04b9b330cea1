package pairing

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"math/big"
	"testing"

	"golang.org/x/crypto/curve25519"

	"github.com/go-hap/controller/tlv"
)

// fakeAccessorySRP completes the server side of the SRP-6a exchange for
// test purposes. spec.md §8 calls for a known-answer vector; none is given
// in the specification text itself (only described), so this test instead
// exercises full self-consistency between the client state machine and an
// independent accessory-side implementation built from the same published
// algorithm.
type fakeAccessorySRP struct {
	salt []byte
	v    *big.Int // password verifier
	b    *big.Int
	B    *big.Int
	pin  string
}

func newFakeAccessorySRP(pin string) *fakeAccessorySRP {
	n := srpGroup3072N
	g := srpGroup3072G
	size := (n.BitLen() + 7) / 8

	salt := make([]byte, 16)
	rand.Read(salt)

	x := new(big.Int).SetBytes(srpHash(salt, srpHash([]byte(srpUsername+":"+pin))))
	v := new(big.Int).Exp(g, x, n)

	bBytes := make([]byte, size)
	rand.Read(bBytes)
	b := new(big.Int).SetBytes(bBytes)
	b.Mod(b, n)

	k := new(big.Int).SetBytes(srpHash(srpPad(n, size), srpPad(g, size)))
	k.Mod(k, n)

	gb := new(big.Int).Exp(g, b, n)
	kv := new(big.Int).Mul(k, v)
	B := new(big.Int).Add(kv, gb)
	B.Mod(B, n)

	return &fakeAccessorySRP{salt: salt, v: v, b: b, B: B, pin: pin}
}

func (f *fakeAccessorySRP) proofM2(clientA *big.Int, clientM1 []byte) (serverKey, m2 []byte) {
	n := srpGroup3072N
	size := (n.BitLen() + 7) / 8

	u := new(big.Int).SetBytes(srpHash(srpPad(clientA, size), srpPad(f.B, size)))

	// S = (A * v^u) ^ b mod N
	vu := new(big.Int).Exp(f.v, u, n)
	base := new(big.Int).Mul(clientA, vu)
	base.Mod(base, n)
	s := new(big.Int).Exp(base, f.b, n)
	key := srpHash(srpPad(s, size))

	m2 = srpHash(srpPad(clientA, size), clientM1, key)
	return key, m2
}

func TestPairSetupRoundTrip(t *testing.T) {
	const pin = "123-45-678"
	accessory := newFakeAccessorySRP(pin)

	client, err := NewSetupClient(pin)
	if err != nil {
		t.Fatal(err)
	}

	m1 := client.BuildM1()
	items, err := tlv.Decode(m1)
	if err != nil || len(items) != 2 {
		t.Fatalf("M1 malformed: %v %v", items, err)
	}

	m2 := tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m2}},
		{Tag: tagSalt, Value: accessory.salt},
		{Tag: tagPublicKey, Value: srpPad(accessory.B, (srpGroup3072N.BitLen()+7)/8)},
	})
	if err := client.ParseM2(m2); err != nil {
		t.Fatalf("ParseM2: %v", err)
	}

	m3, err := client.BuildM3()
	if err != nil {
		t.Fatal(err)
	}
	m3Items, _ := tlv.Decode(m3)
	clientA, _ := m3Items.Get(tagPublicKey)
	clientM1, _ := m3Items.Get(tagProof)

	_, serverM2 := accessory.proofM2(new(big.Int).SetBytes(clientA), clientM1)

	m4 := tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m4}},
		{Tag: tagProof, Value: serverM2},
	})
	if err := client.ParseM4(m4); err != nil {
		t.Fatalf("ParseM4: %v", err)
	}

	m5, err := client.BuildM5()
	if err != nil {
		t.Fatal(err)
	}
	m5Items, _ := tlv.Decode(m5)
	encM5, _ := m5Items.Get(tagEncryptedData)
	inner, err := openWithLabel(client.setupEncryptKey, "PS-Msg05", encM5)
	if err != nil {
		t.Fatalf("decrypt M5: %v", err)
	}
	innerItems, _ := tlv.Decode(inner)
	iosID, _ := innerItems.Get(tagIdentifier)
	iosLTPK, _ := innerItems.Get(tagPublicKey)
	iosSig, _ := innerItems.Get(tagSignature)

	signed := concatBytes(client.iosDeviceX, iosID, iosLTPK)
	if !ed25519.Verify(ed25519.PublicKey(iosLTPK), signed, iosSig) {
		t.Fatal("M5 signature does not verify against iOSDeviceX (simulated accessory's view)")
	}

	// simulated accessory identity
	accPub, accPriv, _ := ed25519.GenerateKey(nil)
	accPairingID := "11:22:33:44:55:66"
	accSigned := concatBytes(client.accessoryX, []byte(accPairingID), accPub)
	accSig := ed25519.Sign(accPriv, accSigned)

	accInner := tlv.Encode(tlv.Items{
		{Tag: tagIdentifier, Value: []byte(accPairingID)},
		{Tag: tagPublicKey, Value: accPub},
		{Tag: tagSignature, Value: accSig},
	})
	accEncrypted, err := sealWithLabel(client.setupEncryptKey, "PS-Msg06", accInner)
	if err != nil {
		t.Fatal(err)
	}
	m6 := tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m6}},
		{Tag: tagEncryptedData, Value: accEncrypted},
	})
	if err := client.ParseM6(m6); err != nil {
		t.Fatalf("ParseM6: %v", err)
	}

	if client.Result == nil {
		t.Fatal("Result not populated")
	}
	if client.Result.AccessoryPairingID != accPairingID {
		t.Errorf("AccessoryPairingID = %q, want %q", client.Result.AccessoryPairingID, accPairingID)
	}
	if !bytes.Equal(client.Result.AccessoryLTPK, accPub) {
		t.Error("AccessoryLTPK mismatch")
	}
}

func TestPairSetupWrongProofFails(t *testing.T) {
	const pin = "123-45-678"
	accessory := newFakeAccessorySRP(pin)

	client, _ := NewSetupClient(pin)
	client.BuildM1()
	m2 := tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m2}},
		{Tag: tagSalt, Value: accessory.salt},
		{Tag: tagPublicKey, Value: srpPad(accessory.B, (srpGroup3072N.BitLen()+7)/8)},
	})
	if err := client.ParseM2(m2); err != nil {
		t.Fatal(err)
	}
	client.BuildM3()

	badM4 := tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m4}},
		{Tag: tagProof, Value: make([]byte, 64)},
	})
	if err := client.ParseM4(badM4); err == nil {
		t.Fatal("expected proof mismatch error")
	}
}

func TestPairVerifySubstitutionRejected(t *testing.T) {
	accPub, accPriv, _ := ed25519.GenerateKey(nil)
	identity := &Identity{
		AccessoryPairingID: "real-accessory-id",
		AccessoryLTPK:      accPub,
	}

	client := NewVerifyClient(identity)
	m1, err := client.BuildM1()
	if err != nil {
		t.Fatal(err)
	}
	m1Items, _ := tlv.Decode(m1)
	ourPub, _ := m1Items.Get(tagPublicKey)

	accPriv25519 := make([]byte, curve25519.ScalarSize)
	rand.Read(accPriv25519)
	accEphPub, _ := curve25519.X25519(accPriv25519, curve25519.Basepoint)
	shared, _ := curve25519.X25519(accPriv25519, ourPub)

	encryptKey := derive(shared, saltPairVerifyEncrypt, infoPairVerifyEncrypt, 32)

	// The signed identifier differs from identity.AccessoryPairingID —
	// a substitution attempt.
	spoofedID := "spoofed-accessory-id"
	signed := concatBytes(accEphPub, []byte(spoofedID), ourPub)
	sig := ed25519.Sign(accPriv, signed)

	inner := tlv.Encode(tlv.Items{
		{Tag: tagIdentifier, Value: []byte(spoofedID)},
		{Tag: tagSignature, Value: sig},
	})
	encrypted, err := sealWithLabel(encryptKey, "PV-Msg02", inner)
	if err != nil {
		t.Fatal(err)
	}

	m2 := tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m2}},
		{Tag: tagPublicKey, Value: accEphPub},
		{Tag: tagEncryptedData, Value: encrypted},
	})

	err = client.ParseM2(m2)
	if err == nil {
		t.Fatal("expected substitution to be rejected")
	}
}

func TestPairVerifyFullRoundTrip(t *testing.T) {
	accPub, accPriv, _ := ed25519.GenerateKey(nil)
	ctrlPub, ctrlPriv, _ := ed25519.GenerateKey(nil)
	identity := &Identity{
		AccessoryPairingID:  "accessory-1",
		AccessoryLTPK:       accPub,
		ControllerPairingID: "controller-1",
		ControllerLTSK:      ctrlPriv,
		ControllerLTPK:      ctrlPub,
	}

	client := NewVerifyClient(identity)
	m1, err := client.BuildM1()
	if err != nil {
		t.Fatal(err)
	}
	m1Items, _ := tlv.Decode(m1)
	ourPub, _ := m1Items.Get(tagPublicKey)

	accPriv25519 := make([]byte, curve25519.ScalarSize)
	rand.Read(accPriv25519)
	accEphPub, _ := curve25519.X25519(accPriv25519, curve25519.Basepoint)
	shared, _ := curve25519.X25519(accPriv25519, ourPub)
	encryptKey := derive(shared, saltPairVerifyEncrypt, infoPairVerifyEncrypt, 32)

	signed := concatBytes(accEphPub, []byte(identity.AccessoryPairingID), ourPub)
	sig := ed25519.Sign(accPriv, signed)
	inner := tlv.Encode(tlv.Items{
		{Tag: tagIdentifier, Value: []byte(identity.AccessoryPairingID)},
		{Tag: tagSignature, Value: sig},
	})
	encrypted, _ := sealWithLabel(encryptKey, "PV-Msg02", inner)
	m2 := tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m2}},
		{Tag: tagPublicKey, Value: accEphPub},
		{Tag: tagEncryptedData, Value: encrypted},
	})
	if err := client.ParseM2(m2); err != nil {
		t.Fatalf("ParseM2: %v", err)
	}

	m3, err := client.BuildM3()
	if err != nil {
		t.Fatal(err)
	}
	m3Items, _ := tlv.Decode(m3)
	encM3, _ := m3Items.Get(tagEncryptedData)
	m3Inner, err := openWithLabel(encryptKey, "PV-Msg03", encM3)
	if err != nil {
		t.Fatalf("accessory decrypting M3: %v", err)
	}
	m3InnerItems, _ := tlv.Decode(m3Inner)
	gotID, _ := m3InnerItems.Get(tagIdentifier)
	gotSig, _ := m3InnerItems.Get(tagSignature)
	wantSigned := concatBytes(ourPub, []byte(identity.ControllerPairingID), accEphPub)
	if !ed25519.Verify(identity.ControllerLTPK, wantSigned, gotSig) || string(gotID) != identity.ControllerPairingID {
		t.Fatal("M3 signature does not verify from the accessory's point of view")
	}

	m4 := tlv.Encode(tlv.Items{{Tag: tagState, Value: []byte{m4}}})
	if err := client.ParseM4(m4); err != nil {
		t.Fatal(err)
	}

	if len(client.ControllerToAccessoryKey) != 32 || len(client.AccessoryToControllerKey) != 32 {
		t.Fatal("session keys not derived")
	}
	if bytes.Equal(client.ControllerToAccessoryKey, client.AccessoryToControllerKey) {
		t.Fatal("the two direction keys must differ")
	}
}

func TestValidatePin(t *testing.T) {
	if err := ValidatePin("123-45-678"); err != nil {
		t.Fatal(err)
	}
	if err := ValidatePin("12345678"); err == nil {
		t.Fatal("expected rejection of unformatted PIN")
	}
}

func TestListPairingsRoundTrip(t *testing.T) {
	pub1, _, _ := ed25519.GenerateKey(nil)
	pub2, _, _ := ed25519.GenerateKey(nil)

	buf := tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m2}},
		{Tag: tagIdentifier, Value: []byte("controller-a")},
		{Tag: tagPublicKey, Value: pub1},
		{Tag: tagPermissions, Value: []byte{byte(PermissionAdmin)}},
		{Tag: tagIdentifier, Value: []byte("controller-b")},
		{Tag: tagPublicKey, Value: pub2},
		{Tag: tagPermissions, Value: []byte{byte(PermissionRegularUser)}},
	})

	entries, err := ParseListPairingsM2(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Identifier != "controller-a" || entries[0].Permissions != PermissionAdmin {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Identifier != "controller-b" || entries[1].Permissions != PermissionRegularUser {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if !bytes.Equal(entries[0].PublicKey, pub1) || !bytes.Equal(entries[1].PublicKey, pub2) {
		t.Error("public key mismatch")
	}
}

func TestBuildAddRemovePairing(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	add := BuildAddPairing("controller-a", pub, PermissionAdmin)
	items, err := tlv.Decode(add)
	if err != nil {
		t.Fatal(err)
	}
	if method, _ := items.Get(tagMethod); len(method) != 1 || method[0] != methodAddPairing {
		t.Error("wrong method in AddPairing M1")
	}

	rm := BuildRemovePairing("controller-a")
	items, err = tlv.Decode(rm)
	if err != nil {
		t.Fatal(err)
	}
	if method, _ := items.Get(tagMethod); len(method) != 1 || method[0] != methodRemovePairing {
		t.Error("wrong method in RemovePairing M1")
	}

	simpleOK := tlv.Encode(tlv.Items{{Tag: tagState, Value: []byte{m2}}})
	if err := ParseSimpleM2(simpleOK); err != nil {
		t.Fatal(err)
	}

	simpleErr := tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m2}},
		{Tag: tagError, Value: []byte{byte(ErrorMaxPeers)}},
	})
	if err := ParseSimpleM2(simpleErr); err == nil {
		t.Fatal("expected MaxPeers error")
	}
}
