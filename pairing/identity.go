package pairing

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Identity is the persistent pairing identity bundle of spec.md §3, created
// by a successful Pair-Setup and otherwise immutable until the caller
// explicitly re-pairs.
type Identity struct {
	AccessoryPairingID string // UTF-8 text, unique per accessory
	AccessoryLTPK      []byte // Ed25519 public key, 32 bytes

	ControllerPairingID string // UUIDv4 text, 36 bytes
	ControllerLTSK       []byte // Ed25519 secret key, 64 bytes
	ControllerLTPK       []byte // Ed25519 public key, 32 bytes
}

// Destroy zeroizes the controller's long-term secret key in place. Callers
// should invoke this once an Identity is no longer needed (spec.md §5
// "Memory").
func (id *Identity) Destroy() {
	for i := range id.ControllerLTSK {
		id.ControllerLTSK[i] = 0
	}
}

// Clone returns a deep copy — the pairing engine always hands out copies of
// its identity, never a shared reference (spec.md §5 "Shared resources").
func (id *Identity) Clone() *Identity {
	clone := &Identity{
		AccessoryPairingID:   id.AccessoryPairingID,
		ControllerPairingID:  id.ControllerPairingID,
		AccessoryLTPK:        append([]byte(nil), id.AccessoryLTPK...),
		ControllerLTSK:       append([]byte(nil), id.ControllerLTSK...),
		ControllerLTPK:       append([]byte(nil), id.ControllerLTPK...),
	}
	return clone
}

// identityJSON is the hex-encoded wire/at-rest shape of Identity (spec.md
// §6 "Pairing identity export/import").
type identityJSON struct {
	AccessoryPairingID  string `json:"accessory_pairing_id"`
	AccessoryLTPK       string `json:"accessory_ltpk"`
	IOSDevicePairingID  string `json:"ios_device_pairing_id"`
	IOSDeviceLTSK       string `json:"ios_device_ltsk"`
	IOSDeviceLTPK       string `json:"ios_device_ltpk"`
}

// MarshalJSON encodes Identity as five hex-encoded fields.
func (id Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(identityJSON{
		AccessoryPairingID: id.AccessoryPairingID,
		AccessoryLTPK:      hex.EncodeToString(id.AccessoryLTPK),
		IOSDevicePairingID: id.ControllerPairingID,
		IOSDeviceLTSK:      hex.EncodeToString(id.ControllerLTSK),
		IOSDeviceLTPK:      hex.EncodeToString(id.ControllerLTPK),
	})
}

// UnmarshalJSON decodes the five hex-encoded fields produced by MarshalJSON.
func (id *Identity) UnmarshalJSON(buf []byte) error {
	var raw identityJSON
	if err := json.Unmarshal(buf, &raw); err != nil {
		return err
	}

	ltpk, err := hex.DecodeString(raw.AccessoryLTPK)
	if err != nil {
		return fmt.Errorf("pairing: accessory_ltpk: %w", err)
	}
	ltsk, err := hex.DecodeString(raw.IOSDeviceLTSK)
	if err != nil {
		return fmt.Errorf("pairing: ios_device_ltsk: %w", err)
	}
	ctrlPub, err := hex.DecodeString(raw.IOSDeviceLTPK)
	if err != nil {
		return fmt.Errorf("pairing: ios_device_ltpk: %w", err)
	}

	id.AccessoryPairingID = raw.AccessoryPairingID
	id.AccessoryLTPK = ltpk
	id.ControllerPairingID = raw.IOSDevicePairingID
	id.ControllerLTSK = ltsk
	id.ControllerLTPK = ctrlPub
	return nil
}

// newControllerKeyPair generates a fresh Ed25519 long-term identity from 32
// random seed bytes, as used by Pair-Setup M5 (spec.md §4.3).
func newControllerKeyPair() (pub, priv []byte, err error) {
	pub, priv, err = ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}
