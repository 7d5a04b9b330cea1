package pairing

import (
	"github.com/go-hap/controller/haperr"
	"github.com/go-hap/controller/tlv"
)

// BuildAddPairing emits an AddPairing M1 request, wrapped by the caller
// inside an already-verified session.
func BuildAddPairing(identifier string, ltpk []byte, perm Permission) []byte {
	return tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m1}},
		{Tag: tagMethod, Value: []byte{methodAddPairing}},
		{Tag: tagIdentifier, Value: []byte(identifier)},
		{Tag: tagPublicKey, Value: ltpk},
		{Tag: tagPermissions, Value: []byte{byte(perm)}},
	})
}

// BuildRemovePairing emits a RemovePairing M1 request.
func BuildRemovePairing(identifier string) []byte {
	return tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m1}},
		{Tag: tagMethod, Value: []byte{methodRemovePairing}},
		{Tag: tagIdentifier, Value: []byte(identifier)},
	})
}

// BuildListPairings emits a ListPairings M1 request.
func BuildListPairings() []byte {
	return tlv.Encode(tlv.Items{
		{Tag: tagState, Value: []byte{m1}},
		{Tag: tagMethod, Value: []byte{methodListPairings}},
	})
}

// ParseSimpleM2 checks the generic two-message {State=2[, Error]} shape
// shared by the AddPairing and RemovePairing responses.
func ParseSimpleM2(buf []byte) error {
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
	return nil
}

// PairingEntry is one controller entry of a ListPairings response.
type PairingEntry struct {
	Identifier  string
	PublicKey   []byte
	Permissions Permission
}

// ParseListPairingsM2 decodes the repeated {Identifier, PublicKey,
// Permissions} tuples of a ListPairings response. The wire shape is not
// restated in spec.md §4.3 beyond naming the operation; this is the
// standard HAP encoding, supplied here to complete the facade.
func ParseListPairingsM2(buf []byte) ([]PairingEntry, error) {
	items, err := tlv.Decode(buf)
	if err != nil {
		return nil, haperr.Proto("decoding ListPairings M2", err)
	}
	if errVal, ok := items.Get(tagError); ok {
		return nil, pairingErrorTLV(errVal)
	}
	state, ok := items.Get(tagState)
	if !ok || len(state) != 1 || state[0] != m2 {
		return nil, haperr.Proto("ListPairings M2: missing or wrong State tag", nil)
	}

	var entries []PairingEntry
	var current *PairingEntry
	for _, item := range items {
		switch item.Tag {
		case tagIdentifier:
			entries = append(entries, PairingEntry{Identifier: string(item.Value)})
			current = &entries[len(entries)-1]
		case tagPublicKey:
			if current != nil {
				current.PublicKey = append([]byte(nil), item.Value...)
			}
		case tagPermissions:
			if current != nil && len(item.Value) == 1 {
				current.Permissions = Permission(item.Value[0])
			}
		}
	}
	return entries, nil
}
