// Package format provides the HAP UUID/type registry and the byte ⇄ value
// codecs for the documented characteristic formats (C2 in the design).
//
// The UUID tables here are a representative subset of the full HAP registry.
// Canonicalize, IsShortForm and ShortForm work for any HAP UUID, known or
// not; the name lookups (ServiceUUID, ServiceName, CharacteristicUUID,
// CharacteristicName) only know the entries in these tables.
package format

import (
	"fmt"
	"strings"
)

// BaseSuffix is appended to a left-padded short-form UUID to produce the
// canonical 128-bit HAP UUID.
const BaseSuffix = "0000-1000-8000-0026BB765291"

// Canonicalize normalizes u to the stored form: uppercase, dashed at
// 8-4-4-4-12. A short form (≤8 hex chars, no dashes) is expanded against
// BaseSuffix first. Comparison elsewhere in this package is always done on
// the canonical form.
func Canonicalize(u string) (string, error) {
	clean := strings.ToUpper(strings.ReplaceAll(u, "-", ""))
	for _, r := range clean {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return "", fmt.Errorf("format: %q is not a hex UUID", u)
		}
	}

	switch len(clean) {
	case 8:
		// already a full 32-bit hex group, just needs the suffix
	case 1, 2, 3, 4, 5, 6, 7:
		clean = strings.Repeat("0", 8-len(clean)) + clean
	case 32:
		return dashed(clean), nil
	default:
		return "", fmt.Errorf("format: %q has an unsupported UUID length", u)
	}

	return dashed(clean + strings.ReplaceAll(BaseSuffix, "-", "")), nil
}

func dashed(clean string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s", clean[0:8], clean[8:12], clean[12:16], clean[16:20], clean[20:32])
}

// IsShortForm reports whether the canonical form of u ends with BaseSuffix,
// i.e. it can be represented by its leading 8 hex characters alone.
func IsShortForm(u string) bool {
	canon, err := Canonicalize(u)
	if err != nil {
		return false
	}
	return strings.HasSuffix(canon, "-"+BaseSuffix)
}

// ShortForm returns the 8-hex-char short form of u, stripped of leading
// zeroes is NOT performed (HAP keeps the full 8 characters), or ok=false if
// u does not use the HAP base UUID.
func ShortForm(u string) (short string, ok bool) {
	canon, err := Canonicalize(u)
	if err != nil || !IsShortForm(canon) {
		return "", false
	}
	return canon[0:8], true
}

// uuidEntry is one bidirectional name ⇄ UUID mapping.
type uuidEntry struct {
	short string // 8-hex-char short form
	name  string
}

// Representative service UUID table (HAP-BLE/IP service types).
var serviceTable = []uuidEntry{
	{"0000003E", "AccessoryInformation"},
	{"00000040", "Fan"},
	{"00000041", "GarageDoorOpener"},
	{"00000043", "Lightbulb"},
	{"00000044", "LockManagement"},
	{"00000045", "LockMechanism"},
	{"00000047", "Outlet"},
	{"00000049", "Switch"},
	{"0000004A", "Thermostat"},
	{"0000005D", "AirQualitySensor"},
	{"00000055", "Pairing"},
	{"000000A2", "ProtocolInformation"},
	{"0000006C", "CameraRTPStreamManagement"},
	{"00000097", "ServiceLabel"},
	{"000000BA", "AccessCode"},
}

// Representative characteristic UUID table.
var characteristicTable = []uuidEntry{
	{"00000023", "Name"},
	{"00000025", "On"},
	{"00000020", "Manufacturer"},
	{"00000021", "Model"},
	{"00000030", "SerialNumber"},
	{"00000052", "FirmwareRevision"},
	{"00000014", "Identify"},
	{"000000B0", "Active"},
	{"00000010", "Brightness"},
	{"00000013", "Hue"},
	{"0000002F", "Saturation"},
	{"00000037", "Version"},
	{"00000011", "CurrentTemperature"},
	{"00000035", "TargetTemperature"},
	{"00000036", "TemperatureDisplayUnits"},
	{"00000073", "SecuritySystemCurrentState"},
	{"00000066", "SecuritySystemTargetState"},
	{"000000A6", "AccessoryFlags"},
	{"0000004C", "PairSetup"},
	{"0000004E", "PairVerify"},
	{"0000004F", "PairingFeatures"},
	{"00000050", "PairingPairings"},
	{"00000064", "ServiceSignature"},
}

// ServiceUUID resolves a service type name to its canonical UUID.
func ServiceUUID(name string) (string, bool) { return uuidFromName(serviceTable, name) }

// ServiceName resolves a service UUID to its type name.
func ServiceName(uuid string) (string, bool) { return nameFromUUID(serviceTable, uuid) }

// CharacteristicUUID resolves a characteristic type name to its canonical UUID.
func CharacteristicUUID(name string) (string, bool) { return uuidFromName(characteristicTable, name) }

// CharacteristicName resolves a characteristic UUID to its type name.
func CharacteristicName(uuid string) (string, bool) { return nameFromUUID(characteristicTable, uuid) }

func uuidFromName(table []uuidEntry, name string) (string, bool) {
	for _, e := range table {
		if e.name == name {
			canon, err := Canonicalize(e.short)
			return canon, err == nil
		}
	}
	return "", false
}

func nameFromUUID(table []uuidEntry, uuid string) (string, bool) {
	canon, err := Canonicalize(uuid)
	if err != nil {
		return "", false
	}
	for _, e := range table {
		entryCanon, err := Canonicalize(e.short)
		if err == nil && entryCanon == canon {
			return e.name, true
		}
	}
	return "", false
}

// ServiceInstanceIdUuid and CharacteristicInstanceIdUuid identify the GATT
// descriptors that carry a service's or characteristic's HAP iid; see
// spec.md §4.6 "Instance-ID discovery".
var (
	ServiceInstanceIdUuid        = mustCanon("E604E95D-A759-4817-87D3-AA005083A0D1")
	CharacteristicInstanceIdUuid = mustCanon("DC46F0FE-81D2-4616-B5D9-6ABDD796939A")
)

func mustCanon(u string) string {
	c, err := Canonicalize(u)
	if err != nil {
		panic(err)
	}
	return c
}
