package hap

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/go-hap/controller/format"
	"github.com/go-hap/controller/haperr"
	"github.com/go-hap/controller/model"
	"github.com/go-hap/controller/pairing"
	"github.com/go-hap/controller/transport/gatt"
)

// GATTClient is a HAP-over-GATT session with one accessory, layering
// pairing on top of a gatt.Client's unauthenticated Pairing Service
// characteristics.
type GATTClient struct {
	gattClient *gatt.Client
	identity   *pairing.Identity

	resumeSessionID    []byte
	resumeSharedSecret []byte
}

// pairingServiceUUID and its characteristic UUIDs are the well-known
// Pairing Service the accessory exposes before any session keys exist
// (spec.md §4.6's "pair-setup and pair-verify ride the Pairing Service's
// own characteristics").
const (
	pairingServiceUUID            = "00000055-0000-1000-8000-0026BB765291"
	pairSetupCharacteristicUUID   = "0000004C-0000-1000-8000-0026BB765291"
	pairVerifyCharacteristicUUID  = "0000004E-0000-1000-8000-0026BB765291"
	pairingFeaturesCharacteristic = "0000004F-0000-1000-8000-0026BB765291"
	pairingPairingsCharacteristic = "00000050-0000-1000-8000-0026BB765291"
)

// NewGATTClient wraps an already-connected Peripheral. Call
// DiscoverPairingService before PairSetup/PairVerify.
func NewGATTClient(peripheral gatt.Peripheral, config gatt.Config) *GATTClient {
	return &GATTClient{gattClient: gatt.NewClient(peripheral, nil, nil, config)}
}

// Close stops the underlying gatt.Client's operation queue.
func (c *GATTClient) Close() { c.gattClient.Close() }

// Identity returns the pairing identity set by the last successful
// PairSetup, PairVerify or PairResume, or nil.
func (c *GATTClient) Identity() *pairing.Identity {
	if c.identity == nil {
		return nil
	}
	return c.identity.Clone()
}

// DiscoverPairingService resolves the Pairing Service's characteristic
// instance IDs, a prerequisite for PairSetup/PairVerify/AddPairing/
// RemovePairing/ListPairings.
func (c *GATTClient) DiscoverPairingService(ctx context.Context) error {
	services := map[string][]string{
		pairingServiceUUID: {
			pairSetupCharacteristicUUID,
			pairVerifyCharacteristicUUID,
			pairingFeaturesCharacteristic,
			pairingPairingsCharacteristic,
		},
	}
	return asTaxonomy(c.gattClient.DiscoverInstanceIDs(ctx, services))
}

func (c *GATTClient) roundTrip(characteristicUUID string, tlvReq []byte) ([]byte, error) {
	if err := c.gattClient.WriteValue(pairingServiceUUID, characteristicUUID, format.Data, tlvReq); err != nil {
		return nil, asTaxonomy(err)
	}
	value, err := c.gattClient.ReadValue(pairingServiceUUID, characteristicUUID, format.Data)
	if err != nil {
		return nil, asTaxonomy(err)
	}
	buf, _ := value.([]byte)
	return buf, nil
}

// PairSetup runs the M1-M6 Pair-Setup ceremony over the Pairing Service's
// Pair Setup characteristic.
func (c *GATTClient) PairSetup(pin string) (*pairing.Identity, error) {
	client, err := pairing.NewSetupClient(pin)
	if err != nil {
		return nil, asTaxonomy(err)
	}

	m2, err := c.roundTrip(pairSetupCharacteristicUUID, client.BuildM1())
	if err != nil {
		return nil, err
	}
	if err := client.ParseM2(m2); err != nil {
		return nil, asTaxonomy(err)
	}

	m3, err := client.BuildM3()
	if err != nil {
		return nil, asTaxonomy(err)
	}
	m4, err := c.roundTrip(pairSetupCharacteristicUUID, m3)
	if err != nil {
		return nil, err
	}
	if err := client.ParseM4(m4); err != nil {
		return nil, asTaxonomy(err)
	}

	m5, err := client.BuildM5()
	if err != nil {
		return nil, asTaxonomy(err)
	}
	m6, err := c.roundTrip(pairSetupCharacteristicUUID, m5)
	if err != nil {
		return nil, err
	}
	if err := client.ParseM6(m6); err != nil {
		return nil, asTaxonomy(err)
	}

	c.identity = client.Result
	return c.identity.Clone(), nil
}

// PairVerify runs the M1-M4 Pair-Verify ceremony and installs the
// resulting session keys on the underlying gatt.Client.
func (c *GATTClient) PairVerify(identity *pairing.Identity) error {
	client := pairing.NewVerifyClient(identity)

	m1, err := client.BuildM1()
	if err != nil {
		return asTaxonomy(err)
	}
	m2, err := c.roundTrip(pairVerifyCharacteristicUUID, m1)
	if err != nil {
		return err
	}
	if err := client.ParseM2(m2); err != nil {
		return asTaxonomy(err)
	}

	m3, err := client.BuildM3()
	if err != nil {
		return asTaxonomy(err)
	}
	m4, err := c.roundTrip(pairVerifyCharacteristicUUID, m3)
	if err != nil {
		return err
	}
	if err := client.ParseM4(m4); err != nil {
		return asTaxonomy(err)
	}

	c.identity = identity
	c.resumeSessionID = client.SessionID()
	c.resumeSharedSecret = client.SharedSecret()
	c.gattClient.SetSession(client.ControllerToAccessoryKey, client.AccessoryToControllerKey)
	return nil
}

// ResumeCredentials returns the session ID and shared secret cached from the
// most recent full Pair-Verify (a PairVerify call, or a PairResume that fell
// back to one; a successful resume leaves them unchanged), for a caller that
// wants to persist them
// and attempt PairResume on its next connection to the same accessory.
func (c *GATTClient) ResumeCredentials() (sessionID, sharedSecret []byte) {
	return c.resumeSessionID, c.resumeSharedSecret
}

// PairResume attempts the fast two-message Pair-Resume re-handshake,
// falling back to a full Pair-Verify if the accessory declines, per
// spec.md §4.3 (see HTTPClient.PairResume for the shared ceremony shape).
func (c *GATTClient) PairResume(identity *pairing.Identity, sessionID, cachedSharedSecret []byte) error {
	client := pairing.NewResumeClient(identity, sessionID, cachedSharedSecret)

	m1, err := client.BuildM1()
	if err != nil {
		return asTaxonomy(err)
	}
	m2, err := c.roundTrip(pairVerifyCharacteristicUUID, m1)
	if err != nil {
		return err
	}
	if err := client.ParseM2(m2); err != nil {
		return asTaxonomy(err)
	}

	if client.Resumed {
		c.identity = identity
		c.gattClient.SetSession(client.ControllerToAccessoryKey, client.AccessoryToControllerKey)
		return nil
	}

	verify := client.Verify()
	m3, err := verify.BuildM3()
	if err != nil {
		return asTaxonomy(err)
	}
	m4, err := c.roundTrip(pairVerifyCharacteristicUUID, m3)
	if err != nil {
		return err
	}
	if err := verify.ParseM4(m4); err != nil {
		return asTaxonomy(err)
	}

	c.identity = identity
	c.resumeSessionID = verify.SessionID()
	c.resumeSharedSecret = verify.SharedSecret()
	c.gattClient.SetSession(verify.ControllerToAccessoryKey, verify.AccessoryToControllerKey)
	return nil
}

// AddPairing registers a second controller's long-term public key with the
// accessory over the Pairing Service.
func (c *GATTClient) AddPairing(identifier string, ltpk []byte, perm pairing.Permission) error {
	m2, err := c.roundTrip(pairingPairingsCharacteristic, pairing.BuildAddPairing(identifier, ltpk, perm))
	if err != nil {
		return err
	}
	return asTaxonomy(pairing.ParseSimpleM2(m2))
}

// RemovePairing revokes a controller's pairing.
func (c *GATTClient) RemovePairing(identifier string) error {
	m2, err := c.roundTrip(pairingPairingsCharacteristic, pairing.BuildRemovePairing(identifier))
	if err != nil {
		return err
	}
	return asTaxonomy(pairing.ParseSimpleM2(m2))
}

// ListPairings returns every controller currently paired with the
// accessory.
func (c *GATTClient) ListPairings() ([]pairing.PairingEntry, error) {
	m2, err := c.roundTrip(pairingPairingsCharacteristic, pairing.BuildListPairings())
	if err != nil {
		return nil, err
	}
	entries, err := pairing.ParseListPairingsM2(m2)
	return entries, asTaxonomy(err)
}

// ReadCharacteristic reads and decodes a characteristic previously
// discovered via DiscoverInstanceIDs on the underlying gatt.Client.
func (c *GATTClient) ReadCharacteristic(serviceUUID, characteristicUUID, declaredFormat string) (any, error) {
	value, err := c.gattClient.ReadValue(serviceUUID, characteristicUUID, declaredFormat)
	return value, asTaxonomy(err)
}

// WriteCharacteristic writes a characteristic value.
func (c *GATTClient) WriteCharacteristic(serviceUUID, characteristicUUID, declaredFormat string, value any) error {
	return asTaxonomy(c.gattClient.WriteValue(serviceUUID, characteristicUUID, declaredFormat, value))
}

// Subscribe enables indications on a characteristic and returns a channel
// of decoded values (spec.md §4.6).
func (c *GATTClient) Subscribe(ctx context.Context, serviceUUID, characteristicUUID, declaredFormat string) (<-chan any, error) {
	out, err := c.gattClient.Subscribe(ctx, serviceUUID, characteristicUUID, declaredFormat)
	return out, asTaxonomy(err)
}

// Unsubscribe disables indications on a characteristic.
func (c *GATTClient) Unsubscribe(serviceUUID, characteristicUUID string) error {
	return asTaxonomy(c.gattClient.Unsubscribe(serviceUUID, characteristicUUID))
}

// GetAccessories reconstructs the full attribute database from GATT
// discovery alone, per spec.md §4.6: it walks the peripheral's services,
// skipping the Pairing and Protocol-Information services (their
// characteristics are addressed directly by well-known UUID elsewhere, not
// through this reconstructed tree), reads each remaining service's
// instance ID and primary/hidden flags off its Service-Signature
// characteristic, and fetches a per-characteristic Signature-Read for
// everything else to populate perms/format/range/step/unit/description. A
// GATT peripheral is modeled as a single accessory (aid 1); HAP-BLE has no
// analogue of the HTTP bridge's multi-aid tree.
func (c *GATTClient) GetAccessories(ctx context.Context) (*model.Accessories, error) {
	serviceUUIDs, err := c.gattClient.DiscoverServices(ctx)
	if err != nil {
		return nil, asTaxonomy(err)
	}

	var services []model.Service
	for _, serviceUUID := range serviceUUIDs {
		name, _ := format.ServiceName(serviceUUID)
		if name == "Pairing" || name == "ProtocolInformation" {
			continue
		}

		svc, err := c.discoverService(ctx, serviceUUID, name)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}

	return &model.Accessories{Accessories: []model.Accessory{{AID: 1, Services: services}}}, nil
}

func (c *GATTClient) discoverService(ctx context.Context, serviceUUID, serviceName string) (model.Service, error) {
	characteristicUUIDs, err := c.gattClient.DiscoverCharacteristics(ctx, serviceUUID)
	if err != nil {
		return model.Service{}, asTaxonomy(err)
	}

	signatureUUID, valueUUIDs := splitServiceSignature(characteristicUUIDs)
	if signatureUUID == "" {
		return model.Service{}, asTaxonomy(haperr.Proto("service has no ServiceSignature characteristic: "+serviceUUID, nil))
	}

	serviceSig, err := c.gattClient.ReadServiceSignature(signatureUUID)
	if err != nil {
		return model.Service{}, asTaxonomy(err)
	}

	signatures, err := c.gattClient.DiscoverCharacteristicSignatures(ctx, valueUUIDs)
	if err != nil {
		return model.Service{}, asTaxonomy(err)
	}

	svc := model.Service{
		IID:     uint64(serviceSig.InstanceID),
		Type:    serviceName,
		Primary: serviceSig.Primary,
		Hidden:  serviceSig.Hidden,
	}
	for _, iid := range serviceSig.LinkedServices {
		svc.LinkedServices = append(svc.LinkedServices, uint64(iid))
	}

	for _, characteristicUUID := range valueUUIDs {
		sig, ok := signatures[characteristicUUID]
		if !ok {
			continue
		}
		charName, _ := format.CharacteristicName(characteristicUUID)
		svc.Characteristics = append(svc.Characteristics, model.Characteristic{
			IID:         uint64(sig.InstanceID),
			Type:        charName,
			Perms:       sig.Perms.Tokens(),
			Format:      sig.Format,
			Unit:        sig.Unit,
			Description: sig.Description,
			MinValue:    sig.MinValue,
			MaxValue:    sig.MaxValue,
			MinStep:     sig.MinStep,
		})
	}

	return svc, nil
}

// splitServiceSignature pulls the well-known ServiceSignature
// characteristic out of a service's characteristic list, since its
// Service-Signature-Read response is decoded separately from the rest.
func splitServiceSignature(characteristicUUIDs []string) (signatureUUID string, valueUUIDs []string) {
	for _, uuid := range characteristicUUIDs {
		if name, ok := format.CharacteristicName(uuid); ok && name == "ServiceSignature" {
			signatureUUID = uuid
			continue
		}
		valueUUIDs = append(valueUUIDs, uuid)
	}
	return signatureUUID, valueUUIDs
}

// CharacteristicRef addresses one characteristic for GetCharacteristics,
// using the identifiers and declared format a prior GetAccessories call
// already discovered.
type CharacteristicRef struct {
	IID                uint64
	ServiceUUID        string
	CharacteristicUUID string
	Type               string
	Format             string
}

// GetCharacteristics reads the current value of each given characteristic,
// fanning the reads out the same bounded way DiscoverInstanceIDs fans out
// Signature-Reads.
func (c *GATTClient) GetCharacteristics(refs []CharacteristicRef) ([]model.Characteristic, error) {
	g := new(errgroup.Group)
	g.SetLimit(4)

	out := make([]model.Characteristic, len(refs))
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			value, err := c.gattClient.ReadValue(ref.ServiceUUID, ref.CharacteristicUUID, ref.Format)
			if err != nil {
				return asTaxonomy(err)
			}
			out[i] = model.Characteristic{IID: ref.IID, Type: ref.Type, Format: ref.Format, Value: value}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
