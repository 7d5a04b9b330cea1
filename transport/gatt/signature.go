package gatt

import (
	"context"
	"encoding/binary"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/go-hap/controller/format"
	"github.com/go-hap/controller/haperr"
	"github.com/go-hap/controller/tlv"
)

// TLV item tags carried in a Signature-Read/Service-Signature-Read response
// body, beyond the instance-ID tag DiscoverInstanceIDs already decodes
// (spec.md §4.6's "fetches per-characteristic signatures to populate
// perms/format/range/step/unit/valid-values/description").
const (
	tagInstanceID = 0x07

	tagCharacteristicProperties = 0x0A
	tagGATTPresentationFormat   = 0x0C
	tagGATTUserDescription      = 0x0D
	tagGATTValidRange           = 0x0E
	tagGATTStepValue            = 0x0F

	tagServiceProperties = 0x01
	tagLinkedServices    = 0x02
)

// CharacteristicSignature is a per-characteristic Signature-Read response,
// decoded into the fields getAccessories() needs to populate a
// model.Characteristic.
type CharacteristicSignature struct {
	InstanceID  uint16
	Perms       format.Perm
	Format      string
	Unit        string
	Description string
	MinValue    *float64
	MaxValue    *float64
	MinStep     *float64
}

// ServiceSignature is a Service-Signature-Read response, decoded into the
// fields getAccessories() needs for a model.Service's primary/hidden flags
// and linked services.
type ServiceSignature struct {
	InstanceID     uint16
	Primary        bool
	Hidden         bool
	LinkedServices []uint16
}

// ReadServiceSignature issues a Service-Signature-Read PDU against a
// service's ServiceSignature characteristic.
func (c *Client) ReadServiceSignature(serviceSignatureCharacteristicUUID string) (ServiceSignature, error) {
	resp, err := c.exchange(serviceSignatureCharacteristicUUID, format.ServiceSignatureRead, 0, nil)
	if err != nil {
		return ServiceSignature{}, err
	}
	if resp.Status != format.StatusSuccess {
		return ServiceSignature{}, haperr.Proto("service signature-read: "+resp.Status.String(), nil)
	}
	return parseServiceSignature(resp.Body)
}

// DiscoverCharacteristicSignatures fans a Signature-Read out across
// characteristicUUIDs the same bounded way DiscoverInstanceIDs does,
// decoding each response's permissions, presentation format, valid range,
// step, unit, and description rather than just its instance-ID tag.
func (c *Client) DiscoverCharacteristicSignatures(ctx context.Context, characteristicUUIDs []string) (map[string]CharacteristicSignature, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.DiscoveryConcurrency)

	type found struct {
		uuid string
		sig  CharacteristicSignature
	}
	results := make(chan found, len(characteristicUUIDs))

	for _, uuid := range characteristicUUIDs {
		uuid := uuid
		g.Go(func() error {
			resp, err := c.exchange(uuid, format.SignatureRead, 0, nil)
			if err != nil {
				return err
			}
			if resp.Status != format.StatusSuccess {
				return haperr.Proto(fmt.Sprintf("signature-read on %s: %s", uuid, resp.Status), nil)
			}
			sig, err := parseCharacteristicSignature(resp.Body)
			if err != nil {
				return err
			}
			select {
			case results <- found{uuid, sig}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(results)
	}()

	out := make(map[string]CharacteristicSignature)
	for r := range results {
		out[r.uuid] = r.sig
	}
	return out, g.Wait()
}

func parseServiceSignature(body []byte) (ServiceSignature, error) {
	items, err := tlv.Decode(body)
	if err != nil {
		return ServiceSignature{}, haperr.Proto("decoding service signature TLV", err)
	}

	value, ok := items.Get(tagInstanceID)
	if !ok || len(value) != 2 {
		return ServiceSignature{}, haperr.Proto("service signature missing instance-ID tag", nil)
	}
	sig := ServiceSignature{InstanceID: uint16(value[0]) | uint16(value[1])<<8}

	if value, ok := items.Get(tagServiceProperties); ok && len(value) == 2 {
		props := uint16(value[0]) | uint16(value[1])<<8
		sig.Primary = props&0x01 != 0
		sig.Hidden = props&0x02 != 0
	}
	for _, value := range items.GetAll(tagLinkedServices) {
		if len(value) == 2 {
			sig.LinkedServices = append(sig.LinkedServices, uint16(value[0])|uint16(value[1])<<8)
		}
	}
	return sig, nil
}

func parseCharacteristicSignature(body []byte) (CharacteristicSignature, error) {
	items, err := tlv.Decode(body)
	if err != nil {
		return CharacteristicSignature{}, haperr.Proto("decoding characteristic signature TLV", err)
	}

	value, ok := items.Get(tagInstanceID)
	if !ok || len(value) != 2 {
		return CharacteristicSignature{}, haperr.Proto("characteristic signature missing instance-ID tag", nil)
	}
	sig := CharacteristicSignature{InstanceID: uint16(value[0]) | uint16(value[1])<<8}

	if value, ok := items.Get(tagCharacteristicProperties); ok && len(value) == 2 {
		sig.Perms = format.Perm(uint16(value[0]) | uint16(value[1])<<8)
	}

	if value, ok := items.Get(tagGATTPresentationFormat); ok && len(value) >= 4 {
		sig.Format = format.BTSIGFormatToHAP[value[0]]
		if unit, ok := format.BTSIGUnitToHAP[binary.LittleEndian.Uint16(value[2:4])]; ok {
			sig.Unit = unit
		}
	}
	if sig.Format == "" {
		// no presentation-format descriptor: fall back to an opaque blob
		// rather than guessing a numeric width.
		sig.Format = format.Data
	}

	if value, ok := items.Get(tagGATTUserDescription); ok {
		sig.Description = string(value)
	}

	if width := wireWidth(sig.Format); width > 0 {
		if value, ok := items.Get(tagGATTValidRange); ok && len(value) >= 2*width {
			if f, ok := decodeFloatValue(value[:width], sig.Format); ok {
				sig.MinValue = f
			}
			if f, ok := decodeFloatValue(value[width:2*width], sig.Format); ok {
				sig.MaxValue = f
			}
		}
		if value, ok := items.Get(tagGATTStepValue); ok && len(value) >= width {
			if f, ok := decodeFloatValue(value[:width], sig.Format); ok {
				sig.MinStep = f
			}
		}
	}

	return sig, nil
}

// wireWidth is the BLE wire byte width of a numeric HAP format, or 0 for
// formats a valid-range/step-value descriptor doesn't apply to.
func wireWidth(f string) int {
	switch f {
	case format.Bool, format.UInt8:
		return 1
	case format.UInt16:
		return 2
	case format.UInt32, format.Int, format.Float:
		return 4
	default:
		return 0
	}
}

func decodeFloatValue(buf []byte, f string) (*float64, bool) {
	value, err := format.BufferToValue(buf, f)
	if err != nil {
		return nil, false
	}
	var out float64
	switch v := value.(type) {
	case uint8:
		out = float64(v)
	case uint16:
		out = float64(v)
	case uint32:
		out = float64(v)
	case int32:
		out = float64(v)
	case float64:
		out = v
	default:
		return nil, false
	}
	return &out, true
}
