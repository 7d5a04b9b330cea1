package gatt

import (
	"context"

	"github.com/go-hap/controller/format"
	"github.com/go-hap/controller/haperr"
	"github.com/go-hap/controller/tlv"
)

const tagValue = 0x01

// ReadValue issues a Read PDU against characteristicUUID (already
// discovered via DiscoverInstanceIDs) and decodes the TLV value according
// to declaredFormat (one of the format package's format name constants).
func (c *Client) ReadValue(serviceUUID, characteristicUUID, declaredFormat string) (any, error) {
	iid, ok := c.InstanceID(serviceUUID, characteristicUUID)
	if !ok {
		return nil, haperr.Proto("characteristic not discovered: "+characteristicUUID, nil)
	}

	resp, err := c.exchange(characteristicUUID, format.Read, iid, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status != format.StatusSuccess {
		return nil, haperr.Proto("GATT read: "+resp.Status.String(), nil)
	}
	return decodeValueTLV(resp.Body, declaredFormat)
}

// WriteValue issues a Write PDU carrying value encoded per declaredFormat.
func (c *Client) WriteValue(serviceUUID, characteristicUUID, declaredFormat string, value any) error {
	iid, ok := c.InstanceID(serviceUUID, characteristicUUID)
	if !ok {
		return haperr.Proto("characteristic not discovered: "+characteristicUUID, nil)
	}

	encoded, err := format.ValueToBuffer(value, declaredFormat)
	if err != nil {
		return err
	}
	body := tlv.Encode(tlv.Items{{Tag: tagValue, Value: encoded}})

	resp, err := c.exchange(characteristicUUID, format.Write, iid, body)
	if err != nil {
		return err
	}
	if resp.Status != format.StatusSuccess {
		return haperr.Proto("GATT write: "+resp.Status.String(), nil)
	}
	return nil
}

func decodeValueTLV(body []byte, declaredFormat string) (any, error) {
	items, err := tlv.Decode(body)
	if err != nil {
		return nil, haperr.Proto("decoding characteristic value TLV", err)
	}
	raw, ok := items.Get(tagValue)
	if !ok {
		return nil, haperr.Proto("read response missing Value tag", nil)
	}
	return format.BufferToValue(raw, declaredFormat)
}

// Subscribe enables indications on characteristicUUID and returns a channel
// of decoded values. A peripheral's indications for a HAP characteristic
// carry no payload — a zero-byte indication is just the doorbell; on each
// one, Subscribe issues a fresh Read and decodes it via declaredFormat
// before emitting, per spec.md §4.6.
func (c *Client) Subscribe(ctx context.Context, serviceUUID, characteristicUUID, declaredFormat string) (<-chan any, error) {
	if err := c.WriteValue(serviceUUID, characteristicUUID, format.Bool, true); err != nil {
		return nil, err
	}

	indications, err := c.peripheral.Indications(characteristicUUID)
	if err != nil {
		return nil, haperr.Transp("subscribing to GATT indications", err)
	}

	out := make(chan any, 4)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-indications:
				if !ok {
					return
				}
				value, err := c.ReadValue(serviceUUID, characteristicUUID, declaredFormat)
				if err != nil {
					continue
				}
				select {
				case out <- value:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Unsubscribe disables indications on characteristicUUID.
func (c *Client) Unsubscribe(serviceUUID, characteristicUUID string) error {
	return c.WriteValue(serviceUUID, characteristicUUID, format.Bool, false)
}
