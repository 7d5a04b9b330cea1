package hap

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/go-hap/controller/format"
	"github.com/go-hap/controller/tlv"
	"github.com/go-hap/controller/transport/gatt"
)

// fakeGATTPeripheral answers GetAccessories' discovery walk with one
// Lightbulb service carrying a ServiceSignature characteristic plus "On"
// and "Brightness" value characteristics, entirely in memory.
type fakeGATTPeripheral struct {
	mu      sync.Mutex
	pending map[string]bool

	lightbulbUUID  string
	serviceSigUUID string
	onUUID         string
	brightnessUUID string
}

func newFakeGATTPeripheral() *fakeGATTPeripheral {
	lightbulb, _ := format.ServiceUUID("Lightbulb")
	serviceSig, _ := format.CharacteristicUUID("ServiceSignature")
	on, _ := format.CharacteristicUUID("On")
	brightness, _ := format.CharacteristicUUID("Brightness")
	return &fakeGATTPeripheral{
		pending:        make(map[string]bool),
		lightbulbUUID:  lightbulb,
		serviceSigUUID: serviceSig,
		onUUID:         on,
		brightnessUUID: brightness,
	}
}

func (f *fakeGATTPeripheral) DiscoverServices(ctx context.Context) ([]string, error) {
	return []string{f.lightbulbUUID}, nil
}

func (f *fakeGATTPeripheral) DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]string, error) {
	if serviceUUID != f.lightbulbUUID {
		return nil, nil
	}
	return []string{f.serviceSigUUID, f.onUUID, f.brightnessUUID}, nil
}

func (f *fakeGATTPeripheral) WriteCharacteristic(ctx context.Context, uuid string, data []byte) error {
	f.mu.Lock()
	f.pending[uuid] = true
	f.mu.Unlock()
	return nil
}

func (f *fakeGATTPeripheral) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	f.mu.Lock()
	armed := f.pending[uuid]
	f.pending[uuid] = false
	f.mu.Unlock()
	if !armed {
		return nil, nil
	}

	switch uuid {
	case f.serviceSigUUID:
		return pduResponse(tlv.Items{
			{Tag: 0x07, Value: []byte{0x02, 0x00}},
			{Tag: 0x01, Value: []byte{0x01, 0x00}}, // primary, not hidden
		}), nil
	case f.onUUID:
		return pduResponse(tlv.Items{
			{Tag: 0x07, Value: []byte{0x0A, 0x00}},
			{Tag: 0x0A, Value: []byte{0x30, 0x00}}, // pr|pw
		}), nil
	case f.brightnessUUID:
		presentation := []byte{0x04, 0x00, 0xAD, 0x27, 0x01, 0x00, 0x00}
		return pduResponse(tlv.Items{
			{Tag: 0x07, Value: []byte{0x0B, 0x00}},
			{Tag: 0x0A, Value: []byte{0x30, 0x00}},
			{Tag: 0x0C, Value: presentation},
			{Tag: 0x0E, Value: []byte{0x00, 0x64}}, // min 0, max 100
			{Tag: 0x0F, Value: []byte{0x01}},       // step 1
		}), nil
	default:
		return nil, nil
	}
}

func (f *fakeGATTPeripheral) Indications(uuid string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func pduResponse(items tlv.Items) []byte {
	body := tlv.Encode(items)
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(len(body)))
	buf := []byte{0x00, 0x01, byte(format.StatusSuccess)}
	buf = append(buf, lenBytes...)
	buf = append(buf, body...)
	return buf
}

func TestGATTClientGetAccessoriesReconstructsTree(t *testing.T) {
	peripheral := newFakeGATTPeripheral()
	client := NewGATTClient(peripheral, gatt.Config{})
	defer client.Close()

	accessories, err := client.GetAccessories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(accessories.Accessories) != 1 {
		t.Fatalf("got %d accessories, want 1", len(accessories.Accessories))
	}

	services := accessories.Accessories[0].Services
	if len(services) != 1 {
		t.Fatalf("got %d services, want 1", len(services))
	}
	svc := services[0]
	if svc.Type != "Lightbulb" || !svc.Primary || svc.Hidden {
		t.Fatalf("got %+v", svc)
	}
	if len(svc.Characteristics) != 2 {
		t.Fatalf("got %d characteristics, want 2", len(svc.Characteristics))
	}

	found := false
	for _, c := range svc.Characteristics {
		if c.Type != "Brightness" {
			continue
		}
		found = true
		if c.Format != format.UInt8 {
			t.Fatalf("Brightness format = %q, want %q", c.Format, format.UInt8)
		}
		if c.Unit != "percentage" {
			t.Fatalf("Brightness unit = %q, want percentage", c.Unit)
		}
		if c.MinValue == nil || *c.MinValue != 0 || c.MaxValue == nil || *c.MaxValue != 100 {
			t.Fatalf("Brightness range = %v/%v, want 0/100", c.MinValue, c.MaxValue)
		}
	}
	if !found {
		t.Fatal("Brightness characteristic not reconstructed")
	}
}
