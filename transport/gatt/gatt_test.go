package gatt

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/go-hap/controller/format"
	"github.com/go-hap/controller/tlv"
)

func TestPermTokensDecoding(t *testing.T) {
	p := format.Perm(0x0010 | 0x0020 | 0x0080)
	tokens := p.Tokens()
	want := map[string]bool{"pr": true, "pw": true, "ev": true}
	if len(tokens) != len(want) {
		t.Fatalf("got %v", tokens)
	}
	for _, tok := range tokens {
		if !want[tok] {
			t.Errorf("unexpected token %q", tok)
		}
	}
}

func TestPermTokensBothEventBitsYieldOneEv(t *testing.T) {
	p := format.Perm(0x0080 | 0x0100)
	tokens := p.Tokens()
	count := 0
	for _, tok := range tokens {
		if tok == "ev" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("got %d \"ev\" tokens, want 1", count)
	}
}

func TestPDUReassembly(t *testing.T) {
	body := make([]byte, 10)
	for i := range body {
		body[i] = byte(i)
	}
	first := append([]byte{0x00}, body[:5]...)
	cont := append([]byte{0x80}, body[5:]...)

	got := Reassemble([][]byte{first, cont})
	if len(got) == 0 || got[0] != 0x00 {
		t.Fatalf("control byte missing or wrong: %x", got)
	}
	for i, b := range got[1:] {
		if b != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, b, i)
		}
	}
}

func TestParseResponse(t *testing.T) {
	body := tlv.Encode(tlv.Items{{Tag: tagValue, Value: []byte{1}}})
	buf := []byte{0x00, 0x05, byte(format.StatusSuccess)}
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(len(body)))
	buf = append(buf, lenBytes...)
	buf = append(buf, body...)

	resp, err := ParseResponse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if resp.TransactionID != 0x05 || resp.Status != format.StatusSuccess {
		t.Fatalf("got %+v", resp)
	}
	value, err := decodeValueTLV(resp.Body, format.Bool)
	if err != nil {
		t.Fatal(err)
	}
	if value != true {
		t.Fatalf("got %v, want true", value)
	}
}

// fakePeripheral implements Peripheral entirely in memory, echoing
// Signature-Read requests with a fixed instance ID so DiscoverInstanceIDs
// can be exercised without a real BLE stack. Each WriteCharacteristic
// arms exactly one response on that characteristic; ReadCharacteristic
// returns it once and an empty read afterward, mirroring a real
// peripheral that has nothing left to deliver once its one PDU response
// has been drained.
type fakePeripheral struct {
	mu      sync.Mutex
	iid     uint16
	pending map[string]bool
}

func (f *fakePeripheral) WriteCharacteristic(ctx context.Context, uuid string, data []byte) error {
	f.mu.Lock()
	if f.pending == nil {
		f.pending = make(map[string]bool)
	}
	f.pending[uuid] = true
	f.mu.Unlock()
	return nil
}

func (f *fakePeripheral) ReadCharacteristic(ctx context.Context, uuid string) ([]byte, error) {
	f.mu.Lock()
	if !f.pending[uuid] {
		f.mu.Unlock()
		return nil, nil
	}
	f.pending[uuid] = false
	f.iid++
	iid := f.iid
	f.mu.Unlock()

	iidBytes := []byte{byte(iid), byte(iid >> 8)}
	body := tlv.Encode(tlv.Items{{Tag: 0x07, Value: iidBytes}})
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(len(body)))
	buf := []byte{0x00, 0x01, byte(format.StatusSuccess)}
	buf = append(buf, lenBytes...)
	buf = append(buf, body...)
	return buf, nil
}

func (f *fakePeripheral) Indications(uuid string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (f *fakePeripheral) DiscoverServices(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakePeripheral) DiscoverCharacteristics(ctx context.Context, serviceUUID string) ([]string, error) {
	return nil, nil
}

func TestDiscoverInstanceIDs(t *testing.T) {
	client := NewClient(&fakePeripheral{}, nil, nil, Config{})
	defer client.Close()

	services := map[string][]string{
		"svc-1": {"char-a", "char-b"},
	}
	if err := client.DiscoverInstanceIDs(context.Background(), services); err != nil {
		t.Fatal(err)
	}
	if _, ok := client.InstanceID("svc-1", "char-a"); !ok {
		t.Error("char-a not discovered")
	}
	if _, ok := client.InstanceID("svc-1", "char-b"); !ok {
		t.Error("char-b not discovered")
	}
}

func TestClientCloseStopsQueue(t *testing.T) {
	client := NewClient(&fakePeripheral{}, nil, nil, Config{})
	client.Close()

	done := make(chan struct{})
	go func() {
		client.exchange("char-a", format.Read, 1, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("exchange did not return after Close")
	}
}
