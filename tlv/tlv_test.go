package tlv

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		items Items
	}{
		{"empty", nil},
		{"single", Items{{Tag: 1, Value: []byte("hello")}}},
		{"zero-length value", Items{{Tag: 6, Value: nil}}},
		{"two distinct tags", Items{
			{Tag: 1, Value: []byte{0x01}},
			{Tag: 3, Value: []byte{0x02, 0x03}},
		}},
		{"two distinct values same tag", Items{
			{Tag: 1, Value: []byte("first")},
			{Tag: 1, Value: []byte("second")},
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := Encode(c.items)
			got, err := Decode(buf)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != len(c.items) {
				t.Fatalf("got %d items, want %d: %v", len(got), len(c.items), got)
			}
			for i := range c.items {
				if got[i].Tag != c.items[i].Tag || !bytes.Equal(got[i].Value, c.items[i].Value) {
					t.Errorf("item %d: got %s, want tag=%02X value=%x", i, got[i], c.items[i].Tag, c.items[i].Value)
				}
			}
		})
	}
}

func TestSplitMerge600Bytes(t *testing.T) {
	value := make([]byte, 600)
	rand.New(rand.NewSource(1)).Read(value)

	buf := Encode(Items{{Tag: 9, Value: value}})

	// three chunks of 255, 255, 90
	wantLens := []int{255, 255, 90}
	i := 0
	for _, wl := range wantLens {
		if buf[i] != 9 {
			t.Fatalf("chunk tag = %d, want 9", buf[i])
		}
		if int(buf[i+1]) != wl {
			t.Fatalf("chunk length = %d, want %d", buf[i+1], wl)
		}
		i += 2 + wl
	}
	if i != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", i, len(buf))
	}

	items, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || !bytes.Equal(items[0].Value, value) {
		t.Fatalf("decoded %d items, or value mismatch", len(items))
	}
}

func TestSeparatorSemantics(t *testing.T) {
	v1 := []byte{0xAA}
	v2 := []byte{0xBB, 0xCC}

	buf := Encode(Items{{Tag: 7, Value: v1}, {Tag: 7, Value: v2}})
	want := []byte{7, 1, 0xAA, Separator, 0, 7, 2, 0xBB, 0xCC}
	if !bytes.Equal(buf, want) {
		t.Fatalf("encode = %x, want %x", buf, want)
	}

	// a buffer without the separator concatenates into a single value
	noSep := []byte{7, 1, 0xAA, 7, 2, 0xBB, 0xCC}
	items, err := Decode(noSep)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 (concatenated)", len(items))
	}
	want2 := append(append([]byte{}, v1...), v2...)
	if !bytes.Equal(items[0].Value, want2) {
		t.Fatalf("concatenated value = %x, want %x", items[0].Value, want2)
	}
}

func TestGetAll(t *testing.T) {
	items := Items{
		{Tag: 1, Value: []byte("a")},
		{Tag: 2, Value: []byte("b")},
		{Tag: 1, Value: []byte("c")},
	}
	all := items.GetAll(1)
	if len(all) != 2 || string(all[0]) != "a" || string(all[1]) != "c" {
		t.Fatalf("GetAll(1) = %v", all)
	}
	if _, ok := items.Get(9); ok {
		t.Fatal("Get(9) should be absent")
	}
}
