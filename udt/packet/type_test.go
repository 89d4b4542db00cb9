package packet

import "testing"

func TestPackTypeRoundTripOneByte(t *testing.T) {
	for _, typ := range oneByteTypes {
		buf := make([]byte, 4)
		n, err := packType(typ, buf)
		if err != nil {
			t.Fatalf("packType(%v): %v", typ, err)
		}
		if n != 1 {
			t.Fatalf("packType(%v) wrote %d bytes, want 1", typ, n)
		}
		got, consumed, err := readType(buf)
		if err != nil {
			t.Fatalf("readType: %v", err)
		}
		if consumed != 1 || got != typ {
			t.Fatalf("readType round trip = (%v, %d), want (%v, 1)", got, consumed, typ)
		}
	}
}

func TestPackTypeRoundTripTwoByte(t *testing.T) {
	for _, typ := range []Type{TypeTimeoutNAK, TypeKeepalive, TypeHandshake} {
		buf := make([]byte, 4)
		n, err := packType(typ, buf)
		if err != nil {
			t.Fatalf("packType(%v): %v", typ, err)
		}
		if n != 2 {
			t.Fatalf("packType(%v) wrote %d bytes, want 2", typ, n)
		}
		got, consumed, err := readType(buf)
		if err != nil {
			t.Fatalf("readType: %v", err)
		}
		if consumed != 2 || got != typ {
			t.Fatalf("readType round trip = (%v, %d), want (%v, 2)", got, consumed, typ)
		}
	}
}

func TestPackTypeBufferTooSmall(t *testing.T) {
	if _, err := packType(TypeData, nil); err == nil {
		t.Fatal("expected error packing into empty buffer")
	}
	if _, err := packType(TypeTimeoutNAK, make([]byte, 1)); err == nil {
		t.Fatal("expected error packing two-byte type into 1-byte buffer")
	}
}
