package bytecursor

import (
	"bytes"
	"errors"
	"testing"
)

func TestReadLittleEndian(t *testing.T) {
	buf := []byte{0x78, 0x56, 0x34, 0x12, 0xAA, 0xBB, 0xCC, 0xDD}

	if v, err := U8(buf, 0); err != nil || v != 0x78 {
		t.Errorf("U8 = %#x, %v", v, err)
	}
	if v, err := U16(buf, 0); err != nil || v != 0x5678 {
		t.Errorf("U16 = %#x, %v", v, err)
	}
	if v, err := U32(buf, 0); err != nil || v != 0x12345678 {
		t.Errorf("U32 = %#x, %v", v, err)
	}
	if v, err := U64(buf, 0); err != nil || v != 0xDDCCBBAA12345678 {
		t.Errorf("U64 = %#x, %v", v, err)
	}
}

func TestReadOutOfBounds(t *testing.T) {
	buf := []byte{1, 2, 3}

	tests := []struct {
		name string
		err  error
	}{
		{"u8 past end", func() error { _, err := U8(buf, 3); return err }()},
		{"u16 straddling end", func() error { _, err := U16(buf, 2); return err }()},
		{"u32 short buffer", func() error { _, err := U32(buf, 0); return err }()},
		{"u64 short buffer", func() error { _, err := U64(buf, 0); return err }()},
		{"negative offset", func() error { _, err := U16(buf, -1); return err }()},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, ErrOutOfBounds) {
			t.Errorf("%s: err = %v, want ErrOutOfBounds", tt.name, tt.err)
		}
	}
}

func TestWriteRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	if err := PutU32(buf, 0, 0xCAFEBABE); err != nil {
		t.Fatal(err)
	}
	if v, _ := U32(buf, 0); v != 0xCAFEBABE {
		t.Errorf("PutU32 round trip = %#x", v)
	}
	if err := PutU16(buf, 4, 0x1234); err != nil {
		t.Fatal(err)
	}
	if v, _ := U16(buf, 4); v != 0x1234 {
		t.Errorf("PutU16 round trip = %#x", v)
	}
	if err := PutU64(buf, 2, 1); err == nil {
		t.Error("PutU64 past end should fail")
	}
}

func TestUleb128(t *testing.T) {
	tests := []struct {
		enc  []byte
		want uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7F}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xE5, 0x8E, 0x26}, 624485},
		{[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		off := 0
		got, err := Uleb128(tt.enc, &off)
		if err != nil {
			t.Errorf("Uleb128(%x): %v", tt.enc, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Uleb128(%x) = %d, want %d", tt.enc, got, tt.want)
		}
		if off != len(tt.enc) {
			t.Errorf("Uleb128(%x) advanced to %d, want %d", tt.enc, off, len(tt.enc))
		}
		if enc := AppendUleb128(nil, tt.want); !bytes.Equal(enc, tt.enc) {
			t.Errorf("AppendUleb128(%d) = %x, want %x", tt.want, enc, tt.enc)
		}
	}
}

func TestUleb128Rejects(t *testing.T) {
	off := 0
	if _, err := Uleb128([]byte{0x80, 0x80}, &off); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("truncated encoding: err = %v", err)
	}
	off = 0
	if _, err := Uleb128([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, &off); err == nil {
		t.Error("6-byte encoding should be rejected")
	}
}

func TestSleb128(t *testing.T) {
	for _, want := range []int32{0, 1, -1, 63, -64, 64, -65, 127, -128, 624485, -624485, 1<<31 - 1, -1 << 31} {
		enc := AppendSleb128(nil, want)
		off := 0
		got, err := Sleb128(enc, &off)
		if err != nil {
			t.Errorf("Sleb128(%d): %v", want, err)
			continue
		}
		if got != want || off != len(enc) {
			t.Errorf("Sleb128 round trip %d = %d (off %d of %d)", want, got, off, len(enc))
		}
	}
}
