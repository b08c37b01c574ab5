package scp

import (
	"bytes"
	"testing"
)

func TestPackHeaderLayout(t *testing.T) {
	buf := make([]byte, PacketSize(MaxArgs, 32))
	n := Pack(buf, 32, 0x0102, 3, 0x8081, 0xA0A1, 3,
		0x11121314, 0x21222324, 0x31323334, []byte("hi"))

	want := []byte{
		0x87, 0xFF, 0x03, 0xFF, // flags, tag, dest_port_cpu, srce_port_cpu
		0x02, 0x01, // dest_addr
		0x00, 0x00, // srce_addr
		0x81, 0x80, // cmd_rc
		0xA1, 0xA0, // seq_num
		0x14, 0x13, 0x12, 0x11,
		0x24, 0x23, 0x22, 0x21,
		0x34, 0x33, 0x32, 0x31,
		'h', 'i',
	}
	if n != len(want) {
		t.Fatalf("Pack length = %d, want %d", n, len(want))
	}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("packed bytes = % x, want % x", buf[:n], want)
	}
}

func TestPackArgSlotsReusedForPayload(t *testing.T) {
	buf := make([]byte, PacketSize(MaxArgs, 32))

	// With no arguments the payload starts immediately after the sequence
	// number.
	n := Pack(buf, 32, 0, 0, 0, 7, 0, 0, 0, 0, []byte{0xAA, 0xBB})
	if n != PacketSize(0, 2) {
		t.Fatalf("Pack length = %d, want %d", n, PacketSize(0, 2))
	}
	if buf[12] != 0xAA || buf[13] != 0xBB {
		t.Errorf("payload not at arg offset: % x", buf[12:14])
	}
}

func TestPackTruncatesPayload(t *testing.T) {
	buf := make([]byte, PacketSize(MaxArgs, 8))
	payload := []byte("0123456789abcdef")

	n := Pack(buf, 8, 0, 0, 0, 0, 0, 0, 0, 0, payload)
	if n != PacketSize(0, 8) {
		t.Errorf("Pack length = %d, want %d", n, PacketSize(0, 8))
	}
	if !bytes.Equal(buf[12:n], payload[:8]) {
		t.Errorf("payload = %q, want %q", buf[12:n], payload[:8])
	}
}

func TestRoundTrip(t *testing.T) {
	for nArgs := 0; nArgs <= MaxArgs; nArgs++ {
		buf := make([]byte, PacketSize(MaxArgs, 32))
		payload := []byte("Hello, world!")
		n := Pack(buf, 32, 0x0101, 1, 0x0080, 0xBEEF, nArgs,
			0x11121314, 0x21222324, 0x31323334, payload)

		if got := SeqNum(buf[:n]); got != 0xBEEF {
			t.Errorf("nArgs=%d: SeqNum = %#x, want 0xBEEF", nArgs, got)
		}

		cmdRC, seq, gotArgs, a1, a2, a3, data := Unpack(buf[:n], nArgs)
		if cmdRC != 0x0080 || seq != 0xBEEF {
			t.Errorf("nArgs=%d: cmdRC=%#x seq=%#x", nArgs, cmdRC, seq)
		}
		if gotArgs != nArgs {
			t.Errorf("nArgs=%d: gotArgs = %d", nArgs, gotArgs)
		}
		wantArgs := []uint32{0x11121314, 0x21222324, 0x31323334}
		gotVals := []uint32{a1, a2, a3}
		for i := 0; i < gotArgs; i++ {
			if gotVals[i] != wantArgs[i] {
				t.Errorf("nArgs=%d: arg%d = %#x, want %#x", nArgs, i+1, gotVals[i], wantArgs[i])
			}
		}
		if !bytes.Equal(data, payload) {
			t.Errorf("nArgs=%d: payload = %q, want %q", nArgs, data, payload)
		}
	}
}

func TestUnpackClampsArgs(t *testing.T) {
	// A packet with one argument and no payload: asking for three arguments
	// must clamp to one.
	buf := make([]byte, PacketSize(MaxArgs, 0))
	n := Pack(buf, 0, 0, 0, 0, 1, 1, 0xCAFEBABE, 0, 0, nil)

	_, _, gotArgs, a1, _, _, data := Unpack(buf[:n], 3)
	if gotArgs != 1 {
		t.Errorf("gotArgs = %d, want 1", gotArgs)
	}
	if a1 != 0xCAFEBABE {
		t.Errorf("arg1 = %#x, want 0xCAFEBABE", a1)
	}
	if len(data) != 0 {
		t.Errorf("payload length = %d, want 0", len(data))
	}
}

func TestUnpackFewerArgsThanAsked(t *testing.T) {
	// Asking for fewer args than the packet carries treats the extra arg
	// bytes as payload.
	buf := make([]byte, PacketSize(MaxArgs, 4))
	n := Pack(buf, 4, 0, 0, 0, 0, 3, 1, 2, 3, []byte{9, 9, 9, 9})

	_, _, gotArgs, _, _, _, data := Unpack(buf[:n], 0)
	if gotArgs != 0 {
		t.Errorf("gotArgs = %d, want 0", gotArgs)
	}
	if len(data) != 16 {
		t.Errorf("payload length = %d, want 16", len(data))
	}
}

func TestRWUnit(t *testing.T) {
	tests := []struct {
		address, length uint32
		want            Unit
	}{
		{0, 0, UnitWord},
		{0, 4, UnitWord},
		{4, 8, UnitWord},
		{2, 4, UnitShort},
		{4, 2, UnitShort},
		{2, 6, UnitShort},
		{1, 4, UnitByte},
		{4, 1, UnitByte},
		{3, 3, UnitByte},
		{2, 3, UnitByte},
	}
	for _, tt := range tests {
		if got := RWUnit(tt.address, tt.length); got != tt.want {
			t.Errorf("RWUnit(%d, %d) = %d, want %d", tt.address, tt.length, got, tt.want)
		}
	}
}
