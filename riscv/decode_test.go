package riscv

import "testing"

// Decode never reports an error for a recognized opcode, and Encode
// reconstructs the same 32-bit word for the shapes it supports.
func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []uint32{
		add(rA2, rA0, rA1),
		addi(rA0, rA1, -6),
		lui(rA0, 0xDEAD1),
		encI(OpLoad, 0b011, rA0, rA1, 16),   // ld a0, 16(a1)
		encS(OpStore, 0b011, rA0, rA1, -24), // sd a1, -24(a0)
		beq(rA0, rA1, -128),                 // beq a0, a1, -128
		jal(rA0, 4096),                      // jal a0, 4096
	}

	for _, insn := range cases {
		d := Decode(insn)
		if d.Illegal {
			t.Errorf("Decode(%#x) reported Illegal for a recognized opcode", insn)
		}
		if got := Encode(d); got != insn {
			t.Errorf("round trip: Decode/Encode(%#x) = %#x, want %#x", insn, got, insn)
		}
	}
}

// An unrecognized opcode decodes to Illegal without Decode itself returning
// an error — the decode step never faults.
func TestDecodeNeverFaults(t *testing.T) {
	insn := uint32(0b1111111) // opcode bits not in validOpcodes
	d := Decode(insn)
	if !d.Illegal {
		t.Errorf("expected Illegal for opcode %#b, got a recognized decode", insn)
	}
}
