package riscv

// Compressed instruction field extraction.
func cOp(insn uint16) uint16     { return insn & 0x3 }
func cFunct3(insn uint16) uint16 { return (insn >> 13) & 0x7 }

// C.ADDI4SPN, C.LW, C.LD, C.SW, C.SD register fields (3-bit, mapped to x8-x15).
func cRd_(insn uint16) uint32  { return uint32(((insn >> 2) & 0x7) + 8) }
func cRs1_(insn uint16) uint32 { return uint32(((insn >> 7) & 0x7) + 8) }
func cRs2_(insn uint16) uint32 { return uint32(((insn >> 2) & 0x7) + 8) }

// C.LWSP, C.SDSP, etc. register fields (full 5-bit).
func cRd(insn uint16) uint32  { return uint32((insn >> 7) & 0x1f) }
func cRs1(insn uint16) uint32 { return uint32((insn >> 7) & 0x1f) }
func cRs2(insn uint16) uint32 { return uint32((insn >> 2) & 0x1f) }

// encodeR, encodeI, encodeS, encodeB, encodeJ and encodeU assemble a 32-bit
// base instruction word from its architectural fields, following the same
// shapes decode.go's immI/immS/immB/immJ pull apart. encodeB and encodeJ take
// the branch/jump target as a plain signed byte offset and scatter it into
// the standard non-contiguous bit positions themselves, so callers never
// repeat that bit-shuffling per instruction.
func encodeR(opcode, funct3, funct7, rd, rs1, rs2 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeI(opcode, funct3, rd, rs1, imm uint32) uint32 {
	return (imm&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeS(opcode, funct3, rs1, rs2, imm uint32) uint32 {
	hi := (imm >> 5) & 0x7f
	lo := imm & 0x1f
	return hi<<25 | rs2<<20 | rs1<<15 | funct3<<12 | lo<<7 | opcode
}

func encodeB(opcode, funct3, rs1, rs2, offset uint32) uint32 {
	bit12 := (offset >> 12) & 0x1
	bits10to5 := (offset >> 5) & 0x3f
	bits4to1 := (offset >> 1) & 0xf
	bit11 := (offset >> 11) & 0x1
	return bit12<<31 | bits10to5<<25 | rs2<<20 | rs1<<15 | funct3<<12 | bits4to1<<8 | bit11<<7 | opcode
}

func encodeJ(opcode, rd, offset uint32) uint32 {
	bit20 := (offset >> 20) & 0x1
	bits10to1 := (offset >> 1) & 0x3ff
	bit11 := (offset >> 11) & 0x1
	bits19to12 := (offset >> 12) & 0xff
	return bit20<<31 | bits10to1<<21 | bit11<<20 | bits19to12<<12 | rd<<7 | opcode
}

func encodeU(opcode, rd, imm uint32) uint32 {
	return (imm & 0xfffff000) | rd<<7 | opcode
}

// ExpandCompressed rewrites a 16-bit C-extension word into the equivalent
// 32-bit base encoding, which is what Execute actually dispatches on; the
// emulator never runs a compressed opcode directly.
func (cpu *CPU) ExpandCompressed(insn uint16) (uint32, error) {
	funct3 := cFunct3(insn)

	switch cOp(insn) {
	case 0b00:
		return cpu.expandQ0(insn, funct3)
	case 0b01:
		return cpu.expandQ1(insn, funct3)
	case 0b10:
		return cpu.expandQ2(insn, funct3)
	default:
		return 0, Exception(CauseIllegalInsn, uint64(insn))
	}
}

// expandQ0 covers C.ADDI4SPN and the register-based loads/stores addressed
// through the compressed 3-bit register encoding.
func (cpu *CPU) expandQ0(insn uint16, funct3 uint16) (uint32, error) {
	switch funct3 {
	case 0b000: // C.ADDI4SPN: nzuimm[5:4|9:6|2|3] = insn[12:5]
		imm := ((uint32(insn) >> 6) & 0x1) << 2
		imm |= ((uint32(insn) >> 5) & 0x1) << 3
		imm |= ((uint32(insn) >> 11) & 0x3) << 4
		imm |= ((uint32(insn) >> 7) & 0xf) << 6
		if imm == 0 {
			return 0, Exception(CauseIllegalInsn, uint64(insn))
		}
		return encodeI(OpOpImm, 0, cRd_(insn), 2, imm), nil

	case 0b001: // C.FLD: uimm[5:3|7:6] = insn[12:10|6:5]
		imm := ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x3) << 6
		return encodeI(OpLoadFP, 0b011, cRd_(insn), cRs1_(insn), imm), nil

	case 0b010: // C.LW: uimm[5:3|2|6] = insn[12:10|6|5]
		imm := ((uint32(insn) >> 6) & 0x1) << 2
		imm |= ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x1) << 6
		return encodeI(OpLoad, 0b010, cRd_(insn), cRs1_(insn), imm), nil

	case 0b011: // C.LD: uimm[5:3|7:6] = insn[12:10|6:5]
		imm := ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x3) << 6
		return encodeI(OpLoad, 0b011, cRd_(insn), cRs1_(insn), imm), nil

	case 0b101: // C.FSD: uimm[5:3|7:6] = insn[12:10|6:5]
		imm := ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x3) << 6
		return encodeS(OpStoreFP, 0b011, cRs1_(insn), cRs2_(insn), imm), nil

	case 0b110: // C.SW: uimm[5:3|2|6] = insn[12:10|6|5]
		imm := ((uint32(insn) >> 6) & 0x1) << 2
		imm |= ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x1) << 6
		return encodeS(OpStore, 0b010, cRs1_(insn), cRs2_(insn), imm), nil

	case 0b111: // C.SD: uimm[5:3|7:6] = insn[12:10|6:5]
		imm := ((uint32(insn) >> 10) & 0x7) << 3
		imm |= ((uint32(insn) >> 5) & 0x3) << 6
		return encodeS(OpStore, 0b011, cRs1_(insn), cRs2_(insn), imm), nil
	}

	return 0, Exception(CauseIllegalInsn, uint64(insn))
}

// expandQ1 covers the immediate ALU forms, LUI/ADDI16SP, the register-register
// ALU shorthands and the unconditional/zero-tested branches.
func (cpu *CPU) expandQ1(insn uint16, funct3 uint16) (uint32, error) {
	switch funct3 {
	case 0b000: // C.NOP / C.ADDI: imm[5|4:0] = insn[12|6:2]
		rd := cRd(insn)
		imm := signExtendImm6(insn)
		if rd == 0 {
			return encodeI(OpOpImm, 0, 0, 0, 0), nil
		}
		return encodeI(OpOpImm, 0, rd, rd, imm), nil

	case 0b001: // C.ADDIW: imm[5|4:0] = insn[12|6:2]
		rd := cRd(insn)
		if rd == 0 {
			return 0, Exception(CauseIllegalInsn, uint64(insn))
		}
		return encodeI(OpOpImm32, 0, rd, rd, signExtendImm6(insn)), nil

	case 0b010: // C.LI: imm[5|4:0] = insn[12|6:2]
		return encodeI(OpOpImm, 0, cRd(insn), 0, signExtendImm6(insn)), nil

	case 0b011: // C.ADDI16SP / C.LUI
		return cpu.expandAddi16spOrLui(insn)

	case 0b100: // C.SRLI, C.SRAI, C.ANDI, C.SUB, C.XOR, C.OR, C.AND, C.SUBW, C.ADDW
		return expandArithShortcut(insn)

	case 0b101: // C.J: imm[11|4|9:8|10|6|7|3:1|5] = insn[12|11|10:9|8|7|6|5:3|2]
		imm := ((uint32(insn) >> 2) & 0x1) << 5
		imm |= ((uint32(insn) >> 3) & 0x7) << 1
		imm |= ((uint32(insn) >> 6) & 0x1) << 7
		imm |= ((uint32(insn) >> 7) & 0x1) << 6
		imm |= ((uint32(insn) >> 8) & 0x1) << 10
		imm |= ((uint32(insn) >> 9) & 0x3) << 8
		imm |= ((uint32(insn) >> 11) & 0x1) << 4
		if (insn>>12)&1 != 0 {
			imm |= 0xfffff800
		}
		return encodeJ(OpJal, 0, imm), nil

	case 0b110: // C.BEQZ: imm[8|4:3|7:6|2:1|5] = insn[12|11:10|6:5|4:3|2]
		return encodeB(OpBranch, 0b000, cRs1_(insn), 0, branchOffset(insn)), nil

	case 0b111: // C.BNEZ: same field layout as C.BEQZ
		return encodeB(OpBranch, 0b001, cRs1_(insn), 0, branchOffset(insn)), nil
	}

	return 0, Exception(CauseIllegalInsn, uint64(insn))
}

// signExtendImm6 pulls the 6-bit sign-extended immediate shared by C.ADDI,
// C.ADDIW and C.LI out of insn[12|6:2].
func signExtendImm6(insn uint16) uint32 {
	imm := uint32(insn>>2) & 0x1f
	if (insn>>12)&1 != 0 {
		imm |= 0xffffffe0
	}
	return imm
}

// branchOffset decodes the compressed conditional-branch target shared by
// C.BEQZ and C.BNEZ: imm[8|4:3|7:6|2:1|5] = insn[12|11:10|6:5|4:3|2].
func branchOffset(insn uint16) uint32 {
	imm := ((uint32(insn) >> 2) & 0x1) << 5
	imm |= ((uint32(insn) >> 3) & 0x3) << 1
	imm |= ((uint32(insn) >> 5) & 0x3) << 6
	imm |= ((uint32(insn) >> 10) & 0x3) << 3
	if (insn>>12)&1 != 0 {
		imm |= 0xffffff00
	}
	return imm
}

// expandAddi16spOrLui disambiguates the two instructions packed into
// funct3==0b011: rd==2 means C.ADDI16SP, anything else means C.LUI.
func (cpu *CPU) expandAddi16spOrLui(insn uint16) (uint32, error) {
	rd := cRd(insn)
	if rd == 2 {
		// nzimm[9|4|6|8:7|5] = insn[12|6|5|4:3|2]
		imm := ((uint32(insn) >> 2) & 0x1) << 5
		imm |= ((uint32(insn) >> 3) & 0x3) << 7
		imm |= ((uint32(insn) >> 5) & 0x1) << 6
		imm |= ((uint32(insn) >> 6) & 0x1) << 4
		if (insn>>12)&1 != 0 {
			imm |= 0xfffffc00
		}
		if imm == 0 {
			return 0, Exception(CauseIllegalInsn, uint64(insn))
		}
		return encodeI(OpOpImm, 0, 2, 2, imm), nil
	}

	if rd == 0 {
		return 0, Exception(CauseIllegalInsn, uint64(insn))
	}
	// nzimm[17|16:12] = insn[12|6:2]
	imm := (uint32(insn>>2) & 0x1f) << 12
	if (insn>>12)&1 != 0 {
		imm |= 0xfffe0000
	}
	if imm == 0 {
		return 0, Exception(CauseIllegalInsn, uint64(insn))
	}
	return encodeU(OpLui, rd, imm), nil
}

// expandArithShortcut covers the funct3==0b100 family: two immediate shifts,
// an ANDI, and eight register-register forms selected by a further 3 bits.
func expandArithShortcut(insn uint16) (uint32, error) {
	rd := cRs1_(insn) // rd' doubles as rs1' for this whole family
	switch (insn >> 10) & 0x3 {
	case 0b00: // C.SRLI: shamt[5|4:0] = insn[12|6:2]
		return encodeR(OpOpImm, 0b101, 0, rd, rd, compressedShamt(insn)), nil

	case 0b01: // C.SRAI
		return encodeR(OpOpImm, 0b101, 0b0100000, rd, rd, compressedShamt(insn)), nil

	case 0b10: // C.ANDI: imm[5|4:0] = insn[12|6:2]
		return encodeI(OpOpImm, 0b111, rd, rd, signExtendImm6(insn)), nil

	case 0b11:
		rs2 := cRs2_(insn)
		isWord := (insn>>12)&0x1 != 0
		switch (insn >> 5) & 0x3 {
		case 0b00:
			if isWord { // C.SUBW
				return encodeR(OpOp32, 0b000, 0b0100000, rd, rd, rs2), nil
			} // C.SUB
			return encodeR(OpOp, 0b000, 0b0100000, rd, rd, rs2), nil
		case 0b01:
			if isWord { // C.ADDW
				return encodeR(OpOp32, 0b000, 0, rd, rd, rs2), nil
			} // C.XOR
			return encodeR(OpOp, 0b100, 0, rd, rd, rs2), nil
		case 0b10: // C.OR (no word-width counterpart)
			return encodeR(OpOp, 0b110, 0, rd, rd, rs2), nil
		case 0b11: // C.AND (no word-width counterpart)
			return encodeR(OpOp, 0b111, 0, rd, rd, rs2), nil
		}
	}

	return 0, Exception(CauseIllegalInsn, uint64(insn))
}

// compressedShamt pulls the 6-bit shift amount shared by C.SRLI, C.SRAI and
// C.SLLI out of insn[12|6:2].
func compressedShamt(insn uint16) uint32 {
	shamt := uint32(insn>>2) & 0x1f
	if (insn>>12)&1 != 0 {
		shamt |= 0x20
	}
	return shamt
}

// expandQ2 covers the stack-pointer-relative loads/stores and the
// JR/MV/EBREAK/JALR/ADD family packed into funct3==0b100.
func (cpu *CPU) expandQ2(insn uint16, funct3 uint16) (uint32, error) {
	switch funct3 {
	case 0b000: // C.SLLI: shamt[5|4:0] = insn[12|6:2]
		rd := cRd(insn)
		if rd == 0 {
			return 0, Exception(CauseIllegalInsn, uint64(insn))
		}
		return encodeR(OpOpImm, 0b001, 0, rd, rd, compressedShamt(insn)), nil

	case 0b001: // C.FLDSP: uimm[5|4:3|8:6] = insn[12|6:5|4:2]
		return encodeI(OpLoadFP, 0b011, cRd(insn), 2, spOffsetDouble(insn)), nil

	case 0b010: // C.LWSP: uimm[5|4:2|7:6] = insn[12|6:4|3:2]
		rd := cRd(insn)
		if rd == 0 {
			return 0, Exception(CauseIllegalInsn, uint64(insn))
		}
		imm := ((uint32(insn) >> 2) & 0x3) << 6
		imm |= ((uint32(insn) >> 4) & 0x7) << 2
		imm |= ((uint32(insn) >> 12) & 0x1) << 5
		return encodeI(OpLoad, 0b010, rd, 2, imm), nil

	case 0b011: // C.LDSP: uimm[5|4:3|8:6] = insn[12|6:5|4:2]
		rd := cRd(insn)
		if rd == 0 {
			return 0, Exception(CauseIllegalInsn, uint64(insn))
		}
		return encodeI(OpLoad, 0b011, rd, 2, spOffsetDouble(insn)), nil

	case 0b100: // C.JR, C.MV, C.EBREAK, C.JALR, C.ADD
		return expandJrMvAdd(insn)

	case 0b101: // C.FSDSP: uimm[5:3|8:6] = insn[12:10|9:7]
		return encodeS(OpStoreFP, 0b011, 2, cRs2(insn), spStoreOffsetDouble(insn)), nil

	case 0b110: // C.SWSP: uimm[5:2|7:6] = insn[12:9|8:7]
		imm := ((uint32(insn) >> 7) & 0x3) << 6
		imm |= ((uint32(insn) >> 9) & 0xf) << 2
		return encodeS(OpStore, 0b010, 2, cRs2(insn), imm), nil

	case 0b111: // C.SDSP: uimm[5:3|8:6] = insn[12:10|9:7]
		return encodeS(OpStore, 0b011, 2, cRs2(insn), spStoreOffsetDouble(insn)), nil
	}

	return 0, Exception(CauseIllegalInsn, uint64(insn))
}

// spOffsetDouble decodes the stack-pointer-relative doubleword load offset
// shared by C.FLDSP and C.LDSP: uimm[5|4:3|8:6] = insn[12|6:5|4:2].
func spOffsetDouble(insn uint16) uint32 {
	imm := ((uint32(insn) >> 2) & 0x7) << 6
	imm |= ((uint32(insn) >> 5) & 0x3) << 3
	imm |= ((uint32(insn) >> 12) & 0x1) << 5
	return imm
}

// spStoreOffsetDouble decodes the stack-pointer-relative doubleword store
// offset shared by C.FSDSP and C.SDSP: uimm[5:3|8:6] = insn[12:10|9:7].
func spStoreOffsetDouble(insn uint16) uint32 {
	imm := ((uint32(insn) >> 7) & 0x7) << 6
	imm |= ((uint32(insn) >> 10) & 0x7) << 3
	return imm
}

// expandJrMvAdd disambiguates the four instructions packed into quadrant 2's
// funct3==0b100: bit 12 selects the JALR/ADD pair over the JR/MV pair, and
// rs2==0 further selects JR/JALR (or EBREAK) over MV/ADD.
func expandJrMvAdd(insn uint16) (uint32, error) {
	rs1, rs2 := cRs1(insn), cRs2(insn)

	if (insn>>12)&1 == 0 {
		if rs2 == 0 { // C.JR
			if rs1 == 0 {
				return 0, Exception(CauseIllegalInsn, uint64(insn))
			}
			return encodeI(OpJalr, 0, 0, rs1, 0), nil
		}
		// C.MV
		return encodeR(OpOp, 0, 0, rs1, 0, rs2), nil
	}

	if rs2 == 0 {
		if rs1 == 0 { // C.EBREAK
			return 0x00100073, nil
		}
		// C.JALR
		return encodeI(OpJalr, 0, 1, rs1, 0), nil
	}
	// C.ADD
	return encodeR(OpOp, 0, 0, rs1, rs1, rs2), nil
}
