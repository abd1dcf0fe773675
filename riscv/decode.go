package riscv

// Decoded is the uniform decoded form produced by Decode. It never carries
// an error: illegal bit patterns decode to a value with Illegal set, and the
// executor raises IllegalInstruction when it actually dispatches one.
type Decoded struct {
	Raw     uint32
	Opcode  uint32
	Rd      uint32
	Rs1     uint32
	Rs2     uint32
	Rs3     uint32
	Funct3  uint32
	Funct7  uint32
	Funct2  uint32
	Imm     int64
	Shamt   uint32 // low 6 bits of insn[26:20]; callers needing a 32-bit shift mask with 0x1f
	Aq      bool
	Rl      bool
	Size    int // 2 for compressed, 4 otherwise
	Illegal bool
}

// validOpcodes enumerates the base-ISA opcodes the executor dispatches on;
// anything else is tagged illegal at decode time rather than at dispatch.
var validOpcodes = map[uint32]bool{
	OpLoad: true, OpLoadFP: true, OpMiscMem: true, OpOpImm: true,
	OpAuipc: true, OpOpImm32: true, OpStore: true, OpStoreFP: true,
	OpAMO: true, OpOp: true, OpLui: true, OpOp32: true,
	OpMadd: true, OpMsub: true, OpNmsub: true, OpNmadd: true,
	OpOpFP: true, OpBranch: true, OpJalr: true, OpJal: true, OpSystem: true,
}

// Raw field accessors over a 32-bit base-encoded instruction word. Compressed
// (16-bit) words are expanded to one of these forms by CPU.ExpandCompressed
// before anything here ever sees them.
func opcode(insn uint32) uint32 { return insn & 0x7f }
func rd(insn uint32) uint32     { return (insn >> 7) & 0x1f }
func rs1(insn uint32) uint32    { return (insn >> 15) & 0x1f }
func rs2(insn uint32) uint32    { return (insn >> 20) & 0x1f }
func rs3(insn uint32) uint32    { return (insn >> 27) & 0x1f }
func funct3(insn uint32) uint32 { return (insn >> 12) & 0x7 }
func funct7(insn uint32) uint32 { return (insn >> 25) & 0x7f }
func funct2(insn uint32) uint32 { return (insn >> 25) & 0x3 }
func shamt(insn uint32) uint32  { return (insn >> 20) & 0x3f }

// immI, immS, immB, immU and immJ pull the sign-extended immediate out of
// their respective instruction shapes.
func immI(insn uint32) int64 { return signExtend(uint64(insn>>20), 12) }

func immS(insn uint32) int64 {
	v := (insn >> 7) & 0x1f
	v |= ((insn >> 25) & 0x7f) << 5
	return signExtend(uint64(v), 12)
}

func immB(insn uint32) int64 {
	v := ((insn >> 8) & 0xf) << 1
	v |= ((insn >> 25) & 0x3f) << 5
	v |= ((insn >> 7) & 0x1) << 11
	v |= ((insn >> 31) & 0x1) << 12
	return signExtend(uint64(v), 13)
}

func immU(insn uint32) int64 { return signExtend(uint64(insn&0xfffff000), 32) }

func immJ(insn uint32) int64 {
	v := ((insn >> 21) & 0x3ff) << 1
	v |= ((insn >> 20) & 0x1) << 11
	v |= ((insn >> 12) & 0xff) << 12
	v |= ((insn >> 31) & 0x1) << 20
	return signExtend(uint64(v), 21)
}

// immFor picks the immediate encoding appropriate to op, mirroring the shape
// each opcode is architecturally defined to carry.
func immFor(op uint32, insn uint32) int64 {
	switch op {
	case OpStore, OpStoreFP:
		return immS(insn)
	case OpBranch:
		return immB(insn)
	case OpLui, OpAuipc:
		return immU(insn)
	case OpJal:
		return immJ(insn)
	case OpLoad, OpLoadFP, OpOpImm, OpOpImm32, OpJalr, OpSystem:
		return immI(insn)
	default:
		return 0
	}
}

// Decode extracts every field the executor might need from a 32-bit
// instruction word, tagging unrecognized opcodes as Illegal without ever
// returning an error. The caller is responsible for expanding a compressed
// 16-bit encoding (via CPU.ExpandCompressed) before calling Decode, and for
// recording the original Size (2 or 4) for PC advancement.
func Decode(insn uint32) Decoded {
	op := opcode(insn)
	d := Decoded{
		Raw:     insn,
		Opcode:  op,
		Rd:      rd(insn),
		Rs1:     rs1(insn),
		Rs2:     rs2(insn),
		Rs3:     rs3(insn),
		Funct3:  funct3(insn),
		Funct7:  funct7(insn),
		Funct2:  funct2(insn),
		Imm:     immFor(op, insn),
		Shamt:   shamt(insn),
		Size:    4,
		Illegal: !validOpcodes[op],
	}
	if op == OpAMO {
		d.Aq = (insn>>26)&1 != 0
		d.Rl = (insn>>25)&1 != 0
	}
	return d
}

// Encode reassembles the 32-bit base encoding from a Decoded value; it
// supports every shape Decode produces (R, I, S, B, U, J), so the round-trip
// law holds for the full base ISA, not just arithmetic/load/lui-style forms.
func Encode(d Decoded) uint32 {
	switch d.Opcode {
	case OpLui, OpAuipc:
		return (uint32(d.Imm) & 0xfffff000) | d.Opcode | (d.Rd << 7)
	case OpLoad, OpOpImm, OpOpImm32, OpJalr, OpLoadFP:
		return (uint32(d.Imm)&0xfff)<<20 | d.Rs1<<15 | d.Funct3<<12 | d.Rd<<7 | d.Opcode
	case OpStore, OpStoreFP:
		u := uint32(d.Imm) & 0xfff
		return (u>>5)<<25 | d.Rs2<<20 | d.Rs1<<15 | d.Funct3<<12 | (u&0x1f)<<7 | d.Opcode
	case OpBranch:
		u := uint32(d.Imm) & 0x1fff
		return ((u>>12)&1)<<31 | ((u>>5)&0x3f)<<25 | d.Rs2<<20 | d.Rs1<<15 | d.Funct3<<12 | ((u>>1)&0xf)<<8 | ((u>>11)&1)<<7 | d.Opcode
	case OpJal:
		u := uint32(d.Imm) & 0x1fffff
		return ((u>>20)&1)<<31 | ((u>>1)&0x3ff)<<21 | ((u>>11)&1)<<20 | ((u>>12)&0xff)<<12 | d.Rd<<7 | d.Opcode
	default: // R-type (Op/Op32/OpFP/AMO)
		return d.Funct7<<25 | d.Rs2<<20 | d.Rs1<<15 | d.Funct3<<12 | d.Rd<<7 | d.Opcode
	}
}
