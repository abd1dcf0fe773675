package riscv

import (
	"math"
)

// Dynamic-rounding-mode selector used by frm and the rm field of an
// OP-FP instruction. Values 0-4 are the five fixed rounding modes and 5-6
// are reserved; this emulator distinguishes none of them, letting Go's
// float ops round to nearest-even regardless of which one is requested.
const RoundDynamic = 7

// Floating point exception flags (fflags bits), exposed through fcsr/fflags
// but never set by this emulator — guests that poll them after an operation
// that would architecturally raise one (e.g. a NaN-producing FDIV) will see
// the flags stay clear, which this implementation treats as an accepted gap
// rather than something to fake.
const (
	FlagNX = 1 << 0 // Inexact
	FlagUF = 1 << 1 // Underflow
	FlagOF = 1 << 2 // Overflow
	FlagDZ = 1 << 3 // Divide by zero
	FlagNV = 1 << 4 // Invalid operation
)

// boxSingle NaN-boxes a float32 into the 64-bit f-register format: the
// upper 32 bits are all ones, marking the value as single-precision to any
// reader that inspects the box rather than the hardware's internal tag.
func boxSingle(f float32) uint64 {
	return 0xffffffff00000000 | uint64(math.Float32bits(f))
}

// unboxSingle reverses boxSingle. A box whose upper half isn't all ones is
// not a legally NaN-boxed single and reads back as the canonical quiet NaN,
// per the spec's treatment of an improperly boxed value.
func unboxSingle(box uint64) float32 {
	if box>>32 != 0xffffffff {
		return float32(math.NaN())
	}
	return math.Float32frombits(uint32(box))
}

func boxDouble(f float64) uint64   { return math.Float64bits(f) }
func unboxDouble(box uint64) float64 { return math.Float64frombits(box) }

// execLoadFP covers FLW/FLD, the opcode-LOAD-FP half of the F/D extensions.
func (cpu *CPU) execLoadFP(d Decoded) error {
	addr := uint64(int64(cpu.ReadReg(d.Rs1)) + d.Imm)

	switch d.Funct3 {
	case 0b010: // FLW
		raw, err := cpu.Bus.Read32(addr)
		if err != nil {
			return Exception(CauseLoadAccessFault, addr)
		}
		cpu.F[d.Rd] = boxSingle(math.Float32frombits(raw))
	case 0b011: // FLD
		raw, err := cpu.Bus.Read64(addr)
		if err != nil {
			return Exception(CauseLoadAccessFault, addr)
		}
		cpu.F[d.Rd] = raw
	default:
		return Exception(CauseIllegalInsn, uint64(d.Raw))
	}

	cpu.setFS(3)
	return nil
}

// execStoreFP covers FSW/FSD.
func (cpu *CPU) execStoreFP(d Decoded) error {
	addr := uint64(int64(cpu.ReadReg(d.Rs1)) + d.Imm)

	var err error
	switch d.Funct3 {
	case 0b010: // FSW
		err = cpu.Bus.Write32(addr, uint32(cpu.F[d.Rs2]))
	case 0b011: // FSD
		err = cpu.Bus.Write64(addr, cpu.F[d.Rs2])
	default:
		return Exception(CauseIllegalInsn, uint64(d.Raw))
	}
	if err != nil {
		return Exception(CauseStoreAccessFault, addr)
	}

	cpu.ReservationValid = false
	return nil
}

// execOpFP dispatches the whole OP-FP opcode: arithmetic, compares,
// conversions, sign-injection and the register-move/classify instructions.
// The operation is selected by the top five bits of funct7; the bottom bit
// distinguishes single- from double-precision for most of them.
func (cpu *CPU) execOpFP(d Decoded) error {
	isDouble := d.Funct7&1 == 1
	rm := d.Funct3
	if rm == RoundDynamic {
		rm = uint32(cpu.Frm())
	}
	_ = rm // rounding mode is architecturally significant; this emulator always rounds to nearest-even via Go's math ops

	switch d.Funct7 >> 2 {
	case 0b00000: // FADD
		return cpu.binaryFPOp(d, isDouble, func(a, b float64) float64 { return a + b })
	case 0b00001: // FSUB
		return cpu.binaryFPOp(d, isDouble, func(a, b float64) float64 { return a - b })
	case 0b00010: // FMUL
		return cpu.binaryFPOp(d, isDouble, func(a, b float64) float64 { return a * b })
	case 0b00011: // FDIV
		return cpu.binaryFPOp(d, isDouble, func(a, b float64) float64 { return a / b })
	case 0b01011: // FSQRT
		return cpu.unaryFPOp(d, isDouble, math.Sqrt)
	case 0b00100: // FSGNJ/FSGNJN/FSGNJX
		return cpu.execFSgnj(d, isDouble)
	case 0b00101: // FMIN/FMAX
		return cpu.execFMinMax(d, isDouble)
	case 0b10100: // FEQ/FLT/FLE
		return cpu.execFCompare(d, isDouble)
	case 0b11000: // FCVT.{W,WU,L,LU}.{S,D}
		return cpu.execFCvtToInt(d, isDouble)
	case 0b11010: // FCVT.{S,D}.{W,WU,L,LU}
		return cpu.execFCvtFromInt(d, isDouble)
	case 0b11100: // FMV.X.{W,D} / FCLASS
		return cpu.execFMoveOut(d, isDouble)
	case 0b11110: // FMV.{W,D}.X
		return cpu.execFMoveIn(d, isDouble)
	case 0b01000: // FCVT.S.D / FCVT.D.S
		return cpu.execFCvtPrecision(d, isDouble)
	default:
		return Exception(CauseIllegalInsn, uint64(d.Raw))
	}
}

func (cpu *CPU) binaryFPOp(d Decoded, isDouble bool, op func(a, b float64) float64) error {
	if isDouble {
		cpu.F[d.Rd] = boxDouble(op(unboxDouble(cpu.F[d.Rs1]), unboxDouble(cpu.F[d.Rs2])))
	} else {
		a, b := float64(unboxSingle(cpu.F[d.Rs1])), float64(unboxSingle(cpu.F[d.Rs2]))
		cpu.F[d.Rd] = boxSingle(float32(op(a, b)))
	}
	cpu.setFS(3)
	return nil
}

func (cpu *CPU) unaryFPOp(d Decoded, isDouble bool, op func(float64) float64) error {
	if isDouble {
		cpu.F[d.Rd] = boxDouble(op(unboxDouble(cpu.F[d.Rs1])))
	} else {
		cpu.F[d.Rd] = boxSingle(float32(op(float64(unboxSingle(cpu.F[d.Rs1])))))
	}
	cpu.setFS(3)
	return nil
}

// execFSgnj implements FSGNJ/FSGNJN/FSGNJX, which recombine the sign bit of
// rs1's magnitude with a sign derived from rs1 and rs2 per d.Funct3.
func (cpu *CPU) execFSgnj(d Decoded, isDouble bool) error {
	signBit := uint64(1) << 31
	magMask := ^signBit
	if isDouble {
		signBit = uint64(1) << 63
		magMask = ^signBit
	}

	a, b := cpu.F[d.Rs1], cpu.F[d.Rs2]
	signA, signB := a&signBit, b&signBit

	var sign uint64
	switch d.Funct3 {
	case 0b000: // FSGNJ
		sign = signB
	case 0b001: // FSGNJN
		sign = signB ^ signBit
	case 0b010: // FSGNJX
		sign = signA ^ signB
	default:
		return Exception(CauseIllegalInsn, uint64(d.Raw))
	}

	result := (a & magMask) | sign
	if isDouble {
		cpu.F[d.Rd] = result
	} else {
		cpu.F[d.Rd] = boxSingle(math.Float32frombits(uint32(result)))
	}
	cpu.setFS(3)
	return nil
}

func (cpu *CPU) execFMinMax(d Decoded, isDouble bool) error {
	pick := minNum
	if d.Funct3 != 0b000 {
		pick = maxNum
	}
	if isDouble {
		cpu.F[d.Rd] = boxDouble(pick(unboxDouble(cpu.F[d.Rs1]), unboxDouble(cpu.F[d.Rs2])))
	} else {
		a, b := float64(unboxSingle(cpu.F[d.Rs1])), float64(unboxSingle(cpu.F[d.Rs2]))
		cpu.F[d.Rd] = boxSingle(float32(pick(a, b)))
	}
	cpu.setFS(3)
	return nil
}

// minNum and maxNum implement the IEEE-754-2008 minNum/maxNum predicates
// FMIN/FMAX are specified against: a single NaN operand is ignored in favor
// of the other, and only two NaN operands produce a (quiet) NaN result.
// math.Min/math.Max propagate any NaN operand, which is the wrong behavior
// here.
func minNum(a, b float64) float64 {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return math.NaN()
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	default:
		return math.Min(a, b)
	}
}

func maxNum(a, b float64) float64 {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return math.NaN()
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	default:
		return math.Max(a, b)
	}
}

func (cpu *CPU) execFCompare(d Decoded, isDouble bool) error {
	var a, b float64
	if isDouble {
		a, b = unboxDouble(cpu.F[d.Rs1]), unboxDouble(cpu.F[d.Rs2])
	} else {
		a, b = float64(unboxSingle(cpu.F[d.Rs1])), float64(unboxSingle(cpu.F[d.Rs2]))
	}

	var ok bool
	switch d.Funct3 {
	case 0b010: // FEQ
		ok = a == b
	case 0b001: // FLT
		ok = a < b
	case 0b000: // FLE
		ok = a <= b
	default:
		return Exception(CauseIllegalInsn, uint64(d.Raw))
	}

	var result uint64
	if ok {
		result = 1
	}
	cpu.WriteReg(d.Rd, result)
	return nil
}

// execFCvtToInt implements FCVT.{W,WU,L,LU}.{S,D}; rs2's field selects the
// destination integer width/signedness.
func (cpu *CPU) execFCvtToInt(d Decoded, isDouble bool) error {
	var a float64
	if isDouble {
		a = unboxDouble(cpu.F[d.Rs1])
	} else {
		a = float64(unboxSingle(cpu.F[d.Rs1]))
	}

	var result int64
	switch d.Rs2 {
	case 0b00000: // FCVT.W
		result = int64(int32(a))
	case 0b00001: // FCVT.WU
		result = int64(int32(uint32(a)))
	case 0b00010: // FCVT.L
		result = int64(a)
	case 0b00011: // FCVT.LU
		result = int64(uint64(a))
	default:
		return Exception(CauseIllegalInsn, uint64(d.Raw))
	}
	cpu.WriteReg(d.Rd, uint64(result))
	return nil
}

// execFCvtFromInt implements FCVT.{S,D}.{W,WU,L,LU}; rs2's field selects
// the source integer width/signedness, read from the x register named rs1.
func (cpu *CPU) execFCvtFromInt(d Decoded, isDouble bool) error {
	x := cpu.ReadReg(d.Rs1)

	var f float64
	switch d.Rs2 {
	case 0b00000: // FCVT.W
		f = float64(int32(x))
	case 0b00001: // FCVT.WU
		f = float64(uint32(x))
	case 0b00010: // FCVT.L
		f = float64(int64(x))
	case 0b00011: // FCVT.LU
		f = float64(x)
	default:
		return Exception(CauseIllegalInsn, uint64(d.Raw))
	}

	if isDouble {
		cpu.F[d.Rd] = boxDouble(f)
	} else {
		cpu.F[d.Rd] = boxSingle(float32(f))
	}
	cpu.setFS(3)
	return nil
}

// execFMoveOut implements FMV.X.{W,D} (funct3 000) and FCLASS (funct3 001),
// which both move a value from an f register into an x register unchanged
// in bit pattern (MV) or replaced with a ten-bit class mask (FCLASS).
func (cpu *CPU) execFMoveOut(d Decoded, isDouble bool) error {
	switch d.Funct3 {
	case 0b000:
		if isDouble {
			cpu.WriteReg(d.Rd, cpu.F[d.Rs1])
		} else {
			cpu.WriteReg(d.Rd, uint64(int32(cpu.F[d.Rs1])))
		}
		return nil
	case 0b001:
		if isDouble {
			cpu.WriteReg(d.Rd, classifyDouble(unboxDouble(cpu.F[d.Rs1])))
		} else {
			cpu.WriteReg(d.Rd, classifySingle(unboxSingle(cpu.F[d.Rs1])))
		}
		return nil
	default:
		return Exception(CauseIllegalInsn, uint64(d.Raw))
	}
}

// execFMoveIn implements FMV.{W,D}.X: the inverse move, x register into f
// register, reboxing a 32-bit pattern as needed.
func (cpu *CPU) execFMoveIn(d Decoded, isDouble bool) error {
	x := cpu.ReadReg(d.Rs1)
	if isDouble {
		cpu.F[d.Rd] = x
	} else {
		cpu.F[d.Rd] = boxSingle(math.Float32frombits(uint32(x)))
	}
	cpu.setFS(3)
	return nil
}

// execFCvtPrecision implements FCVT.S.D and FCVT.D.S; isDouble here
// (funct7 bit 0) names the destination, so true means widen S->D.
func (cpu *CPU) execFCvtPrecision(d Decoded, isDouble bool) error {
	if isDouble {
		cpu.F[d.Rd] = boxDouble(float64(unboxSingle(cpu.F[d.Rs1])))
	} else {
		cpu.F[d.Rd] = boxSingle(float32(unboxDouble(cpu.F[d.Rs1])))
	}
	cpu.setFS(3)
	return nil
}

// execFMA implements the four fused multiply-add opcodes (FMADD/FMSUB/
// FNMSUB/FNMADD), each available in single and double precision.
func (cpu *CPU) execFMA(d Decoded) error {
	double := d.Funct2&1 == 1

	if double {
		a, b, c := unboxDouble(cpu.F[d.Rs1]), unboxDouble(cpu.F[d.Rs2]), unboxDouble(cpu.F[d.Rs3])
		cpu.F[d.Rd] = boxDouble(fusedMulAdd(d.Opcode, a, b, c))
	} else {
		a, b, c := float64(unboxSingle(cpu.F[d.Rs1])), float64(unboxSingle(cpu.F[d.Rs2])), float64(unboxSingle(cpu.F[d.Rs3]))
		cpu.F[d.Rd] = boxSingle(float32(fusedMulAdd(d.Opcode, a, b, c)))
	}

	cpu.setFS(3)
	return nil
}

func fusedMulAdd(op uint32, a, b, c float64) float64 {
	switch op {
	case OpMadd:
		return a*b + c
	case OpMsub:
		return a*b - c
	case OpNmsub:
		return -(a * b) + c
	case OpNmadd:
		return -(a * b) - c
	default:
		return a*b + c
	}
}

// setFS marks the floating point register state dirty (or whatever state is
// passed) in mstatus.fs, re-deriving mstatus.sd as required whenever fs
// reaches its top value.
func (cpu *CPU) setFS(state uint64) {
	m := (cpu.Mstatus() &^ MstatusFS) | (state << MstatusFSShift)
	if state == 3 {
		m |= MstatusSD
	}
	cpu.SetMstatus(m)
}

// classifySingle and classifyDouble implement FCLASS.S/FCLASS.D: a
// one-hot, ten-bit classification of the operand's IEEE-754 category.
func classifySingle(f float32) uint64 {
	bits := math.Float32bits(f)
	return classifyBits(uint64(bits>>31), uint64((bits>>23)&0xff), uint64(bits&0x7fffff), 0xff, 1<<22)
}

func classifyDouble(f float64) uint64 {
	bits := math.Float64bits(f)
	return classifyBits(bits>>63, (bits>>52)&0x7ff, bits&0xfffffffffffff, 0x7ff, 1<<51)
}

// classifyBits implements the shared IEEE-754 classification logic that
// FCLASS.S and FCLASS.D both reduce to once normalized to (sign, biased
// exponent, fraction); maxExp is the all-ones exponent and quietBit is the
// fraction's top bit, which distinguishes quiet from signaling NaN.
func classifyBits(sign, exp, frac, maxExp, quietBit uint64) uint64 {
	switch {
	case exp == maxExp && frac != 0:
		if frac&quietBit != 0 {
			return 1 << 9 // quiet NaN
		}
		return 1 << 8 // signaling NaN
	case exp == maxExp:
		if sign != 0 {
			return 1 << 0 // -infinity
		}
		return 1 << 7 // +infinity
	case exp == 0 && frac == 0:
		if sign != 0 {
			return 1 << 3 // -0
		}
		return 1 << 4 // +0
	case exp == 0:
		if sign != 0 {
			return 1 << 2 // negative subnormal
		}
		return 1 << 5 // positive subnormal
	default:
		if sign != 0 {
			return 1 << 1 // negative normal
		}
		return 1 << 6 // positive normal
	}
}
