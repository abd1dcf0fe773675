package riscv

// execAMO dispatches the A-extension's atomic-memory-operation opcode: LR,
// SC, and the nine AMOxxx read-modify-write forms, each in a 32-bit (.W) and
// 64-bit (.D) width selected by funct3.
func (cpu *CPU) execAMO(d Decoded) error {
	addr := cpu.ReadReg(d.Rs1)
	operand := cpu.ReadReg(d.Rs2)
	amoFunc := d.Funct7 >> 2 // top 5 bits of funct7 select the operation

	switch d.Funct3 {
	case 0b010: // .W
		if addr&3 != 0 {
			return Exception(CauseStoreAddrMisaligned, addr)
		}
		return cpu.execAMOWord(d.Rd, addr, operand, amoFunc)
	case 0b011: // .D
		if addr&7 != 0 {
			return Exception(CauseStoreAddrMisaligned, addr)
		}
		return cpu.execAMODouble(d.Rd, addr, operand, amoFunc)
	default:
		return Exception(CauseIllegalInsn, uint64(d.Raw))
	}
}

// execAMOWord handles the .W (32-bit, sign-extended on readback) forms.
func (cpu *CPU) execAMOWord(rdReg uint32, addr, operand uint64, amoFunc uint32) error {
	switch amoFunc {
	case 0b00010: // LR.W
		val, err := cpu.Bus.Read32(addr)
		if err != nil {
			return Exception(CauseLoadAccessFault, addr)
		}
		cpu.WriteReg(rdReg, uint64(int32(val)))
		cpu.Reservation, cpu.ReservationWidth, cpu.ReservationValid = addr, 4, true
		return nil

	case 0b00011: // SC.W
		succeeded := cpu.ReservationValid && cpu.Reservation == addr && cpu.ReservationWidth == 4
		cpu.ReservationValid = false
		if !succeeded {
			cpu.WriteReg(rdReg, 1)
			return nil
		}
		if err := cpu.Bus.Write32(addr, uint32(operand)); err != nil {
			return Exception(CauseStoreAccessFault, addr)
		}
		cpu.WriteReg(rdReg, 0)
		return nil

	default:
		old, err := cpu.Bus.Read32(addr)
		if err != nil {
			return Exception(CauseLoadAccessFault, addr)
		}
		next, ok := amoCombineWord(amoFunc, old, uint32(operand))
		if !ok {
			return Exception(CauseIllegalInsn, uint64(amoFunc))
		}
		if err := cpu.Bus.Write32(addr, next); err != nil {
			return Exception(CauseStoreAccessFault, addr)
		}
		cpu.WriteReg(rdReg, uint64(int32(old)))
		cpu.ReservationValid = false
		return nil
	}
}

// execAMODouble handles the .D (64-bit) forms; identical structure to
// execAMOWord at twice the width and without sign extension on readback.
func (cpu *CPU) execAMODouble(rdReg uint32, addr, operand uint64, amoFunc uint32) error {
	switch amoFunc {
	case 0b00010: // LR.D
		val, err := cpu.Bus.Read64(addr)
		if err != nil {
			return Exception(CauseLoadAccessFault, addr)
		}
		cpu.WriteReg(rdReg, val)
		cpu.Reservation, cpu.ReservationWidth, cpu.ReservationValid = addr, 8, true
		return nil

	case 0b00011: // SC.D
		succeeded := cpu.ReservationValid && cpu.Reservation == addr && cpu.ReservationWidth == 8
		cpu.ReservationValid = false
		if !succeeded {
			cpu.WriteReg(rdReg, 1)
			return nil
		}
		if err := cpu.Bus.Write64(addr, operand); err != nil {
			return Exception(CauseStoreAccessFault, addr)
		}
		cpu.WriteReg(rdReg, 0)
		return nil

	default:
		old, err := cpu.Bus.Read64(addr)
		if err != nil {
			return Exception(CauseLoadAccessFault, addr)
		}
		next, ok := amoCombineDouble(amoFunc, old, operand)
		if !ok {
			return Exception(CauseIllegalInsn, uint64(amoFunc))
		}
		if err := cpu.Bus.Write64(addr, next); err != nil {
			return Exception(CauseStoreAccessFault, addr)
		}
		cpu.WriteReg(rdReg, old)
		cpu.ReservationValid = false
		return nil
	}
}

// amoCombineWord computes the new value for every read-modify-write AMO
// operation other than LR/SC, at 32-bit width with signed min/max.
func amoCombineWord(amoFunc uint32, old, val uint32) (uint32, bool) {
	switch amoFunc {
	case 0b00001: // AMOSWAP.W
		return val, true
	case 0b00000: // AMOADD.W
		return old + val, true
	case 0b00100: // AMOXOR.W
		return old ^ val, true
	case 0b01100: // AMOAND.W
		return old & val, true
	case 0b01000: // AMOOR.W
		return old | val, true
	case 0b10000: // AMOMIN.W
		if int32(old) < int32(val) {
			return old, true
		}
		return val, true
	case 0b10100: // AMOMAX.W
		if int32(old) > int32(val) {
			return old, true
		}
		return val, true
	case 0b11000: // AMOMINU.W
		if old < val {
			return old, true
		}
		return val, true
	case 0b11100: // AMOMAXU.W
		if old > val {
			return old, true
		}
		return val, true
	default:
		return 0, false
	}
}

// amoCombineDouble mirrors amoCombineWord at 64-bit width.
func amoCombineDouble(amoFunc uint32, old, val uint64) (uint64, bool) {
	switch amoFunc {
	case 0b00001: // AMOSWAP.D
		return val, true
	case 0b00000: // AMOADD.D
		return old + val, true
	case 0b00100: // AMOXOR.D
		return old ^ val, true
	case 0b01100: // AMOAND.D
		return old & val, true
	case 0b01000: // AMOOR.D
		return old | val, true
	case 0b10000: // AMOMIN.D
		if int64(old) < int64(val) {
			return old, true
		}
		return val, true
	case 0b10100: // AMOMAX.D
		if int64(old) > int64(val) {
			return old, true
		}
		return val, true
	case 0b11000: // AMOMINU.D
		if old < val {
			return old, true
		}
		return val, true
	case 0b11100: // AMOMAXU.D
		if old > val {
			return old, true
		}
		return val, true
	default:
		return 0, false
	}
}
