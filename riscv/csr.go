package riscv

// CSR addresses.
const (
	CSRFflags     uint16 = 0x001
	CSRFrm        uint16 = 0x002
	CSRFcsr       uint16 = 0x003
	CSRCycle      uint16 = 0xC00
	CSRTime       uint16 = 0xC01
	CSRInstret    uint16 = 0xC02
	CSRSstatus    uint16 = 0x100
	CSRSie        uint16 = 0x104
	CSRStvec      uint16 = 0x105
	CSRScounteren uint16 = 0x106
	CSRSscratch   uint16 = 0x140
	CSRSepc       uint16 = 0x141
	CSRScause     uint16 = 0x142
	CSRStval      uint16 = 0x143
	CSRSip        uint16 = 0x144
	CSRSatp       uint16 = 0x180
	CSRMstatus    uint16 = 0x300
	CSRMisa       uint16 = 0x301
	CSRMedeleg    uint16 = 0x302
	CSRMideleg    uint16 = 0x303
	CSRMie        uint16 = 0x304
	CSRMtvec      uint16 = 0x305
	CSRMcounteren uint16 = 0x306
	CSRMscratch   uint16 = 0x340
	CSRMepc       uint16 = 0x341
	CSRMcause     uint16 = 0x342
	CSRMtval      uint16 = 0x343
	CSRMip        uint16 = 0x344
	CSRMhartid    uint16 = 0xF14
)

// CSRSize is the size of the full control-and-status-register address space.
const CSRSize = 4096

// sstatusMask selects the bits of mstatus visible through sstatus.
const sstatusMask = MstatusSIE | MstatusSPIE | MstatusSPP | MstatusFS |
	MstatusSUM | MstatusMXR | MstatusSD

// CSRFile is the flat 4096-entry control-and-status-register space. Most
// addresses read and write through directly; sstatus/sie/sip are masked
// projections of the machine-mode registers rather than independent storage.
type CSRFile struct {
	regs [CSRSize]uint64
}

// Reset restores architectural reset values (misa fixed for RV64GC).
func (c *CSRFile) Reset() {
	for i := range c.regs {
		c.regs[i] = 0
	}
	c.regs[CSRMisa] = (MXL64 << 62) | MisaI | MisaM | MisaA | MisaF | MisaD | MisaC | MisaS | MisaU
}

// Read returns the value visible at addr, applying supervisor-view masking.
func (c *CSRFile) Read(addr uint16) uint64 {
	switch addr {
	case CSRSstatus:
		return c.regs[CSRMstatus] & sstatusMask
	case CSRSie:
		return c.regs[CSRMie] & c.regs[CSRMideleg]
	case CSRSip:
		return c.regs[CSRMip] & c.regs[CSRMideleg]
	default:
		return c.regs[addr]
	}
}

// Write updates the storage backing addr, applying supervisor-view masking
// so that writes through a shadowed alias only touch the bits it exposes.
func (c *CSRFile) Write(addr uint16, val uint64) {
	switch addr {
	case CSRSstatus:
		c.regs[CSRMstatus] = (c.regs[CSRMstatus] &^ sstatusMask) | (val & sstatusMask)
	case CSRSie:
		mask := c.regs[CSRMideleg]
		c.regs[CSRMie] = (c.regs[CSRMie] &^ mask) | (val & mask)
	case CSRSip:
		mask := MipSSIP & c.regs[CSRMideleg]
		c.regs[CSRMip] = (c.regs[CSRMip] &^ mask) | (val & mask)
	default:
		c.regs[addr] = val
	}
}

// ReadField reads bits [hi:lo] (inclusive) of the CSR at addr.
func (c *CSRFile) ReadField(addr uint16, hi, lo int) uint64 {
	val := c.Read(addr)
	width := hi - lo + 1
	if width >= 64 {
		return val >> lo
	}
	return (val >> lo) & ((uint64(1) << width) - 1)
}

// WriteField writes val into bits [hi:lo] (inclusive) of the CSR at addr,
// preserving the remaining bits.
func (c *CSRFile) WriteField(addr uint16, hi, lo int, val uint64) {
	width := hi - lo + 1
	var bitmask uint64
	if width < 64 {
		bitmask = (uint64(1) << width) - 1
	} else {
		bitmask = ^uint64(0)
	}
	cur := c.Read(addr)
	cur = cur &^ (bitmask << lo)
	cur |= (val & bitmask) << lo
	c.Write(addr, cur)
}

// --- Named accessors for the registers touched outside this file. ---
// These proxy directly to machine-mode storage; the supervisor aliases
// (Sstatus/Sie/Sip) are derived automatically by CSRFile.Read/Write.

func (cpu *CPU) Mstatus() uint64    { return cpu.CSR.regs[CSRMstatus] }
func (cpu *CPU) Mip() uint64        { return cpu.CSR.regs[CSRMip] }
func (cpu *CPU) Mie() uint64        { return cpu.CSR.regs[CSRMie] }
func (cpu *CPU) Satp() uint64       { return cpu.CSR.regs[CSRSatp] }
func (cpu *CPU) Medeleg() uint64    { return cpu.CSR.regs[CSRMedeleg] }
func (cpu *CPU) Mideleg() uint64    { return cpu.CSR.regs[CSRMideleg] }
func (cpu *CPU) Mtvec() uint64      { return cpu.CSR.regs[CSRMtvec] }
func (cpu *CPU) Stvec() uint64      { return cpu.CSR.regs[CSRStvec] }
func (cpu *CPU) Mepc() uint64       { return cpu.CSR.regs[CSRMepc] }
func (cpu *CPU) Sepc() uint64       { return cpu.CSR.regs[CSRSepc] }
func (cpu *CPU) Frm() uint8         { return uint8(cpu.CSR.regs[CSRFrm]) }
func (cpu *CPU) Fflags() uint8      { return uint8(cpu.CSR.regs[CSRFflags]) }

func (cpu *CPU) SetMstatus(v uint64) { cpu.CSR.regs[CSRMstatus] = v }
func (cpu *CPU) SetMip(v uint64)     { cpu.CSR.regs[CSRMip] = v }
func (cpu *CPU) SetMie(v uint64)     { cpu.CSR.regs[CSRMie] = v }
func (cpu *CPU) SetMepc(v uint64)    { cpu.CSR.regs[CSRMepc] = v }
func (cpu *CPU) SetSepc(v uint64)    { cpu.CSR.regs[CSRSepc] = v }
func (cpu *CPU) SetMcause(v uint64)  { cpu.CSR.regs[CSRMcause] = v }
func (cpu *CPU) SetScause(v uint64)  { cpu.CSR.regs[CSRScause] = v }
func (cpu *CPU) SetMtval(v uint64)   { cpu.CSR.regs[CSRMtval] = v }
func (cpu *CPU) SetStval(v uint64)   { cpu.CSR.regs[CSRStval] = v }
func (cpu *CPU) SetFrm(v uint8)      { cpu.CSR.regs[CSRFrm] = uint64(v) }
func (cpu *CPU) SetFflags(v uint8)   { cpu.CSR.regs[CSRFflags] = uint64(v) }

// csrRead implements a CSRRW/CSRRS/CSRRC-family read, enforcing the
// privilege gate shared by every CSR address.
func (cpu *CPU) csrRead(csr uint16) (uint64, error) {
	if uint16(cpu.Priv) < (csr>>8)&3 {
		return 0, Exception(CauseIllegalInsn, 0)
	}
	if csr == CSRFcsr {
		return uint64(cpu.Fflags()) | (uint64(cpu.Frm()) << 5), nil
	}
	return cpu.CSR.Read(csr), nil
}

// csrWrite implements a CSR write, enforcing privilege and read-only gating.
func (cpu *CPU) csrWrite(csr uint16, val uint64) error {
	if uint16(cpu.Priv) < (csr>>8)&3 {
		return Exception(CauseIllegalInsn, 0)
	}
	if (csr >> 10) == 3 {
		return Exception(CauseIllegalInsn, 0)
	}

	switch csr {
	case CSRFcsr:
		cpu.SetFflags(uint8(val & 0x1f))
		cpu.SetFrm(uint8((val >> 5) & 0x7))
	case CSRFflags:
		cpu.SetFflags(uint8(val & 0x1f))
	case CSRFrm:
		cpu.SetFrm(uint8(val & 0x7))
	case CSRMisa, CSRMhartid:
		// read-only in this implementation
	case CSRMedeleg:
		cpu.CSR.Write(csr, val&0xb3ff)
	case CSRMideleg:
		cpu.CSR.Write(csr, val&(MipSSIP|MipSTIP|MipSEIP))
	case CSRMie:
		cpu.CSR.Write(csr, val&(MipSSIP|MipMSIP|MipSTIP|MipMTIP|MipSEIP|MipMEIP))
	case CSRMip:
		mask := uint64(MipSSIP | MipSTIP | MipSEIP)
		cpu.CSR.Write(csr, (cpu.CSR.Read(csr)&^mask)|(val&mask))
	case CSRSip:
		mask := uint64(MipSSIP)
		cur := cpu.CSR.regs[CSRMip]
		cpu.CSR.regs[CSRMip] = (cur &^ mask) | (val & mask)
	case CSRMstatus:
		cpu.writeMstatus(val)
	case CSRSstatus:
		cpu.CSR.Write(csr, val)
	case CSRMepc, CSRSepc:
		cpu.CSR.Write(csr, val&^uint64(1))
	default:
		cpu.CSR.Write(csr, val)
	}
	return nil
}

// writeMstatus masks writable bits and re-derives SD from FS, matching the
// architecturally-defined dependency between the two fields.
func (cpu *CPU) writeMstatus(val uint64) {
	const writable = MstatusSIE | MstatusMIE | MstatusSPIE | MstatusMPIE |
		MstatusSPP | MstatusMPP | MstatusFS | MstatusMPRV | MstatusSUM |
		MstatusMXR | MstatusTVM | MstatusTW | MstatusTSR

	m := (cpu.Mstatus() &^ writable) | (val & writable)
	if (m & MstatusFS) == MstatusFS {
		m |= MstatusSD
	} else {
		m &^= MstatusSD
	}
	cpu.SetMstatus(m)
}

// CheckInterrupt reports whether a firing interrupt is pending and, if so,
// which cause takes priority per the fixed machine>supervisor,
// external>software>timer ordering.
func (cpu *CPU) CheckInterrupt() (bool, uint64) {
	pending := cpu.Mip() & cpu.Mie()
	if pending == 0 {
		return false, 0
	}

	mstatus := cpu.Mstatus()

	if pending&(MipMEIP|MipMSIP|MipMTIP) != 0 {
		mEnabled := cpu.Priv < PrivMachine || (cpu.Priv == PrivMachine && mstatus&MstatusMIE != 0)
		if mEnabled {
			switch {
			case pending&MipMEIP != 0:
				return true, CauseMExternalInt
			case pending&MipMSIP != 0:
				return true, CauseMSoftwareInt
			case pending&MipMTIP != 0:
				return true, CauseMTimerInt
			}
		}
	}

	sEnabled := cpu.Priv < PrivSupervisor || (cpu.Priv == PrivSupervisor && mstatus&MstatusSIE != 0)
	if sEnabled {
		switch {
		case pending&MipSEIP != 0:
			return true, CauseSExternalInt
		case pending&MipSSIP != 0:
			return true, CauseSSoftwareInt
		case pending&MipSTIP != 0:
			return true, CauseSTimerInt
		}
	}

	return false, 0
}

// pushEnableBit saves ie's current value into pie and clears ie, the first
// half of the privilege-stack push every trap entry performs.
func pushEnableBit(status, ie, pie uint64) uint64 {
	if status&ie != 0 {
		status |= pie
	} else {
		status &^= pie
	}
	return status &^ ie
}

// popEnableBit restores ie from pie and sets pie back to 1, the inverse
// performed by xRET.
func popEnableBit(status, pie, ie uint64) uint64 {
	if status&pie != 0 {
		status |= ie
	} else {
		status &^= ie
	}
	return status | pie
}

// delegatedToSupervisor reports whether the currently-privileged hart should
// take cause in supervisor mode rather than machine mode, per [ms]edeleg.
// Delegation is only consulted below machine mode; a trap taken while
// already in M always stays in M regardless of the delegation bits.
func delegatedToSupervisor(cpu *CPU, isInterrupt bool, code uint64) bool {
	if cpu.Priv > PrivSupervisor {
		return false
	}
	if isInterrupt {
		return cpu.Mideleg()&(1<<code) != 0
	}
	return cpu.Medeleg()&(1<<code) != 0
}

// trapVectorTarget resolves a [ms]tvec value to the PC a trap should jump
// to: vectored mode (mode bit set) dispatches interrupts to tvec's base plus
// 4*cause; everything else, including every exception, goes to the base.
func trapVectorTarget(tvec uint64, isInterrupt bool, code uint64) uint64 {
	if tvec&1 == 1 && isInterrupt {
		return (tvec &^ 1) + 4*code
	}
	return tvec &^ 3
}

// HandleTrap performs trap entry per the architected sequence: record the
// faulting PC/cause/tval into the target mode's CSRs, push that mode's
// interrupt-enable and previous-privilege bits, then jump to its vector.
// Delegation decides whether the target is supervisor or machine mode.
func (cpu *CPU) HandleTrap(cause, tval uint64) {
	cpu.ReservationValid = false

	isInterrupt := cause>>63 != 0
	code := cause &^ (uint64(1) << 63)

	if delegatedToSupervisor(cpu, isInterrupt, code) {
		cpu.SetSepc(cpu.PC)
		cpu.SetScause(cause)
		cpu.SetStval(tval)

		m := pushEnableBit(cpu.Mstatus(), MstatusSIE, MstatusSPIE)
		if cpu.Priv == PrivSupervisor {
			m |= MstatusSPP
		} else {
			m &^= MstatusSPP
		}
		cpu.SetMstatus(m)
		cpu.Priv = PrivSupervisor
		cpu.PC = trapVectorTarget(cpu.Stvec(), isInterrupt, code)
		return
	}

	cpu.SetMepc(cpu.PC)
	cpu.SetMcause(cause)
	cpu.SetMtval(tval)

	m := pushEnableBit(cpu.Mstatus(), MstatusMIE, MstatusMPIE)
	m = (m &^ MstatusMPP) | (uint64(cpu.Priv) << MstatusMPPShift)
	cpu.SetMstatus(m)
	cpu.Priv = PrivMachine
	cpu.PC = trapVectorTarget(cpu.Mtvec(), isInterrupt, code)
}
