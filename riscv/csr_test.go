package riscv

import "testing"

// A supervisor-mode hart cannot read or write a machine-only CSR; both
// operations raise an illegal-instruction exception rather than silently
// succeeding.
func TestCSRPrivilegeGate(t *testing.T) {
	e := newTestEmulator(t)
	cpu := e.CPU
	cpu.Priv = PrivSupervisor

	if _, err := cpu.csrRead(CSRMstatus); err == nil {
		t.Errorf("expected an error reading mstatus from supervisor mode")
	} else if ex, ok := err.(ExceptionError); !ok || ex.Cause != CauseIllegalInsn {
		t.Errorf("expected CauseIllegalInsn, got %v", err)
	}

	if err := cpu.csrWrite(CSRMstatus, 0); err == nil {
		t.Errorf("expected an error writing mstatus from supervisor mode")
	}

	// Supervisor-level CSRs remain accessible.
	if _, err := cpu.csrRead(CSRSstatus); err != nil {
		t.Errorf("unexpected error reading sstatus from supervisor mode: %v", err)
	}
}

// sie/sip are masked projections of mie/mip restricted to the bits delegated
// via mideleg, not independent storage.
func TestSieIsMaskedByMideleg(t *testing.T) {
	e := newTestEmulator(t)
	cpu := e.CPU

	cpu.CSR.regs[CSRMideleg] = MipSTIP
	cpu.CSR.Write(CSRMie, MipSTIP|MipSEIP)

	if got := cpu.CSR.Read(CSRSie); got != MipSTIP {
		t.Errorf("sie: expected only the delegated STIP bit, got %#x", got)
	}

	// Writing sie only touches the delegated bits of mie.
	cpu.CSR.Write(CSRSie, 0)
	if got := cpu.CSR.Read(CSRMie); got != MipSEIP {
		t.Errorf("mie after sie write: expected MipSEIP to survive, got %#x", got)
	}
}

// sstatus exposes a fixed subset of mstatus bits; writes through sstatus
// never touch bits outside that mask, such as MIE.
func TestSstatusMasksMstatus(t *testing.T) {
	e := newTestEmulator(t)
	cpu := e.CPU

	cpu.SetMstatus(MstatusMIE)
	cpu.CSR.Write(CSRSstatus, MstatusSIE|MstatusMIE)

	m := cpu.Mstatus()
	if m&MstatusSIE == 0 {
		t.Errorf("expected SIE to be settable through sstatus")
	}
	if m&MstatusMIE == 0 {
		t.Errorf("expected MIE (set directly, outside the sstatus mask) to be preserved")
	}

	if got := cpu.CSR.Read(CSRSstatus) & MstatusMIE; got != 0 {
		t.Errorf("sstatus should never expose MIE, got bit set: %#x", got)
	}
}

// Writing mstatus with both FS bits set re-derives SD; clearing FS clears SD.
func TestWriteMstatusDerivesSD(t *testing.T) {
	e := newTestEmulator(t)
	cpu := e.CPU

	if err := cpu.csrWrite(CSRMstatus, MstatusFS); err != nil {
		t.Fatalf("csrWrite: %v", err)
	}
	if cpu.Mstatus()&MstatusSD == 0 {
		t.Errorf("expected SD to be set when FS is dirty (0b11)")
	}

	if err := cpu.csrWrite(CSRMstatus, 0); err != nil {
		t.Fatalf("csrWrite: %v", err)
	}
	if cpu.Mstatus()&MstatusSD != 0 {
		t.Errorf("expected SD to clear once FS is cleared")
	}
}

// fcsr reads back as the concatenation of frm and fflags, and writing it
// updates both underlying fields.
func TestFcsrCombinesFrmAndFflags(t *testing.T) {
	e := newTestEmulator(t)
	cpu := e.CPU

	if err := cpu.csrWrite(CSRFcsr, 0x1f|(0x5<<5)); err != nil {
		t.Fatalf("csrWrite: %v", err)
	}
	if cpu.Fflags() != 0x1f {
		t.Errorf("fflags: expected 0x1f, got %#x", cpu.Fflags())
	}
	if cpu.Frm() != 0x5 {
		t.Errorf("frm: expected 0x5, got %#x", cpu.Frm())
	}

	got, err := cpu.csrRead(CSRFcsr)
	if err != nil {
		t.Fatalf("csrRead: %v", err)
	}
	if got != 0x1f|(0x5<<5) {
		t.Errorf("fcsr readback: expected %#x, got %#x", 0x1f|(0x5<<5), got)
	}
}
