package riscv

import "testing"

// A freshly constructed CLINT has mtimecmp pinned to the maximum value, so
// Tick never raises the timer interrupt until software programs a compare.
func TestCLINTNoTimerInterruptBeforeMtimecmpSet(t *testing.T) {
	cpu := NewCPU(nil)
	clint := NewCLINT(cpu)

	clint.Tick()
	if cpu.Mip()&MipMTIP != 0 {
		t.Errorf("expected no timer interrupt before mtimecmp is programmed")
	}
}

// Writing mtimecmp to zero makes the next Tick observe mtime >= mtimecmp
// immediately, raising MTIP.
func TestCLINTTickRaisesTimerInterrupt(t *testing.T) {
	cpu := NewCPU(nil)
	clint := NewCLINT(cpu)

	if err := clint.Write(clintMtimecmpOffset, 8, 0); err != nil {
		t.Fatalf("Write mtimecmp: %v", err)
	}
	clint.Tick()

	if cpu.Mip()&MipMTIP == 0 {
		t.Errorf("expected MTIP to be set after mtimecmp expires")
	}
}

// Setting msip's low bit raises the machine software interrupt pending bit;
// clearing it lowers it again.
func TestCLINTMsipTogglesSoftwareInterrupt(t *testing.T) {
	cpu := NewCPU(nil)
	clint := NewCLINT(cpu)

	if err := clint.Write(clintMsipOffset, 4, 1); err != nil {
		t.Fatalf("Write msip: %v", err)
	}
	if cpu.Mip()&MipMSIP == 0 {
		t.Errorf("expected MSIP to be set")
	}

	if err := clint.Write(clintMsipOffset, 4, 0); err != nil {
		t.Fatalf("Write msip: %v", err)
	}
	if cpu.Mip()&MipMSIP != 0 {
		t.Errorf("expected MSIP to be cleared")
	}
}
