package riscv

import "testing"

// SetPending on a source enabled above threshold for the M-mode context
// raises MEIP; claiming it clears the pending bit and lowers MEIP again.
func TestPLICClaimClearsPending(t *testing.T) {
	cpu := NewCPU(nil)
	plic := NewPLIC(cpu)

	const source = 5
	if err := plic.Write(PLICPriorityBase+source*4, 4, 3); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	// Enable bits for context 0 (M-mode) live at PLICEnableBase.
	if err := plic.Write(PLICEnableBase, 4, 1<<source); err != nil {
		t.Fatalf("set enable: %v", err)
	}

	plic.SetPending(source, true)
	if cpu.Mip()&MipMEIP == 0 {
		t.Fatalf("expected MEIP to be raised once an enabled source above threshold is pending")
	}

	claimOffset := PLICThresholdBase + 4 // context 0 claim register
	claimed, err := plic.Read(claimOffset, 4)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed != source {
		t.Errorf("claimed source: expected %d, got %d", source, claimed)
	}
	if cpu.Mip()&MipMEIP != 0 {
		t.Errorf("expected MEIP to clear once the only pending source is claimed")
	}

	// Completing the claim is idempotent and doesn't re-raise MEIP.
	if err := plic.Write(claimOffset, 4, source); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if cpu.Mip()&MipMEIP != 0 {
		t.Errorf("expected MEIP to remain clear after completion")
	}
}

// A source whose priority does not exceed the context's threshold never
// raises the external interrupt pending bit.
func TestPLICThresholdSuppressesLowPriority(t *testing.T) {
	cpu := NewCPU(nil)
	plic := NewPLIC(cpu)

	const source = 7
	if err := plic.Write(PLICPriorityBase+source*4, 4, 2); err != nil {
		t.Fatalf("set priority: %v", err)
	}
	if err := plic.Write(PLICEnableBase, 4, 1<<source); err != nil {
		t.Fatalf("set enable: %v", err)
	}
	if err := plic.Write(PLICThresholdBase, 4, 2); err != nil {
		t.Fatalf("set threshold: %v", err)
	}

	plic.SetPending(source, true)
	if cpu.Mip()&MipMEIP != 0 {
		t.Errorf("expected MEIP to stay clear when priority does not exceed threshold")
	}
}
