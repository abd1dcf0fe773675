package riscv

import "testing"

// lr.d reserves an address; a plain store to that address before the
// matching sc.d must invalidate the reservation, causing sc.d to fail
// without writing, per the load-reserved/store-conditional contract.
func TestStoreConditionalFailsAfterInterveningStore(t *testing.T) {
	e := newTestEmulator(t)
	addr := RAMBase + 512
	if err := e.Bus.Write64(addr, 0x1111); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	e.CPU.X[rA0] = addr
	lrd := encAMO(0b011, 0b00010, rA1, rA0, 0) // lr.d a1, (a0)
	if err := e.Bus.Write32(RAMBase, lrd); err != nil {
		t.Fatalf("write lr.d: %v", err)
	}
	if _, err := e.Step(); err != nil {
		t.Fatalf("Step lr.d: %v", err)
	}
	if !e.CPU.ReservationValid {
		t.Fatalf("lr.d did not set a reservation")
	}

	// An ordinary sd to the reserved address, executed as a real instruction
	// so execStore's reservation-clearing runs, not a direct memory poke.
	e.CPU.X[rA2] = 0x2222
	sd := encS(OpStore, 0b011, rA0, rA2, 0) // sd a2, 0(a0)
	if err := e.Bus.Write32(e.CPU.PC, sd); err != nil {
		t.Fatalf("write sd: %v", err)
	}
	if _, err := e.Step(); err != nil {
		t.Fatalf("Step sd: %v", err)
	}
	if e.CPU.ReservationValid {
		t.Fatalf("ordinary store did not clear the reservation")
	}

	e.CPU.X[rA2] = 0x3333
	scd := encAMO(0b011, 0b00011, rA3, rA0, rA2) // sc.d a3, a2, (a0)
	if err := e.Bus.Write32(e.CPU.PC, scd); err != nil {
		t.Fatalf("write sc.d: %v", err)
	}
	if _, err := e.Step(); err != nil {
		t.Fatalf("Step sc.d: %v", err)
	}

	if e.CPU.X[rA3] != 1 {
		t.Errorf("sc.d after intervening store: expected failure (1), got %d", e.CPU.X[rA3])
	}
	mem, err := e.Bus.Read64(addr)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if mem != 0x2222 {
		t.Errorf("memory: expected the intervening store's value 0x2222, got %#x", mem)
	}
}

// Without any intervening store, sc.d following lr.d on the same address
// succeeds and writes the new value.
func TestStoreConditionalSucceedsImmediately(t *testing.T) {
	e := newTestEmulator(t)
	addr := RAMBase + 512
	if err := e.Bus.Write64(addr, 0x1111); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	e.CPU.X[rA0] = addr
	lrd := encAMO(0b011, 0b00010, rA1, rA0, 0) // lr.d a1, (a0)
	if err := e.Bus.Write32(RAMBase, lrd); err != nil {
		t.Fatalf("write lr.d: %v", err)
	}
	if _, err := e.Step(); err != nil {
		t.Fatalf("Step lr.d: %v", err)
	}

	e.CPU.X[rA2] = 0x4444
	scd := encAMO(0b011, 0b00011, rA3, rA0, rA2) // sc.d a3, a2, (a0)
	if err := e.Bus.Write32(e.CPU.PC, scd); err != nil {
		t.Fatalf("write sc.d: %v", err)
	}
	if _, err := e.Step(); err != nil {
		t.Fatalf("Step sc.d: %v", err)
	}

	if e.CPU.X[rA3] != 0 {
		t.Errorf("sc.d: expected success (0), got %d", e.CPU.X[rA3])
	}
	if e.CPU.ReservationValid {
		t.Errorf("reservation should be cleared after a completed sc.d")
	}
	mem, err := e.Bus.Read64(addr)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if mem != 0x4444 {
		t.Errorf("memory: expected 0x4444, got %#x", mem)
	}
}

// lr.w reserves only a 4-byte width; a following sc.d to the same address
// must fail even though the address matches, since the reservation records
// {address, width} and sc must match both.
func TestStoreConditionalFailsOnWidthMismatch(t *testing.T) {
	e := newTestEmulator(t)
	addr := RAMBase + 512
	if err := e.Bus.Write64(addr, 0x1111); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	e.CPU.X[rA0] = addr
	lrw := encAMO(0b010, 0b00010, rA1, rA0, 0) // lr.w a1, (a0)
	if err := e.Bus.Write32(RAMBase, lrw); err != nil {
		t.Fatalf("write lr.w: %v", err)
	}
	if _, err := e.Step(); err != nil {
		t.Fatalf("Step lr.w: %v", err)
	}
	if !e.CPU.ReservationValid || e.CPU.ReservationWidth != 4 {
		t.Fatalf("lr.w did not set a 4-byte reservation")
	}

	e.CPU.X[rA2] = 0x5555
	scd := encAMO(0b011, 0b00011, rA3, rA0, rA2) // sc.d a3, a2, (a0)
	if err := e.Bus.Write32(e.CPU.PC, scd); err != nil {
		t.Fatalf("write sc.d: %v", err)
	}
	if _, err := e.Step(); err != nil {
		t.Fatalf("Step sc.d: %v", err)
	}

	if e.CPU.X[rA3] != 1 {
		t.Errorf("sc.d with mismatched width: expected failure (1), got %d", e.CPU.X[rA3])
	}
	mem, err := e.Bus.Read64(addr)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if mem != 0x1111 {
		t.Errorf("memory: expected unchanged 0x1111, got %#x", mem)
	}
}

// A trap taken between lr and sc invalidates the reservation, matching real
// hardware's unconditional clear on any trap.
func TestReservationClearedByTrap(t *testing.T) {
	e := newTestEmulator(t)
	e.CPU.Reservation = RAMBase + 512
	e.CPU.ReservationValid = true

	e.CPU.HandleTrap(CauseIllegalInsn, 0)

	if e.CPU.ReservationValid {
		t.Errorf("reservation should be cleared after entering a trap")
	}
}
