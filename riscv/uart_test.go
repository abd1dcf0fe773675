package riscv

import (
	"bytes"
	"testing"
)

// A byte written to the transmit holding register is forwarded to Output.
func TestUARTWriteForwardsToOutput(t *testing.T) {
	var out bytes.Buffer
	uart := NewUART(&out, nil)

	if err := uart.Write(UARTRegTHR, 1, uint64('H')); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.String() != "H" {
		t.Errorf("expected \"H\" to reach Output, got %q", out.String())
	}
}

// EnqueueInput makes bytes available through the receive buffer register,
// one at a time, with the line-status data-ready bit reflecting availability.
func TestUARTEnqueueInputIsConsumedInOrder(t *testing.T) {
	uart := NewUART(nil, nil)
	uart.EnqueueInput([]byte("AB"))

	lsr, err := uart.Read(UARTRegLSR, 1)
	if err != nil {
		t.Fatalf("Read LSR: %v", err)
	}
	if lsr&UARTLSRDataReady == 0 {
		t.Fatalf("expected DataReady to be set once input is enqueued")
	}

	got, err := uart.Read(UARTRegRBR, 1)
	if err != nil {
		t.Fatalf("Read RBR: %v", err)
	}
	if got != uint64('A') {
		t.Errorf("first byte: expected 'A', got %q", byte(got))
	}

	got, err = uart.Read(UARTRegRBR, 1)
	if err != nil {
		t.Fatalf("Read RBR: %v", err)
	}
	if got != uint64('B') {
		t.Errorf("second byte: expected 'B', got %q", byte(got))
	}

	lsr, _ = uart.Read(UARTRegLSR, 1)
	if lsr&UARTLSRDataReady != 0 {
		t.Errorf("expected DataReady to clear once the input buffer is drained")
	}
}

// Enabling the receive-data-available interrupt while input is pending
// signals OnInterrupt with pending=true.
func TestUARTReceiveInterruptFiresWhenEnabled(t *testing.T) {
	uart := NewUART(nil, nil)
	var pending bool
	uart.OnInterrupt = func(p bool) { pending = p }

	uart.EnqueueInput([]byte("x"))
	if err := uart.Write(UARTRegIER, 1, 0x01); err != nil {
		t.Fatalf("Write IER: %v", err)
	}

	if !pending {
		t.Errorf("expected OnInterrupt to fire once the receive-data-available interrupt is enabled")
	}
}
