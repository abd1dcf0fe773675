package riscv

import "io"

// UART register offsets, 16550-compatible. RBR/THR and IIR/FCR alias the
// same offset because the UART distinguishes them by read/write direction.
const (
	UARTRegRBR = 0
	UARTRegTHR = 0
	UARTRegIER = 1
	UARTRegIIR = 2
	UARTRegFCR = 2
	UARTRegLCR = 3
	UARTRegMCR = 4
	UARTRegLSR = 5
	UARTRegMSR = 6
	UARTRegSCR = 7
)

const (
	UARTLSRDataReady      = 1 << 0
	UARTLSROverrunError   = 1 << 1
	UARTLSRParityError    = 1 << 2
	UARTLSRFramingError   = 1 << 3
	UARTLSRBreakInterrupt = 1 << 4
	UARTLSRTHREmpty       = 1 << 5
	UARTLSRTxEmpty        = 1 << 6
	UARTLSRFIFOError      = 1 << 7
)

const (
	UARTIIRNoInterrupt = 1 << 0
	uartIIRRxAvailable = 0x04
	uartIIRTHREmpty    = 0x02

	uartIERRxAvailable = 0x01
	uartIERTHREmpty    = 0x02

	uartLCRDlab = 0x80
)

// UART is a 16550-compatible serial port: one byte-wide receive FIFO fed by
// EnqueueInput, one byte-wide transmit path that forwards straight to
// Output, and the usual line-control/line-status/interrupt-enable register
// set. DLAB-gated access to the (otherwise unused) baud divisor registers is
// modeled but the divisor itself has no effect on timing.
type UART struct {
	Output io.Writer
	Input  io.Reader

	IER uint8
	IIR uint8
	FCR uint8
	LCR uint8
	MCR uint8
	LSR uint8
	MSR uint8
	SCR uint8

	DLL uint8
	DLH uint8

	rxFIFO []byte

	InterruptPending bool
	OnInterrupt      func(pending bool)
}

func NewUART(output io.Writer, input io.Reader) *UART {
	return &UART{
		Output: output,
		Input:  input,
		LSR:    UARTLSRTHREmpty | UARTLSRTxEmpty,
		IIR:    UARTIIRNoInterrupt,
	}
}

func (uart *UART) Size() uint64 { return UARTSize }

func (uart *UART) dlabSet() bool { return uart.LCR&uartLCRDlab != 0 }

func (uart *UART) Read(offset uint64, size int) (uint64, error) {
	if size != 1 {
		return 0, nil
	}

	switch offset {
	case UARTRegRBR:
		if uart.dlabSet() {
			return uint64(uart.DLL), nil
		}
		return uint64(uart.popRx()), nil
	case UARTRegIER:
		if uart.dlabSet() {
			return uint64(uart.DLH), nil
		}
		return uint64(uart.IER), nil
	case UARTRegIIR:
		return uint64(uart.IIR), nil
	case UARTRegLCR:
		return uint64(uart.LCR), nil
	case UARTRegMCR:
		return uint64(uart.MCR), nil
	case UARTRegLSR:
		uart.refreshLSR()
		return uint64(uart.LSR), nil
	case UARTRegMSR:
		return uint64(uart.MSR), nil
	case UARTRegSCR:
		return uint64(uart.SCR), nil
	default:
		return 0, nil
	}
}

func (uart *UART) Write(offset uint64, size int, value uint64) error {
	if size != 1 {
		return nil
	}
	data := uint8(value)

	switch offset {
	case UARTRegTHR:
		if uart.dlabSet() {
			uart.DLL = data
			break
		}
		if uart.Output != nil {
			uart.Output.Write([]byte{data})
		}
	case UARTRegIER:
		if uart.dlabSet() {
			uart.DLH = data
			break
		}
		uart.IER = data
		uart.refreshInterrupt()
	case UARTRegFCR:
		uart.FCR = data
		if data&0x01 != 0 && data&0x02 != 0 {
			uart.rxFIFO = nil // FIFO enable + clear
		}
	case UARTRegLCR:
		uart.LCR = data
	case UARTRegMCR:
		uart.MCR = data
	case UARTRegSCR:
		uart.SCR = data
	}

	return nil
}

// popRx pops one byte off the head of the receive FIFO, or returns 0 if it
// is empty. The guest is expected to check LSR's data-ready bit first.
func (uart *UART) popRx() uint8 {
	if len(uart.rxFIFO) == 0 {
		uart.refreshLSR()
		return 0
	}
	b := uart.rxFIFO[0]
	uart.rxFIFO = uart.rxFIFO[1:]
	uart.refreshLSR()
	return b
}

// refreshLSR recomputes line status. The transmitter models as always ready
// since Output.Write never blocks in this emulator.
func (uart *UART) refreshLSR() {
	uart.LSR = UARTLSRTHREmpty | UARTLSRTxEmpty
	if len(uart.rxFIFO) > 0 {
		uart.LSR |= UARTLSRDataReady
	}
}

// refreshInterrupt recomputes InterruptPending from IER and the current
// FIFO/transmitter state, invoking OnInterrupt only on a change of state.
func (uart *UART) refreshInterrupt() {
	pending := false

	switch {
	case uart.IER&uartIERRxAvailable != 0 && len(uart.rxFIFO) > 0:
		pending = true
		uart.IIR = uartIIRRxAvailable
	case uart.IER&uartIERTHREmpty != 0:
		pending = true
		uart.IIR = uartIIRTHREmpty
	default:
		uart.IIR = UARTIIRNoInterrupt
	}

	if pending != uart.InterruptPending {
		uart.InterruptPending = pending
		if uart.OnInterrupt != nil {
			uart.OnInterrupt(pending)
		}
	}
}

// EnqueueInput appends bytes to the receive FIFO for the guest to read back
// one byte at a time through RBR. uart.Input itself is never read here; the
// bus has no way to block a guest load on blocking I/O.
func (uart *UART) EnqueueInput(data []byte) {
	uart.rxFIFO = append(uart.rxFIFO, data...)
	uart.refreshLSR()
	uart.refreshInterrupt()
}

var _ Device = (*UART)(nil)
