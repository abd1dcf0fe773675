package riscv

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
)

// InterruptBatch is the default number of retired instructions between
// device ticks. Pending interrupts are still checked before every
// instruction; only device ticks are batched.
const InterruptBatch = 1000

// StopReason classifies why Run or Step returned control to the host.
type StopReason int

const (
	// StopHostCall means the guest issued a machine-mode ecall that is not
	// the reserved halt selector; Selector and the argument registers
	// (readable from Emulator.CPU.X) describe the request.
	StopHostCall StopReason = iota
	// StopHalted means the guest invoked the reserved halt selector;
	// ExitCode carries the guest's a0 at the time of the call.
	StopHalted
	// StopTimedOut means the instruction budget passed to Run was exhausted.
	StopTimedOut
)

func (r StopReason) String() string {
	switch r {
	case StopHostCall:
		return "HostCall"
	case StopHalted:
		return "Halted"
	case StopTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// RunResult is the outcome of Run or Step: exactly one host-visible event
// per call, one of Halted/HostCall/TimedOut. Architectural exceptions are
// not reported here — they enter the trap pipeline and are invisible to the
// host unless the guest mishandles them.
type RunResult struct {
	Reason      StopReason
	Selector    uint64 // valid when Reason == StopHostCall
	ExitCode    uint64 // valid when Reason == StopHalted
	Instret     uint64 // instructions retired so far in this emulator's life
}

// SelectorHalt is the reserved syscall selector a guest invokes to signal
// successful (or explicit) termination; it is not part of the host syscall
// enumeration in the syscall boundary table because the emulator itself
// recognizes it, rather than forwarding it to the host.
const SelectorHalt uint64 = 0

// Integer register ABI names used at the syscall boundary.
const (
	RegT0 = 5
	RegA0 = 10
	RegA1 = 11
	RegA2 = 12
	RegA3 = 13
	RegA4 = 14
	RegA5 = 15
	RegA6 = 16
	RegSP = 2
)

// IOBufferOffset is the DRAM offset (not an absolute address) of the
// variable-length syscall I/O region, fixed at 20 MiB below the top of
// DRAM per the syscall boundary's register convention.
func (e *Emulator) IOBufferOffset() uint64 {
	return e.Bus.RAM.Size() - IOBufferSize
}

// IOBufferAddr is the absolute physical address of the I/O region.
func (e *Emulator) IOBufferAddr() uint64 {
	return RAMBase + e.IOBufferOffset()
}

// Emulator owns a CPU, the bus it executes against (DRAM plus devices), and
// the MMU used to translate every fetch, load, store and AMO. It is driven
// exclusively by one host goroutine; nothing inside it spawns concurrency of
// its own.
type Emulator struct {
	CPU   *CPU
	Bus   *Bus
	MMU   *MMU
	CLINT *CLINT
	PLIC  *PLIC
	UART  *UART
	Block *BlockDevice

	// Log receives one Info record per host syscall dispatch and per guest
	// halt, and one Debug record per device tick; trap entries and device
	// interrupt edges are not logged. nil disables logging entirely, since
	// the core emulator is a library first and must not require a logger.
	Log *slog.Logger

	instret uint64

	// batchSize is the number of retired instructions between device
	// ticks; defaults to InterruptBatch, overridable via a Config's
	// batch_size field.
	batchSize uint64

	// External interrupt source numbers wired to the PLIC.
	uartIRQ  uint32
	blockIRQ uint32
}

// SetLogger installs a structured logger. Passing nil silences logging.
func (e *Emulator) SetLogger(log *slog.Logger) {
	e.Log = log
}

func (e *Emulator) logDebug(msg string, args ...any) {
	if e.Log != nil {
		e.Log.Debug(msg, args...)
	}
}

func (e *Emulator) logInfo(msg string, args ...any) {
	if e.Log != nil {
		e.Log.Info(msg, args...)
	}
}

// NewEmulator constructs an emulator with ramSize bytes of guest DRAM and
// the standard device set (CLINT, PLIC, UART, block device) mapped at their
// fixed windows. uartIn/uartOut wire the serial console to the host; disk
// may be nil if the guest has no block device attached.
func NewEmulator(ramSize uint64, uartIn io.Reader, uartOut io.Writer, disk ReadWriterAt, diskSize uint64) (*Emulator, error) {
	bus, err := NewBus(ramSize)
	if err != nil {
		return nil, fmt.Errorf("create bus: %w", err)
	}

	cpu := NewCPU(bus)
	mmu := NewMMU(cpu)

	e := &Emulator{
		CPU:       cpu,
		Bus:       bus,
		MMU:       mmu,
		batchSize: InterruptBatch,
	}

	e.CLINT = NewCLINT(cpu)
	bus.AddDevice(CLINTBase, e.CLINT)

	e.PLIC = NewPLIC(cpu)
	bus.AddDevice(PLICBase, e.PLIC)

	e.UART = NewUART(uartOut, uartIn)
	e.uartIRQ = 1
	e.UART.OnInterrupt = func(pending bool) { e.PLIC.SetPending(e.uartIRQ, pending) }
	bus.AddDevice(UARTBase, e.UART)

	if disk != nil {
		e.Block = NewBlockDevice(disk)
		e.Block.BindMemory(bus.RAM, diskSize)
		e.blockIRQ = 2
		e.Block.OnInterrupt = func(pending bool) { e.PLIC.SetPending(e.blockIRQ, pending) }
		bus.AddDevice(VirtIOBase, e.Block)
	}

	return e, nil
}

// NewEmulatorFromConfig builds an emulator the way NewEmulator does, but
// takes its DRAM size and interrupt/tick batch size from a parsed machine
// descriptor instead of positional arguments.
func NewEmulatorFromConfig(cfg Config, uartIn io.Reader, uartOut io.Writer, disk ReadWriterAt, diskSize uint64) (*Emulator, error) {
	cfg.applyDefaults()
	e, err := NewEmulator(cfg.DRAMSize, uartIn, uartOut, disk, diskSize)
	if err != nil {
		return nil, err
	}
	e.batchSize = cfg.BatchSize
	return e, nil
}

// Close releases host resources (the mmapped DRAM) held by the emulator.
func (e *Emulator) Close() error {
	return e.Bus.RAM.Close()
}

// Reset returns the CPU to its power-on state (PC at RAMBase, registers and
// CSRs cleared), flushes the TLB and zeroes the retired-instruction count,
// without reallocating DRAM. DRAM contents are left as they are; LoadELF
// loads a new image and call data into the same emulator.
func (e *Emulator) Reset() {
	e.CPU.Reset()
	e.MMU.FlushTLB()
	e.instret = 0
}

// Resume writes a host-call result back into the guest's registers and
// advances PC past the ecall that produced the StopHostCall, so the next
// call to Run/Step continues with the following instruction. a0 and a1 are
// the two scalar return values written to those registers; for syscalls that
// return a variable-length payload, the host must have already written it
// into the I/O region before calling Resume.
func (e *Emulator) Resume(a0, a1 uint64) {
	e.CPU.WriteReg(RegA0, a0)
	e.CPU.WriteReg(RegA1, a1)
	e.CPU.PC += 4
}

// Run executes until the next host-visible event or until budget
// instructions have retired, whichever comes first. A budget of zero means
// unbounded.
func (e *Emulator) Run(budget uint64) (*RunResult, error) {
	var executed uint64
	for {
		if budget != 0 && executed >= budget {
			return &RunResult{Reason: StopTimedOut, Instret: e.instret}, nil
		}

		result, err := e.step()
		if err != nil {
			return nil, err
		}
		executed++
		if result != nil {
			return result, nil
		}
	}
}

// Step executes exactly one instruction, or returns a RunResult if that
// instruction produced a host-visible event.
func (e *Emulator) Step() (*RunResult, error) {
	return e.step()
}

// step performs fetch/decode/execute for one instruction, handles the
// resulting trap (if any), and reports a host-visible event when the
// instruction was a machine-mode ecall.
func (e *Emulator) step() (*RunResult, error) {
	if e.CPU.WFI {
		e.pollInterrupts()
		if e.CPU.WFI {
			e.instret++
			if e.instret%e.batchSize == 0 {
				e.tickDevices()
			}
			return nil, nil
		}
		// An interrupt just cleared WFI; fall through to take it below.
	}

	if fired, cause := e.CPU.CheckInterrupt(); fired {
		e.CPU.WFI = false
		e.CPU.HandleTrap(cause, 0)
		return nil, nil
	}

	insn, fetchErr := e.fetch()
	if fetchErr != nil {
		if ex, ok := fetchErr.(ExceptionError); ok {
			e.CPU.HandleTrap(ex.Cause, ex.Tval)
			return nil, nil
		}
		return nil, fetchErr
	}

	pcBefore := e.CPU.PC
	execErr := e.CPU.Execute(insn.word)

	if execErr == nil {
		// Jumps, taken branches and CSR-driven PC changes set PC themselves;
		// anything that left PC untouched falls through by the instruction's
		// encoded width.
		if e.CPU.PC == pcBefore {
			e.CPU.PC += uint64(insn.size)
		}
		if insn.word&0xfe00707f == 0x12000073 { // SFENCE.VMA
			e.MMU.FlushTLB()
		}
	} else if ex, ok := execErr.(ExceptionError); ok {
		if ex.Cause == CauseEcallFromM {
			return e.hostCall(), nil
		}
		e.CPU.HandleTrap(ex.Cause, ex.Tval)
	} else {
		return nil, execErr
	}

	e.instret++
	if e.instret%e.batchSize == 0 {
		e.tickDevices()
	}
	return nil, nil
}

// hostCall reads the syscall selector and classifies it as halt or a
// forwarded host call. PC is left pointing at the ecall; Resume (for
// HostCall) or the caller (for Halted) is responsible for advancing it.
func (e *Emulator) hostCall() *RunResult {
	selector := e.CPU.ReadReg(RegT0)
	if selector == SelectorHalt {
		e.logInfo("guest halted", "exit_code", e.CPU.ReadReg(RegA0), "instret", e.instret)
		return &RunResult{Reason: StopHalted, ExitCode: e.CPU.ReadReg(RegA0), Instret: e.instret}
	}
	e.logInfo("host syscall dispatched", "selector", selector, "instret", e.instret)
	return &RunResult{Reason: StopHostCall, Selector: selector, Instret: e.instret}
}

// fetchedInsn carries the raw 32-bit (possibly expanded) instruction word
// together with its original encoded size, so the caller advances PC by 2
// for compressed encodings and 4 otherwise, unless execution itself moved PC.
type fetchedInsn struct {
	word uint32
	size int
}

// fetch translates PC, reads the instruction bytes through the bus, and
// expands a compressed 16-bit encoding to its 32-bit equivalent.
func (e *Emulator) fetch() (fetchedInsn, error) {
	paddr, err := e.MMU.TranslateFetch(e.CPU.PC)
	if err != nil {
		return fetchedInsn{}, err
	}

	lo, err := e.Bus.Read16(paddr)
	if err != nil {
		return fetchedInsn{}, Exception(CauseInsnAccessFault, e.CPU.PC)
	}

	if lo&0x3 != 0x3 {
		expanded, err := e.CPU.ExpandCompressed(lo)
		if err != nil {
			return fetchedInsn{}, err
		}
		return fetchedInsn{word: expanded, size: 2}, nil
	}

	paddrHi, err := e.MMU.TranslateFetch(e.CPU.PC + 2)
	if err != nil {
		return fetchedInsn{}, err
	}
	hi, err := e.Bus.Read16(paddrHi)
	if err != nil {
		return fetchedInsn{}, Exception(CauseInsnAccessFault, e.CPU.PC+2)
	}
	word := uint32(lo) | uint32(hi)<<16
	return fetchedInsn{word: word, size: 4}, nil
}

// pollInterrupts checks whether a pending-and-enabled interrupt exists,
// clearing WFI if so; devices still only get ticked on the usual batch
// boundary, matching real hardware where WFI wakes on the interrupt bit
// going pending, not on an explicit device poll.
func (e *Emulator) pollInterrupts() {
	if fired, _ := e.CPU.CheckInterrupt(); fired {
		e.CPU.WFI = false
	}
}

// tickDevices advances every device's time-driven state once per
// batchSize retired instructions.
func (e *Emulator) tickDevices() {
	e.logDebug("device tick", "instret", e.instret)
	if e.CLINT != nil {
		e.CLINT.Tick()
	}
}

// ReadIOBuffer reads length bytes from the syscall I/O region.
func (e *Emulator) ReadIOBuffer(length uint64) []byte {
	buf := make([]byte, length)
	copy(buf, e.Bus.RAM.Slice(e.IOBufferOffset(), length))
	return buf
}

// WriteIOBuffer writes data into the syscall I/O region.
func (e *Emulator) WriteIOBuffer(data []byte) {
	copy(e.Bus.RAM.Slice(e.IOBufferOffset(), uint64(len(data))), data)
}

// ReadLimbs reads n consecutive little-endian 64-bit limbs starting at
// offset within the I/O region, used for the 256-bit and address
// marshalling conventions in the syscall boundary.
func (e *Emulator) ReadLimbs(offset uint64, n int) []uint64 {
	limbs := make([]uint64, n)
	base := e.IOBufferOffset() + offset
	for i := 0; i < n; i++ {
		limbs[i] = binary.LittleEndian.Uint64(e.Bus.RAM.Slice(base+uint64(i)*8, 8))
	}
	return limbs
}

// WriteLimbs writes limbs as consecutive little-endian 64-bit words starting
// at offset within the I/O region.
func (e *Emulator) WriteLimbs(offset uint64, limbs []uint64) {
	base := e.IOBufferOffset() + offset
	for i, v := range limbs {
		binary.LittleEndian.PutUint64(e.Bus.RAM.Slice(base+uint64(i)*8, 8), v)
	}
}
