package riscv

import (
	"sync/atomic"
	"time"
)

// Register offsets within the CLINT's memory-mapped window, per the
// SiFive CLINT layout: one software-interrupt bit and one timer-compare
// register per hart, plus a single shared wall-clock counter.
const (
	clintMsipOffset     = 0x0000
	clintMtimecmpOffset = 0x4000
	clintMtimeOffset    = 0xbff8
)

// CLINT is the Core Local Interruptor: it raises the machine software and
// machine timer interrupts by writing directly into the owning CPU's mip.
// There is one CLINT per hart in a real system; this emulator models a
// single hart, so msip/mtimecmp are not hart-indexed.
type CLINT struct {
	cpu *CPU

	msip     uint32 // accessed with atomic ops; may be hit from a future multi-hart tick goroutine
	mtimecmp uint64

	epoch     time.Time
	tickNanos uint64 // duration of one mtime tick
}

// NewCLINT wires a CLINT to the hart whose mip it controls. mtimecmp starts
// at its maximum value so no timer interrupt fires before software sets a
// deadline.
func NewCLINT(cpu *CPU) *CLINT {
	return &CLINT{
		cpu:       cpu,
		epoch:     time.Now(),
		tickNanos: 100, // 10 MHz
		mtimecmp:  ^uint64(0),
	}
}

func (c *CLINT) Size() uint64 { return CLINTSize }

func (c *CLINT) mtime() uint64 {
	return uint64(time.Since(c.epoch).Nanoseconds()) / c.tickNanos
}

func (c *CLINT) Read(offset uint64, size int) (uint64, error) {
	switch {
	case within(offset, clintMsipOffset, 4):
		return uint64(atomic.LoadUint32(&c.msip)), nil
	case within(offset, clintMtimecmpOffset, 8):
		return c.mtimecmp, nil
	case within(offset, clintMtimeOffset, 8):
		return c.mtime(), nil
	default:
		return 0, nil
	}
}

func (c *CLINT) Write(offset uint64, size int, value uint64) error {
	switch {
	case within(offset, clintMsipOffset, 4):
		c.writeMsip(value)
	case within(offset, clintMtimecmpOffset, 8):
		c.writeMtimecmp(offset, size, value)
	}
	return nil
}

func (c *CLINT) writeMsip(value uint64) {
	if value&1 != 0 {
		atomic.StoreUint32(&c.msip, 1)
		c.cpu.SetMip(c.cpu.Mip() | MipMSIP)
	} else {
		atomic.StoreUint32(&c.msip, 0)
		c.cpu.SetMip(c.cpu.Mip() &^ MipMSIP)
	}
}

func (c *CLINT) writeMtimecmp(offset uint64, size int, value uint64) {
	switch {
	case size == 4 && offset == clintMtimecmpOffset: // low word
		c.mtimecmp = (c.mtimecmp &^ 0xffffffff) | (value & 0xffffffff)
	case size == 4: // high word
		c.mtimecmp = (c.mtimecmp &^ (0xffffffff << 32)) | ((value & 0xffffffff) << 32)
	default:
		c.mtimecmp = value
	}
	if c.mtimecmp > c.mtime() {
		c.cpu.SetMip(c.cpu.Mip() &^ MipMTIP)
	}
}

// Tick re-evaluates the timer comparison and raises MTIP once mtime has
// caught up to mtimecmp. Call this regularly from the emulator's run loop;
// the CLINT has no timer of its own, only a comparison.
func (c *CLINT) Tick() {
	if c.mtime() >= c.mtimecmp {
		c.cpu.SetMip(c.cpu.Mip() | MipMTIP)
	}
}

func within(offset, base, width uint64) bool {
	return offset >= base && offset < base+width
}

var _ Device = (*CLINT)(nil)
