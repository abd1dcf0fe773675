package riscv

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Loader errors, returned by LoadELF before CPU state is touched. Segments
// copied into DRAM before a failing one stay there.
var (
	ErrNotELF             = errors.New("riscv: not an ELF image")
	ErrUnsupportedMachine = errors.New("riscv: unsupported ELF machine (want 64-bit RISC-V)")
	ErrSegmentOutOfDRAM   = errors.New("riscv: loadable segment falls outside DRAM")
)

// LoadELF parses a 64-bit RISC-V ELF image, copies its loadable segments
// into e's DRAM, places callData at the fixed call-data offset prefixed by
// its 8-byte little-endian length, and initializes CPU state per the guest
// ABI: PC at the entry point, sp at the top of DRAM, a0 pointing at the
// call-data buffer, machine-mode privilege, architectural CSR reset values.
func (e *Emulator) LoadELF(image io.ReaderAt, callData []byte) error {
	f, err := elf.NewFile(image)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return ErrUnsupportedMachine
	}

	ramSize := e.Bus.RAM.Size()

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Memsz == 0 {
			continue
		}
		if prog.Filesz > prog.Memsz {
			return fmt.Errorf("riscv: segment file size %#x exceeds mem size %#x", prog.Filesz, prog.Memsz)
		}

		start := prog.Vaddr - RAMBase
		end := start + prog.Memsz
		if prog.Vaddr < RAMBase || end > ramSize {
			return fmt.Errorf("%w: vaddr=%#x memsz=%#x", ErrSegmentOutOfDRAM, prog.Vaddr, prog.Memsz)
		}

		dst := e.Bus.RAM.Slice(start, prog.Memsz)
		for i := range dst {
			dst[i] = 0
		}
		if prog.Filesz > 0 {
			data := make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(data, 0); err != nil {
				return fmt.Errorf("riscv: read segment at %#x: %w", prog.Off, err)
			}
			copy(dst, data)
		}
	}

	dataOffset := e.IOBufferOffset()
	var lenPrefix [8]byte
	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(len(callData)))
	copy(e.Bus.RAM.Slice(dataOffset, 8), lenPrefix[:])
	if len(callData) > 0 {
		copy(e.Bus.RAM.Slice(dataOffset+8, uint64(len(callData))), callData)
	}

	e.CPU.Reset()
	e.CPU.PC = f.Entry
	e.CPU.X[RegSP] = RAMBase + ramSize
	e.CPU.WriteReg(RegA0, RAMBase+dataOffset)
	e.MMU.FlushTLB()
	e.instret = 0

	return nil
}
