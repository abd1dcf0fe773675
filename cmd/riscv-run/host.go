package main

import (
	"bytes"

	"github.com/tinyrange/riscv-cc/riscv"
)

// bytesReaderAt adapts a byte slice to io.ReaderAt for LoadELF, which takes
// the same ReaderAt contract debug/elf.NewFile expects.
func bytesReaderAt(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

// referenceHost answers the host syscall boundary from fresh, in-memory
// state for the lifetime of one process: it exists to exercise the syscall
// ABI end to end, not to be a storage engine, so sstore/tstore persist only
// until the process exits and every account starts with a zero balance.
type referenceHost struct {
	storage map[[52]byte]riscv.U256
}

func newReferenceHost() *referenceHost {
	return &referenceHost{storage: make(map[[52]byte]riscv.U256)}
}

func storageKey(addr riscv.Address, key riscv.U256) [52]byte {
	var k [52]byte
	copy(k[:20], addr[:])
	b := riscv.U256ToBytes(key)
	copy(k[20:], b[:])
	return k
}

// handle answers one host syscall and returns the scalar values to resume
// with in a0/a1, writing any variable-length result into the I/O region
// itself before returning.
func (h *referenceHost) handle(emu *riscv.Emulator, req riscv.HostRequest) (a0, a1 uint64) {
	switch req.Selector {
	case riscv.SyscallBlockNumber:
		return 0, 0

	case riscv.SyscallBalance:
		return 0, 0

	case riscv.SyscallSload:
		addr := riscv.LimbsToAddress([3]uint64{req.Args[0], req.Args[1], req.Args[2]})
		key := riscv.U256{req.Args[3], req.Args[4], req.Args[5], req.Args[6]}
		val := h.storage[storageKey(addr, key)]
		emu.WriteLimbs(0, val[:])
		return 0, 0

	case riscv.SyscallSstore:
		buf := emu.ReadIOBuffer(20 + 32 + 32)
		var addr riscv.Address
		copy(addr[:], buf[0:20])
		var keyBytes, valBytes [32]byte
		copy(keyBytes[:], buf[20:52])
		copy(valBytes[:], buf[52:84])
		key := riscv.BytesToU256(keyBytes)
		val := riscv.BytesToU256(valBytes)
		h.storage[storageKey(addr, key)] = val
		return 0, 0

	case riscv.SyscallTload, riscv.SyscallTstore, riscv.SyscallLoadCode,
		riscv.SyscallLoadCodeHash, riscv.SyscallBlockHash,
		riscv.SyscallLoadAccountDelegated, riscv.SyscallSelfdestruct,
		riscv.SyscallReturnCreateAddress:
		return 0, 0

	default:
		if riscv.IsEVMOpcodeSyscall(req.Selector) {
			return 0, 0
		}
		return 1, 0
	}
}
