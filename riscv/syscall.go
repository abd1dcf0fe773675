package riscv

import "encoding/binary"

// Host syscall selectors, read from t0 at a machine-mode ecall. The
// emulator never interprets these beyond routing the trap to the host as a
// StopHostCall; the enumeration here exists so host implementations and
// tests share one vocabulary for it.
const (
	SyscallBalance               uint64 = 10
	SyscallLoadCode              uint64 = 11
	SyscallLoadCodeHash          uint64 = 12
	SyscallBlockNumber           uint64 = 13
	SyscallBlockHash             uint64 = 14
	SyscallSload                 uint64 = 15
	SyscallSstore                uint64 = 16
	SyscallTload                 uint64 = 17
	SyscallTstore                uint64 = 18
	SyscallLoadAccountDelegated  uint64 = 19
	SyscallSelfdestruct          uint64 = 20
	SyscallReturnCreateAddress   uint64 = 0x01
)

// IsEVMOpcodeSyscall reports whether selector falls in the EVM-opcode host
// call range (hash, call, create, return, revert, log, and similar
// opcodes the host, not the emulator, interprets).
func IsEVMOpcodeSyscall(selector uint64) bool {
	return selector >= 0x20 && selector <= 0xFF
}

// Address is a 20-byte account address, marshalled across the syscall
// boundary as three 64-bit limbs (low 8 bytes, next 8 bytes, top 4 bytes
// zero-extended to a limb).
type Address [20]byte

// AddressToLimbs splits addr into the three-limb register convention used
// for address-valued syscall arguments and results.
func AddressToLimbs(addr Address) [3]uint64 {
	var limbs [3]uint64
	limbs[0] = leU64(addr[0:8])
	limbs[1] = leU64(addr[8:16])
	limbs[2] = uint64(addr[16]) | uint64(addr[17])<<8 | uint64(addr[18])<<16 | uint64(addr[19])<<24
	return limbs
}

// LimbsToAddress reassembles an Address from its three-limb form.
func LimbsToAddress(limbs [3]uint64) Address {
	var addr Address
	putLe64(addr[0:8], limbs[0])
	putLe64(addr[8:16], limbs[1])
	addr[16] = byte(limbs[2])
	addr[17] = byte(limbs[2] >> 8)
	addr[18] = byte(limbs[2] >> 16)
	addr[19] = byte(limbs[2] >> 24)
	return addr
}

// U256 is a 256-bit value marshalled as four little-endian 64-bit limbs,
// limb 0 being the least significant.
type U256 [4]uint64

// U256ToBytes renders v as 32 little-endian bytes.
func U256ToBytes(v U256) [32]byte {
	var out [32]byte
	for i, limb := range v {
		putLe64(out[i*8:i*8+8], limb)
	}
	return out
}

// BytesToU256 parses 32 little-endian bytes into a U256.
func BytesToU256(b [32]byte) U256 {
	var v U256
	for i := range v {
		v[i] = leU64(b[i*8 : i*8+8])
	}
	return v
}

func leU64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func putLe64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// HostRequest is the decoded view of a StopHostCall result: the selector
// plus the conventional argument registers a0..a6, handed to the host so it
// doesn't have to know the raw register numbers.
type HostRequest struct {
	Selector uint64
	Args     [7]uint64 // a0..a6
}

// DecodeHostRequest reads the syscall selector and argument registers for
// a pending StopHostCall result.
func (e *Emulator) DecodeHostRequest() HostRequest {
	req := HostRequest{Selector: e.CPU.ReadReg(RegT0)}
	for i := 0; i < 7; i++ {
		req.Args[i] = e.CPU.ReadReg(uint32(RegA0 + i))
	}
	return req
}
