package riscv

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// DRAM is the contiguous guest-physical memory region mapped at RAMBase.
// The backing store is an anonymous mmap rather than a plain byte slice so
// that large guest images don't force the allocator to zero and copy a
// single giant slice up front, and so the region can later be handed to the
// host's page-reclaim policy via madvise.
type DRAM struct {
	data []byte
}

// NewDRAM mmaps size bytes of zeroed, anonymous memory to back guest RAM.
func NewDRAM(size uint64) (*DRAM, error) {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap dram: %w", err)
	}
	_ = unix.Madvise(mem, unix.MADV_MERGEABLE)
	return &DRAM{data: mem}, nil
}

// Close releases the backing mapping. The emulator that owns this DRAM must
// not be used afterward.
func (d *DRAM) Close() error {
	if d.data == nil {
		return nil
	}
	err := unix.Munmap(d.data)
	d.data = nil
	return err
}

// Size implements Device.
func (d *DRAM) Size() uint64 { return uint64(len(d.data)) }

// Read implements Device: width-addressed, little-endian, bounds-checked.
func (d *DRAM) Read(offset uint64, size int) (uint64, error) {
	if offset+uint64(size) > uint64(len(d.data)) {
		return 0, fmt.Errorf("dram read out of bounds: offset=0x%x size=%d len=%d", offset, size, len(d.data))
	}
	switch size {
	case 1:
		return uint64(d.data[offset]), nil
	case 2:
		return uint64(cpuEndian.Uint16(d.data[offset:])), nil
	case 4:
		return uint64(cpuEndian.Uint32(d.data[offset:])), nil
	case 8:
		return cpuEndian.Uint64(d.data[offset:]), nil
	default:
		return 0, fmt.Errorf("invalid read size: %d", size)
	}
}

// Write implements Device.
func (d *DRAM) Write(offset uint64, size int, value uint64) error {
	if offset+uint64(size) > uint64(len(d.data)) {
		return fmt.Errorf("dram write out of bounds: offset=0x%x size=%d len=%d", offset, size, len(d.data))
	}
	switch size {
	case 1:
		d.data[offset] = byte(value)
	case 2:
		cpuEndian.PutUint16(d.data[offset:], uint16(value))
	case 4:
		cpuEndian.PutUint32(d.data[offset:], uint32(value))
	case 8:
		cpuEndian.PutUint64(d.data[offset:], value)
	default:
		return fmt.Errorf("invalid write size: %d", size)
	}
	return nil
}

// ReadAt implements io.ReaderAt over the DRAM byte range.
func (d *DRAM) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	return copy(p, d.data[off:]), nil
}

// WriteAt implements io.WriterAt over the DRAM byte range.
func (d *DRAM) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(d.data)) {
		return 0, fmt.Errorf("write offset out of bounds")
	}
	return copy(d.data[off:], p), nil
}

// Slice exposes a direct view of [offset, offset+length) for fast-path bulk
// copies (ELF segment loads, syscall I/O-region marshalling).
func (d *DRAM) Slice(offset, length uint64) []byte {
	if offset+length > uint64(len(d.data)) {
		return nil
	}
	return d.data[offset : offset+length]
}

var _ Device = (*DRAM)(nil)
