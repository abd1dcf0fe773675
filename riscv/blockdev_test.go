package riscv

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// memRegion is a minimal in-memory ReaderAt/WriterAt used to stand in for
// both the guest DRAM and the backing disk image in these tests.
type memRegion struct {
	buf []byte
}

func (m *memRegion) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.buf[off:]), nil
}

func (m *memRegion) WriteAt(p []byte, off int64) (int, error) {
	return copy(m.buf[off:], p), nil
}

func putDesc(mem *memRegion, descTable uint64, idx uint16, addr uint64, length uint32, flags, next uint16) {
	off := int64(descTable + uint64(idx)*16)
	binary.LittleEndian.PutUint64(mem.buf[off:], addr)
	binary.LittleEndian.PutUint32(mem.buf[off+8:], length)
	binary.LittleEndian.PutUint16(mem.buf[off+12:], flags)
	binary.LittleEndian.PutUint16(mem.buf[off+14:], next)
}

// A full round trip through the legacy virtio register file: a VIRTIO_BLK_T_IN
// request reads a sector from the backing disk into a guest buffer, records
// completion on the used ring, raises isr, and signals the interrupt callback.
func TestBlockDeviceServicesReadRequest(t *testing.T) {
	diskData := bytes.Repeat([]byte{0xAB}, blockSectorSize)
	disk := &memRegion{buf: append([]byte{}, diskData...)}
	mem := &memRegion{buf: make([]byte, 16*1024)}

	dev := NewBlockDevice(disk)
	dev.BindMemory(mem, uint64(len(disk.buf)))

	var interrupted bool
	dev.OnInterrupt = func(pending bool) { interrupted = pending }

	const (
		queueNum  = 4
		pfn       = 1
		descTable = pfn * 4096
		availRing = descTable + queueNum*16
		usedRing  = 8192 // alignUp(descTable+legacyUsedRingOffset(4), 4096)
		headerAddr = 9000
		dataAddr   = 9100
		statusAddr = 9700
	)

	if err := dev.Write(virtioQueueNum, 4, queueNum); err != nil {
		t.Fatalf("set queue num: %v", err)
	}
	if err := dev.Write(virtioQueuePFN, 4, pfn); err != nil {
		t.Fatalf("set queue pfn: %v", err)
	}

	// Descriptor chain: request header -> writable data buffer -> writable status byte.
	putDesc(mem, descTable, 0, headerAddr, 16, vringDescFNext, 1)
	putDesc(mem, descTable, 1, dataAddr, blockSectorSize, vringDescFNext|vringDescFWrite, 2)
	putDesc(mem, descTable, 2, statusAddr, 1, vringDescFWrite, 0)

	// Request header: type=VIRTIO_BLK_T_IN, reserved, sector=0.
	binary.LittleEndian.PutUint32(mem.buf[headerAddr:], virtioBlkTIn)
	binary.LittleEndian.PutUint64(mem.buf[headerAddr+8:], 0)

	// Avail ring: one entry (head=0), idx=1.
	binary.LittleEndian.PutUint16(mem.buf[availRing+4:], 0)
	binary.LittleEndian.PutUint16(mem.buf[availRing+2:], 1)

	if err := dev.Write(virtioQueueNotify, 4, 0); err != nil {
		t.Fatalf("notify queue: %v", err)
	}

	if got := mem.buf[dataAddr : dataAddr+blockSectorSize]; !bytes.Equal(got, diskData) {
		t.Errorf("data buffer: expected the disk's sector contents, got mismatched bytes")
	}
	if mem.buf[statusAddr] != virtioBlkSOK {
		t.Errorf("status byte: expected VIRTIO_BLK_S_OK, got %d", mem.buf[statusAddr])
	}

	usedIdx := binary.LittleEndian.Uint16(mem.buf[usedRing+2:])
	if usedIdx != 1 {
		t.Errorf("used ring index: expected 1, got %d", usedIdx)
	}

	isr, err := dev.Read(virtioInterruptStatus, 4)
	if err != nil {
		t.Fatalf("read isr: %v", err)
	}
	if isr != 1 {
		t.Errorf("isr: expected 1, got %d", isr)
	}
	if !interrupted {
		t.Errorf("expected OnInterrupt to fire with pending=true")
	}
}

// A VIRTIO_BLK_T_OUT request copies a guest buffer onto the backing disk.
func TestBlockDeviceServicesWriteRequest(t *testing.T) {
	disk := &memRegion{buf: make([]byte, blockSectorSize)}
	mem := &memRegion{buf: make([]byte, 16*1024)}

	dev := NewBlockDevice(disk)
	dev.BindMemory(mem, uint64(len(disk.buf)))

	const (
		queueNum   = 4
		pfn        = 1
		descTable  = pfn * 4096
		availRing  = descTable + queueNum*16
		headerAddr = 9000
		dataAddr   = 9100
		statusAddr = 9700
	)

	if err := dev.Write(virtioQueueNum, 4, queueNum); err != nil {
		t.Fatalf("set queue num: %v", err)
	}
	if err := dev.Write(virtioQueuePFN, 4, pfn); err != nil {
		t.Fatalf("set queue pfn: %v", err)
	}

	putDesc(mem, descTable, 0, headerAddr, 16, vringDescFNext, 1)
	putDesc(mem, descTable, 1, dataAddr, blockSectorSize, vringDescFNext, 2)
	putDesc(mem, descTable, 2, statusAddr, 1, vringDescFWrite, 0)

	binary.LittleEndian.PutUint32(mem.buf[headerAddr:], virtioBlkTOut)
	binary.LittleEndian.PutUint64(mem.buf[headerAddr+8:], 0)

	payload := bytes.Repeat([]byte{0xCD}, blockSectorSize)
	copy(mem.buf[dataAddr:], payload)

	binary.LittleEndian.PutUint16(mem.buf[availRing+4:], 0)
	binary.LittleEndian.PutUint16(mem.buf[availRing+2:], 1)

	if err := dev.Write(virtioQueueNotify, 4, 0); err != nil {
		t.Fatalf("notify queue: %v", err)
	}

	if !bytes.Equal(disk.buf, payload) {
		t.Errorf("disk contents: expected the guest's payload to be written through")
	}
	if mem.buf[statusAddr] != virtioBlkSOK {
		t.Errorf("status byte: expected VIRTIO_BLK_S_OK, got %d", mem.buf[statusAddr])
	}
}
