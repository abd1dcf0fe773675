package riscv

import "sync"

// PLIC register windows. Real PLIC implementations support up to 1024
// sources and many contexts (one per hart per privilege level); this one
// models a single hart with two contexts, M-mode and S-mode.
const (
	PLICPriorityBase  = 0x000000
	PLICPendingBase   = 0x001000
	PLICEnableBase    = 0x002000
	PLICThresholdBase = 0x200000
	PLICContextStride = 0x1000
)

const (
	PLICMaxSources = 1024
	plicWords      = PLICMaxSources / 32

	plicContextMachine    = 0
	plicContextSupervisor = 1
	plicContexts          = 2
)

// PLIC is the Platform-Level Interrupt Controller: it arbitrates among up to
// PLICMaxSources external interrupt lines by priority and threshold, and
// raises the external-interrupt pending bit for whichever context has a
// claimable source.
type PLIC struct {
	cpu *CPU
	mu  sync.Mutex

	priority  [PLICMaxSources]uint32
	pending   [plicWords]uint32
	enable    [plicContexts][plicWords]uint32
	threshold [plicContexts]uint32
	claimed   [plicContexts]uint32
}

func NewPLIC(cpu *CPU) *PLIC {
	return &PLIC{cpu: cpu}
}

func (p *PLIC) Size() uint64 { return PLICSize }

func (p *PLIC) Read(offset uint64, size int) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case offset < PLICPendingBase:
		if source := offset / 4; source < PLICMaxSources {
			return uint64(p.priority[source]), nil
		}

	case offset < PLICEnableBase:
		if word := (offset - PLICPendingBase) / 4; word < plicWords {
			return uint64(p.pending[word]), nil
		}

	case offset < PLICThresholdBase:
		ctx, word, ok := p.enableRegister(offset)
		if ok {
			return uint64(p.enable[ctx][word]), nil
		}

	default:
		ctx, reg := p.contextRegister(offset)
		if ctx < plicContexts {
			switch reg {
			case 0:
				return uint64(p.threshold[ctx]), nil
			case 4:
				return uint64(p.claim(ctx)), nil
			}
		}
	}

	return 0, nil
}

func (p *PLIC) Write(offset uint64, size int, value uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case offset < PLICPendingBase:
		if source := offset / 4; source > 0 && source < PLICMaxSources {
			p.priority[source] = uint32(value) & 7
		}

	case offset >= PLICEnableBase && offset < PLICThresholdBase:
		if ctx, word, ok := p.enableRegister(offset); ok {
			p.enable[ctx][word] = uint32(value)
		}

	case offset >= PLICThresholdBase:
		ctx, reg := p.contextRegister(offset)
		if ctx < plicContexts {
			switch reg {
			case 0:
				p.threshold[ctx] = uint32(value) & 7
			case 4:
				p.complete(ctx, uint32(value))
			}
		}
	}

	p.refreshPendingInterrupts()
	return nil
}

func (p *PLIC) enableRegister(offset uint64) (ctx, word uint64, ok bool) {
	rel := offset - PLICEnableBase
	ctx, word = rel/0x80, (rel%0x80)/4
	return ctx, word, ctx < plicContexts && word < plicWords
}

func (p *PLIC) contextRegister(offset uint64) (ctx, reg uint64) {
	rel := offset - PLICThresholdBase
	return rel / PLICContextStride, rel % PLICContextStride
}

// SetPending raises or lowers an interrupt source's pending bit from device
// code outside the PLIC (a UART, say, signalling data-ready).
func (p *PLIC) SetPending(source uint32, pending bool) {
	if source == 0 || source >= PLICMaxSources {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	word, bit := source/32, source%32
	if pending {
		p.pending[word] |= 1 << bit
	} else {
		p.pending[word] &^= 1 << bit
	}
	p.refreshPendingInterrupts()
}

// claim picks the highest-priority source that is pending, enabled for ctx,
// and above ctx's threshold, clears its pending bit, and records it as
// claimed until the handler calls complete.
func (p *PLIC) claim(ctx uint64) uint32 {
	var best, bestPriority uint32

	for source := uint32(1); source < PLICMaxSources; source++ {
		if !p.sourceEligible(ctx, source) {
			continue
		}
		// RISC-V PLIC semantics: higher priority number wins.
		if priority := p.priority[source]; priority > bestPriority {
			bestPriority, best = priority, source
		}
	}

	if best != 0 {
		word, bit := best/32, best%32
		p.pending[word] &^= 1 << bit
		p.claimed[ctx] = best
	}

	p.refreshPendingInterrupts()
	return best
}

// complete acknowledges that ctx finished handling source by clearing ctx's
// claim record if it names source. The claim record does not gate SetPending
// or claim: a source can become pending and be claimed again before it is
// completed.
func (p *PLIC) complete(ctx uint64, source uint32) {
	if source == 0 || source >= PLICMaxSources {
		return
	}
	if p.claimed[ctx] == source {
		p.claimed[ctx] = 0
	}
	p.refreshPendingInterrupts()
}

func (p *PLIC) sourceEligible(ctx uint64, source uint32) bool {
	word, bit := source/32, source%32
	if p.pending[word]&(1<<bit) == 0 {
		return false
	}
	if p.enable[ctx][word]&(1<<bit) == 0 {
		return false
	}
	return p.priority[source] > p.threshold[ctx]
}

// refreshPendingInterrupts recomputes MEIP/SEIP from scratch. Cheap enough
// for the source counts this emulator deals with; a real PLIC would track
// this incrementally.
func (p *PLIC) refreshPendingInterrupts() {
	if p.contextHasClaimable(plicContextMachine) {
		p.cpu.SetMip(p.cpu.Mip() | MipMEIP)
	} else {
		p.cpu.SetMip(p.cpu.Mip() &^ MipMEIP)
	}

	if p.contextHasClaimable(plicContextSupervisor) {
		p.cpu.SetMip(p.cpu.Mip() | MipSEIP)
	} else {
		p.cpu.SetMip(p.cpu.Mip() &^ MipSEIP)
	}
}

func (p *PLIC) contextHasClaimable(ctx uint64) bool {
	for source := uint32(1); source < PLICMaxSources; source++ {
		if p.sourceEligible(ctx, source) {
			return true
		}
	}
	return false
}

var _ Device = (*PLIC)(nil)
