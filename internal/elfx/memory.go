package elfx

import (
	"encoding/binary"
	"sort"
)

// Region is one contiguous block of initialised memory.
type Region struct {
	Name string
	Base uint32
	Data []byte
}

// End is one past the last mapped address, in 64 bits so a region ending at
// the top of the address space does not wrap.
func (r Region) End() uint64 { return uint64(r.Base) + uint64(len(r.Data)) }

// Memory is a read-only sparse view of a program's initial memory.
// Unmapped addresses read as zero.
type Memory struct {
	regions []Region
}

func NewMemory() *Memory {
	return &Memory{}
}

// Add maps data at base. Where regions overlap, the one with the higher
// base wins; between equal bases the one added last wins.
func (m *Memory) Add(name string, base uint32, data []byte) {
	m.regions = append(m.regions, Region{Name: name, Base: base, Data: data})
	sort.SliceStable(m.regions, func(i, j int) bool { return m.regions[i].Base < m.regions[j].Base })
}

// Regions lists the mapped regions ordered by base address.
func (m *Memory) Regions() []Region {
	return m.regions
}

// Read fills buf from addr and returns how many bytes came from mapped
// regions. The rest of buf is zeroed.
func (m *Memory) Read(addr uint32, buf []byte) int {
	clear(buf)
	mapped := 0
	start := uint64(addr)
	end := start + uint64(len(buf))
	covered := start
	for _, r := range m.regions {
		lo := max(start, uint64(r.Base))
		hi := min(end, r.End())
		if lo >= hi {
			continue
		}
		copy(buf[lo-start:hi-start], r.Data[lo-uint64(r.Base):])
		// Regions are sorted by base, so lo never decreases.
		if from := max(lo, covered); hi > from {
			mapped += int(hi - from)
			covered = hi
		}
	}
	return mapped
}

// ReadUint32 reads a little-endian word and reports whether all four bytes
// were mapped.
func (m *Memory) ReadUint32(addr uint32) (uint32, bool) {
	var b [4]byte
	n := m.Read(addr, b[:])
	return binary.LittleEndian.Uint32(b[:]), n == len(b)
}

// Mapped reports whether addr lies in any region.
func (m *Memory) Mapped(addr uint32) bool {
	for _, r := range m.regions {
		if uint64(addr) >= uint64(r.Base) && uint64(addr) < r.End() {
			return true
		}
	}
	return false
}
