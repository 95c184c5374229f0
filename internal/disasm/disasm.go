// Package disasm decodes RISC-V instructions out of a program's memory image.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/maypok86/otter"
	"golang.org/x/arch/riscv64/riscv64asm"
)

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint32 // virtual address of instruction
	Text string // formatted disassembly string
	Op   string // mnemonic in lowercase, empty when undecodable
	Len  int    // 2 for compressed encodings, else 4
	Raw  uint32 // raw encoding, low half only for compressed ones
}

// Known reports whether the encoding decoded to a real instruction.
func (i Inst) Known() bool { return i.Op != "" }

// Stream is a linear sequence of instructions.
type Stream []Inst

// Reader is the memory a Decoder fetches from.
type Reader interface {
	Read(addr uint32, buf []byte) int
}

// Decode decodes the instruction at the start of raw, which must hold at
// least two bytes.
func Decode(va uint32, raw []byte) Inst {
	word := uint32(binary.LittleEndian.Uint16(raw))
	n := 2
	if word&3 == 3 && len(raw) >= 4 {
		word = binary.LittleEndian.Uint32(raw)
		n = 4
	}
	inst, err := riscv64asm.Decode(raw[:n])
	if err != nil || inst.Len == 0 {
		if n == 2 {
			return Inst{VA: va, Text: fmt.Sprintf(".half 0x%04x", word), Len: 2, Raw: word}
		}
		return Inst{VA: va, Text: fmt.Sprintf(".word 0x%08x", word), Len: 4, Raw: word}
	}
	return Inst{
		VA:   va,
		Text: riscv64asm.GNUSyntax(inst),
		Op:   strings.ToLower(inst.Op.String()),
		Len:  inst.Len,
		Raw:  word,
	}
}

// Decoder decodes instructions from memory and remembers them by address.
// The memory is assumed not to change.
type Decoder struct {
	mem   Reader
	cache otter.Cache[uint32, Inst]
}

// DefaultCacheSize is the number of decoded instructions a Decoder keeps.
const DefaultCacheSize = 1 << 14

func NewDecoder(mem Reader, size int) (*Decoder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := otter.MustBuilder[uint32, Inst](size).Build()
	if err != nil {
		return nil, fmt.Errorf("build instruction cache: %w", err)
	}
	return &Decoder{mem: mem, cache: cache}, nil
}

// At decodes the instruction at va. Unmapped memory decodes as zero bytes.
func (d *Decoder) At(va uint32) Inst {
	if inst, ok := d.cache.Get(va); ok {
		return inst
	}
	var raw [4]byte
	d.mem.Read(va, raw[:])
	inst := Decode(va, raw[:])
	d.cache.Set(va, inst)
	return inst
}

// Range decodes n consecutive instructions starting at va.
func (d *Decoder) Range(va uint32, n int) Stream {
	out := make(Stream, 0, n)
	for i := 0; i < n; i++ {
		inst := d.At(va)
		out = append(out, inst)
		va += uint32(inst.Len)
	}
	return out
}

// Close releases the cache.
func (d *Decoder) Close() {
	d.cache.Close()
}
