// Package elftest assembles minimal 32-bit little-endian ELF files for tests.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

type Section struct {
	Name   string
	Addr   uint32
	Data   []byte
	Flags  elf.SectionFlag
	NoBits bool
	Size   uint32 // for NoBits sections
}

type Symbol struct {
	Name    string
	Value   uint32
	Size    uint32
	Type    elf.SymType
	Section string
}

type Spec struct {
	Machine  elf.Machine // EM_RISCV when zero
	Entry    uint32
	Sections []Section
	Symbols  []Symbol
}

type strtab struct{ data []byte }

func (s *strtab) add(name string) uint32 {
	if len(s.data) == 0 {
		s.data = []byte{0}
	}
	if name == "" {
		return 0
	}
	off := uint32(len(s.data))
	s.data = append(append(s.data, name...), 0)
	return off
}

// Words encodes RISC-V instruction words little-endian.
func Words(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

// Program is a .text section at base holding words, with _start at base.
func Program(base uint32, words ...uint32) Spec {
	return Spec{
		Entry: base,
		Sections: []Section{{
			Name:  ".text",
			Addr:  base,
			Data:  Words(words...),
			Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		}},
		Symbols: []Symbol{{Name: "_start", Value: base, Size: uint32(4 * len(words)), Type: elf.STT_FUNC, Section: ".text"}},
	}
}

// Build lays out the file: header, section contents, section headers, then
// one PT_LOAD program header per allocated section.
func Build(s Spec) []byte {
	le := binary.LittleEndian
	machine := s.Machine
	if machine == 0 {
		machine = elf.EM_RISCV
	}

	out := make([]byte, 52)
	place := func(data []byte) uint32 {
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
		off := uint32(len(out))
		out = append(out, data...)
		return off
	}

	var shstr, str strtab
	shstr.add("")
	str.add("")

	headers := []elf.Section32{{}}
	index := map[string]uint16{}
	for i, sec := range s.Sections {
		h := elf.Section32{
			Name:      shstr.add(sec.Name),
			Type:      uint32(elf.SHT_PROGBITS),
			Flags:     uint32(sec.Flags),
			Addr:      sec.Addr,
			Size:      uint32(len(sec.Data)),
			Addralign: 4,
		}
		if sec.NoBits {
			h.Type = uint32(elf.SHT_NOBITS)
			h.Size = sec.Size
			h.Off = uint32(len(out))
		} else {
			h.Off = place(sec.Data)
		}
		headers = append(headers, h)
		index[sec.Name] = uint16(i + 1)
	}

	symtabIdx := len(headers)
	strtabIdx := symtabIdx + 1
	var syms bytes.Buffer
	_ = binary.Write(&syms, le, elf.Sym32{})
	for _, sym := range s.Symbols {
		// No section means undefined; an unknown name means absolute.
		shndx := uint16(elf.SHN_UNDEF)
		if sym.Section != "" {
			if i, ok := index[sym.Section]; ok {
				shndx = i
			} else {
				shndx = uint16(elf.SHN_ABS)
			}
		}
		_ = binary.Write(&syms, le, elf.Sym32{
			Name:  str.add(sym.Name),
			Value: sym.Value,
			Size:  sym.Size,
			Info:  elf.ST_INFO(elf.STB_GLOBAL, sym.Type),
			Shndx: shndx,
		})
	}
	headers = append(headers, elf.Section32{
		Name:      shstr.add(".symtab"),
		Type:      uint32(elf.SHT_SYMTAB),
		Off:       place(syms.Bytes()),
		Size:      uint32(syms.Len()),
		Link:      uint32(strtabIdx),
		Info:      1,
		Addralign: 4,
		Entsize:   elf.Sym32Size,
	})
	headers = append(headers, elf.Section32{
		Name:      shstr.add(".strtab"),
		Type:      uint32(elf.SHT_STRTAB),
		Off:       place(str.data),
		Size:      uint32(len(str.data)),
		Addralign: 1,
	})
	shstrName := shstr.add(".shstrtab")
	headers = append(headers, elf.Section32{
		Name:      shstrName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       place(shstr.data),
		Size:      uint32(len(shstr.data)),
		Addralign: 1,
	})

	shoff := place(nil)
	var hb bytes.Buffer
	for _, h := range headers {
		_ = binary.Write(&hb, le, h)
	}
	out = append(out, hb.Bytes()...)

	var loads []elf.Prog32
	for i, sec := range s.Sections {
		if sec.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		h := headers[i+1]
		p := elf.Prog32{
			Type:   uint32(elf.PT_LOAD),
			Off:    h.Off,
			Vaddr:  sec.Addr,
			Paddr:  sec.Addr,
			Filesz: h.Size,
			Memsz:  h.Size,
			Flags:  uint32(elf.PF_R),
			Align:  4,
		}
		if sec.NoBits {
			p.Filesz = 0
		}
		if sec.Flags&elf.SHF_EXECINSTR != 0 {
			p.Flags |= uint32(elf.PF_X)
		}
		if sec.Flags&elf.SHF_WRITE != 0 {
			p.Flags |= uint32(elf.PF_W)
		}
		loads = append(loads, p)
	}
	var phoff uint32
	if len(loads) > 0 {
		var pb bytes.Buffer
		for _, p := range loads {
			_ = binary.Write(&pb, le, p)
		}
		phoff = place(pb.Bytes())
	}

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var eh bytes.Buffer
	_ = binary.Write(&eh, le, elf.Header32{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     s.Entry,
		Phoff:     phoff,
		Shoff:     shoff,
		Ehsize:    52,
		Phentsize: 32,
		Phnum:     uint16(len(loads)),
		Shentsize: 40,
		Shnum:     uint16(len(headers)),
		Shstrndx:  uint16(len(headers) - 1),
	})
	copy(out, eh.Bytes())
	return out
}

// Write builds s into a temporary file and returns its path.
func Write(tb testing.TB, s Spec) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "prog.elf")
	if err := os.WriteFile(path, Build(s), 0o644); err != nil {
		tb.Fatalf("write elf: %v", err)
	}
	return path
}
