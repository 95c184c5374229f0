// Package elfx opens the 32-bit RISC-V ELF a simulation ran and exposes its
// loadable memory and symbols.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/ianlancetaylor/demangle"
)

// ErrUnsupportedMachine is returned for ELF files that are not 32-bit RISC-V.
var ErrUnsupportedMachine = errors.New("unsupported elf machine")

type Image struct {
	Path  string
	File  *elf.File
	Entry uint32
	Loads []Seg
	Text  Section
	Syms  []Symbol // sorted by address
	f     io.Closer
}

type Seg struct {
	Vaddr, Off, Filesz, Memsz uint32
	Flags                     elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint32
}

// Symbol is a function or object symbol from .symtab.
type Symbol struct {
	Name      string
	Demangled string
	Addr      uint32
	Size      uint32
	Func      bool
}

// Contains reports whether addr falls inside the symbol. Zero-sized
// symbols only contain their own address.
func (s Symbol) Contains(addr uint32) bool {
	if s.Size == 0 {
		return addr == s.Addr
	}
	return addr >= s.Addr && addr-s.Addr < s.Size
}

func (s Symbol) String() string {
	if s.Demangled != "" {
		return s.Demangled
	}
	return s.Name
}

// Open parses the ELF at path.
func Open(path string) (*Image, error) {
	of, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}
	im, err := NewImage(of, path)
	if err != nil {
		of.Close()
		return nil, err
	}
	im.f = of
	return im, nil
}

// NewImage parses an ELF held by r. path is only recorded for display.
func NewImage(r io.ReaderAt, path string) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}
	if f.Machine != elf.EM_RISCV || f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("%w: %s is %s %s, want 32-bit RISC-V", ErrUnsupportedMachine, path, f.Class, f.Machine)
	}

	im := &Image{Path: path, File: f, Entry: uint32(f.Entry)}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  uint32(p.Vaddr),
			Off:    uint32(p.Off),
			Filesz: uint32(p.Filesz),
			Memsz:  uint32(p.Memsz),
			Flags:  p.Flags,
		})
	}
	if s := f.Section(".text"); s != nil {
		im.Text = Section{s.Name, uint32(s.Addr), uint32(s.Offset), uint32(s.Size)}
	}
	im.loadSymbols()
	return im, nil
}

// Close releases the underlying file.
func (im *Image) Close() error {
	if im.f == nil {
		return nil
	}
	err := im.f.Close()
	im.f = nil
	return err
}

// loadSymbols keeps defined function and object symbols. Stripped binaries
// simply end up with none.
func (im *Image) loadSymbols() {
	syms, err := im.File.Symbols()
	if err != nil {
		return
	}
	for _, sym := range syms {
		if sym.Section == elf.SHN_UNDEF || sym.Name == "" {
			continue
		}
		typ := elf.ST_TYPE(sym.Info)
		if typ != elf.STT_FUNC && typ != elf.STT_OBJECT && typ != elf.STT_NOTYPE {
			continue
		}
		s := Symbol{
			Name: sym.Name,
			Addr: uint32(sym.Value),
			Size: uint32(sym.Size),
			Func: typ == elf.STT_FUNC,
		}
		if d := demangle.Filter(sym.Name, demangle.NoClones); d != sym.Name {
			s.Demangled = d
		}
		im.Syms = append(im.Syms, s)
	}
	sort.SliceStable(im.Syms, func(i, j int) bool { return im.Syms[i].Addr < im.Syms[j].Addr })
}

// Lookup finds a symbol by its raw name.
func (im *Image) Lookup(name string) (Symbol, bool) {
	for _, s := range im.Syms {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// FirstPC is where the program starts running: _start if present, then
// main, then the ELF entry point.
func (im *Image) FirstPC() uint32 {
	for _, name := range []string{"_start", "main"} {
		if s, ok := im.Lookup(name); ok {
			return s.Addr
		}
	}
	return im.Entry
}

// SymbolAt returns the symbol enclosing addr, preferring functions.
func (im *Image) SymbolAt(addr uint32) (Symbol, bool) {
	i := sort.Search(len(im.Syms), func(i int) bool { return im.Syms[i].Addr > addr })
	var fallback *Symbol
	for j := i - 1; j >= 0; j-- {
		s := im.Syms[j]
		if !s.Contains(addr) {
			continue
		}
		if s.Func {
			return s, true
		}
		if fallback == nil {
			fallback = &im.Syms[j]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Symbol{}, false
}

// Memory copies every allocated section with file contents into a sparse
// memory image.
func (im *Image) Memory() (*Memory, error) {
	m := NewMemory()
	for _, s := range im.File.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Type == elf.SHT_NOBITS || s.Size == 0 {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("read section %s: %w", s.Name, err)
		}
		m.Add(s.Name, uint32(s.Addr), data)
	}
	return m, nil
}
