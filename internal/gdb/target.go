package gdb

import (
	"fmt"
	"strings"

	"dang/internal/replay"
)

// Target is what a debugging session drives. *replay.Waver implements it.
type Target interface {
	Registers() replay.Registers
	ReadMemory(addr uint32, buf []byte) int
	AddBreakpoint(addr uint32)
	RemoveBreakpoint(addr uint32) bool
	ClearBreakpoints()
	SetMode(m replay.ExecMode)
	Run(poll func() bool) replay.RunEvent
	Monitor(cmd string) string
	ExecPath() string
	Reset()
}

var _ Target = (*replay.Waver)(nil)

// abiNames are the RISC-V psABI register names GDB expects in the
// org.gnu.gdb.riscv.cpu feature.
var abiNames = [replay.NumGPRs]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"fp", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// TargetXML describes an RV32 core with only the integer register file.
var TargetXML = buildTargetXML()

func buildTargetXML() string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0"?>
<!DOCTYPE target SYSTEM "gdb-target.dtd">
<target version="1.0">
<architecture>riscv:rv32</architecture>
<feature name="org.gnu.gdb.riscv.cpu">
`)
	for i, name := range abiNames {
		typ := "int"
		switch name {
		case "ra":
			typ = "code_ptr"
		case "sp", "gp", "tp", "fp":
			typ = "data_ptr"
		}
		fmt.Fprintf(&sb, "  <reg name=\"%s\" bitsize=\"32\" type=\"%s\" regnum=\"%d\"/>\n", name, typ, i)
	}
	fmt.Fprintf(&sb, "  <reg name=\"pc\" bitsize=\"32\" type=\"code_ptr\" regnum=\"%d\"/>\n", replay.NumGPRs)
	sb.WriteString("</feature>\n</target>\n")
	return sb.String()
}
