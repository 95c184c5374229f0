package disasm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dang/internal/elfx"
	"dang/internal/elfx/elftest"
)

type countingReader struct {
	mem   *elfx.Memory
	reads int
}

func (r *countingReader) Read(addr uint32, buf []byte) int {
	r.reads++
	return r.mem.Read(addr, buf)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		op     string
		length int
		text   string
	}{
		{name: "addi", raw: elftest.Words(0x00100093), op: "addi", length: 4},
		{name: "jalr", raw: elftest.Words(0x00008067), op: "jalr", length: 4},
		{name: "lui", raw: elftest.Words(0x000012b7), op: "lui", length: 4},
		{name: "reserved 48-bit", raw: elftest.Words(0xffffffff), length: 4, text: ".word 0xffffffff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := Decode(0x80, tt.raw)
			assert.Equal(t, uint32(0x80), inst.VA)
			assert.Equal(t, tt.op, inst.Op)
			assert.Equal(t, tt.length, inst.Len)
			assert.NotEmpty(t, inst.Text)
			if tt.text != "" {
				assert.Equal(t, tt.text, inst.Text)
				assert.False(t, inst.Known())
			}
		})
	}
}

func TestDecoder_CachesByAddress(t *testing.T) {
	mem := elfx.NewMemory()
	mem.Add(".text", 0x100, elftest.Words(0x00100093, 0x00200113, 0x00008067))
	r := &countingReader{mem: mem}

	d, err := NewDecoder(r, 0)
	require.NoError(t, err)
	defer d.Close()

	first := d.At(0x104)
	assert.Equal(t, "addi", first.Op)
	assert.Equal(t, uint32(0x00200113), first.Raw)

	// otter applies writes asynchronously; a miss only costs a re-read.
	require.Eventually(t, func() bool {
		before := r.reads
		d.At(0x104)
		return r.reads == before
	}, time.Second, 10*time.Millisecond)

	stream := d.Range(0x100, 3)
	require.Len(t, stream, 3)
	assert.Equal(t, []uint32{0x100, 0x104, 0x108}, []uint32{stream[0].VA, stream[1].VA, stream[2].VA})
	assert.Equal(t, "jalr", stream[2].Op)
}
