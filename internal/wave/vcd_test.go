package wave

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleVCD = `$date today $end
$version dang test $end
$comment
  generated by hand
$end
$timescale 1 ps $end
$scope module TOP $end
$scope module core $end
$var wire 32 ! pc [31:0] $end
$var wire 1 " clk $end
$var wire 8 # data [7:0] $end
$var real 64 $ temp $end
$upscope $end
$var wire 32 ! pc_alias $end
$upscope $end
$enddefinitions $end
#0
$dumpvars
b10000000 !
0"
bx #
r1.5 $
$end
#10
1"
b100 !
#20
0"
b10000100 !
b1 #
#30
1"
`

func parseSample(t *testing.T) *Waveform {
	t.Helper()
	wf, err := Parse(strings.NewReader(sampleVCD))
	require.NoError(t, err)
	return wf
}

func TestParse_Header(t *testing.T) {
	wf := parseSample(t)

	assert.Equal(t, Timescale{Factor: 1, Unit: "ps"}, wf.Timescale)
	assert.Equal(t, "1ps", wf.Timescale.String())
	assert.Equal(t, []uint64{0, 10, 20, 30}, wf.TimeTable())
	assert.Equal(t, 4, wf.SignalCount())

	v, ok := wf.Hierarchy.Lookup("TOP.core.pc")
	require.True(t, ok)
	assert.Equal(t, 32, v.Width)
	assert.Equal(t, "[31:0]", v.Range)
	assert.Equal(t, "wire", v.Kind)
	assert.Equal(t, "TOP.core", v.Scope.Path)

	require.Len(t, wf.Hierarchy.Top, 1)
	assert.Equal(t, "TOP", wf.Hierarchy.Top[0].Name)
	assert.Len(t, wf.Hierarchy.Vars(), 5)
}

func TestParse_AliasSharesSignal(t *testing.T) {
	wf := parseSample(t)

	pc, err := wf.SignalFromPath("TOP.core.pc")
	require.NoError(t, err)
	alias, err := wf.SignalFromPath("TOP.pc_alias")
	require.NoError(t, err)
	assert.Same(t, pc, alias)

	again, err := wf.SignalFromPath("TOP.core.pc")
	require.NoError(t, err)
	assert.Same(t, pc, again, "repeated lookups must return the same signal")
}

func TestParse_Values(t *testing.T) {
	wf := parseSample(t)

	pc, err := wf.SignalFromPath("TOP.core.pc")
	require.NoError(t, err)
	assert.Equal(t, []TimeIdx{0, 1, 2}, pc.TimeIndices())

	_, v := pc.Change(1)
	u, err := v.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(4), u, "short vectors are zero extended")

	data, err := wf.SignalFromPath("TOP.core.data")
	require.NoError(t, err)
	_, v = data.Change(0)
	assert.Equal(t, "xxxxxxxx", v.Bits(), "x vectors are x extended")
	assert.False(t, v.IsKnown())

	temp, err := wf.SignalFromPath("TOP.core.temp")
	require.NoError(t, err)
	_, v = temp.Change(0)
	assert.True(t, v.IsReal())
	assert.Equal(t, 1.5, v.Real())

	clk, err := wf.SignalFromPath("TOP.core.clk")
	require.NoError(t, err)
	assert.Equal(t, []TimeIdx{0, 1, 2, 3}, clk.TimeIndices())
}

func TestSignalFromPath_NotFound(t *testing.T) {
	wf := parseSample(t)

	_, err := wf.SignalFromPath("TOP.core.nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSignalNotFound))
	assert.Contains(t, err.Error(), "TOP.core.nope")
}

func TestParse_SameTimeChangeReplaces(t *testing.T) {
	src := `$scope module TOP $end
$var wire 4 a v $end
$upscope $end
$enddefinitions $end
b1 a
b10 a
#5
b10 a
#6
b11 a
b10 a
`
	wf, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	sig, err := wf.SignalFromPath("TOP.v")
	require.NoError(t, err)
	require.Equal(t, 1, sig.Len(), "no net change after time 0")
	_, v := sig.Change(0)
	assert.Equal(t, "0010", v.Bits())
	assert.Equal(t, []uint64{0, 5, 6}, wf.TimeTable())
}

func TestParse_Errors(t *testing.T) {
	header := "$scope module TOP $end\n$var wire 1 ! a $end\n$upscope $end\n$enddefinitions $end\n"

	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "undeclared identifier",
			src:  header + "#0\n1?\n",
			want: "undeclared identifier",
		},
		{
			name: "time goes backwards",
			src:  header + "#10\n1!\n#5\n0!\n",
			want: "goes backwards",
		},
		{
			name: "upscope without scope",
			src:  "$upscope $end\n$enddefinitions $end\n",
			want: "without open scope",
		},
		{
			name: "bad timescale",
			src:  "$timescale 3 parsecs $end\n$enddefinitions $end\n",
			want: "timescale",
		},
		{
			name: "bad var width",
			src:  "$var wire wide ! a $end\n$enddefinitions $end\n",
			want: "bad width",
		},
		{
			name: "truncated header",
			src:  "$scope module TOP $end\n$var wire 1 ! a",
			want: "unexpected end of file",
		},
		{
			name: "garbage in body",
			src:  header + "#0\n?!\n",
			want: "unexpected",
		},
		{
			name: "bad real",
			src:  "$var real 64 ! r $end\n$enddefinitions $end\nrpi !\n",
			want: "bad real",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseTimescale(t *testing.T) {
	tests := []struct {
		in      string
		want    Timescale
		wantErr bool
	}{
		{in: "1ps", want: Timescale{1, "ps"}},
		{in: "10ns", want: Timescale{10, "ns"}},
		{in: "100us", want: Timescale{100, "us"}},
		{in: "ns", wantErr: true},
		{in: "1ly", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTimescale(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
