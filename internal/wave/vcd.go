package wave

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxToken bounds a single VCD token; wide buses dump long vectors.
const maxToken = 16 << 20

type vcdParser struct {
	sc     *bufio.Scanner
	wf     *Waveform
	scopes []*Scope
}

// Parse reads a value change dump.
func Parse(r io.Reader) (*Waveform, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxToken)
	sc.Split(bufio.ScanWords)

	p := &vcdParser{sc: sc, wf: newWaveform()}
	if err := p.header(); err != nil {
		return nil, err
	}
	if err := p.body(); err != nil {
		return nil, err
	}
	return p.wf, nil
}

func (p *vcdParser) next() (string, bool) {
	if !p.sc.Scan() {
		return "", false
	}
	return p.sc.Text(), true
}

func (p *vcdParser) mustNext(ctx string) (string, error) {
	tok, ok := p.next()
	if !ok {
		if err := p.sc.Err(); err != nil {
			return "", fmt.Errorf("vcd: reading %s: %w", ctx, err)
		}
		return "", fmt.Errorf("vcd: unexpected end of file in %s", ctx)
	}
	return tok, nil
}

// until collects tokens up to the closing $end.
func (p *vcdParser) until(ctx string) ([]string, error) {
	var toks []string
	for {
		tok, err := p.mustNext(ctx)
		if err != nil {
			return nil, err
		}
		if tok == "$end" {
			return toks, nil
		}
		toks = append(toks, tok)
	}
}

func (p *vcdParser) current() *Scope {
	if len(p.scopes) == 0 {
		return nil
	}
	return p.scopes[len(p.scopes)-1]
}

func (p *vcdParser) header() error {
	for {
		tok, err := p.mustNext("header")
		if err != nil {
			return err
		}
		switch tok {
		case "$date", "$version", "$comment":
			if _, err := p.until(tok); err != nil {
				return err
			}
		case "$timescale":
			toks, err := p.until(tok)
			if err != nil {
				return err
			}
			ts, err := parseTimescale(strings.Join(toks, ""))
			if err != nil {
				return err
			}
			p.wf.Timescale = ts
		case "$scope":
			toks, err := p.until(tok)
			if err != nil {
				return err
			}
			if len(toks) != 2 {
				return fmt.Errorf("vcd: malformed $scope %q", strings.Join(toks, " "))
			}
			p.scopes = append(p.scopes, p.wf.Hierarchy.addScope(p.current(), toks[0], toks[1]))
		case "$upscope":
			if _, err := p.until(tok); err != nil {
				return err
			}
			if len(p.scopes) == 0 {
				return fmt.Errorf("vcd: $upscope without open scope")
			}
			p.scopes = p.scopes[:len(p.scopes)-1]
		case "$var":
			toks, err := p.until(tok)
			if err != nil {
				return err
			}
			if err := p.declare(toks); err != nil {
				return err
			}
		case "$enddefinitions":
			_, err := p.until(tok)
			return err
		default:
			return fmt.Errorf("vcd: unexpected %q in header", tok)
		}
	}
}

// declare handles "$var kind width id ref [range] $end".
func (p *vcdParser) declare(toks []string) error {
	if len(toks) < 4 {
		return fmt.Errorf("vcd: malformed $var %q", strings.Join(toks, " "))
	}
	width, err := strconv.Atoi(toks[1])
	if err != nil || width < 0 {
		return fmt.Errorf("vcd: bad width in $var %q", strings.Join(toks, " "))
	}
	v := &Var{
		Kind:  toks[0],
		Width: width,
		ID:    toks[2],
		Name:  toks[3],
		Range: strings.Join(toks[4:], ""),
	}
	p.wf.Hierarchy.addVar(p.current(), v)

	if _, ok := p.wf.signals[v.ID]; !ok {
		p.wf.signals[v.ID] = &Signal{
			id:     v.ID,
			width:  width,
			isReal: v.Kind == "real" || v.Kind == "realtime",
		}
	}
	return nil
}

func (p *vcdParser) body() error {
	for {
		tok, ok := p.next()
		if !ok {
			if err := p.sc.Err(); err != nil {
				return fmt.Errorf("vcd: reading body: %w", err)
			}
			return nil
		}
		switch tok[0] {
		case '#':
			t, err := strconv.ParseUint(tok[1:], 10, 64)
			if err != nil {
				return fmt.Errorf("vcd: bad timestamp %q", tok)
			}
			if err := p.advance(t); err != nil {
				return err
			}
		case '0', '1', 'x', 'X', 'z', 'Z':
			if len(tok) < 2 {
				return fmt.Errorf("vcd: scalar change %q without identifier", tok)
			}
			if err := p.change(tok[1:], BitsValue(tok[:1])); err != nil {
				return err
			}
		case 'b', 'B':
			id, err := p.mustNext("vector change")
			if err != nil {
				return err
			}
			if err := p.change(id, BitsValue(tok[1:])); err != nil {
				return err
			}
		case 'r', 'R':
			id, err := p.mustNext("real change")
			if err != nil {
				return err
			}
			f, err := strconv.ParseFloat(tok[1:], 64)
			if err != nil {
				return fmt.Errorf("vcd: bad real %q", tok)
			}
			if err := p.change(id, RealValue(f)); err != nil {
				return err
			}
		case '$':
			// $dumpvars, $dumpall, $dumpon, $dumpoff and their $end carry no data.
			if tok == "$comment" {
				if _, err := p.until(tok); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("vcd: unexpected %q in value changes", tok)
		}
	}
}

func (p *vcdParser) advance(t uint64) error {
	times := p.wf.times
	if n := len(times); n > 0 {
		switch {
		case t == times[n-1]:
			return nil
		case t < times[n-1]:
			return fmt.Errorf("vcd: time #%d goes backwards from #%d", t, times[n-1])
		}
	}
	p.wf.times = append(times, t)
	return nil
}

func (p *vcdParser) change(id string, v Value) error {
	sig, ok := p.wf.signals[id]
	if !ok {
		return fmt.Errorf("vcd: change for undeclared identifier %q", id)
	}
	if len(p.wf.times) == 0 {
		p.wf.times = append(p.wf.times, 0)
	}
	if !v.isReal {
		v.bits = extend(v.bits, sig.width)
	}
	sig.record(TimeIdx(len(p.wf.times)-1), v)
	return nil
}

var timescaleUnits = map[string]bool{"s": true, "ms": true, "us": true, "ns": true, "ps": true, "fs": true}

func parseTimescale(s string) (Timescale, error) {
	i := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if i <= 0 {
		return Timescale{}, fmt.Errorf("vcd: bad timescale %q", s)
	}
	factor, err := strconv.ParseUint(s[:i], 10, 32)
	if err != nil {
		return Timescale{}, fmt.Errorf("vcd: bad timescale %q", s)
	}
	unit := s[i:]
	if !timescaleUnits[unit] {
		return Timescale{}, fmt.Errorf("vcd: bad timescale unit %q", unit)
	}
	return Timescale{Factor: uint32(factor), Unit: unit}, nil
}
