package gdb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const interruptByte = 0x03

// event is one unit of client input.
type event struct {
	payload   string
	packet    bool
	interrupt bool
	nak       bool
	corrupt   bool
	err       error
}

// checksum is the modulo-256 sum of the raw packet bytes.
func checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return sum
}

// readEvent reads the next packet, ack, nak or interrupt from r. Acks are
// skipped.
func readEvent(r *bufio.Reader) event {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return event{err: err}
		}
		switch b {
		case '+':
			continue
		case '-':
			return event{nak: true}
		case interruptByte:
			return event{interrupt: true}
		case '$':
			return readPacket(r)
		}
		// Anything else between packets is line noise.
	}
}

func readPacket(r *bufio.Reader) event {
	raw, err := r.ReadBytes('#')
	if err != nil {
		return event{err: err}
	}
	raw = raw[:len(raw)-1]

	var cs [2]byte
	if _, err := io.ReadFull(r, cs[:]); err != nil {
		return event{err: err}
	}
	want, err := strconv.ParseUint(string(cs[:]), 16, 8)
	if err != nil || byte(want) != checksum(raw) {
		return event{corrupt: true}
	}
	return event{packet: true, payload: unescape(raw)}
}

// unescape undoes '}' escaping: the byte after '}' is xored with 0x20.
func unescape(raw []byte) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '}' && i+1 < len(raw) {
			i++
			sb.WriteByte(raw[i] ^ 0x20)
			continue
		}
		sb.WriteByte(raw[i])
	}
	return sb.String()
}

// escape protects the bytes that would end or corrupt a packet.
func escape(payload string) string {
	if !strings.ContainsAny(payload, "$#}*") {
		return payload
	}
	var sb strings.Builder
	sb.Grow(len(payload) + 8)
	for i := 0; i < len(payload); i++ {
		switch c := payload[i]; c {
		case '$', '#', '}', '*':
			sb.WriteByte('}')
			sb.WriteByte(c ^ 0x20)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// encode frames payload as "$payload#cc".
func encode(payload string) []byte {
	body := escape(payload)
	return fmt.Appendf(nil, "$%s#%02x", body, checksum([]byte(body)))
}

var errBadPacket = errors.New("malformed packet")

// maxLength bounds the length field of m and qXfer requests.
const maxLength = math.MaxInt32

// parseHex parses a hex number from a packet field.
func parseHex(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad hex %q", errBadPacket, s)
	}
	return v, nil
}

// parseAddrLen parses "addr,length". Lengths beyond maxLength are rejected.
func parseAddrLen(s string) (uint32, int, error) {
	a, l, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: want addr,length in %q", errBadPacket, s)
	}
	addr, err := parseHex(a)
	if err != nil {
		return 0, 0, err
	}
	n, err := parseHex(l)
	if err != nil {
		return 0, 0, err
	}
	if n > maxLength {
		return 0, 0, fmt.Errorf("%w: length %#x too large", errBadPacket, n)
	}
	return uint32(addr), int(n), nil
}
