// Package gdb serves a replay to GDB over the remote serial protocol.
package gdb

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"

	"dang/internal/replay"
)

// maxMemoryRead caps one 'm' packet. GDB splits larger reads.
const maxMemoryRead = 4096

const packetSize = 0x4000

// Server hands a Target to one debugger at a time.
type Server struct {
	target Target
	mu     sync.Mutex
}

func NewServer(t Target) *Server {
	return &Server{target: t}
}

// Serve accepts connections on ln until ctx is cancelled. Sessions run one
// after another, each starting from a reset target.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		closeOnCancel := context.AfterFunc(ctx, func() { conn.Close() })
		if err := s.HandleConn(conn); err != nil {
			slog.Warn("Debugger session failed", "remote", conn.RemoteAddr().String(), "error", err)
		}
		closeOnCancel()
		conn.Close()
	}
}

// HandleConn runs one debugging session on conn and returns when the
// debugger detaches, kills the target or disconnects.
func (s *Server) HandleConn(conn net.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &session{
		target: s.target,
		w:      bufio.NewWriter(conn),
		events: make(chan event, 16),
		log:    slog.With("session", uuid.NewString()),
	}
	sess.log.Info("Debugger connected", "remote", conn.RemoteAddr().String())
	s.target.Reset()
	s.target.ClearBreakpoints()

	done := make(chan struct{})
	defer close(done)
	go sess.readLoop(bufio.NewReader(conn), done)

	err := sess.loop()
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		err = nil
	}
	sess.log.Info("Debugger disconnected", "error", err)
	return err
}

type session struct {
	target  Target
	w       *bufio.Writer
	events  chan event
	pending *event
	noAck   bool
	last    []byte
	log     *slog.Logger
}

func (s *session) readLoop(r *bufio.Reader, done <-chan struct{}) {
	for {
		ev := readEvent(r)
		select {
		case s.events <- ev:
		case <-done:
			return
		}
		if ev.err != nil {
			return
		}
	}
}

func (s *session) next() event {
	if s.pending != nil {
		ev := *s.pending
		s.pending = nil
		return ev
	}
	return <-s.events
}

// poll reports whether the debugger has sent anything while running.
func (s *session) poll() bool {
	return s.pending != nil || len(s.events) > 0
}

func (s *session) writeRaw(b []byte) error {
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *session) send(payload string) error {
	s.last = encode(payload)
	s.log.Debug("Reply", "packet", payload)
	return s.writeRaw(s.last)
}

func (s *session) loop() error {
	for {
		ev := s.next()
		switch {
		case ev.err != nil:
			return ev.err
		case ev.interrupt:
			// Nothing is running between packets.
			continue
		case ev.nak:
			if s.last != nil {
				if err := s.writeRaw(s.last); err != nil {
					return err
				}
			}
			continue
		case ev.corrupt:
			s.log.Warn("Bad packet checksum")
			if !s.noAck {
				if err := s.writeRaw([]byte{'-'}); err != nil {
					return err
				}
			}
			continue
		}

		if !s.noAck {
			if err := s.writeRaw([]byte{'+'}); err != nil {
				return err
			}
		}
		s.log.Debug("Packet", "packet", ev.payload)
		r := s.handle(ev.payload)
		if !r.silent {
			if err := s.send(r.reply); err != nil {
				return err
			}
		}
		if r.noAck {
			s.noAck = true
		}
		if r.end {
			return nil
		}
	}
}

// response is what handling one packet produced.
type response struct {
	reply  string
	silent bool // send nothing
	end    bool // close the session afterwards
	noAck  bool // stop acknowledging from now on
}

func reply(s string) response { return response{reply: s} }

var (
	replyOK    = reply("OK")
	replyEmpty = reply("")
	replyError = reply("E01")
)

func (s *session) handle(pkt string) response {
	switch {
	case pkt == "?":
		return reply("S05")
	case strings.HasPrefix(pkt, "qSupported"):
		return reply(fmt.Sprintf("PacketSize=%x;QStartNoAckMode+;qXfer:features:read+;qXfer:exec-file:read+;swbreak+;ReverseStep+;ReverseContinue+;vContSupported+", packetSize))
	case pkt == "QStartNoAckMode":
		return response{reply: "OK", noAck: true}
	case strings.HasPrefix(pkt, "qAttached"):
		return reply("1")
	case pkt == "qC":
		return reply("QC1")
	case pkt == "qfThreadInfo":
		return reply("m1")
	case pkt == "qsThreadInfo":
		return reply("l")
	case strings.HasPrefix(pkt, "H"), strings.HasPrefix(pkt, "T"):
		return replyOK
	case pkt == "qOffsets":
		return reply("Text=0;Data=0;Bss=0")
	case strings.HasPrefix(pkt, "qXfer:features:read:"):
		return s.xferFeatures(strings.TrimPrefix(pkt, "qXfer:features:read:"))
	case strings.HasPrefix(pkt, "qXfer:exec-file:read:"):
		return s.xferExecFile(strings.TrimPrefix(pkt, "qXfer:exec-file:read:"))
	case strings.HasPrefix(pkt, "qRcmd,"):
		return s.monitor(strings.TrimPrefix(pkt, "qRcmd,"))
	case pkt == "g":
		return reply(s.readRegisters())
	case strings.HasPrefix(pkt, "p"):
		return s.readRegister(pkt[1:])
	case strings.HasPrefix(pkt, "m"):
		return s.readMemory(pkt[1:])
	case strings.HasPrefix(pkt, "Z0,"), strings.HasPrefix(pkt, "Z1,"):
		return s.breakpoint(pkt[3:], true)
	case strings.HasPrefix(pkt, "z0,"), strings.HasPrefix(pkt, "z1,"):
		return s.breakpoint(pkt[3:], false)
	case strings.HasPrefix(pkt, "c"):
		return s.resume(replay.ModeContinue{})
	case strings.HasPrefix(pkt, "s"):
		return s.resume(replay.ModeStep{})
	case pkt == "bc":
		return s.resume(replay.ModeReverseContinue{})
	case pkt == "bs":
		return s.resume(replay.ModeReverseStep{})
	case pkt == "vCont?":
		return reply("vCont;c;s;r")
	case strings.HasPrefix(pkt, "vCont;"):
		return s.vCont(strings.TrimPrefix(pkt, "vCont;"))
	case pkt == "vMustReplyEmpty":
		return replyEmpty
	case strings.HasPrefix(pkt, "D"):
		s.log.Info("Debugger detached")
		return response{reply: "OK", end: true}
	case pkt == "k":
		return response{silent: true, end: true}
	case strings.HasPrefix(pkt, "G"), strings.HasPrefix(pkt, "P"),
		strings.HasPrefix(pkt, "M"), strings.HasPrefix(pkt, "X"),
		strings.HasPrefix(pkt, "C"), strings.HasPrefix(pkt, "S"):
		// The recording cannot be changed.
		return replyError
	}
	s.log.Debug("Unsupported packet", "packet", pkt)
	return replyEmpty
}

func encodeRegister(v uint32, known bool) string {
	if !known {
		return "xxxxxxxx"
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return hex.EncodeToString(b[:])
}

func (s *session) readRegisters() string {
	regs := s.target.Registers()
	var sb strings.Builder
	sb.Grow(8 * len(regs.Values))
	for i, v := range regs.Values {
		sb.WriteString(encodeRegister(v, regs.Known[i]))
	}
	return sb.String()
}

func (s *session) readRegister(arg string) response {
	n, err := parseHex(arg)
	if err != nil || n > replay.NumGPRs {
		return replyError
	}
	regs := s.target.Registers()
	return reply(encodeRegister(regs.Values[n], regs.Known[n]))
}

func (s *session) readMemory(arg string) response {
	addr, n, err := parseAddrLen(arg)
	if err != nil {
		return replyError
	}
	buf := make([]byte, min(n, maxMemoryRead))
	s.target.ReadMemory(addr, buf)
	return reply(hex.EncodeToString(buf))
}

// breakpoint handles "addr,kind" for Z0/Z1 and z0/z1.
func (s *session) breakpoint(arg string, insert bool) response {
	a, _, _ := strings.Cut(arg, ",")
	addr, err := parseHex(a)
	if err != nil {
		return replyError
	}
	if insert {
		s.target.AddBreakpoint(uint32(addr))
	} else if !s.target.RemoveBreakpoint(uint32(addr)) {
		s.log.Debug("Removing unknown breakpoint", "addr", fmt.Sprintf("0x%08x", addr))
	}
	return replyOK
}

// vCont acts on the first action; there is only one thread.
func (s *session) vCont(actions string) response {
	action, _, _ := strings.Cut(actions, ";")
	action, _, _ = strings.Cut(action, ":")
	switch {
	case action == "c":
		return s.resume(replay.ModeContinue{})
	case action == "s":
		return s.resume(replay.ModeStep{})
	case strings.HasPrefix(action, "r"):
		start, end, ok := strings.Cut(action[1:], ",")
		if !ok {
			return replyError
		}
		lo, err1 := parseHex(start)
		hi, err2 := parseHex(end)
		if err1 != nil || err2 != nil {
			return replyError
		}
		return s.resume(replay.ModeRangeStep{Start: uint32(lo), End: uint32(hi)})
	}
	return replyError
}

func (s *session) resume(mode replay.ExecMode) response {
	s.target.SetMode(mode)
	ev := s.target.Run(s.poll)
	if ev.IncomingData {
		next := s.next()
		if !next.interrupt {
			s.pending = &next
		}
		return reply("S02")
	}
	switch ev.Event {
	case replay.EventBreak:
		return reply("T05swbreak:;")
	case replay.EventHistoryBegin:
		return reply("T05replaylog:begin;")
	case replay.EventHalted:
		s.log.Info("Reached end of recording")
		return response{reply: "X13", end: true}
	}
	return reply("S05")
}

func (s *session) monitor(arg string) response {
	cmd, err := hex.DecodeString(arg)
	if err != nil {
		return replyError
	}
	s.log.Info("Monitor command", "cmd", string(cmd))
	return reply(hex.EncodeToString([]byte(s.target.Monitor(string(cmd)))))
}

// xfer serves the slice "annex:offset,length" of data.
func xfer(data, arg string) response {
	_, span, ok := strings.Cut(arg, ":")
	if !ok {
		return replyError
	}
	off, n, err := parseAddrLen(span)
	if err != nil {
		return replyError
	}
	if int(off) >= len(data) {
		return reply("l")
	}
	chunk := data[off:]
	n = max(n, 0)
	if len(chunk) > n {
		return reply("m" + chunk[:n])
	}
	return reply("l" + chunk)
}

func (s *session) xferFeatures(arg string) response {
	annex, _, _ := strings.Cut(arg, ":")
	if annex != "target.xml" {
		return reply("E00")
	}
	return xfer(TargetXML, arg)
}

// xferExecFile answers with the ELF path; GDB opens the file itself.
func (s *session) xferExecFile(arg string) response {
	path := s.target.ExecPath()
	if path == "" {
		return reply("E00")
	}
	return xfer(path, arg)
}
