package rsp

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pawnlang/pawndbg/pkg/debug"
	"github.com/pawnlang/pawndbg/pkg/errors"
	"github.com/pawnlang/pawndbg/pkg/vm"
)

// targetXML is the target description served to the client; it declares
// the five VM registers the stub exposes.
const targetXML = `<?xml version="1.0"?>` +
	`<!DOCTYPE feature SYSTEM "gdb-target.dtd">` +
	`<feature name="org.gnu.gdb.sourcepawn.core">` +
	`  <reg name="pri" bitsize="32" type="int32"/>` +
	`  <reg name="alt" bitsize="32" type="int32"/>` +
	`  <reg name="cip" bitsize="32" type="code_ptr"/>` +
	`  <reg name="sp" bitsize="32" type="data_ptr"/>` +
	`  <reg name="frm" bitsize="32" type="data_ptr"/>` +
	`</feature>`

// Session dispatches the packets of one connected client and couples VM
// halts to the remote front-end: the VM thread parks in HandleHalt until
// the session resumes it.
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	// Register snapshot of the current halt: pri, alt, cip, sp, frm.
	regs [5]uint32

	stopped    bool
	resumeMode debug.Runmode
}

func NewSession() *Session {
	s := &Session{resumeMode: debug.Running}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// HandleHalt implements debug.Handler: it records the register snapshot
// and blocks the VM thread until Resume.
func (s *Session) HandleHalt(e *debug.Entry) debug.Runmode {
	return s.OnHalt(e.Registers())
}

// OnHalt parks the calling (VM) thread until the front-end resumes it.
func (s *Session) OnHalt(regs vm.Registers) debug.Runmode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs = [5]uint32{
		uint32(regs.Pri),
		uint32(regs.Alt),
		uint32(regs.Cip),
		uint32(regs.Sp),
		uint32(regs.Frm),
	}
	s.stopped = true
	for s.stopped {
		s.cond.Wait()
	}
	return s.resumeMode
}

// Resume releases a parked VM thread with the given run mode. Safe to call
// when nothing is halted.
func (s *Session) Resume(mode debug.Runmode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeMode = mode
	s.stopped = false
	s.cond.Broadcast()
}

// Stopped reports whether a VM thread is parked in OnHalt.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// HandlePacket maps one inbound payload to its reply payload.
func (s *Session) HandlePacket(payload string) string {
	reply, err := s.dispatch(payload)
	if err != nil {
		if pe, ok := err.(*errors.ProtoError); ok {
			return pe.Code
		}
		return "E00"
	}
	return reply
}

func (s *Session) dispatch(payload string) (string, error) {
	if payload == "" {
		return "", nil
	}

	switch payload[0] {
	case '?':
		return "S00", nil

	case 'g':
		// The register file: five 8-digit hex words.
		var b strings.Builder
		s.mu.Lock()
		for _, r := range s.regs {
			fmt.Fprintf(&b, "%08x", r)
		}
		s.mu.Unlock()
		return b.String(), nil

	case 'c', 'C':
		// Continue: release the VM thread and reply empty. No stop
		// notification is sent to the client when the VM halts again.
		s.Resume(debug.Running)
		return "", nil

	case 'q':
		return s.dispatchQuery(payload)

	case 'Q':
		if payload == "QStartNoAckMode" {
			return "OK", nil
		}
		return "", nil

	case 'H':
		// Thread selection; there is only one thread.
		return "OK", nil
	}
	return "", nil
}

func (s *Session) dispatchQuery(payload string) (string, error) {
	switch {
	case strings.HasPrefix(payload, "qSupported"):
		var b strings.Builder
		if strings.Contains(payload, "multiprocess") {
			b.WriteString("multiprocess-;")
		}
		b.WriteString("PacketSize=1024;")
		b.WriteString("QStartNoAckMode+;")
		b.WriteString("xmlRegisters=;")
		b.WriteString("qXfer:features:read+;")
		return b.String(), nil

	case payload == "qC":
		// No threads: always report 'any'.
		return "QC0", nil

	case payload == "qAttached":
		// We attached to an existing process.
		return "1", nil

	case strings.HasPrefix(payload, "qXfer:features:read:"):
		return s.readFeatures(strings.TrimPrefix(payload, "qXfer:features:read:"))
	}
	return "", nil
}

// readFeatures serves target.xml in offset/length chunks: an 'm' reply has
// more data after it, an 'l' reply is the last chunk.
func (s *Session) readFeatures(params string) (string, error) {
	colon := strings.IndexByte(params, ':')
	if colon < 0 || params[:colon] != "target.xml" {
		return "", errors.Proto("E00")
	}

	rangeSpec := params[colon+1:]
	comma := strings.IndexByte(rangeSpec, ',')
	if comma < 0 {
		return "", errors.Proto("E00")
	}
	offset, err1 := strconv.ParseInt(rangeSpec[:comma], 16, 32)
	length, err2 := strconv.ParseInt(rangeSpec[comma+1:], 16, 32)
	if err1 != nil || err2 != nil || offset < 0 || length < 0 {
		return "", errors.Proto("E01")
	}

	total := int64(len(targetXML))
	if offset >= total {
		// The offset is at the end of the data; nothing left to read.
		return "l", nil
	}
	if offset+length > total {
		return "l" + targetXML[offset:], nil
	}
	return "m" + targetXML[offset:offset+length], nil
}
