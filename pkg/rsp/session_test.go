package rsp

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawnlang/pawndbg/pkg/debug"
	"github.com/pawnlang/pawndbg/pkg/vm"
)

func TestHandleStopReason(t *testing.T) {
	s := NewSession()
	assert.Equal(t, "S00", s.HandlePacket("?"))
}

func TestHandleRegisters(t *testing.T) {
	s := NewSession()

	done := make(chan debug.Runmode, 1)
	go func() {
		done <- s.OnHalt(vm.Registers{Pri: 1, Alt: 2, Cip: 0x6c, Sp: 0xff0, Frm: -4})
	}()

	// Wait for the VM goroutine to park.
	require.Eventually(t, s.Stopped, time.Second, time.Millisecond)

	reply := s.HandlePacket("g")
	assert.Equal(t, "00000001"+"00000002"+"0000006c"+"00000ff0"+"fffffffc", reply)

	s.Resume(debug.Running)
	select {
	case mode := <-done:
		assert.Equal(t, debug.Running, mode)
	case <-time.After(time.Second):
		t.Fatal("VM thread not released")
	}
}

func TestContinueReleasesHalt(t *testing.T) {
	s := NewSession()

	done := make(chan debug.Runmode, 1)
	go func() {
		done <- s.OnHalt(vm.Registers{})
	}()
	require.Eventually(t, s.Stopped, time.Second, time.Millisecond)

	assert.Equal(t, "", s.HandlePacket("c"))
	select {
	case mode := <-done:
		assert.Equal(t, debug.Running, mode)
	case <-time.After(time.Second):
		t.Fatal("continue did not release the VM thread")
	}
}

func TestHandleQSupported(t *testing.T) {
	s := NewSession()

	// A client advertising multiprocess gets it refused up front.
	reply := s.HandlePacket("qSupported:multiprocess+;xmlRegisters=i386")
	assert.True(t, strings.HasPrefix(reply,
		"multiprocess-;PacketSize=1024;QStartNoAckMode+;"), "reply = %q", reply)
	assert.Contains(t, reply, "xmlRegisters=;")
	assert.Contains(t, reply, "qXfer:features:read+;")

	// Without the advertisement there is no multiprocess clause.
	reply = s.HandlePacket("qSupported:swbreak+")
	assert.True(t, strings.HasPrefix(reply, "PacketSize=1024;"), "reply = %q", reply)
}

func TestHandleSimpleQueries(t *testing.T) {
	s := NewSession()
	assert.Equal(t, "QC0", s.HandlePacket("qC"))
	assert.Equal(t, "1", s.HandlePacket("qAttached"))
	assert.Equal(t, "OK", s.HandlePacket("QStartNoAckMode"))
	assert.Equal(t, "OK", s.HandlePacket("Hg0"))
	assert.Equal(t, "", s.HandlePacket("vMustReplyEmpty"))
}

func TestReadTargetXML(t *testing.T) {
	s := NewSession()

	// Chunked read: 'm' while data remains, 'l' on the final chunk.
	var xml strings.Builder
	offset := 0
	for i := 0; i < 100; i++ {
		reply := s.HandlePacket(formatXferRead(offset, 0x40))
		require.NotEmpty(t, reply)
		xml.WriteString(reply[1:])
		offset += len(reply) - 1
		if reply[0] == 'l' {
			break
		}
		require.Equal(t, byte('m'), reply[0])
	}

	assert.Equal(t, targetXML, xml.String())
	for _, reg := range []string{"pri", "alt", "cip", "sp", "frm"} {
		assert.Contains(t, xml.String(), `<reg name="`+reg+`"`)
	}

	// Reading past the end yields a bare 'l'.
	assert.Equal(t, "l", s.HandlePacket(formatXferRead(len(targetXML)+10, 0x40)))
}

func formatXferRead(offset, length int) string {
	return fmt.Sprintf("qXfer:features:read:target.xml:%x,%x", offset, length)
}

func TestReadTargetXMLErrors(t *testing.T) {
	s := NewSession()

	// Wrong annex.
	assert.Equal(t, "E00", s.HandlePacket("qXfer:features:read:memory.map:0,100"))
	// Missing range.
	assert.Equal(t, "E00", s.HandlePacket("qXfer:features:read:target.xml:0"))
	// Unparsable offsets.
	assert.Equal(t, "E01", s.HandlePacket("qXfer:features:read:target.xml:zz,100"))
}

func TestResumeModePropagates(t *testing.T) {
	s := NewSession()

	done := make(chan debug.Runmode, 1)
	go func() {
		done <- s.OnHalt(vm.Registers{})
	}()
	require.Eventually(t, s.Stopped, time.Second, time.Millisecond)

	s.Resume(debug.Stepping)
	assert.Equal(t, debug.Stepping, <-done)
}

func TestHandleHaltImplementsHandler(t *testing.T) {
	var _ debug.Handler = NewSession()
}
