// Package rsp implements the GDB Remote Serial Protocol front-end: packet
// framing with escapes, checksums and acknowledgements, a single-client TCP
// server, and the session that translates packets into debugger operations.
package rsp

import "bytes"

// escapeChar marks the next payload byte as XOR-0x20 escaped.
const escapeChar = 0x7d

const hexchars = "0123456789abcdef"

func hexVal(ch byte) int {
	switch {
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'A' && ch <= 'F':
		return int(ch-'A') + 10
	}
	return -1
}

// FeedResult is what one chunk of inbound bytes produced.
type FeedResult struct {
	// Packets are the checksum-verified payloads, in arrival order, with
	// any sequence prefix already stripped.
	Packets []string
	// Out holds the bytes to transmit back: acks, naks, and sequence-id
	// echoes.
	Out []byte
	// Acks counts '+' characters seen outside packets.
	Acks int
	// Naks counts '-' characters seen outside packets; the sender must
	// retransmit its last packet once per nak.
	Naks int
}

// Framer decodes the inbound RSP byte stream. Packets may arrive split at
// arbitrary byte boundaries; the framer keeps its scanning state across
// Feed calls.
type Framer struct {
	inCommand     bool
	escaped       bool
	numCheckChars int
	checksum      byte
	xmitcsum      byte
	inbuf         []byte
	noAckMode     bool
}

// SetNoAckMode stops the framer from emitting '+'/'-' responses.
func (f *Framer) SetNoAckMode(on bool) {
	f.noAckMode = on
}

func (f *Framer) reset() {
	f.inCommand = false
	f.escaped = false
	f.numCheckChars = 0
	f.checksum = 0
	f.xmitcsum = 0
	f.inbuf = f.inbuf[:0]
}

// Feed consumes one chunk of inbound bytes.
func (f *Framer) Feed(data []byte) FeedResult {
	var res FeedResult
	for i := 0; i < len(data); i++ {
		ch := data[i]

		if !f.inCommand {
			switch ch {
			case '+':
				res.Acks++
			case '-':
				res.Naks++
			case '$':
				f.inCommand = true
			}
			// Anything else outside a packet is noise.
			continue
		}

		if f.numCheckChars > 0 || ch == '#' {
			if ch == '#' {
				// Move on to the checksum digits.
				f.xmitcsum = 0
				f.numCheckChars = 1
				continue
			}
			f.collectChecksum(ch, &res)
			continue
		}

		switch ch {
		case '$':
			// A stray packet start aborts the current one.
			f.inbuf = f.inbuf[:0]
			f.checksum = 0
			f.escaped = false
		default:
			f.checksum += ch
			if ch == escapeChar && !f.escaped {
				f.escaped = true
				continue
			}
			if f.escaped {
				f.escaped = false
				f.inbuf = append(f.inbuf, ch^0x20)
			} else {
				f.inbuf = append(f.inbuf, ch)
			}
		}
	}
	return res
}

// collectChecksum consumes the two hex digits following '#' and verifies
// the packet once both have arrived.
func (f *Framer) collectChecksum(ch byte, res *FeedResult) {
	switch f.numCheckChars {
	case 1:
		f.xmitcsum = byte(hexVal(ch)) << 4
		f.numCheckChars = 2
		return
	case 2:
		f.xmitcsum += byte(hexVal(ch))
	}

	if f.checksum != f.xmitcsum {
		if !f.noAckMode {
			res.Out = append(res.Out, '-')
		}
		f.reset()
		return
	}

	if !f.noAckMode {
		res.Out = append(res.Out, '+')
	}
	payload := string(f.inbuf)
	f.reset()

	// A sequence prefix ("XX:") is echoed back and stripped.
	if len(payload) > 3 && payload[2] == ':' {
		res.Out = append(res.Out, payload[0], payload[1])
		payload = payload[3:]
	}
	res.Packets = append(res.Packets, payload)
}

// EncodePacket frames an outbound payload as $<payload>#<checksum>. A '*'
// is escaped with a following 0x0A so it cannot be read as a run-length
// marker; the checksum covers the escaped bytes.
func EncodePacket(payload string) []byte {
	escaped := bytes.ReplaceAll([]byte(payload), []byte{'*'}, []byte{'*', 0x0a})

	var checksum byte
	for _, b := range escaped {
		checksum += b
	}

	out := make([]byte, 0, len(escaped)+4)
	out = append(out, '$')
	out = append(out, escaped...)
	out = append(out, '#', hexchars[checksum>>4], hexchars[checksum&0xf])
	return out
}
