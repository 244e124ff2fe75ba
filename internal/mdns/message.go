// Package mdns implements a raw-UDP multicast DNS responder that advertises
// the decoy as the emulated product. It parses inbound queries directly off
// the wire, records every one as a discovery attack fact, and answers with
// the record set a real installation would publish.
package mdns

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	headerLen = 12

	// flagResponse is the QR bit in the DNS flags field.
	flagResponse = 0x8000
	// replyFlags sets QR and AA, matching the real product's responses.
	replyFlags = 0x8400

	classIN = 0x0001
	// classCacheFlush sets the mDNS cache-flush bit on unique records.
	classCacheFlush = 0x8001

	// maxPointerJumps bounds compression-pointer chains so hostile input
	// cannot loop the parser.
	maxPointerJumps = 8
)

var (
	errTruncated   = errors.New("mdns: truncated message")
	errBadPointer  = errors.New("mdns: bad compression pointer")
	errNameTooLong = errors.New("mdns: name too long")
)

// header is the fixed 12-byte DNS message header.
type header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

func (h header) isResponse() bool {
	return h.Flags&flagResponse != 0
}

func parseHeader(data []byte) (header, error) {
	if len(data) < headerLen {
		return header{}, errTruncated
	}
	return header{
		ID:      binary.BigEndian.Uint16(data[0:2]),
		Flags:   binary.BigEndian.Uint16(data[2:4]),
		QDCount: binary.BigEndian.Uint16(data[4:6]),
		ANCount: binary.BigEndian.Uint16(data[6:8]),
		NSCount: binary.BigEndian.Uint16(data[8:10]),
		ARCount: binary.BigEndian.Uint16(data[10:12]),
	}, nil
}

// question is one entry of the question section.
type question struct {
	Name  string
	Type  uint16
	Class uint16
}

// parseName decodes a label sequence starting at off into a dotted name,
// following compression pointers read-only. It returns the offset just past
// the name as it appears at off (pointers do not advance the caller).
func parseName(data []byte, off int) (string, int, error) {
	var sb strings.Builder
	jumped := false
	jumps := 0
	next := off

	for {
		if off >= len(data) {
			return "", 0, errTruncated
		}
		l := int(data[off])

		switch {
		case l == 0:
			if !jumped {
				next = off + 1
			}
			name := sb.String()
			if name == "" {
				name = "."
			}
			return name, next, nil

		case l&0xC0 == 0xC0:
			if off+1 >= len(data) {
				return "", 0, errTruncated
			}
			if jumps++; jumps > maxPointerJumps {
				return "", 0, errBadPointer
			}
			ptr := int(binary.BigEndian.Uint16(data[off:off+2]) & 0x3FFF)
			if ptr >= off {
				return "", 0, errBadPointer
			}
			if !jumped {
				next = off + 2
				jumped = true
			}
			off = ptr

		case l&0xC0 != 0:
			return "", 0, fmt.Errorf("mdns: unsupported label type 0x%02x", l&0xC0)

		default:
			if off+1+l > len(data) {
				return "", 0, errTruncated
			}
			sb.Write(data[off+1 : off+1+l])
			sb.WriteByte('.')
			if sb.Len() > 255 {
				return "", 0, errNameTooLong
			}
			off += 1 + l
		}
	}
}

// parseQuestion decodes one question entry at off.
func parseQuestion(data []byte, off int) (question, int, error) {
	name, off, err := parseName(data, off)
	if err != nil {
		return question{}, 0, err
	}
	if off+4 > len(data) {
		return question{}, 0, errTruncated
	}
	q := question{
		Name:  name,
		Type:  binary.BigEndian.Uint16(data[off : off+2]),
		Class: binary.BigEndian.Uint16(data[off+2 : off+4]),
	}
	return q, off + 4, nil
}

// encodeName writes a dotted name as an uncompressed label sequence.
// Responses never use compression pointers.
func encodeName(name string) []byte {
	var buf []byte
	for _, label := range strings.Split(strings.TrimSuffix(name, "."), ".") {
		if label == "" {
			continue
		}
		if len(label) > 63 {
			label = label[:63]
		}
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	return append(buf, 0)
}

// encodeHeader writes a reply header reusing the query's transaction id.
func encodeHeader(id uint16, qdCount, anCount, arCount uint16) []byte {
	buf := make([]byte, headerLen)
	binary.BigEndian.PutUint16(buf[0:2], id)
	binary.BigEndian.PutUint16(buf[2:4], replyFlags)
	binary.BigEndian.PutUint16(buf[4:6], qdCount)
	binary.BigEndian.PutUint16(buf[6:8], anCount)
	binary.BigEndian.PutUint16(buf[10:12], arCount)
	return buf
}

// encodeQuestion re-encodes a parsed question for verbatim echo.
func encodeQuestion(q question) []byte {
	buf := encodeName(q.Name)
	buf = appendUint16(buf, q.Type)
	buf = appendUint16(buf, q.Class)
	return buf
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
