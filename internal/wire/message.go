// Package wire implements the control-message codec (component D):
// length-prefixed, typed, big-endian frames carried over the control
// transport, plus the fixed-size handler registry that dispatches decoded
// frames to their owners.
package wire

import (
	"encoding/binary"
	"fmt"
)

// MsgType identifies the outer message family. The spec defines exactly one:
// SYSTEM control frames.
type MsgType byte

// Subtype identifies a SYSTEM frame's payload shape.
type Subtype byte

const (
	MsgTypeSystem MsgType = 0xFE

	SubtypeNull              Subtype = 0
	SubtypeShutdown          Subtype = 1
	SubtypeNetReport         Subtype = 2
	SubtypeReconfigure       Subtype = 3
	SubtypeInitProbeChannel  Subtype = 4
	SubtypePing              Subtype = 5

	// MaxSubtype bounds the handler registry and the valid subtype range.
	MaxSubtype = SubtypePing

	// HeaderSize is the common 4-byte frame header: msgsize(u16) + msgtype(u8) + subtype(u8).
	HeaderSize = 4

	// MaxFrameSize is the largest SYSTEM frame the codec will encode or accept, per §6.
	MaxFrameSize = 128
)

// payloadSize returns the fixed payload length for a subtype, or -1 if the
// subtype is unknown to this codec version.
func payloadSize(st Subtype) int {
	switch st {
	case SubtypeNull:
		return 0
	case SubtypeShutdown:
		return 0
	case SubtypeNetReport:
		return 6 * 4 // duration, framecount, pktcount, pktloss, bytecount, capacity
	case SubtypeReconfigure:
		return 6 * 4 // reconfId, crf, framerate, bitrate, width, height
	case SubtypeInitProbeChannel:
		return 0
	case SubtypePing:
		return 4 + 4 + 4 // ping_id, tv_sec, tv_usec
	default:
		return -1
	}
}

// NetReport carries the NETREPORT payload (subtype 2).
type NetReport struct {
	DurationUs uint32
	FrameCount uint32
	PktCount   uint32
	PktLoss    uint32
	ByteCount  uint32
	Capacity   uint32
}

// Reconfigure carries the RECONFIGURE payload (subtype 3). Per §6, only
// Bitrate is meaningful on the wire today; the remaining fields are carried
// for forward compatibility with an encoder that also honors CRF/framerate/
// resolution, and are zero-valued when unused.
type Reconfigure struct {
	ReconfID  int32
	CRF       int32
	Framerate int32
	Bitrate   int32
	Width     int32
	Height    int32
}

// Ping carries the PING payload (subtype 5): an identified timestamp echoed
// back by the peer's diagnostics path (distinct from component A's UDP
// probe datagrams — this one rides the reliable control channel).
type Ping struct {
	PingID uint32
	TVSec  int32
	TVUsec int32
}

// Frame is an encoded SYSTEM message, header included.
type Frame []byte

func newFrame(st Subtype, payload []byte) Frame {
	size := HeaderSize + len(payload)
	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:2], uint16(size))
	buf[2] = byte(MsgTypeSystem)
	buf[3] = byte(st)
	copy(buf[HeaderSize:], payload)
	return buf
}

// EncodeNull encodes a NULL frame.
func EncodeNull() Frame { return newFrame(SubtypeNull, nil) }

// EncodeShutdown encodes a SHUTDOWN frame.
func EncodeShutdown() Frame { return newFrame(SubtypeShutdown, nil) }

// EncodeInitProbeChannel encodes an INIT_PROBE_CHANNEL frame.
func EncodeInitProbeChannel() Frame { return newFrame(SubtypeInitProbeChannel, nil) }

// EncodeNetReport encodes a NETREPORT frame.
func EncodeNetReport(r NetReport) Frame {
	payload := make([]byte, payloadSize(SubtypeNetReport))
	binary.BigEndian.PutUint32(payload[0:4], r.DurationUs)
	binary.BigEndian.PutUint32(payload[4:8], r.FrameCount)
	binary.BigEndian.PutUint32(payload[8:12], r.PktCount)
	binary.BigEndian.PutUint32(payload[12:16], r.PktLoss)
	binary.BigEndian.PutUint32(payload[16:20], r.ByteCount)
	binary.BigEndian.PutUint32(payload[20:24], r.Capacity)
	return newFrame(SubtypeNetReport, payload)
}

// EncodeReconfigure encodes a RECONFIGURE frame.
func EncodeReconfigure(r Reconfigure) Frame {
	payload := make([]byte, payloadSize(SubtypeReconfigure))
	binary.BigEndian.PutUint32(payload[0:4], uint32(r.ReconfID))
	binary.BigEndian.PutUint32(payload[4:8], uint32(r.CRF))
	binary.BigEndian.PutUint32(payload[8:12], uint32(r.Framerate))
	binary.BigEndian.PutUint32(payload[12:16], uint32(r.Bitrate))
	binary.BigEndian.PutUint32(payload[16:20], uint32(r.Width))
	binary.BigEndian.PutUint32(payload[20:24], uint32(r.Height))
	return newFrame(SubtypeReconfigure, payload)
}

// EncodePing encodes a PING frame.
func EncodePing(p Ping) Frame {
	payload := make([]byte, payloadSize(SubtypePing))
	binary.BigEndian.PutUint32(payload[0:4], p.PingID)
	binary.BigEndian.PutUint32(payload[4:8], uint32(p.TVSec))
	binary.BigEndian.PutUint32(payload[8:12], uint32(p.TVUsec))
	return newFrame(SubtypePing, payload)
}

// DecodeNetReport decodes a NETREPORT payload (header already stripped).
func DecodeNetReport(payload []byte) (NetReport, error) {
	if len(payload) != payloadSize(SubtypeNetReport) {
		return NetReport{}, fmt.Errorf("wire: bad netreport payload size %d", len(payload))
	}
	return NetReport{
		DurationUs: binary.BigEndian.Uint32(payload[0:4]),
		FrameCount: binary.BigEndian.Uint32(payload[4:8]),
		PktCount:   binary.BigEndian.Uint32(payload[8:12]),
		PktLoss:    binary.BigEndian.Uint32(payload[12:16]),
		ByteCount:  binary.BigEndian.Uint32(payload[16:20]),
		Capacity:   binary.BigEndian.Uint32(payload[20:24]),
	}, nil
}

// DecodeReconfigure decodes a RECONFIGURE payload (header already stripped).
func DecodeReconfigure(payload []byte) (Reconfigure, error) {
	if len(payload) != payloadSize(SubtypeReconfigure) {
		return Reconfigure{}, fmt.Errorf("wire: bad reconfigure payload size %d", len(payload))
	}
	return Reconfigure{
		ReconfID:  int32(binary.BigEndian.Uint32(payload[0:4])),
		CRF:       int32(binary.BigEndian.Uint32(payload[4:8])),
		Framerate: int32(binary.BigEndian.Uint32(payload[8:12])),
		Bitrate:   int32(binary.BigEndian.Uint32(payload[12:16])),
		Width:     int32(binary.BigEndian.Uint32(payload[16:20])),
		Height:    int32(binary.BigEndian.Uint32(payload[20:24])),
	}, nil
}

// DecodePing decodes a PING payload (header already stripped).
func DecodePing(payload []byte) (Ping, error) {
	if len(payload) != payloadSize(SubtypePing) {
		return Ping{}, fmt.Errorf("wire: bad ping payload size %d", len(payload))
	}
	return Ping{
		PingID: binary.BigEndian.Uint32(payload[0:4]),
		TVSec:  int32(binary.BigEndian.Uint32(payload[4:8])),
		TVUsec: int32(binary.BigEndian.Uint32(payload[8:12])),
	}, nil
}

// Header is the decoded common 4-byte frame header.
type Header struct {
	MsgSize uint16
	MsgType MsgType
	Subtype Subtype
}

// ParseHeader decodes the 4-byte common header from buffer.
func ParseHeader(buffer []byte) (Header, error) {
	if len(buffer) < HeaderSize {
		return Header{}, fmt.Errorf("wire: short buffer for header: %d bytes", len(buffer))
	}
	return Header{
		MsgSize: binary.BigEndian.Uint16(buffer[0:2]),
		MsgType: MsgType(buffer[2]),
		Subtype: Subtype(buffer[3]),
	}, nil
}
