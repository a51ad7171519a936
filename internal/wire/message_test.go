package wire

import "testing"

func TestReconfigureRoundTrip(t *testing.T) {
	want := Reconfigure{Bitrate: 3000}
	frame := EncodeReconfigure(want)

	if len(frame) != HeaderSize+payloadSize(SubtypeReconfigure) {
		t.Fatalf("unexpected frame size: %d", len(frame))
	}

	hdr, err := ParseHeader(frame)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if hdr.Subtype != SubtypeReconfigure {
		t.Fatalf("subtype = %d, want %d", hdr.Subtype, SubtypeReconfigure)
	}

	got, err := DecodeReconfigure(frame[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeReconfigure: %v", err)
	}
	if got != want {
		t.Fatalf("decode(encode(x)) = %+v, want %+v", got, want)
	}
}

func TestReconfigureBitrateOffset(t *testing.T) {
	// bitrate=3000 must land at offset 16 (header 4 + 3 leading i32 fields:
	// reconfId, crf, framerate) as 0x00000BB8, big-endian.
	frame := EncodeReconfigure(Reconfigure{Bitrate: 3000})
	if len(frame) < 20 {
		t.Fatalf("frame too short: %d", len(frame))
	}
	got := frame[16:20]
	want := []byte{0x00, 0x00, 0x0B, 0xB8}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("offset 16 bytes = % x, want % x", got, want)
		}
	}
}

func TestPingRoundTrip(t *testing.T) {
	want := Ping{PingID: 42, TVSec: 1700000000, TVUsec: 123456}
	frame := EncodePing(want)
	got, err := DecodePing(frame[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodePing: %v", err)
	}
	if got != want {
		t.Fatalf("decode(encode(x)) = %+v, want %+v", got, want)
	}
}

func TestNetReportRoundTrip(t *testing.T) {
	want := NetReport{DurationUs: 1, FrameCount: 2, PktCount: 3, PktLoss: 4, ByteCount: 5, Capacity: 6}
	frame := EncodeNetReport(want)
	got, err := DecodeNetReport(frame[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeNetReport: %v", err)
	}
	if got != want {
		t.Fatalf("decode(encode(x)) = %+v, want %+v", got, want)
	}
}

func TestZeroPayloadFrames(t *testing.T) {
	for _, f := range []Frame{EncodeNull(), EncodeShutdown(), EncodeInitProbeChannel()} {
		if len(f) != HeaderSize {
			t.Fatalf("zero-payload frame has length %d, want %d", len(f), HeaderSize)
		}
	}
}

func TestMaxFrameSize(t *testing.T) {
	frame := EncodeReconfigure(Reconfigure{})
	if len(frame) > MaxFrameSize {
		t.Fatalf("frame size %d exceeds MaxFrameSize %d", len(frame), MaxFrameSize)
	}
}
