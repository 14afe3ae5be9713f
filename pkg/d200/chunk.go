package d200

// The firmware walks a multi-report transfer by sampling the byte at offset
// FirstChunkPayload + k*PacketSize of the payload, the first byte of every
// follow-up report. 0x00 there reads as end of data and 0x7C as a new header.
const patchedSentinel = 0x01

func isSentinel(b byte) bool {
	return b == 0x00 || b == Header0
}

// HasSentinelConflict reports whether any sampled offset holds 0x00 or 0x7C.
func HasSentinelConflict(payload []byte) bool {
	for i := FirstChunkPayload; i < len(payload); i += PacketSize {
		if isSentinel(payload[i]) {
			return true
		}
	}
	return false
}

// PatchSentinels rewrites conflicting sampled bytes in place and returns how
// many were changed.
func PatchSentinels(payload []byte) int {
	patched := 0
	for i := FirstChunkPayload; i < len(payload); i += PacketSize {
		if isSentinel(payload[i]) {
			payload[i] = patchedSentinel
			patched++
		}
	}
	return patched
}

// EncodeChunked splits payload into PacketSize reports after patching
// sentinel bytes. payload is not modified; the patched copy is what gets
// chunked.
func EncodeChunked(cmd Command, payload []byte) (reports [][]byte, patched int) {
	buf := append([]byte(nil), payload...)
	patched = PatchSentinels(buf)
	return Split(cmd, buf), patched
}

// Split frames payload as a multi-report transfer without touching its bytes.
// The first report carries the header with the total length and the first
// FirstChunkPayload bytes; every following report is a raw, zero padded slice.
func Split(cmd Command, payload []byte) [][]byte {
	first := payload
	if len(first) > FirstChunkPayload {
		first = first[:FirstChunkPayload]
	}
	reports := [][]byte{Packet{Command: cmd, Length: uint32(len(payload)), Payload: first}.Encode()}

	for off := FirstChunkPayload; off < len(payload); off += PacketSize {
		end := min(off+PacketSize, len(payload))
		chunk := make([]byte, PacketSize)
		copy(chunk, payload[off:end])
		reports = append(reports, chunk)
	}
	return reports
}
