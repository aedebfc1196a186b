// Package media carries DataBuffers over a channel as RTP packets. A frame
// is split into packets sharing one timestamp; the last one has the marker
// bit set.
package media

const (
	flagStart byte = 1 << 0
	flagEnd   byte = 1 << 1

	payloadHeaderSize = 1
)

// frameExtension ids in the one-byte RTP header extension.
const (
	extTimeUs = 1
	extSize   = 2
)

// extensionOverhead is what the header extensions add to the first packet of
// a frame: the 4 byte extension header, two ids and their 8 byte values.
const extensionOverhead = 4 + 2*(1+8) + 2

// framePayloader splits a frame into chunks prefixed with a one byte
// start/end flag so a receiver can detect a frame whose head was lost.
type framePayloader struct{}

func (framePayloader) Payload(mtu uint16, payload []byte) [][]byte {
	chunk := int(mtu) - payloadHeaderSize
	if chunk <= 0 || len(payload) == 0 {
		return nil
	}

	var out [][]byte
	for off := 0; off < len(payload); off += chunk {
		end := off + chunk
		if end > len(payload) {
			end = len(payload)
		}

		var flags byte
		if off == 0 {
			flags |= flagStart
		}
		if end == len(payload) {
			flags |= flagEnd
		}

		p := make([]byte, payloadHeaderSize+end-off)
		p[0] = flags
		copy(p[payloadHeaderSize:], payload[off:end])
		out = append(out, p)
	}
	return out
}
