package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned by DecodeWAV for data that is not a RIFF/WAVE
// container.
var ErrNotWAV = errors.New("audio: not a WAV file")

// EncodeWAV wraps 16-bit little-endian mono PCM in a standard 44-byte
// RIFF/WAVE header.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))           // chunk size
	binary.Write(buf, binary.LittleEndian, uint16(1))            // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))            // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))   // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// DecodeWAV extracts 16-bit PCM and the sample rate from a WAV container.
// Stereo input is downmixed to mono; non-PCM encodings are rejected.
func DecodeWAV(data []byte) (pcm []byte, sampleRate int, err error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		format     uint16
		channels   uint16
		bitsPerSmp uint16
		rate       uint32
		body       []byte
	)

	// Walk the chunk list; fmt and data can appear after optional chunks.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		start := off + 8
		if start+size > len(data) {
			size = len(data) - start
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("audio: short fmt chunk (%d bytes)", size)
			}
			format = binary.LittleEndian.Uint16(data[start:])
			channels = binary.LittleEndian.Uint16(data[start+2:])
			rate = binary.LittleEndian.Uint32(data[start+4:])
			bitsPerSmp = binary.LittleEndian.Uint16(data[start+14:])
		case "data":
			body = data[start : start+size]
		}
		off = start + size
		if size%2 == 1 {
			off++ // chunks are word-aligned
		}
	}

	if body == nil {
		return nil, 0, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
	}
	if format != 1 || bitsPerSmp != 16 {
		return nil, 0, fmt.Errorf("audio: unsupported WAV encoding (format %d, %d bits)", format, bitsPerSmp)
	}
	switch channels {
	case 1:
		pcm = body
	case 2:
		pcm = StereoToMono(body)
	default:
		return nil, 0, fmt.Errorf("audio: unsupported channel count %d", channels)
	}
	return pcm, int(rate), nil
}
