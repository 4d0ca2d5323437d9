package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestWAV_RoundTrip(t *testing.T) {
	t.Parallel()
	pcm := sine(1600, 440, 0.5, 16000)

	wav := EncodeWAV(pcm, 16000)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("encoded length = %d, want %d", len(wav), 44+len(pcm))
	}

	got, rate, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("decoded PCM differs from input")
	}
}

func TestDecodeWAV_RejectsNonWAV(t *testing.T) {
	t.Parallel()
	for _, data := range [][]byte{nil, []byte("RIFF"), bytes.Repeat([]byte("x"), 64)} {
		if _, _, err := DecodeWAV(data); !errors.Is(err, ErrNotWAV) {
			t.Errorf("DecodeWAV(%d bytes) = %v, want ErrNotWAV", len(data), err)
		}
	}
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	t.Parallel()
	// Two-sample stereo: L=1000/R=3000 then L=-500/R=-500.
	stereo := make([]byte, 8)
	binary.LittleEndian.PutUint16(stereo[0:], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(stereo[2:], uint16(int16(3000)))
	neg := int16(-500)
	binary.LittleEndian.PutUint16(stereo[4:], uint16(neg))
	binary.LittleEndian.PutUint16(stereo[6:], uint16(neg))

	wav := EncodeWAV(stereo, 16000)
	// Patch the header to declare two channels.
	binary.LittleEndian.PutUint16(wav[22:], 2)

	pcm, _, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(pcm) != 4 {
		t.Fatalf("downmixed length = %d, want 4", len(pcm))
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[0:])); got != 2000 {
		t.Errorf("first sample = %d, want 2000", got)
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[2:])); got != -500 {
		t.Errorf("second sample = %d, want -500", got)
	}
}

func TestDecodeWAV_RejectsNonPCMEncoding(t *testing.T) {
	t.Parallel()
	wav := EncodeWAV(make([]byte, 32), 16000)
	// Declare IEEE float format.
	binary.LittleEndian.PutUint16(wav[20:], 3)

	if _, _, err := DecodeWAV(wav); err == nil {
		t.Error("float WAV decoded without error")
	}
}

func TestDecodeWAV_SkipsOptionalChunks(t *testing.T) {
	t.Parallel()
	pcm := sine(160, 440, 0.5, 16000)
	wav := EncodeWAV(pcm, 16000)

	// Insert a LIST chunk between the fmt and data chunks.
	list := append([]byte("LIST"), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(list[4:], 4)
	list = append(list, 'I', 'N', 'F', 'O')
	patched := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)
	binary.LittleEndian.PutUint32(patched[4:], uint32(len(patched)-8))

	got, rate, err := DecodeWAV(patched)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || !bytes.Equal(got, pcm) {
		t.Error("data chunk after LIST chunk not decoded")
	}
}
