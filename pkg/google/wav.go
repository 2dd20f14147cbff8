package google

import (
	"bytes"
	"encoding/binary"
)

// wavFromPCM wraps raw 16-bit PCM samples in a RIFF/WAVE container.
func wavFromPCM(pcm []byte, sampleRate, channels int) []byte {
	n := uint32(len(pcm))
	blockAlign := uint16(channels * 2)
	byteRate := uint32(sampleRate) * uint32(blockAlign)

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+n) //nolint:errcheck
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))         //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint16(1))          //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint16(channels))   //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate)) //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, byteRate)           //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, blockAlign)         //nolint:errcheck
	binary.Write(&buf, binary.LittleEndian, uint16(16))         //nolint:errcheck
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, n) //nolint:errcheck
	buf.Write(pcm)
	return buf.Bytes()
}
