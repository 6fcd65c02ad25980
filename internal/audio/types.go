package audio

import "time"

const (
	// SourceSampleRate is the sample rate of PCM delivered by the voice
	// transport (Discord decodes Opus at 48kHz).
	SourceSampleRate = 48000

	// SourceChannels is the channel count of transport PCM (interleaved stereo).
	SourceChannels = 2

	// EngineSampleRate is the sample rate expected by the speech engines.
	EngineSampleRate = 16000

	// EngineBytesPerMs is the byte rate of engine-format audio
	// (16kHz mono 16-bit = 32 bytes per millisecond).
	EngineBytesPerMs = EngineSampleRate * 2 / 1000

	// FrameSize is the number of samples per channel in one 20ms transport frame.
	FrameSize = 960
)

// Speaker identifies one voice-channel participant: a stable platform user ID
// plus a display label used when attributing transcript output.
type Speaker struct {
	ID          string
	DisplayName string
}

// Frame is one decoded audio frame from the voice transport. Samples are
// interleaved 16-bit little-endian PCM in the transport's native format.
// Frames are not retained after being folded into a speaker's buffer.
type Frame struct {
	Speaker    Speaker
	Samples    []byte
	CapturedAt time.Time
}

// Int16ToBytes converts PCM samples to little-endian bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// BytesToInt16 converts little-endian PCM bytes to samples. A trailing odd
// byte is ignored.
func BytesToInt16(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}
