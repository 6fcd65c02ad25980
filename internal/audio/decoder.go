package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// OpusDecoder decodes Discord voice packets into interleaved 48kHz stereo
// 16-bit PCM. Decoders carry codec state, so use one per RTP stream (SSRC).
type OpusDecoder struct {
	decoder *gopus.Decoder
}

func NewOpusDecoder() (*OpusDecoder, error) {
	decoder, err := gopus.NewDecoder(SourceSampleRate, SourceChannels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{decoder: decoder}, nil
}

// Decode converts one opus packet to PCM samples. Discord's three-byte
// comfort-noise marker decodes to a frame of silence.
func (d *OpusDecoder) Decode(opus []byte) ([]int16, error) {
	if len(opus) == 3 && opus[0] == 0xF8 && opus[1] == 0xFF && opus[2] == 0xFE {
		return make([]int16, FrameSize*SourceChannels), nil
	}

	pcm, err := d.decoder.Decode(opus, FrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("decode opus: %w", err)
	}
	return pcm, nil
}
