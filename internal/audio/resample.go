package audio

// Resample converts interleaved 16-bit little-endian PCM to mono at dstRate.
// Multi-channel input is downmixed first by averaging the interleaved channel
// samples, then rate-converted with linear interpolation. When srcRate equals
// dstRate only the downmix is applied.
//
// Linear interpolation is a deliberate quality/latency trade-off: it is cheap
// enough for the ingestion path and good enough for speech recognition, but it
// is not broadcast-grade resampling.
//
// The function is deterministic: identical input bytes always produce
// identical output bytes.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if channels > 1 {
		pcm = DownmixToMono(pcm, channels)
	}
	if srcRate == dstRate {
		return pcm
	}
	return resampleMono16(pcm, srcRate, dstRate)
}

// DownmixToMono averages the interleaved channel samples of each frame into a
// single mono sample. Uses int32 arithmetic to avoid overflow and clamps to
// the int16 range. Input that is not a whole number of frames is truncated.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			idx := i*frameBytes + ch*2
			sum += int32(int16(pcm[idx]) | int16(pcm[idx+1])<<8)
		}
		avg := sum / int32(channels)
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// resampleMono16 rate-converts 16-bit mono PCM from srcRate to dstRate using
// linear interpolation between neighbouring source samples.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
