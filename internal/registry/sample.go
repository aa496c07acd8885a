package registry

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// SampleInfo is the GEN-table metadata read from a soundfile for a
// gen_soundfile node: channel count, sample rate, and total frames. The
// compiler does not read it: its gen_soundfile score line uses table size 0.
type SampleInfo struct {
	SampleRate  int64
	Channels    int
	TotalFrames int64
}

// ReadSampleInfo opens filename and reads its WAV header/PCM extent,
// adapted from the teacher's sample-browser BPM detector's Length helper.
func ReadSampleInfo(filename string) (SampleInfo, error) {
	f, err := os.Open(filename)
	if err != nil {
		return SampleInfo{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return SampleInfo{}, fmt.Errorf("invalid WAV file: %s", filename)
	}
	d.ReadInfo()

	if d.SampleRate == 0 {
		return SampleInfo{}, fmt.Errorf("invalid sample rate: 0")
	}
	bytesPerSample := int64(d.BitDepth) / 8
	if bytesPerSample <= 0 {
		return SampleInfo{}, fmt.Errorf("invalid bit depth: %d", d.BitDepth)
	}
	chans := int64(d.NumChans)
	if chans <= 0 {
		return SampleInfo{}, fmt.Errorf("invalid channel count: %d", d.NumChans)
	}

	if !d.WasPCMAccessed() && d.PCMChunk == nil {
		if err := d.FwdToPCM(); err != nil {
			return SampleInfo{}, fmt.Errorf("locate PCM: %w", err)
		}
	}

	totalBytes := d.PCMLen()
	if totalBytes <= 0 {
		return SampleInfo{}, fmt.Errorf("no PCM data")
	}

	frameSize := bytesPerSample * chans
	return SampleInfo{
		SampleRate:  int64(d.SampleRate),
		Channels:    int(chans),
		TotalFrames: totalBytes / frameSize,
	}, nil
}

// SamplePreview decodes filename's full PCM buffer, downmixes it to mono,
// and downsamples it into exactly points min/max-paired buckets in [-1,1],
// for the --debug monitor's GEN-table waveform strip. points is doubled
// internally (min then max per bucket) so transients aren't averaged away.
func SamplePreview(filename string, points int) ([]float64, error) {
	if points <= 0 {
		return nil, fmt.Errorf("points must be positive, got %d", points)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", filename)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode PCM: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("missing channel layout")
	}
	chans := buf.Format.NumChannels
	frames := len(buf.Data) / chans
	if frames == 0 {
		return nil, fmt.Errorf("no PCM frames decoded")
	}

	peak := float64(int(1) << uint(buf.SourceBitDepth-1))
	if buf.SourceBitDepth <= 0 {
		peak = 32768 // matches the 16-bit samples produced by FullPCMBuffer when unset
	}

	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < chans; c++ {
			sum += buf.Data[i*chans+c]
		}
		mono[i] = float64(sum) / float64(chans) / peak
	}

	bucket := frames / points
	if bucket < 1 {
		bucket = 1
	}
	out := make([]float64, 0, points*2)
	for start := 0; start < frames && len(out) < points*2; start += bucket {
		end := start + bucket
		if end > frames {
			end = frames
		}
		min, max := mono[start], mono[start]
		for _, v := range mono[start:end] {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		out = append(out, min, max)
	}
	return out, nil
}
