package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// WAVHeaderSize is the size of the canonical RIFF/WAVE header
	WAVHeaderSize = 44

	numChannels    = 1
	bitsPerSample  = 16
	bytesPerSample = bitsPerSample / 8
)

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // 36 + Subchunk2Size
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// newWAVHeader computes every size field from the payload length
func newWAVHeader(numSamples int, sampleRate int) WAVHeader {
	if sampleRate < 0 {
		sampleRate = 0
	}
	dataSize := uint32(numSamples * bytesPerSample)

	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * numChannels * bitsPerSample / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// QuantizeSample converts a normalized float sample to signed 16-bit PCM.
// Negative values scale by 32768 and positive by 32767 so both ends of the
// range are reachable; the fraction is truncated toward zero.
func QuantizeSample(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7FFF)
}

// EncodeWAV serializes frames, in order, into a mono 16-bit PCM WAV file.
// It cannot fail: an empty frame list yields a header-only container.
func EncodeWAV(frames []Frame, sampleRate int) []byte {
	numSamples := 0
	for _, f := range frames {
		numSamples += len(f)
	}

	header := newWAVHeader(numSamples, sampleRate)
	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+numSamples*bytesPerSample))

	// Writes into a bytes.Buffer only fail on allocation, which panics instead
	_ = binary.Write(buf, binary.LittleEndian, header)

	var pcm [bytesPerSample]byte
	for _, f := range frames {
		for _, s := range f {
			binary.LittleEndian.PutUint16(pcm[:], uint16(QuantizeSample(s)))
			buf.Write(pcm[:])
		}
	}

	return buf.Bytes()
}

// EncodeBuffer serializes the contents of a SampleBuffer
func EncodeBuffer(b *SampleBuffer, sampleRate int) []byte {
	return EncodeWAV(b.Frames(), sampleRate)
}

// SamplesToFloat maps 16-bit PCM back to the normalized float range using the
// same asymmetric scale as QuantizeSample
func SamplesToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		if s < 0 {
			out[i] = float32(s) / 0x8000
		} else {
			out[i] = float32(s) / 0x7FFF
		}
	}
	return out
}

// DecodeWAV decodes WAV format data back to PCM-16 samples
func DecodeWAV(data []byte) ([]int16, int, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, 0, err
	}

	if header.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.BitsPerSample != bitsPerSample {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}

	if header.NumChannels != numChannels {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", header.NumChannels)
	}

	payload := data[WAVHeaderSize:]
	if uint32(len(payload)) < header.Subchunk2Size {
		return nil, 0, fmt.Errorf("truncated data chunk: header declares %d bytes, have %d",
			header.Subchunk2Size, len(payload))
	}

	numSamples := int(header.Subchunk2Size) / bytesPerSample
	samples := make([]int16, numSamples)
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, samples); err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return samples, int(header.SampleRate), nil
}

// readHeader parses and validates the fixed 44-byte header
func readHeader(data []byte) (WAVHeader, error) {
	var header WAVHeader

	if err := ValidateWAV(data); err != nil {
		return header, err
	}

	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return header, fmt.Errorf("failed to read WAV header: %w", err)
	}

	return header, nil
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	riffSize := binary.LittleEndian.Uint32(data[4:8])
	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if riffSize != 36+dataSize {
		return fmt.Errorf("inconsistent WAV sizes: riff=%d data=%d", riffSize, dataSize)
	}

	return nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return 0, err
	}
	return info.Duration, nil
}

// WAVInfo holds basic information about a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	header, err := readHeader(data)
	if err != nil {
		return nil, err
	}

	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	if header.BitsPerSample == 0 || header.NumChannels == 0 {
		return nil, fmt.Errorf("invalid format: %d channels, %d bits", header.NumChannels, header.BitsPerSample)
	}

	frameBytes := uint32(header.BitsPerSample) / 8 * uint32(header.NumChannels)
	numSamples := header.Subchunk2Size / frameBytes

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(numSamples) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumSamples:    numSamples,
	}, nil
}
