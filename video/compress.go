// Copyright 2026 The Telescreen Authors
// SPDX-License-Identifier: Apache-2.0

package video

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies the compression algorithm used for a
// frame payload. The tag rides as the first byte of every video-frame
// payload on the wire, so these values are protocol constants.
type CompressionTag uint8

const (
	// CompressionNone indicates raw RGB24 pixels. Fallback when a
	// frame does not compress smaller than its original size.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 indicates LZ4 block compression. The default:
	// camera frames carry large flat regions that LZ4 shrinks well at
	// a cost low enough for every tick of a 30 fps loop.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd indicates zstd at its default level. Better
	// ratios than LZ4 at more CPU; worthwhile for mostly-static
	// scenes where the change gate already keeps the send rate low.
	CompressionZstd CompressionTag = 2

	// CompressionPlanarLZ4 indicates plane-split RGB followed by LZ4.
	// Packed RGB interleaves three weakly-correlated channels;
	// regrouping all R bytes, then G, then B puts similar values next
	// to each other and measurably improves the LZ4 ratio on natural
	// images.
	CompressionPlanarLZ4 CompressionTag = 3
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	case CompressionPlanarLZ4:
		return "planar-lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation (the config file's video.compression value).
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	case "planar-lz4":
		return CompressionPlanarLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// EncodePayload compresses a frame's pixels with the given algorithm
// and prepends the tag byte. Incompressible frames fall back to
// CompressionNone rather than erroring, so the returned payload is
// always decodable.
func EncodePayload(pixels []byte, tag CompressionTag) ([]byte, error) {
	compressed, err := compress(pixels, tag)
	if err != nil {
		if isIncompressible(err) {
			tag = CompressionNone
			compressed = pixels
		} else {
			return nil, err
		}
	}

	payload := make([]byte, 1+len(compressed))
	payload[0] = byte(tag)
	copy(payload[1:], compressed)
	return payload, nil
}

// DecodePayload reverses EncodePayload. pixelLength is the exact
// decoded size implied by the frame's declared dimensions; any
// mismatch is an error, so a lying header can never hand an
// undersized buffer to the renderer.
func DecodePayload(payload []byte, pixelLength int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty frame payload")
	}
	return decompress(payload[1:], CompressionTag(payload[0]), pixelLength)
}

// compress compresses data using the specified algorithm. For
// CompressionNone, returns the input unchanged (no copy).
func compress(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		return compressLZ4(data)

	case CompressionZstd:
		return compressZstd(data)

	case CompressionPlanarLZ4:
		return compressPlanarLZ4(data)

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// decompress decompresses data that was compressed with the specified
// algorithm. The uncompressedSize must match the original data length
// exactly; a mismatch returns an error.
func decompress(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil

	case CompressionLZ4:
		return decompressLZ4(compressed, uncompressedSize)

	case CompressionZstd:
		return decompressZstd(compressed, uncompressedSize)

	case CompressionPlanarLZ4:
		planar, err := decompressLZ4(compressed, uncompressedSize)
		if err != nil {
			return nil, err
		}
		return planeMerge(planar), nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// LZ4 compression: block-mode LZ4.

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 when it determines the data is
	// incompressible. Also reject output that is not actually smaller
	// than the input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// Zstd: default speed level, encoder and decoder reused across calls.
// zstd.Encoder and zstd.Decoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("video: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("video: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, 0, uncompressedSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}

// Planar split + LZ4: regroup packed RGB into three channel planes
// before compression.

func compressPlanarLZ4(data []byte) ([]byte, error) {
	return compressLZ4(planeSplit(data))
}

// planeSplit rearranges packed RGB so that all R bytes come first,
// then all G bytes, then all B bytes. If the input length is not a
// multiple of 3, trailing bytes are appended as-is.
func planeSplit(data []byte) []byte {
	length := len(data)
	pixels := length / BytesPerPixel
	remainder := length % BytesPerPixel

	output := make([]byte, length)
	for i := 0; i < pixels; i++ {
		output[i] = data[i*3]
		output[pixels+i] = data[i*3+1]
		output[pixels*2+i] = data[i*3+2]
	}
	for i := 0; i < remainder; i++ {
		output[pixels*3+i] = data[pixels*3+i]
	}
	return output
}

// planeMerge reverses the planeSplit operation.
func planeMerge(data []byte) []byte {
	length := len(data)
	pixels := length / BytesPerPixel
	remainder := length % BytesPerPixel

	output := make([]byte, length)
	for i := 0; i < pixels; i++ {
		output[i*3] = data[i]
		output[i*3+1] = data[pixels+i]
		output[i*3+2] = data[pixels*2+i]
	}
	for i := 0; i < remainder; i++ {
		output[pixels*3+i] = data[pixels*3+i]
	}
	return output
}

// errIncompressible is returned by compression functions when the
// compressed output is not smaller than the input. EncodePayload
// falls back to CompressionNone.
var errIncompressible = errors.New("data is incompressible")

func isIncompressible(err error) bool {
	return errors.Is(err, errIncompressible)
}

// SelectCompression probes a sample frame to pick a codec for the
// session. Zstd is selected when its ratio exceeds 1.5x (static,
// compressible scenes); between 1.1x and 1.5x the cheaper planar LZ4
// wins; below that the frames are treated as incompressible. Probing
// happens once at session start, not per frame.
func SelectCompression(sample []byte) CompressionTag {
	if len(sample) == 0 {
		return CompressionNone
	}

	compressed := zstdEncoder.EncodeAll(sample, nil)
	ratio := float64(len(sample)) / float64(len(compressed))

	switch {
	case ratio >= 1.5:
		return CompressionZstd
	case ratio >= 1.1:
		return CompressionPlanarLZ4
	default:
		return CompressionNone
	}
}
