// Copyright 2026 The Easel Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Snapshot and history blobs record which codec produced them. The
// names are stored in the database, so they are format constants.
const (
	codecNone = "none"
	codecZstd = "zstd"
)

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
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
		panic("project: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("project: zstd decoder initialization failed: " + err.Error())
	}
}

// compressBlob compresses data with zstd, falling back to the raw
// bytes when compression does not shrink them. Program text compresses
// well; tiny programs may not, and storing those raw costs nothing.
func compressBlob(data []byte) (payload []byte, codec string) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return data, codecNone
	}
	return compressed, codecZstd
}

// decompressBlob reverses compressBlob. The expected uncompressed size
// is verified so a corrupt row surfaces as an error instead of
// truncated program text.
func decompressBlob(payload []byte, codec string, uncompressedSize int) ([]byte, error) {
	switch codec {
	case codecNone:
		if len(payload) != uncompressedSize {
			return nil, fmt.Errorf("project: raw blob is %d bytes, expected %d", len(payload), uncompressedSize)
		}
		return payload, nil

	case codecZstd:
		result, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("project: zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("project: zstd blob decoded to %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("project: unknown blob codec %q", codec)
	}
}
