// Package wire encodes the small control messages exchanged over Flight:
// read requests carried in flight descriptors and session tickets.
//
// Payloads are MessagePack. Bodies larger than CompressThreshold are
// ZStandard-compressed; a one-byte header records which form follows.
package wire

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// CompressThreshold is the encoded size above which payloads are compressed.
const CompressThreshold = 512

const (
	flagPlain byte = 0
	flagZstd  byte = 1
)

var ErrMalformed = errors.New("wire: malformed payload")

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			codecErr = fmt.Errorf("failed to create zstd encoder: %w", codecErr)
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if codecErr != nil {
			codecErr = fmt.Errorf("failed to create zstd decoder: %w", codecErr)
		}
	})
	return encoder, decoder, codecErr
}

// Marshal encodes v as MessagePack with the compression header.
func Marshal(v any) ([]byte, error) {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode MessagePack: %w", err)
	}
	if len(body) <= CompressThreshold {
		return append([]byte{flagPlain}, body...), nil
	}

	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	dst := make([]byte, 1, len(body)/2+1)
	dst[0] = flagZstd
	return enc.EncodeAll(body, dst), nil
}

// Unmarshal decodes data produced by Marshal into v, a pointer.
func Unmarshal(data []byte, v any) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}

	body := data[1:]
	switch data[0] {
	case flagPlain:
	case flagZstd:
		_, dec, err := codecs()
		if err != nil {
			return err
		}
		body, err = dec.DecodeAll(body, nil)
		if err != nil {
			return fmt.Errorf("%w: failed to decompress: %w", ErrMalformed, err)
		}
	default:
		return fmt.Errorf("%w: unknown header %#x", ErrMalformed, data[0])
	}

	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: failed to decode MessagePack: %w", ErrMalformed, err)
	}
	return nil
}
