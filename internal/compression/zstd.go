package compression

import (
	"github.com/klauspost/compress/zstd"
)

// Zstd holds a reusable zstd encoder/decoder pair. EncodeAll and DecodeAll
// are safe for concurrent use.
type Zstd struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewZstd(level Level) (*Zstd, error) {
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(level.zstd()),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}

	return &Zstd{encoder: encoder, decoder: decoder}, nil
}

func (z *Zstd) Encode(data []byte) []byte {
	return z.encoder.EncodeAll(data, make([]byte, 0, len(data)))
}

func (z *Zstd) Decode(data []byte) ([]byte, error) {
	return z.decoder.DecodeAll(data, nil)
}

func (z *Zstd) Close() error {
	z.encoder.Close()
	z.decoder.Close()
	return nil
}
