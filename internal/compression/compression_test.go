package compression_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aweris/jgit/internal/compression"
)

func TestGzip(t *testing.T) {
	payload := bytes.Repeat([]byte("snapshot "), 1024)

	for _, level := range []compression.Level{compression.Fastest, compression.Default, compression.Best} {
		var buf bytes.Buffer
		w, err := compression.NewGzipWriter(&buf, level)
		require.NoError(t, err)
		_, err = w.Write(payload)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		require.Less(t, buf.Len(), len(payload))

		r, err := compression.NewGzipReader(&buf)
		require.NoError(t, err)
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, payload, out)
	}
}

func TestZstd(t *testing.T) {
	z, err := compression.NewZstd(compression.Default)
	require.NoError(t, err)
	defer z.Close()

	payload := bytes.Repeat([]byte("layer "), 512)
	encoded := z.Encode(payload)
	require.NotEqual(t, payload, encoded)

	decoded, err := z.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, payload, decoded)

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := z.Decode([]byte("not zstd at all"))
		require.Error(t, err)
	})
}
