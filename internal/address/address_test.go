package address

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var format = regexp.MustCompile(`^JUP-[2-9A-HJ-NP-Z]{4}-[2-9A-HJ-NP-Z]{4}-[2-9A-HJ-NP-Z]{4}-[2-9A-HJ-NP-Z]{5}$`)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	t.Run("format", func(t *testing.T) {
		for _, phrase := range []string{"a", "correct horse battery staple", "ünïcødé pass"} {
			addr, err := l.Derive(ctx, phrase)
			require.NoError(t, err)
			require.Regexp(t, format, addr)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a, err := l.Derive(ctx, "tenant passphrase")
		require.NoError(t, err)
		b, err := l.Derive(ctx, "tenant passphrase")
		require.NoError(t, err)
		require.Equal(t, a, b)
	})

	t.Run("distinct passphrases", func(t *testing.T) {
		a, err := l.Derive(ctx, "alpha")
		require.NoError(t, err)
		b, err := l.Derive(ctx, "beta")
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("empty passphrase", func(t *testing.T) {
		_, err := l.Derive(ctx, "")
		require.ErrorIs(t, err, ErrEmptyPassphrase)
	})

	t.Run("custom prefix", func(t *testing.T) {
		addr, err := (&Local{Prefix: "NXT"}).Derive(ctx, "alpha")
		require.NoError(t, err)
		require.Regexp(t, `^NXT-`, addr)
	})
}

func TestKnownAccounts(t *testing.T) {
	const phrase = "hope peace happen touch easy pretend worthless talk them indeed wheel state"

	id, err := AccountID(phrase)
	require.NoError(t, err)
	require.Equal(t, uint64(5873880488492319831), id)

	addr, err := NewLocal().Derive(context.Background(), phrase)
	require.NoError(t, err)
	require.Equal(t, "JUP-XK4R-7VJU-6EQG-7R335", addr)
}

func TestEncodeRS(t *testing.T) {
	t.Run("zero", func(t *testing.T) {
		require.Equal(t, "2222-2222-2222-22222", encodeRS(0))
	})

	t.Run("genesis account", func(t *testing.T) {
		require.Equal(t, "MRCC-2YLS-8M54-3CMAJ", encodeRS(1739068987193023818))
	})

	t.Run("distinct ids", func(t *testing.T) {
		seen := map[string]uint64{}
		for _, id := range []uint64{1, 2, 31, 32, 1 << 40, ^uint64(0)} {
			code := encodeRS(id)
			require.Len(t, code, 20)
			prev, dup := seen[code]
			require.False(t, dup, "%d and %d share %s", id, prev, code)
			seen[code] = id
		}
	})
}

func TestRemote(t *testing.T) {
	ctx := context.Background()

	t.Run("account", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/nxt", r.URL.Path)
			require.NoError(t, r.ParseForm())
			require.Equal(t, "getAccountId", r.PostForm.Get("requestType"))
			require.Equal(t, "secret", r.PostForm.Get("secretPhrase"))
			_, _ = w.Write([]byte(`{"account":"123","accountRS":"JUP-AAAA-BBBB-CCCC-DDDDD"}`))
		}))
		defer srv.Close()

		addr, err := NewRemote(srv.URL+"/", srv.Client()).Derive(ctx, "secret")
		require.NoError(t, err)
		require.Equal(t, "JUP-AAAA-BBBB-CCCC-DDDDD", addr)
	})

	t.Run("node error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"errorCode":4,"errorDescription":"Incorrect secretPhrase"}`))
		}))
		defer srv.Close()

		_, err := NewRemote(srv.URL, srv.Client()).Derive(ctx, "secret")
		require.ErrorContains(t, err, "Incorrect secretPhrase")
	})

	t.Run("bad status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewRemote(srv.URL, srv.Client()).Derive(ctx, "secret")
		require.ErrorContains(t, err, "unexpected status")
	})

	t.Run("empty passphrase", func(t *testing.T) {
		_, err := NewRemote("http://127.0.0.1:1", nil).Derive(ctx, "")
		require.ErrorIs(t, err, ErrEmptyPassphrase)
	})
}

func TestNew(t *testing.T) {
	require.IsType(t, &Local{}, New("", nil))
	require.IsType(t, &Remote{}, New("https://node.example", nil))
}
