package content

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const knownHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestDisabledStoreAcceptsEverything(t *testing.T) {
	var s *Store
	require.False(t, s.Enabled())

	ok, err := (&Store{}).Exists(context.Background(), knownHash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/metadata/"+knownHash {
			w.Header().Set("Last-Modified", "Mon, 05 Jan 2026 12:00:00 GMT")
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Content-Length", "3")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("key", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)

	s := &Store{client: client, bucket: "metadata"}

	ok, err := s.Exists(context.Background(), knownHash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Exists(context.Background(), "00"+knownHash[2:])
	require.NoError(t, err)
	require.False(t, ok)
}
