package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	body string
	got  string
}

func (s *stubFetcher) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	s.got = rawURL
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestOpener_Dispatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.csv")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0o644))

	httpStub := &stubFetcher{body: "remote"}
	ftpStub := &stubFetcher{body: "ftp"}
	o := &Opener{HTTP: httpStub, FTP: ftpStub}
	ctx := context.Background()

	read := func(loc string) string {
		t.Helper()
		rc, err := o.Open(ctx, loc)
		require.NoError(t, err)
		defer rc.Close() //nolint:errcheck
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(b)
	}

	assert.Equal(t, "local", read(path))
	assert.Equal(t, "local", read("file://"+path))
	assert.Equal(t, "remote", read("https://example.com/a.csv"))
	assert.Equal(t, "https://example.com/a.csv", httpStub.got)
	assert.Equal(t, "ftp", read("ftp://ftp.example.com/a.csv"))

	_, err := o.Open(ctx, "s3://bucket/a.csv")
	assert.Error(t, err)

	_, err = o.Open(ctx, filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
