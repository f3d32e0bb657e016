// Package fetcher opens tabular feedback exports from local files, HTTP and
// FTP, and parses them into rectangular string grids.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// Grid is a sheet of string cells, one slice per row. Rows may be ragged.
type Grid [][]string

// Fetcher downloads a remote file.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Opener resolves a source location to a reader, choosing the transport by
// URL scheme. Plain paths and file:// URLs are read from disk.
type Opener struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewOpener creates an Opener with default HTTP and FTP fetchers.
func NewOpener() *Opener {
	return &Opener{
		HTTP: NewHTTPFetcher(HTTPOptions{}),
		FTP:  NewFTPFetcher(FTPOptions{}),
	}
}

// Open returns a reader for location. The caller closes it.
func (o *Opener) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	scheme := ""
	if i := strings.Index(location, "://"); i > 0 {
		scheme = strings.ToLower(location[:i])
	}

	switch scheme {
	case "":
		return openFile(location)
	case "file":
		u, err := url.Parse(location)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: parse file url")
		}
		return openFile(u.Path)
	case "http", "https":
		if o.HTTP == nil {
			return nil, eris.New("fetcher: no http fetcher configured")
		}
		return o.HTTP.Download(ctx, location)
	case "ftp":
		if o.FTP == nil {
			return nil, eris.New("fetcher: no ftp fetcher configured")
		}
		return o.FTP.Download(ctx, location)
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", scheme)
	}
}

func openFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return f, nil
}
