package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPFetcher downloads files over FTP. Credentials come from the URL user
// info and default to anonymous.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPFetcher{opts: opts}
}

type ftpTarget struct {
	host     string
	path     string
	user     string
	password string
}

func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("ftp: empty path in url")
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", password: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		t.password, _ = u.User.Password()
	}
	return t, nil
}

// ftpConnReader closes the transfer and the control connection together.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ftp: close response")
	}
	return eris.Wrap(quitErr, "ftp: quit")
}

// Download connects, logs in and starts retrieving the file. The caller must
// close the returned reader to release the connection.
func (f *FTPFetcher) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	t, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", t.host), zap.String("path", t.path))

	conn, err := ftp.Dial(t.host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", t.host)
	}
	if err := conn.Login(t.user, t.password); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}

	resp, err := conn.Retr(t.path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", t.path)
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}
