package request

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/wpmcp/wpmcp/internal/errors"
	"github.com/wpmcp/wpmcp/internal/wordpress"
)

// buildMultipartRequest streams a file from disk through a pipe into the
// request body. The file is never buffered whole; it is copied in
// ChunkSize pieces with optional progress reporting.
func (m *Manager) buildMultipartRequest(ctx context.Context, op *wordpress.Operation, u string, parts *wordpress.RequestParts) (*http.Request, error) {
	info, err := os.Stat(parts.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindParamInvalid, "upload file not accessible")
	}
	if info.IsDir() {
		return nil, errors.Newf(errors.KindParamInvalid, "upload path %q is a directory", parts.FilePath)
	}
	total := info.Size()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := m.writeMultipart(mw, parts, total)
		mw.Close()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, op.Method, u, pr)
	if err != nil {
		pr.Close()
		return nil, errors.Wrap(err, errors.KindTransportError, "building upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename=%q`, filepath.Base(parts.FilePath)))
	return req, nil
}

func (m *Manager) writeMultipart(mw *multipart.Writer, parts *wordpress.RequestParts, total int64) error {
	// Scalar fields precede the file part so the server can validate them
	// before consuming the payload.
	for name, value := range parts.Body {
		if err := mw.WriteField(name, wordpress.FormatValue(value)); err != nil {
			return err
		}
	}

	f, err := os.Open(parts.FilePath)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile(parts.FileField, filepath.Base(parts.FilePath))
	if err != nil {
		return err
	}

	buf := make([]byte, m.opts.ChunkSize)
	var sent int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := part.Write(buf[:n]); werr != nil {
				return werr
			}
			sent += int64(n)
			if m.opts.OnUploadProgress != nil {
				m.opts.OnUploadProgress(parts.FilePath, sent, total)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
