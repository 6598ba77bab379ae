// Package netx holds HTTP body helpers: streaming multipart uploads and
// plain downloads from signed URLs.
package netx

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// MultipartFile streams r as a single multipart/form-data file part named
// field. It returns the body and the Content-Type header to send with it.
// A read error from r surfaces as the request body's read error.
func MultipartFile(field, fileName string, r io.Reader) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(field, fileName)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	return pr, mw.FormDataContentType()
}

// Download fetches url with a plain GET (signed URLs need no credentials)
// and copies the body into w. Any status other than 200 is an error.
func Download(ctx context.Context, client *http.Client, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}

	return io.Copy(w, resp.Body)
}
