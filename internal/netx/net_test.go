package netx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultipartFile_RoundTrip(t *testing.T) {
	body, ct := MultipartFile("file", "cat.png", strings.NewReader("PNGDATA"))
	defer body.Close()

	req := httptest.NewRequest(http.MethodPost, "/images/upload", body)
	req.Header.Set("Content-Type", ct)

	require.NoError(t, req.ParseMultipartForm(1<<20))
	f, hdr, err := req.FormFile("file")
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, "cat.png", hdr.Filename)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "PNGDATA", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestMultipartFile_ReadErrorSurfaces(t *testing.T) {
	body, _ := MultipartFile("file", "x.png", failingReader{})
	defer body.Close()

	_, err := io.ReadAll(body)
	require.ErrorContains(t, err, "disk gone")
}

func TestDownload(t *testing.T) {
	t.Run("200 copies body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Empty(t, r.Header.Get("Authorization"))
			_, _ = w.Write([]byte("bytes"))
		}))
		defer ts.Close()

		var buf bytes.Buffer
		n, err := Download(context.Background(), ts.Client(), ts.URL+"/obj?X-Amz-Signature=s", &buf)
		require.NoError(t, err)
		require.EqualValues(t, 5, n)
		require.Equal(t, "bytes", buf.String())
	})

	t.Run("expired url is an error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("Request has expired"))
		}))
		defer ts.Close()

		_, err := Download(context.Background(), ts.Client(), ts.URL, io.Discard)
		require.ErrorContains(t, err, "403")
		require.ErrorContains(t, err, "Request has expired")
	})

	t.Run("network error", func(t *testing.T) {
		_, err := Download(context.Background(), http.DefaultClient, "http://127.0.0.1:1/x", io.Discard)
		require.Error(t, err)
	})
}
