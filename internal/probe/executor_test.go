package probe

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T) *RestyExecutor {
	t.Helper()

	e, err := NewRestyExecutor()
	if err != nil {
		t.Fatalf("NewRestyExecutor() error = %v", err)
	}
	return e
}

func TestRestyExecutorExecuteSuccess(t *testing.T) {
	t.Parallel()

	var gotUA, gotPragma string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		gotUA = r.Header.Get("User-Agent")
		gotPragma = r.Header.Get("Pragma")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title> Join </title></head><body>Promo code applied ✓</body></html>`))
	}))
	defer server.Close()

	outcome := newTestExecutor(t).Execute(context.Background(), RequestSpec{
		Code: "SAVE10",
		URL:  server.URL + "/join?code=SAVE10",
		Headers: map[string]string{
			"User-Agent": "probe-test",
			"Pragma":     "no-cache",
		},
	}, time.Second)

	if outcome.Kind != OutcomeResponse {
		t.Fatalf("Kind = %s, want response (err=%v)", outcome.Kind, outcome.Err)
	}
	if outcome.HTTPStatus != http.StatusOK {
		t.Fatalf("HTTPStatus = %d, want 200", outcome.HTTPStatus)
	}
	if !strings.Contains(outcome.Body, "Promo code applied ✓") {
		t.Fatalf("Body = %q", outcome.Body)
	}
	if outcome.Title != "Join" {
		t.Fatalf("Title = %q, want Join", outcome.Title)
	}
	if gotUA != "probe-test" || gotPragma != "no-cache" {
		t.Fatalf("headers not forwarded: ua=%q pragma=%q", gotUA, gotPragma)
	}
}

func TestRestyExecutorExecuteReadsErrorBodies(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status int
	}{
		{name: "not found", status: http.StatusNotFound},
		{name: "forbidden", status: http.StatusForbidden},
		{name: "too many requests", status: http.StatusTooManyRequests},
		{name: "server error", status: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("status page body"))
			}))
			defer server.Close()

			outcome := newTestExecutor(t).Execute(context.Background(), RequestSpec{URL: server.URL}, time.Second)
			if outcome.Kind != OutcomeResponse {
				t.Fatalf("Kind = %s, want response", outcome.Kind)
			}
			if outcome.HTTPStatus != tc.status {
				t.Fatalf("HTTPStatus = %d, want %d", outcome.HTTPStatus, tc.status)
			}
			if outcome.Body != "status page body" {
				t.Fatalf("Body = %q", outcome.Body)
			}
		})
	}
}

func TestRestyExecutorExecuteDecodesGzip(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, _ = zw.Write([]byte("<p>Discount applied</p>"))
		_ = zw.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	outcome := newTestExecutor(t).Execute(context.Background(), RequestSpec{
		URL:     server.URL,
		Headers: map[string]string{"Accept-Encoding": "gzip, deflate"},
	}, time.Second)

	if outcome.Kind != OutcomeResponse {
		t.Fatalf("Kind = %s, want response (err=%v)", outcome.Kind, outcome.Err)
	}
	if outcome.Body != "<p>Discount applied</p>" {
		t.Fatalf("Body = %q", outcome.Body)
	}
}

func TestRestyExecutorExecuteTranscodesCharset(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("caf\xe9"))
	}))
	defer server.Close()

	outcome := newTestExecutor(t).Execute(context.Background(), RequestSpec{URL: server.URL}, time.Second)
	if outcome.Body != "café" {
		t.Fatalf("Body = %q, want café", outcome.Body)
	}
}

func TestRestyExecutorExecuteFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("landed"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	outcome := newTestExecutor(t).Execute(context.Background(), RequestSpec{URL: server.URL + "/start"}, time.Second)
	if outcome.HTTPStatus != http.StatusOK || outcome.Body != "landed" {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestRestyExecutorExecuteTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	outcome := newTestExecutor(t).Execute(context.Background(), RequestSpec{URL: server.URL}, 30*time.Millisecond)
	if !outcome.IsTransportError() {
		t.Fatalf("Kind = %s, want transport_error", outcome.Kind)
	}
	if !outcome.Timeout {
		t.Fatalf("Timeout = false, want true (err=%v)", outcome.Err)
	}
	if !IsTimeout(outcome.Err) {
		t.Fatalf("IsTimeout(%v) = false", outcome.Err)
	}
}

func TestRestyExecutorExecuteConnectionRefused(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	outcome := newTestExecutor(t).Execute(context.Background(), RequestSpec{URL: url}, time.Second)
	if !outcome.IsTransportError() {
		t.Fatalf("Kind = %s, want transport_error", outcome.Kind)
	}
	if outcome.Timeout {
		t.Fatal("Timeout = true, want false")
	}
	if outcome.Reason == "" {
		t.Fatal("Reason should describe the failure")
	}
}

func TestDecompressDeflateVariants(t *testing.T) {
	t.Parallel()

	var zlibBuf bytes.Buffer
	zw := zlib.NewWriter(&zlibBuf)
	_, _ = zw.Write([]byte("zlib body"))
	_ = zw.Close()

	var rawBuf bytes.Buffer
	fw, err := flate.NewWriter(&rawBuf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter() error = %v", err)
	}
	_, _ = fw.Write([]byte("raw body"))
	_ = fw.Close()

	testCases := []struct {
		name string
		in   []byte
		want string
	}{
		{name: "zlib wrapped", in: zlibBuf.Bytes(), want: "zlib body"},
		{name: "raw deflate", in: rawBuf.Bytes(), want: "raw body"},
		{name: "empty", in: nil, want: ""},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r, err := decompress(bytes.NewReader(tc.in), "deflate")
			if err != nil {
				t.Fatalf("decompress() error = %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("body = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecompressUnsupportedEncoding(t *testing.T) {
	t.Parallel()

	if _, err := decompress(strings.NewReader("x"), "br"); err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}

func TestPageTitle(t *testing.T) {
	t.Parallel()

	if got := pageTitle("<html><head><title>Perplexity</title></head></html>"); got != "Perplexity" {
		t.Fatalf("pageTitle() = %q", got)
	}
	if got := pageTitle("no markup here"); got != "" {
		t.Fatalf("pageTitle() = %q, want empty", got)
	}
}
