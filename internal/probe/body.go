package probe

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// maxBodyBytes caps how much of a page is kept for classification.
const maxBodyBytes = 2 << 20

func readBody(r io.Reader, header http.Header) (string, error) {
	decoded, err := decompress(r, header.Get("Content-Encoding"))
	if err != nil {
		return "", err
	}

	raw, err := io.ReadAll(io.LimitReader(decoded, maxBodyBytes))
	if err != nil {
		return "", err
	}

	return toUTF8(raw, header.Get("Content-Type")), nil
}

func decompress(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return r, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if errors.Is(err, io.EOF) {
			return bytes.NewReader(nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case "deflate":
		br := bufio.NewReader(r)
		header, err := br.Peek(2)
		if errors.Is(err, io.EOF) && len(header) == 0 {
			return bytes.NewReader(nil), nil
		}
		// Servers send both zlib-wrapped and raw deflate under this name.
		if len(header) == 2 && header[0]&0x0f == 8 && (uint16(header[0])<<8|uint16(header[1]))%31 == 0 {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, fmt.Errorf("deflate: %w", err)
			}
			return zr, nil
		}
		return flate.NewReader(br), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

func toUTF8(raw []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}

	converted, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}

	return string(converted)
}

func pageTitle(body string) string {
	if body == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	return strings.TrimSpace(doc.Find("title").First().Text())
}
