package probe

import (
	"fmt"
	"math/rand"
	"net/url"
	"strings"

	"github.com/kursadbilgin/promocheck/internal/domain"
)

const (
	CodePlaceholder    = "{code}"
	DefaultURLTemplate = "https://www.perplexity.ai/join/p/airtel?discount_code=" + CodePlaceholder
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
}

var defaultReferers = []string{
	"https://www.google.com/",
	"https://duckduckgo.com/",
	"https://www.bing.com/",
}

// navigationHeaders mimic a top-level browser navigation. Accept-Encoding is
// limited to what the executor can decode.
var navigationHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"Accept-Language":           "en-US,en;q=0.9",
	"Accept-Encoding":           "gzip, deflate",
	"DNT":                       "1",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "cross-site",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
}

// RequestBuilder produces a browser-like GET request for a code. Every call
// draws a fresh identity, so retries of the same code differ on the wire.
type RequestBuilder struct {
	template    string
	queryEscape bool
	userAgents  []string
	referers    []string
	intn        func(n int) int
}

func NewRequestBuilder(template string) (*RequestBuilder, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		template = DefaultURLTemplate
	}

	idx := strings.Index(template, CodePlaceholder)
	if idx < 0 {
		return nil, fmt.Errorf("url template must contain %s", CodePlaceholder)
	}

	parsed, err := url.ParseRequestURI(strings.ReplaceAll(template, CodePlaceholder, "probe"))
	if err != nil {
		return nil, fmt.Errorf("invalid url template: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid url template scheme %q", parsed.Scheme)
	}

	query := strings.Index(template, "?")

	return &RequestBuilder{
		template:    template,
		queryEscape: query >= 0 && query < idx,
		userAgents:  defaultUserAgents,
		referers:    defaultReferers,
		intn:        rand.Intn,
	}, nil
}

// Target returns the host probes are sent to.
func (b *RequestBuilder) Target() string {
	parsed, err := url.Parse(strings.ReplaceAll(b.template, CodePlaceholder, "probe"))
	if err != nil {
		return ""
	}
	return parsed.Host
}

func (b *RequestBuilder) Build(code string) (RequestSpec, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return RequestSpec{}, fmt.Errorf("%w: code is required", domain.ErrValidation)
	}

	escaped := url.PathEscape(code)
	if b.queryEscape {
		escaped = url.QueryEscape(code)
	}

	headers := make(map[string]string, len(navigationHeaders)+3)
	for k, v := range navigationHeaders {
		headers[k] = v
	}
	headers["User-Agent"] = b.pick(b.userAgents)
	if b.coinFlip() {
		headers["X-Requested-With"] = "XMLHttpRequest"
	}
	if b.coinFlip() {
		headers["Referer"] = b.pick(b.referers)
	}

	return RequestSpec{
		Code:    code,
		URL:     strings.ReplaceAll(b.template, CodePlaceholder, escaped),
		Headers: headers,
	}, nil
}

func (b *RequestBuilder) pick(pool []string) string {
	return pool[b.intn(len(pool))]
}

func (b *RequestBuilder) coinFlip() bool {
	return b.intn(2) == 0
}
