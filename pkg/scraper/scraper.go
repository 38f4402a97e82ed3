package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/xhad/ragdesk/pkg/processor"
	"golang.org/x/time/rate"
)

var (
	ErrRedirect = errors.New("redirects are not followed")
	ErrTooLarge = errors.New("response body too large")
	ErrStatus   = errors.New("unexpected response status")
)

const defaultFilename = "downloaded_doc"

type ScraperConfig struct {
	RateLimit float64 // requests per second
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string
	Guard     *Guard
}

// Fetched is a downloaded document ready to be stored under Filename.
type Fetched struct {
	URL         string
	Filename    string
	ContentType string
	Data        []byte
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	guard   *Guard
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 20 << 20
	}
	if config.UserAgent == "" {
		config.UserAgent = "ragdesk/1.0"
	}
	guard := config.Guard
	if guard == nil {
		guard = NewGuard()
	}

	dialer := &net.Dialer{Timeout: config.Timeout, Control: guard.dialControl}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   config.Timeout,
		ResponseHeaderTimeout: config.Timeout,
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		guard:   guard,
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// Check runs the safety policy on rawURL without fetching it.
func (s *Scraper) Check(ctx context.Context, rawURL string) error {
	_, err := s.guard.Check(ctx, rawURL)
	return err
}

// Fetch downloads rawURL after the safety check. HTML pages are converted to
// text and named <stem>.txt; other bodies are kept as-is.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Fetched, error) {
	u, err := s.guard.Check(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrRedirect, u.Redacted(), resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %d", ErrStatus, u.Redacted(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}
	if int64(len(body)) > s.config.MaxBytes {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.config.MaxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	name := filenameFromURL(u)

	if isHTML(contentType) {
		text, err := processor.HTMLToText(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		return &Fetched{
			URL:         u.String(),
			Filename:    htmlFilename(name),
			ContentType: contentType,
			Data:        []byte(text),
		}, nil
	}

	if !processor.IsSupported(name) {
		name += ".txt"
	}
	return &Fetched{
		URL:         u.String(),
		Filename:    name,
		ContentType: contentType,
		Data:        body,
	}, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/html")
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// filenameFromURL takes the last path segment, reduced to a safe basename.
func filenameFromURL(u *url.URL) string {
	seg := path.Base(u.Path)
	if seg == "/" || seg == "." {
		seg = ""
	}
	seg = unsafeFilenameChars.ReplaceAllString(seg, "_")
	seg = strings.TrimLeft(seg, ".")
	if seg == "" {
		return defaultFilename
	}
	return seg
}

func htmlFilename(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".txt") {
		return name
	}
	stem, _, _ := strings.Cut(name, ".")
	if stem == "" {
		stem = defaultFilename
	}
	return stem + ".txt"
}
