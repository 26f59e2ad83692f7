// Package collyfetcher implements housing.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
	"github.com/JakeFAU/tibia-housing-crawler/internal/metrics"
)

// DefaultCharset is the legacy encoding the community pages are served in.
const DefaultCharset = "ISO-8859-1"

// blockMarkers identify the anti-bot interstitial.
var blockMarkers = []string{
	"Just a moment...",
	"Enable JavaScript and cookies",
}

// Waiter paces outgoing requests.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Charset   string
	Limiter   Waiter
	Logger    *zap.Logger
}

// Fetcher implements housing.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type page struct {
	status int
	body   string
}

// New builds a Fetcher. It fails when the configured charset is unknown.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Charset == "" {
		cfg.Charset = DefaultCharset
	}
	if _, err := htmlindex.Get(cfg.Charset); err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", cfg.Charset, err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = housing.DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		logger:        logger.Named("fetcher"),
		baseCollector: c,
	}, nil
}

// FetchText downloads the page a descriptor points at and returns it decoded
// to UTF-8. Non-200 answers yield *housing.HTTPError and challenge pages
// yield *housing.BlockedError.
func (f *Fetcher) FetchText(ctx context.Context, d housing.Descriptor) (string, error) {
	target := d.Resolve(f.cfg.BaseURL)
	label := pageLabel(d)

	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, target); err != nil {
			return "", err
		}
	}

	var (
		result   page
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(&result, &fetchErr)
	err := f.runCollector(ctx, collector, target, &fetchErr)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveFetch(label, metrics.FetchError, elapsed)
		return "", err
	}

	if result.status != http.StatusOK {
		metrics.ObserveFetch(label, metrics.FetchHTTP, elapsed)
		return "", &housing.HTTPError{StatusCode: result.status, URL: target}
	}
	for _, marker := range blockMarkers {
		if strings.Contains(result.body, marker) {
			metrics.ObserveFetch(label, metrics.FetchBlocked, elapsed)
			return "", &housing.BlockedError{URL: target, Marker: marker}
		}
	}

	metrics.ObserveFetch(label, metrics.FetchOK, elapsed)
	f.logger.Debug("fetched page",
		zap.String("url", target),
		zap.Int("bytes", len(result.body)),
		zap.Duration("elapsed", elapsed),
	)
	return result.body, nil
}

func (f *Fetcher) buildCollector(result *page, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	} else {
		extensions.RandomUserAgent(collector)
	}
	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.ResponseCharacterEncoding = f.cfg.Charset
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("DNT", "1")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
		r.Headers.Set("Sec-Fetch-Dest", "document")
		r.Headers.Set("Sec-Fetch-Mode", "navigate")
		r.Headers.Set("Sec-Fetch-Site", "none")
		r.Headers.Set("Cache-Control", "max-age=0")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = page{
			status: r.StatusCode,
			body:   string(r.Body),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*result = page{status: r.StatusCode, body: string(r.Body)}
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func pageLabel(d housing.Descriptor) string {
	switch {
	case d.Page == housing.PageWorlds:
		return "worlds"
	case d.Page == housing.PageHouseDetail:
		return "detail"
	case d.Category == housing.CategoryGuildhalls:
		return "guildhalls"
	default:
		return "houses"
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
