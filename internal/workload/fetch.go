package workload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gocolly/colly/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/JakeFAU/modalprogress/internal/engine"
	"github.com/JakeFAU/modalprogress/internal/metrics"
	"github.com/JakeFAU/modalprogress/internal/policy/ratelimit"
)

// FetchConfig controls page fetching.
type FetchConfig struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxDepth is how many link hops to follow from the seeds; 0 fetches
	// only the seeds.
	MaxDepth int
	// MaxPages caps the number of fetched pages; 0 means no cap.
	MaxPages int
	// RateLimitRPS paces requests per host; 0 disables pacing.
	RateLimitRPS   float64
	RateLimitBurst int
	// Tracer records one span per page; nil records nothing.
	Tracer trace.Tracer
}

// Fetcher walks pages with colly and reports one step per page. Links found
// within the seed's host raise the total estimate as they are queued.
type Fetcher struct {
	cfg     FetchConfig
	base    *colly.Collector
	limiter *ratelimit.Limiter
	tracer  trace.Tracer
	logger  *zap.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg FetchConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	// Run keeps its own seen set; colly's store is shared across clones and runs.
	c.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.SetRequestTimeout(cfg.Timeout)
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	return &Fetcher{
		cfg:     cfg,
		base:    c,
		limiter: ratelimit.New(ratelimit.Config{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}),
		tracer:  tracer,
		logger:  logger,
	}
}

type queuedPage struct {
	url   string
	depth int
}

type pageResult struct {
	status int
	bytes  int
	links  []string
}

// Run is an engine.WorkFunc. arg must be the seed URLs as a []string.
// Individual page failures are reported and skipped; the run fails only if
// every page failed.
func (f *Fetcher) Run(ctx context.Context, arg any, r engine.Reporter) error {
	seeds, _ := arg.([]string)
	if len(seeds) == 0 {
		return errors.New("fetch: no seed URLs")
	}
	seen := make(map[string]struct{}, len(seeds))
	queue := make([]queuedPage, 0, len(seeds))
	for _, s := range seeds {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		queue = append(queue, queuedPage{url: s})
	}

	var done, failed int64
	for len(queue) > 0 {
		if f.cfg.MaxPages > 0 && done >= int64(f.cfg.MaxPages) {
			break
		}
		page := queue[0]
		queue = queue[1:]

		if err := f.limiter.Wait(ctx, page.url); err != nil {
			return err
		}
		res, err := f.tracedVisit(ctx, page)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		done++

		var action string
		if err != nil {
			failed++
			metrics.ObserveFetch(page.url, "error", 0)
			action = fmt.Sprintf("%s failed: %v", page.url, err)
			f.logger.Warn("page fetch failed", zap.String("url", page.url), zap.Error(err))
		} else {
			metrics.ObserveFetch(page.url, "ok", res.bytes)
			action = fmt.Sprintf("%s (%d, %s)", page.url, res.status, humanize.Bytes(uint64(res.bytes)))
			if page.depth < f.cfg.MaxDepth {
				for _, link := range sameHostLinks(page.url, res.links) {
					if _, dup := seen[link]; dup {
						continue
					}
					seen[link] = struct{}{}
					queue = append(queue, queuedPage{url: link, depth: page.depth + 1})
				}
			}
		}

		total := done + int64(len(queue))
		if f.cfg.MaxPages > 0 {
			total = min(total, int64(f.cfg.MaxPages))
		}
		if !r.ReportSpecific(action, engine.WithCount(done), engine.WithTotal(total)) {
			return nil
		}
	}
	if done > 0 && failed == done {
		return fmt.Errorf("fetch: all %d pages failed", done)
	}
	return nil
}

func (f *Fetcher) tracedVisit(ctx context.Context, page queuedPage) (pageResult, error) {
	ctx, span := f.tracer.Start(ctx, "fetch.page", trace.WithAttributes(
		attribute.String("url.full", page.url),
		attribute.Int("fetch.depth", page.depth),
	))
	defer span.End()

	res, err := f.visit(ctx, page.url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return res, err
	}
	span.SetAttributes(
		attribute.Int("http.status_code", res.status),
		attribute.Int("fetch.bytes", res.bytes),
		attribute.Int("fetch.links", len(res.links)),
	)
	return res, nil
}

func (f *Fetcher) visit(ctx context.Context, target string) (pageResult, error) {
	var (
		res      pageResult
		fetchErr error
	)
	collector := f.base.Clone()
	collector.OnResponse(func(resp *colly.Response) {
		res.status = resp.StatusCode
		res.bytes = len(resp.Body)
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if link := e.Request.AbsoluteURL(e.Attr("href")); link != "" {
			res.links = append(res.links, link)
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()
	select {
	case <-ctx.Done():
		return pageResult{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return pageResult{}, fmt.Errorf("visit: %w", err)
		}
		if fetchErr != nil {
			return pageResult{}, fmt.Errorf("response: %w", fetchErr)
		}
		return res, nil
	}
}

// sameHostLinks keeps http(s) links on the page's host, without fragments.
func sameHostLinks(pageURL string, links []string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(links))
	for _, l := range links {
		u, err := url.Parse(l)
		if err != nil || u.Host != base.Host {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		u.Fragment = ""
		out = append(out, u.String())
	}
	return out
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
