package source

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/jobmatch/internal/jobs"
	"github.com/spigell/jobmatch/internal/logger"
	"github.com/spigell/jobmatch/internal/utils"
)

const (
	contentType      = "application/json"
	contentEncoding  = "gzip"
	defaultUserAgent = "spigell/jobmatch"
	// maxPages guards against feeds reporting a runaway page count.
	maxPages = 1000

	errorPreviewBytes  = 4096
	errorPreviewLength = 256
)

type pageResponse struct {
	Items []map[string]any `json:"items"`
	Page  int              `json:"page"`
	Pages int              `json:"pages"`
}

// Feed reads raw posting records from the scraper's paginated HTTP endpoint.
type Feed struct {
	url        string
	token      string
	query      url.Values
	logger     *zap.Logger
	limiter    *rate.Limiter
	HTTPClient *http.Client
	UserAgent  string
}

type FeedOptions struct {
	Token string
	Query url.Values
	// RatePerSecond paces page requests. Zero disables pacing.
	RatePerSecond float64
	Timeout       time.Duration
	Logger        *zap.Logger
}

func NewFeed(feedURL string, opts FeedOptions) (*Feed, error) {
	if _, err := url.ParseRequestURI(feedURL); err != nil {
		return nil, fmt.Errorf("invalid feed url %q: %w", feedURL, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	return &Feed{
		url:        feedURL,
		token:      strings.TrimSpace(opts.Token),
		query:      opts.Query,
		logger:     logger.OrNop(opts.Logger),
		limiter:    limiter,
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  defaultUserAgent,
	}, nil
}

// Fetch returns records from all pages in feed order.
func (f *Feed) Fetch(ctx context.Context) ([]jobs.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}

	req = f.setHeaders(req)
	q := req.URL.Query()
	for key, values := range f.query {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	req.URL.RawQuery = q.Encode()

	response, err := f.page(ctx, req)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("got response from feed", zap.Int("pages", response.Pages), zap.Int("items", len(response.Items)))

	records := toFeedRecords(nil, response.Items)

	for response.Page < (response.Pages-1) && response.Page < maxPages {
		f.logger.Debug("additional request needed", zap.String("reason", fmt.Sprintf(
			"current page (%d) < all page count (%d)", response.Page+1, response.Pages),
		))

		next := response.Page + 1
		response, err = f.page(ctx, addPage(req, next))
		if err != nil {
			return nil, err
		}
		if response.Page < next {
			return nil, fmt.Errorf("feed returned page %d, want %d", response.Page, next)
		}

		records = toFeedRecords(records, response.Items)
	}

	return records, nil
}

func (f *Feed) page(ctx context.Context, req *http.Request) (*pageResponse, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	f.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, errorPreviewBytes))
		f.logger.Warn("feed request failed",
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.String("body_preview", utils.TruncateForLog(string(preview), errorPreviewLength)),
		)
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		body = gzipReader
	}

	var response pageResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode feed page: %w", err)
	}

	return &response, nil
}

func (f *Feed) setHeaders(req *http.Request) *http.Request {
	if f.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", f.token))
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", contentType)
	// Setting the header disables transparent decompression, so gzip is handled in page.
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func toFeedRecords(records []jobs.Record, items []map[string]any) []jobs.Record {
	for _, item := range items {
		if item == nil {
			item = jobs.Record{}
		}
		records = append(records, item)
	}
	return records
}

// addPage sets the page parameter on the request URL.
func addPage(req *http.Request, page int) *http.Request {
	q := req.URL.Query()
	q.Set("page", strconv.Itoa(page))
	req.URL.RawQuery = q.Encode()

	return req
}
