// Package wiki is the content API client: a MediaWiki-style search-then-
// extract lookup used to enrich tracks and artists with free-text
// biographies, plus the optional login handshake that unlocks the
// provider's higher rate tier.
package wiki

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dselans/melodia-harvester/backends/cache"
	"github.com/dselans/melodia-harvester/limiter"
	"github.com/dselans/melodia-harvester/util"
)

// HostKey identifies the content API to the rate limiter.
const HostKey = "wiki"

const defaultTimeout = 20 * time.Second

type IClient interface {
	// Login performs the token handshake. Failure is soft: the caller
	// should log the returned error and keep using the client anonymously.
	Login(ctx context.Context) error

	// Lookup runs the two-step search-then-extract protocol for query.
	// A result is always returned; Content is nil when there was no match
	// or the fetch failed. The error, when non-nil, classifies the failure
	// for tallying - it never means the batch should stop.
	Lookup(ctx context.Context, query string) (*LookupResult, error)
}

// LookupResult is the outcome of one entity lookup.
type LookupResult struct {
	Query   string
	Title   string
	URL     string
	Content *string
}

type Client struct {
	opts          *Options
	httpClient    *http.Client
	authenticated bool
	log           *zap.Logger
}

type Options struct {
	// APIURL is the full endpoint, e.g. https://en.wikipedia.org/w/api.php
	APIURL string

	// Username/Password are the bot credentials. Both empty means the
	// login handshake is skipped entirely.
	Username string
	Password string

	UserAgent string
	Limiter   limiter.ILimiter
	Cache     cache.ICache
	Log       *zap.Logger
}

func New(opts *Options) (*Client, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	// The provider associates the login with the session cookie, so every
	// request after the handshake must share the jar.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create cookie jar")
	}

	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Jar:     jar,
		},
		log: opts.Log.With(zap.String("pkg", "wiki")),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.APIURL == "" {
		return errors.New("APIURL cannot be empty")
	}

	if opts.Limiter == nil {
		return errors.New("Limiter cannot be nil")
	}

	if opts.Log == nil {
		return errors.New("Log cannot be nil")
	}

	return nil
}

// Authenticated reports whether the login handshake succeeded.
func (c *Client) Authenticated() bool {
	return c.authenticated
}

func (c *Client) Login(ctx context.Context) error {
	if c.opts.Username == "" || c.opts.Password == "" {
		c.log.Info("no content API credentials configured, staying anonymous")
		return nil
	}

	token, err := c.fetchLoginToken(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to fetch login token")
	}

	if err := c.opts.Limiter.Acquire(ctx, HostKey); err != nil {
		return err
	}

	form := url.Values{
		"action":     {"login"},
		"lgname":     {c.opts.Username},
		"lgpassword": {c.opts.Password},
		"lgtoken":    {token},
		"format":     {"json"},
	}

	var lr loginResponse
	if err := util.DoJSON(ctx, c.httpClient, http.MethodPost, c.opts.APIURL, form, &lr, c.headers()); err != nil {
		return errors.Wrap(err, "login request failed")
	}

	if lr.Login.Result != "Success" {
		return errors.Errorf("login rejected: %s", lr.Login.Result)
	}

	c.authenticated = true
	c.log.Info("content API authentication successful")

	return nil
}

func (c *Client) fetchLoginToken(ctx context.Context) (string, error) {
	if err := c.opts.Limiter.Acquire(ctx, HostKey); err != nil {
		return "", err
	}

	params := url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
		"type":   {"login"},
		"format": {"json"},
	}

	var tr tokenResponse
	endpoint := c.opts.APIURL + "?" + params.Encode()

	if err := util.DoJSON(ctx, c.httpClient, http.MethodGet, endpoint, nil, &tr, c.headers()); err != nil {
		return "", err
	}

	if tr.Query.Tokens.LoginToken == "" {
		return "", errors.New("empty login token in response")
	}

	return tr.Query.Tokens.LoginToken, nil
}

func (c *Client) Lookup(ctx context.Context, query string) (*LookupResult, error) {
	result := &LookupResult{Query: query}

	cacheKey := cache.LookupPrefix + ":" + query

	if c.opts.Cache != nil {
		if cached, ok := c.opts.Cache.Get(cacheKey); ok {
			if lr, ok := cached.(*LookupResult); ok {
				return lr, nil
			}
		}
	}

	pageTitle, err := c.search(ctx, query)
	if err != nil {
		c.log.Warn("content search failed",
			zap.String("query", query), zap.Error(err))
		return result, err
	}

	if pageTitle == "" {
		c.log.Info("no content page found", zap.String("query", query))

		if c.opts.Cache != nil {
			c.opts.Cache.Set(cacheKey, result)
		}

		return result, nil
	}

	title, pageURL, extract, err := c.extract(ctx, pageTitle)
	if err != nil {
		c.log.Warn("content extract failed",
			zap.String("query", query), zap.String("title", pageTitle), zap.Error(err))
		return result, err
	}

	result.Title = title
	result.URL = pageURL

	if extract == "" {
		c.log.Info("page has no extract", zap.String("query", query))
	} else {
		content := fmt.Sprintf("Title: %s\nURL: %s\n\n%s\n", title, pageURL, extract)
		result.Content = &content
	}

	if c.opts.Cache != nil {
		c.opts.Cache.Set(cacheKey, result)
	}

	return result, nil
}

// search returns the top-ranked page title for query, or "" when the hit
// list is empty (terminal, not retried).
func (c *Client) search(ctx context.Context, query string) (string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {"1"},
		"format":   {"json"},
	}

	var sr searchResponse

	err := util.WithRetry(ctx, c.log, "wiki search", func() error {
		if err := c.opts.Limiter.Acquire(ctx, HostKey); err != nil {
			return err
		}

		endpoint := c.opts.APIURL + "?" + params.Encode()

		return util.DoJSON(ctx, c.httpClient, http.MethodGet, endpoint, nil, &sr, c.headers())
	})
	if err != nil {
		return "", err
	}

	if len(sr.Query.Search) == 0 {
		return "", nil
	}

	return sr.Query.Search[0].Title, nil
}

// extract fetches the plain-text extract plus canonical URL for a matched
// page title. This is a second request and consumes a second limiter slot.
func (c *Client) extract(ctx context.Context, pageTitle string) (title, pageURL, extract string, err error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts|info"},
		"titles":      {pageTitle},
		"explaintext": {"true"},
		"inprop":      {"url"},
		"format":      {"json"},
	}

	var er extractResponse

	err = util.WithRetry(ctx, c.log, "wiki extract", func() error {
		if err := c.opts.Limiter.Acquire(ctx, HostKey); err != nil {
			return err
		}

		endpoint := c.opts.APIURL + "?" + params.Encode()

		return util.DoJSON(ctx, c.httpClient, http.MethodGet, endpoint, nil, &er, c.headers())
	})
	if err != nil {
		return "", "", "", err
	}

	// Pages come back keyed by page ID; there is only ever one here.
	for _, page := range er.Query.Pages {
		pageURL = page.FullURL
		if pageURL == "" {
			pageURL = "N/A"
		}

		return page.Title, pageURL, page.Extract, nil
	}

	return "", "", "", &util.DecodeError{Err: errors.New("no pages in extract response")}
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.opts.UserAgent)

	return h
}
