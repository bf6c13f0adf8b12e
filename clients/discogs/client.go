// Package discogs is the catalog API client: country-filtered release
// search plus per-release detail fetches, both paced by the shared rate
// limiter.
package discogs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dselans/melodia-harvester/limiter"
	"github.com/dselans/melodia-harvester/util"
)

// HostKey identifies the catalog API to the rate limiter.
const HostKey = "discogs"

const defaultTimeout = 20 * time.Second

type IClient interface {
	// SearchReleases fetches one page of release IDs for country. full is
	// true when the page came back with exactly perPage results, meaning
	// another page may follow.
	SearchReleases(ctx context.Context, country string, page, perPage int) (ids []int, full bool, err error)

	// GetRelease fetches one release detail record. A 404-class response
	// surfaces as util.ErrNotFound.
	GetRelease(ctx context.Context, id int) (*Release, error)
}

type Client struct {
	opts       *Options
	httpClient *http.Client
	log        *zap.Logger
}

type Options struct {
	// BaseURL of the catalog API, e.g. https://api.discogs.com
	BaseURL string

	// Token is the optional personal access token. Empty token means the
	// provider's anonymous tier.
	Token string

	UserAgent string
	Limiter   limiter.ILimiter
	Log       *zap.Logger
}

func New(opts *Options) (*Client, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		log: opts.Log.With(zap.String("pkg", "discogs")),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.BaseURL == "" {
		return errors.New("BaseURL cannot be empty")
	}

	if opts.Limiter == nil {
		return errors.New("Limiter cannot be nil")
	}

	if opts.Log == nil {
		return errors.New("Log cannot be nil")
	}

	return nil
}

func (c *Client) SearchReleases(ctx context.Context, country string, page, perPage int) ([]int, bool, error) {
	if err := c.opts.Limiter.Acquire(ctx, HostKey); err != nil {
		return nil, false, err
	}

	params := url.Values{
		"type":     {"release"},
		"country":  {country},
		"per_page": {fmt.Sprintf("%d", perPage)},
		"page":     {fmt.Sprintf("%d", page)},
	}

	endpoint := c.opts.BaseURL + "/database/search?" + params.Encode()

	c.log.Debug("REQ GET", zap.String("url", endpoint))

	var sr searchResponse
	if err := util.DoJSON(ctx, c.httpClient, http.MethodGet, endpoint, nil, &sr, c.headers()); err != nil {
		return nil, false, err
	}

	ids := make([]int, 0, len(sr.Results))
	for _, res := range sr.Results {
		ids = append(ids, res.ID)
	}

	return ids, len(ids) == perPage, nil
}

func (c *Client) GetRelease(ctx context.Context, id int) (*Release, error) {
	if err := c.opts.Limiter.Acquire(ctx, HostKey); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/releases/%d", c.opts.BaseURL, id)

	c.log.Debug("REQ GET", zap.String("url", endpoint))

	rel := &Release{}
	if err := util.DoJSON(ctx, c.httpClient, http.MethodGet, endpoint, nil, rel, c.headers()); err != nil {
		return nil, err
	}

	return rel, nil
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.opts.UserAgent)

	if c.opts.Token != "" {
		h.Set("Authorization", "Discogs token="+c.opts.Token)
	}

	return h
}
