// Package harvester orchestrates the pipeline: crawl the catalog search
// pages, expand every release into flat track records, then enrich tracks
// and artists with biography text from the content API. No error in here is
// process-fatal - every loop skips the failed item, tallies it and moves
// on.
package harvester

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dselans/melodia-harvester/backends/output"
	"github.com/dselans/melodia-harvester/clients/discogs"
	"github.com/dselans/melodia-harvester/clients/wiki"
	"github.com/dselans/melodia-harvester/config"
	"github.com/dselans/melodia-harvester/util"
	"github.com/dselans/melodia-harvester/validate"
)

type IHarvester interface {
	// Run executes the full pipeline and blocks until it completes or ctx
	// is cancelled. In-flight writes finish before Run returns.
	Run(ctx context.Context) error

	// Progress returns a point-in-time tally snapshot.
	Progress() *Progress
}

type Harvester struct {
	opts  *Options
	log   *zap.Logger
	runID string

	// Phase 1 output; read-only once the catalog crawl finishes.
	tracks []discogs.TrackRecord

	phase   string
	phaseMu sync.RWMutex

	pagesFetched      int64
	pagesFailed       int64
	releasesFetched   int64
	releasesNotFound  int64
	tracksWritten     int64
	transportErrors   int64
	decodeErrors      int64
	trackBiosFound    int64
	trackBiosMissing  int64
	artistBiosFound   int64
	artistBiosMissing int64
}

type Options struct {
	Catalog discogs.IClient
	Wiki    wiki.IClient
	Writer  output.ITrackWriter
	Config  *config.Config
	Log     *zap.Logger
}

// Progress is the JSON payload served by /api/progress.
type Progress struct {
	RunID             string `json:"runId"`
	Phase             string `json:"phase"`
	PagesFetched      int64  `json:"pagesFetched"`
	PagesFailed       int64  `json:"pagesFailed"`
	ReleasesFetched   int64  `json:"releasesFetched"`
	ReleasesNotFound  int64  `json:"releasesNotFound"`
	TracksWritten     int64  `json:"tracksWritten"`
	TransportErrors   int64  `json:"transportErrors"`
	DecodeErrors      int64  `json:"decodeErrors"`
	TrackBiosFound    int64  `json:"trackBiosFound"`
	TrackBiosMissing  int64  `json:"trackBiosMissing"`
	ArtistBiosFound   int64  `json:"artistBiosFound"`
	ArtistBiosMissing int64  `json:"artistBiosMissing"`
}

func New(opts *Options) (*Harvester, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	runID := uuid.New().String()

	return &Harvester{
		opts:  opts,
		runID: runID,
		phase: "idle",
		log: opts.Log.With(
			zap.String("pkg", "harvester"),
			zap.String("runId", runID),
		),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.Catalog == nil {
		return errors.New("Catalog client cannot be nil")
	}

	if opts.Wiki == nil {
		return errors.New("Wiki client cannot be nil")
	}

	if opts.Writer == nil {
		return errors.New("Writer cannot be nil")
	}

	if opts.Config == nil {
		return errors.New("Config cannot be nil")
	}

	if opts.Log == nil {
		return errors.New("Log cannot be nil")
	}

	return nil
}

func (h *Harvester) Run(ctx context.Context) error {
	cfg := h.opts.Config

	h.log.Info("harvest starting",
		zap.String("country", cfg.Country),
		zap.Int("maxItems", cfg.MaxItems),
		zap.Int("pageSize", cfg.PageSize))

	// Soft-fail login: an anonymous session just runs at the provider's
	// lower rate tier.
	if err := h.opts.Wiki.Login(ctx); err != nil {
		h.log.Warn("content API login failed, continuing anonymous", zap.Error(err))
	}

	if err := h.crawlCatalog(ctx); err != nil {
		return errors.Wrap(err, "catalog crawl aborted")
	}

	if err := h.enrichTracks(ctx); err != nil {
		return errors.Wrap(err, "track enrichment aborted")
	}

	if err := h.enrichArtists(ctx); err != nil {
		return errors.Wrap(err, "artist enrichment aborted")
	}

	h.setPhase("done")

	p := h.Progress()
	h.log.Info("harvest complete",
		zap.Int64("pages", p.PagesFetched),
		zap.Int64("pagesFailed", p.PagesFailed),
		zap.Int64("releases", p.ReleasesFetched),
		zap.Int64("releasesNotFound", p.ReleasesNotFound),
		zap.Int64("tracks", p.TracksWritten),
		zap.Int64("trackBiosFound", p.TrackBiosFound),
		zap.Int64("artistBiosFound", p.ArtistBiosFound),
		zap.Int64("transportErrors", p.TransportErrors),
		zap.Int64("decodeErrors", p.DecodeErrors))

	return nil
}

// crawlCatalog walks the search pages for the configured country. A full
// page advances to the next page; a short page (including zero results)
// means the query is exhausted; a page whose starting offset is past the
// item budget is never fetched.
func (h *Harvester) crawlCatalog(ctx context.Context) error {
	cfg := h.opts.Config

	h.setPhase("catalog")

	if err := validate.CatalogQuery(cfg.Country, 1, cfg.PageSize); err != nil {
		return errors.Wrap(err, "invalid catalog query")
	}

	page := 1

	for {
		if (page-1)*cfg.PageSize >= cfg.MaxItems {
			h.log.Info("item budget reached, stopping crawl", zap.Int("page", page))
			return nil
		}

		var (
			ids  []int
			full bool
		)

		err := util.WithRetry(ctx, h.log, "catalog search", func() error {
			var searchErr error
			ids, full, searchErr = h.opts.Catalog.SearchReleases(ctx, cfg.Country, page, cfg.PageSize)
			return searchErr
		})

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			// A failed page is skipped but never conflated with
			// exhaustion: the crawl moves on to the next page and the
			// failure stays visible in the tally.
			h.classifyError(err, "search page failed", zap.Int("page", page))
			atomic.AddInt64(&h.pagesFailed, 1)
			page++

			continue
		}

		atomic.AddInt64(&h.pagesFetched, 1)

		for _, id := range ids {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			h.fetchRelease(ctx, id)
		}

		h.log.Info("finished page", zap.Int("page", page), zap.Int("ids", len(ids)))

		if !full {
			h.log.Info("search exhausted", zap.Int("lastPage", page))
			return nil
		}

		page++
	}
}

// fetchRelease pulls one release detail record, expands it and appends the
// resulting track records. Not-found is an expected outcome, logged and
// skipped.
func (h *Harvester) fetchRelease(ctx context.Context, id int) {
	var rel *discogs.Release

	err := util.WithRetry(ctx, h.log, "release detail", func() error {
		var fetchErr error
		rel, fetchErr = h.opts.Catalog.GetRelease(ctx, id)
		return fetchErr
	})

	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			h.log.Info("release not found, skipping", zap.Int("releaseId", id))
			atomic.AddInt64(&h.releasesNotFound, 1)
			return
		}

		h.classifyError(err, "release fetch failed", zap.Int("releaseId", id))

		return
	}

	atomic.AddInt64(&h.releasesFetched, 1)

	for _, rec := range discogs.ExpandTracks(rel) {
		if err := h.opts.Writer.Append(rec); err != nil {
			h.log.Error("unable to append track record",
				zap.Int("releaseId", id),
				zap.String("track", rec.TrackTitle),
				zap.Error(err))
			continue
		}

		atomic.AddInt64(&h.tracksWritten, 1)
		h.tracks = append(h.tracks, rec)
	}
}

func (h *Harvester) enrichTracks(ctx context.Context) error {
	h.setPhase("track-bios")

	total := len(h.tracks)
	h.log.Info("fetching track information", zap.Int("total", total))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Config.ContentWorkers)

	for i, track := range h.tracks {
		i, track := i, track

		g.Go(func() error {
			artist := "Unknown"
			if len(track.PrimaryArtists) > 0 {
				artist = track.PrimaryArtists[0]
			}

			h.log.Info(fmt.Sprintf("[%d/%d] fetching track bio", i+1, total),
				zap.String("track", track.TrackTitle),
				zap.String("artist", artist))

			query := fmt.Sprintf("%s %s song", track.TrackTitle, artist)

			found, err := h.lookupAndSave(gctx, query, h.opts.Config.TracksInfoDir, track.TrackTitle+".txt")
			if err != nil {
				return err
			}

			if found {
				atomic.AddInt64(&h.trackBiosFound, 1)
			} else {
				atomic.AddInt64(&h.trackBiosMissing, 1)
			}

			return nil
		})
	}

	return g.Wait()
}

func (h *Harvester) enrichArtists(ctx context.Context) error {
	h.setPhase("artist-bios")

	artists := CollectArtists(h.tracks).Sorted()
	total := len(artists)

	h.log.Info("fetching artist information", zap.Int("total", total))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.Config.ContentWorkers)

	for i, artist := range artists {
		i, artist := i, artist

		g.Go(func() error {
			h.log.Info(fmt.Sprintf("[%d/%d] fetching artist bio", i+1, total),
				zap.String("artist", artist))

			query := fmt.Sprintf("%s musician", artist)

			found, err := h.lookupAndSave(gctx, query, h.opts.Config.ArtistsInfoDir, artist+".txt")
			if err != nil {
				return err
			}

			if found {
				atomic.AddInt64(&h.artistBiosFound, 1)
			} else {
				atomic.AddInt64(&h.artistBiosMissing, 1)
			}

			return nil
		})
	}

	return g.Wait()
}

// lookupAndSave runs one content lookup and writes the text file when a
// biography came back. Per-entity failures are tallied and swallowed; only
// cancellation propagates.
func (h *Harvester) lookupAndSave(ctx context.Context, query, dir, filename string) (bool, error) {
	res, err := h.opts.Wiki.Lookup(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}

		h.classifyError(err, "content lookup failed", zap.String("query", query))
	}

	if res == nil || res.Content == nil {
		return false, nil
	}

	if err := output.SaveText(*res.Content, dir, filename); err != nil {
		h.log.Error("unable to save content",
			zap.String("query", query), zap.Error(err))
		return false, nil
	}

	return true, nil
}

// classifyError applies the per-kind tally + log level policy: not-found at
// info, decode at warn, transport at warn.
func (h *Harvester) classifyError(err error, msg string, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))

	var de *util.DecodeError
	var te *util.TransportError

	switch {
	case errors.Is(err, util.ErrNotFound):
		h.log.Info(msg, fields...)
	case errors.As(err, &de):
		atomic.AddInt64(&h.decodeErrors, 1)
		h.log.Warn(msg, fields...)
	case errors.As(err, &te):
		atomic.AddInt64(&h.transportErrors, 1)
		h.log.Warn(msg, fields...)
	default:
		h.log.Warn(msg, fields...)
	}
}

func (h *Harvester) setPhase(phase string) {
	h.phaseMu.Lock()
	defer h.phaseMu.Unlock()

	h.phase = phase
	h.log.Info("entering phase", zap.String("phase", phase))
}

func (h *Harvester) Progress() *Progress {
	h.phaseMu.RLock()
	phase := h.phase
	h.phaseMu.RUnlock()

	return &Progress{
		RunID:             h.runID,
		Phase:             phase,
		PagesFetched:      atomic.LoadInt64(&h.pagesFetched),
		PagesFailed:       atomic.LoadInt64(&h.pagesFailed),
		ReleasesFetched:   atomic.LoadInt64(&h.releasesFetched),
		ReleasesNotFound:  atomic.LoadInt64(&h.releasesNotFound),
		TracksWritten:     atomic.LoadInt64(&h.tracksWritten),
		TransportErrors:   atomic.LoadInt64(&h.transportErrors),
		DecodeErrors:      atomic.LoadInt64(&h.decodeErrors),
		TrackBiosFound:    atomic.LoadInt64(&h.trackBiosFound),
		TrackBiosMissing:  atomic.LoadInt64(&h.trackBiosMissing),
		ArtistBiosFound:   atomic.LoadInt64(&h.artistBiosFound),
		ArtistBiosMissing: atomic.LoadInt64(&h.artistBiosMissing),
	}
}
