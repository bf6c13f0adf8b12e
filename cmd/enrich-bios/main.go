// enrich-bios re-runs only the biography enrichment phase over an existing
// track record JSONL file. Useful when a harvest finished the catalog phase
// but the content provider was flaky, or when pointing the same track set
// at a different wiki.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/dselans/melodia-harvester/backends/cache"
	"github.com/dselans/melodia-harvester/backends/output"
	"github.com/dselans/melodia-harvester/clients/discogs"
	"github.com/dselans/melodia-harvester/clients/wiki"
	"github.com/dselans/melodia-harvester/limiter"
	"github.com/dselans/melodia-harvester/services/harvester"
	"github.com/dselans/melodia-harvester/validate"
)

const (
	defaultWikiAPIURL = "https://en.wikipedia.org/w/api.php"
	defaultUserAgent  = "melodia-harvester/1.0"
)

var (
	logLevel    string
	levelDebug  bool
	enableWrite bool
	workers     int
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}

func setLogLevel() {
	logLevel = strings.ToLower(getenv("LOG_LEVEL", "info"))
	levelDebug = (logLevel == "debug")

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

type bioJob struct {
	idx      int
	total    int
	label    string
	query    string
	dir      string
	filename string
}

func main() {
	godotenv.Load()

	inPath := flag.String("in", "data/tracks.jsonl", "input track record JSONL path")
	tracksDir := flag.String("tracks-dir", "data/tracks_infos", "output dir for track bios")
	artistsDir := flag.String("artists-dir", "data/artists_infos", "output dir for artist bios")
	wikiDelay := flag.Duration("wiki-delay", 600*time.Millisecond, "minimum spacing between content API requests")
	flag.BoolVar(&enableWrite, "enable-write", false, "enable writing text files (default: dry-run mode)")
	flag.IntVar(&workers, "workers", 1, "number of concurrent workers (default: 1)")
	flag.Parse()

	setLogLevel()

	if !enableWrite {
		logrus.Info("DRY RUN MODE - no text files will be written")
	}

	if workers < 1 {
		workers = 1
	}

	logrus.Infof("Bio enrichment start (LOG_LEVEL=%s, file=%s, enable-write=%v, workers=%d)",
		logLevel, *inPath, enableWrite, workers)

	tracks, skipped, err := loadTracks(*inPath)
	if err != nil {
		log.Fatalf("unable to load tracks: %v", err)
	}

	logrus.Infof("Loaded %d tracks (%d skipped)", len(tracks), skipped)

	wikiClient, err := newWikiClient(*wikiDelay)
	if err != nil {
		log.Fatalf("unable to create content client: %v", err)
	}

	ctx := context.Background()

	if err := wikiClient.Login(ctx); err != nil {
		logrus.Warnf("Content API login failed, continuing anonymous: %v", err)
	}

	var successCount, missCount int64

	jobs := make(chan *bioJob, workers*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for job := range jobs {
				logrus.Infof("[%d/%d] Fetching: %s", job.idx, job.total, job.label)

				res, err := wikiClient.Lookup(ctx, job.query)
				if err != nil {
					logrus.Warnf("Lookup failed for %s: %v", job.label, err)
				}

				if res == nil || res.Content == nil {
					atomic.AddInt64(&missCount, 1)
					continue
				}

				if !enableWrite {
					logrus.Infof("DRY RUN - would save %s", job.filename)
					atomic.AddInt64(&successCount, 1)
					continue
				}

				if err := output.SaveText(*res.Content, job.dir, job.filename); err != nil {
					logrus.Errorf("Unable to save %s: %v", job.filename, err)
					atomic.AddInt64(&missCount, 1)
					continue
				}

				atomic.AddInt64(&successCount, 1)
			}
		}()
	}

	logrus.Info("FETCHING TRACK INFORMATION")

	total := len(tracks)
	for i, track := range tracks {
		artist := "Unknown"
		if len(track.PrimaryArtists) > 0 {
			artist = track.PrimaryArtists[0]
		}

		jobs <- &bioJob{
			idx:      i + 1,
			total:    total,
			label:    fmt.Sprintf("%s by %s", track.TrackTitle, artist),
			query:    fmt.Sprintf("%s %s song", track.TrackTitle, artist),
			dir:      *tracksDir,
			filename: track.TrackTitle + ".txt",
		}
	}

	logrus.Info("FETCHING ARTIST INFORMATION")

	artists := harvester.CollectArtists(tracks).Sorted()
	for i, artist := range artists {
		jobs <- &bioJob{
			idx:      i + 1,
			total:    len(artists),
			label:    artist,
			query:    fmt.Sprintf("%s musician", artist),
			dir:      *artistsDir,
			filename: artist + ".txt",
		}
	}

	close(jobs)
	wg.Wait()

	logrus.Infof("Done. Entities: %d, Found: %d, Missing: %d",
		total+len(artists), atomic.LoadInt64(&successCount), atomic.LoadInt64(&missCount))
}

// loadTracks reads a JSONL file of track records, skipping blank and
// malformed lines.
func loadTracks(path string) ([]discogs.TrackRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var tracks []discogs.TrackRecord
	skipped := 0
	lineNum := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		lineNum++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec discogs.TrackRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logrus.Warnf("line %d: unable to parse record: %v", lineNum, err)
			skipped++
			continue
		}

		if err := validate.TrackRecord(&rec); err != nil {
			logrus.Warnf("line %d: invalid record: %v", lineNum, err)
			skipped++
			continue
		}

		tracks = append(tracks, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}

	return tracks, skipped, nil
}

func newWikiClient(delay time.Duration) (wiki.IClient, error) {
	rl := limiter.New()
	rl.Register(wiki.HostKey, delay)

	cb, err := cache.New()
	if err != nil {
		return nil, err
	}

	// Client internals log through zap; CLI progress stays on logrus.
	zapLog, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	return wiki.New(&wiki.Options{
		APIURL:    getenv("WIKI_API_URL", defaultWikiAPIURL),
		Username:  getenv("WIKI_USERNAME", ""),
		Password:  getenv("WIKI_PASSWORD", ""),
		UserAgent: getenv("USER_AGENT", defaultUserAgent),
		Limiter:   rl,
		Cache:     cb,
		Log:       zapLog,
	})
}
