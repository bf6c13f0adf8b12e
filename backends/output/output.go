// Package output owns the only persisted state this pipeline has: the
// line-delimited track record file and the per-entity biography text dirs.
package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// ForbiddenFilenameChars are replaced with '_' before a name touches disk.
	ForbiddenFilenameChars = `<>:"/\|?*`

	// MaxFilenameLen is the post-sanitization truncation length. Collisions
	// after truncation are accepted, last write wins.
	MaxFilenameLen = 200
)

type ITrackWriter interface {
	// Append serializes rec as a single JSON line and appends it to the
	// output file. The line is written whole or not at all.
	Append(rec interface{}) error

	// Written returns the number of lines appended so far.
	Written() int64

	Close() error
}

type TrackWriter struct {
	opts    *Options
	f       *os.File
	written int64
	log     *zap.Logger
	mu      sync.Mutex
}

type Options struct {
	// Path of the JSONL output file. Opened once, truncated, held for the
	// duration of the run.
	Path string

	Log *zap.Logger
}

func New(opts *Options) (*TrackWriter, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "unable to create output dir")
		}
	}

	f, err := os.Create(opts.Path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open output file")
	}

	return &TrackWriter{
		opts: opts,
		f:    f,
		log:  opts.Log.With(zap.String("pkg", "output")),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.Path == "" {
		return errors.New("Path cannot be empty")
	}

	if opts.Log == nil {
		return errors.New("Log cannot be nil")
	}

	return nil
}

func (w *TrackWriter) Append(rec interface{}) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "unable to marshal record")
	}

	line := append(data, '\n')

	// Single write under the mutex so a shutdown mid-run never leaves a
	// partial line behind.
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.f.Write(line); err != nil {
		return errors.Wrap(err, "unable to append record")
	}

	w.written++

	return nil
}

func (w *TrackWriter) Written() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.written
}

func (w *TrackWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.f.Sync(); err != nil {
		w.log.Warn("unable to sync output file", zap.Error(err))
	}

	return w.f.Close()
}

// SaveText writes content to dir under a sanitized filename. Callers are
// expected to skip absent content entirely - a missing biography produces
// no file, not an empty one.
func SaveText(content, dir, filename string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "unable to create text dir")
	}

	path := filepath.Join(dir, SanitizeFilename(filename))

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return errors.Wrap(err, "unable to write text file")
	}

	return nil
}

// SanitizeFilename replaces each forbidden character with an underscore and
// truncates the result to MaxFilenameLen runes.
func SanitizeFilename(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if strings.ContainsRune(ForbiddenFilenameChars, r) {
			return '_'
		}
		return r
	}, name)

	runes := []rune(sanitized)
	if len(runes) > MaxFilenameLen {
		return string(runes[:MaxFilenameLen])
	}

	return sanitized
}
