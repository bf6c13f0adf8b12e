package discogs

import (
	"strconv"
	"strings"
)

// Release is the catalog API's detail payload, reduced to the fields the
// pipeline consumes. Read-only after decode.
type Release struct {
	ID        int              `json:"id"`
	Title     string           `json:"title"`
	Year      int              `json:"year"`
	Genres    []string         `json:"genres"`
	Styles    []string         `json:"styles"`
	Country   string           `json:"country"`
	URI       string           `json:"uri"`
	Artists   []Artist         `json:"artists"`
	Labels    []Label          `json:"labels"`
	Tracklist []TracklistEntry `json:"tracklist"`
}

type Artist struct {
	Name string `json:"name"`
}

type Label struct {
	Name string `json:"name"`
}

type TracklistEntry struct {
	Position string `json:"position"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
}

// TrackRecord is the fully denormalized output record: one per tracklist
// entry, carrying a copy of every album-level field so each line of the
// output file stands on its own.
type TrackRecord struct {
	TrackTitle     string   `json:"track_title"`
	PrimaryArtists []string `json:"primary_artists"`
	AlbumTitle     string   `json:"album_title"`
	Year           int      `json:"year"`
	Genres         []string `json:"genres"`
	Styles         []string `json:"styles"`
	TrackPosition  string   `json:"track_position"`
	Country        string   `json:"country"`
	Label          *string  `json:"label"`
	DurationSec    *int     `json:"duration_sec"`
	DiscogsURI     string   `json:"discogs_uri"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID int `json:"id"`
}

// ParseDuration converts an "M:SS" duration string to whole seconds. Any
// non-conforming input (no colon, extra colons, non-numeric or negative
// parts) yields nil - never zero, so downstream consumers can tell
// "unknown" from "0:00".
func ParseDuration(dur string) *int {
	parts := strings.Split(dur, ":")
	if len(parts) != 2 {
		return nil
	}

	minutes, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}

	seconds, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}

	if minutes < 0 || seconds < 0 {
		return nil
	}

	total := minutes*60 + seconds

	return &total
}

// ExpandTracks flattens a release into one TrackRecord per tracklist entry,
// preserving provider order. Album-level fields are copied onto every
// record; a release with no labels yields nil labels, not an error.
func ExpandTracks(rel *Release) []TrackRecord {
	primaryArtists := make([]string, 0, len(rel.Artists))
	for _, a := range rel.Artists {
		primaryArtists = append(primaryArtists, a.Name)
	}

	var label *string
	if len(rel.Labels) > 0 {
		label = &rel.Labels[0].Name
	}

	genres := rel.Genres
	if genres == nil {
		genres = []string{}
	}

	styles := rel.Styles
	if styles == nil {
		styles = []string{}
	}

	records := make([]TrackRecord, 0, len(rel.Tracklist))

	for _, entry := range rel.Tracklist {
		records = append(records, TrackRecord{
			TrackTitle:     entry.Title,
			PrimaryArtists: primaryArtists,
			AlbumTitle:     rel.Title,
			Year:           rel.Year,
			Genres:         genres,
			Styles:         styles,
			TrackPosition:  entry.Position,
			Country:        rel.Country,
			Label:          label,
			DurationSec:    ParseDuration(entry.Duration),
			DiscogsURI:     rel.URI,
		})
	}

	return records
}
