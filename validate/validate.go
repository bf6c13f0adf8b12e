package validate

import (
	"github.com/pkg/errors"

	"github.com/dselans/melodia-harvester/clients/discogs"
	"github.com/dselans/melodia-harvester/config"
)

// TrackRecord checks that a record loaded from an external JSONL file is
// usable by the enrichment phase.
func TrackRecord(rec *discogs.TrackRecord) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}

	if rec.TrackTitle == "" {
		return errors.New("track_title cannot be empty")
	}

	if rec.DurationSec != nil && *rec.DurationSec < 0 {
		return errors.New("duration_sec cannot be negative")
	}

	return nil
}

// CatalogQuery checks the parameters of one catalog search call.
func CatalogQuery(country string, page, perPage int) error {
	if country == "" {
		return errors.New("country cannot be empty")
	}

	if page < 1 {
		return errors.New("page must be >= 1")
	}

	if perPage < 1 || perPage > config.DiscogsPerPageMax {
		return errors.Errorf("perPage must be between 1 and %d", config.DiscogsPerPageMax)
	}

	return nil
}
