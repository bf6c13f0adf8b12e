package harvester

import (
	"sort"

	"github.com/dselans/melodia-harvester/clients/discogs"
)

// ArtistSet is the unique set of artist names appearing across all track
// records. It is built once, fully, after the catalog phase completes and
// is never mutated while the content crawler consumes it.
type ArtistSet struct {
	members map[string]struct{}
}

func NewArtistSet() *ArtistSet {
	return &ArtistSet{
		members: make(map[string]struct{}),
	}
}

func (s *ArtistSet) Add(name string) {
	s.members[name] = struct{}{}
}

func (s *ArtistSet) Contains(name string) bool {
	_, ok := s.members[name]
	return ok
}

func (s *ArtistSet) Len() int {
	return len(s.members)
}

// Sorted returns the members in lexical order for stable iteration and
// logging.
func (s *ArtistSet) Sorted() []string {
	names := make([]string, 0, len(s.members))
	for name := range s.members {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// CollectArtists scans every record's primary artists into a set.
func CollectArtists(tracks []discogs.TrackRecord) *ArtistSet {
	set := NewArtistSet()

	for _, track := range tracks {
		for _, artist := range track.PrimaryArtists {
			set.Add(artist)
		}
	}

	return set
}
