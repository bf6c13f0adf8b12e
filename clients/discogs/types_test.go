package discogs_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dselans/melodia-harvester/clients/discogs"
)

var _ = Describe("ParseDuration", func() {
	DescribeTable("valid M:SS strings convert to exact seconds",
		func(input string, expected int) {
			result := discogs.ParseDuration(input)

			Expect(result).ToNot(BeNil())
			Expect(*result).To(Equal(expected))
		},
		Entry("typical track", "3:45", 225),
		Entry("zero duration", "0:00", 0),
		Entry("double-digit minutes", "10:05", 605),
		Entry("long track", "74:59", 4499),
	)

	DescribeTable("malformed strings yield nil",
		func(input string) {
			Expect(discogs.ParseDuration(input)).To(BeNil())
		},
		Entry("empty", ""),
		Entry("no colon", "345"),
		Entry("non-numeric seconds", "3:4a"),
		Entry("non-numeric minutes", "a:45"),
		Entry("extra colon", "1:02:03"),
		Entry("negative minutes", "-1:30"),
		Entry("whitespace parts", "3 : 45"),
		Entry("only colon", ":"),
	)
})

var _ = Describe("ExpandTracks", func() {
	var rel *discogs.Release

	BeforeEach(func() {
		rel = &discogs.Release{
			ID:      123,
			Title:   "Discovery",
			Year:    2001,
			Genres:  []string{"Electronic"},
			Styles:  []string{"House", "Disco"},
			Country: "France",
			URI:     "https://www.discogs.com/release/123",
			Artists: []discogs.Artist{{Name: "Daft Punk"}},
			Labels:  []discogs.Label{{Name: "Virgin"}, {Name: "Soma"}},
			Tracklist: []discogs.TracklistEntry{
				{Position: "1", Title: "One More Time", Duration: "5:20"},
				{Position: "2", Title: "Aerodynamic", Duration: "3:27"},
				{Position: "3", Title: "Digital Love", Duration: ""},
			},
		}
	})

	It("yields exactly one record per tracklist entry, in provider order", func() {
		records := discogs.ExpandTracks(rel)

		Expect(records).To(HaveLen(3))
		Expect(records[0].TrackTitle).To(Equal("One More Time"))
		Expect(records[1].TrackTitle).To(Equal("Aerodynamic"))
		Expect(records[2].TrackTitle).To(Equal("Digital Love"))
	})

	It("copies identical album-level fields onto every record", func() {
		for _, rec := range discogs.ExpandTracks(rel) {
			Expect(rec.AlbumTitle).To(Equal("Discovery"))
			Expect(rec.Year).To(Equal(2001))
			Expect(rec.Genres).To(Equal([]string{"Electronic"}))
			Expect(rec.Styles).To(Equal([]string{"House", "Disco"}))
			Expect(rec.Country).To(Equal("France"))
			Expect(rec.PrimaryArtists).To(Equal([]string{"Daft Punk"}))
			Expect(rec.DiscogsURI).To(Equal("https://www.discogs.com/release/123"))
		}
	})

	It("uses only the first label", func() {
		records := discogs.ExpandTracks(rel)

		Expect(records[0].Label).ToNot(BeNil())
		Expect(*records[0].Label).To(Equal("Virgin"))
	})

	It("converts durations and leaves unparseable ones nil", func() {
		records := discogs.ExpandTracks(rel)

		Expect(records[0].DurationSec).ToNot(BeNil())
		Expect(*records[0].DurationSec).To(Equal(320))
		Expect(records[2].DurationSec).To(BeNil())
	})

	It("leaves the label nil when the release has none", func() {
		rel.Labels = nil

		records := discogs.ExpandTracks(rel)

		Expect(records[0].Label).To(BeNil())
	})

	It("normalizes missing genres and styles to empty sequences", func() {
		rel.Genres = nil
		rel.Styles = nil

		records := discogs.ExpandTracks(rel)

		Expect(records[0].Genres).ToNot(BeNil())
		Expect(records[0].Genres).To(BeEmpty())
		Expect(records[0].Styles).ToNot(BeNil())
		Expect(records[0].Styles).To(BeEmpty())
	})

	It("yields no records for an empty tracklist", func() {
		rel.Tracklist = nil

		Expect(discogs.ExpandTracks(rel)).To(BeEmpty())
	})
})
