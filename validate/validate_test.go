package validate_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dselans/melodia-harvester/clients/discogs"
	"github.com/dselans/melodia-harvester/config"
	"github.com/dselans/melodia-harvester/validate"
)

var _ = Describe("TrackRecord", func() {
	It("accepts a minimal valid record", func() {
		Expect(validate.TrackRecord(&discogs.TrackRecord{TrackTitle: "Sexy Boy"})).To(Succeed())
	})

	It("rejects nil", func() {
		Expect(validate.TrackRecord(nil)).ToNot(Succeed())
	})

	It("rejects an empty title", func() {
		Expect(validate.TrackRecord(&discogs.TrackRecord{})).ToNot(Succeed())
	})

	It("rejects a negative duration", func() {
		bad := -1

		Expect(validate.TrackRecord(&discogs.TrackRecord{
			TrackTitle:  "x",
			DurationSec: &bad,
		})).ToNot(Succeed())
	})

	It("accepts a zero duration", func() {
		zero := 0

		Expect(validate.TrackRecord(&discogs.TrackRecord{
			TrackTitle:  "x",
			DurationSec: &zero,
		})).To(Succeed())
	})
})

var _ = Describe("CatalogQuery", func() {
	It("accepts in-range parameters", func() {
		Expect(validate.CatalogQuery("France", 1, config.DiscogsPerPageMax)).To(Succeed())
	})

	It("rejects an empty country", func() {
		Expect(validate.CatalogQuery("", 1, 100)).ToNot(Succeed())
	})

	It("rejects a zero page", func() {
		Expect(validate.CatalogQuery("France", 0, 100)).ToNot(Succeed())
	})

	It("rejects an oversized page size", func() {
		Expect(validate.CatalogQuery("France", 1, config.DiscogsPerPageMax+1)).ToNot(Succeed())
	})

	It("rejects a zero page size", func() {
		Expect(validate.CatalogQuery("France", 1, 0)).ToNot(Succeed())
	})
})
