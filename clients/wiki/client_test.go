package wiki_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/dselans/melodia-harvester/backends/cache"
	"github.com/dselans/melodia-harvester/clients/wiki"
	"github.com/dselans/melodia-harvester/limiter"
	"github.com/dselans/melodia-harvester/util"
)

// fakeWikiServer emulates the content API's action dispatch.
type fakeWikiServer struct {
	server *httptest.Server

	requests int64

	searchHits  []string
	extract     string
	fullURL     string
	loginResult string
	failSearch  bool
}

func newFakeWikiServer() *fakeWikiServer {
	f := &fakeWikiServer{
		loginResult: "Success",
		fullURL:     "https://en.wikipedia.org/wiki/Some_Page",
	}

	f.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&f.requests, 1)

		Expect(r.ParseForm()).To(Succeed())

		switch {
		case r.Form.Get("meta") == "tokens":
			fmt.Fprint(rw, `{"query":{"tokens":{"logintoken":"tok123"}}}`)

		case r.Form.Get("action") == "login":
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.PostForm.Get("lgtoken")).To(Equal("tok123"))
			fmt.Fprintf(rw, `{"login":{"result":"%s"}}`, f.loginResult)

		case r.Form.Get("list") == "search":
			if f.failSearch {
				rw.WriteHeader(http.StatusInternalServerError)
				return
			}

			hits := ""
			for i, title := range f.searchHits {
				if i > 0 {
					hits += ","
				}
				hits += fmt.Sprintf(`{"title":"%s"}`, title)
			}
			fmt.Fprintf(rw, `{"query":{"search":[%s]}}`, hits)

		case r.Form.Get("prop") == "extracts|info":
			fmt.Fprintf(rw, `{"query":{"pages":{"12345":{"title":"%s","fullurl":"%s","extract":"%s"}}}}`,
				r.Form.Get("titles"), f.fullURL, f.extract)

		default:
			rw.WriteHeader(http.StatusBadRequest)
		}
	}))

	return f
}

func (f *fakeWikiServer) requestCount() int64 {
	return atomic.LoadInt64(&f.requests)
}

var _ = Describe("Client", func() {
	var (
		fake   *fakeWikiServer
		client *wiki.Client
	)

	newClient := func(username, password string) *wiki.Client {
		cb, err := cache.New()
		Expect(err).ToNot(HaveOccurred())

		c, err := wiki.New(&wiki.Options{
			APIURL:    fake.server.URL,
			Username:  username,
			Password:  password,
			UserAgent: "melodia-harvester/1.0",
			Limiter:   limiter.New(),
			Cache:     cb,
			Log:       zap.NewNop(),
		})
		Expect(err).ToNot(HaveOccurred())

		return c
	}

	var savedDelays []time.Duration

	BeforeEach(func() {
		savedDelays = util.RetryDelays
		util.RetryDelays = []time.Duration{time.Millisecond}

		fake = newFakeWikiServer()
		client = newClient("bot", "hunter2")
	})

	AfterEach(func() {
		util.RetryDelays = savedDelays
		fake.server.Close()
	})

	Describe("Login", func() {
		It("completes the token handshake", func() {
			Expect(client.Login(context.Background())).To(Succeed())
			Expect(client.Authenticated()).To(BeTrue())
			Expect(fake.requestCount()).To(Equal(int64(2)))
		})

		It("returns an error on a rejected login, leaving the client usable", func() {
			fake.loginResult = "Failed"
			fake.searchHits = []string{"Air (band)"}
			fake.extract = "Air is a French duo."

			Expect(client.Login(context.Background())).ToNot(Succeed())
			Expect(client.Authenticated()).To(BeFalse())

			res, err := client.Lookup(context.Background(), "Air musician")

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Content).ToNot(BeNil())
		})

		It("skips the handshake without credentials", func() {
			anon := newClient("", "")

			Expect(anon.Login(context.Background())).To(Succeed())
			Expect(anon.Authenticated()).To(BeFalse())
			Expect(fake.requestCount()).To(BeZero())
		})
	})

	Describe("Lookup", func() {
		It("composes a header plus extract body on a match", func() {
			fake.searchHits = []string{"One More Time"}
			fake.extract = "One More Time is a song by Daft Punk."

			res, err := client.Lookup(context.Background(), "One More Time Daft Punk song")

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Title).To(Equal("One More Time"))
			Expect(res.Content).ToNot(BeNil())
			Expect(*res.Content).To(Equal(
				"Title: One More Time\nURL: https://en.wikipedia.org/wiki/Some_Page\n\nOne More Time is a song by Daft Punk.\n"))
		})

		It("uses two request slots per successful lookup", func() {
			fake.searchHits = []string{"Something"}
			fake.extract = "Body."

			_, err := client.Lookup(context.Background(), "Something song")

			Expect(err).ToNot(HaveOccurred())
			Expect(fake.requestCount()).To(Equal(int64(2)))
		})

		It("returns nil content on an empty hit list, without error", func() {
			fake.searchHits = nil

			res, err := client.Lookup(context.Background(), "Zyzzlvaria song")

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Content).To(BeNil())
			// Only the search call happened
			Expect(fake.requestCount()).To(Equal(int64(1)))
		})

		It("returns nil content when the page has no extract", func() {
			fake.searchHits = []string{"Stub Page"}
			fake.extract = ""

			res, err := client.Lookup(context.Background(), "Stub Page song")

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Content).To(BeNil())
		})

		It("surfaces transport failures as nil content plus a classified error", func() {
			fake.failSearch = true

			res, err := client.Lookup(context.Background(), "Anything song")

			Expect(err).To(HaveOccurred())
			Expect(res).ToNot(BeNil())
			Expect(res.Content).To(BeNil())
		})

		It("serves repeated queries from the cache", func() {
			fake.searchHits = []string{"Cached Page"}
			fake.extract = "Cached body."

			_, err := client.Lookup(context.Background(), "Cached Page song")
			Expect(err).ToNot(HaveOccurred())

			before := fake.requestCount()

			res, err := client.Lookup(context.Background(), "Cached Page song")

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Content).ToNot(BeNil())
			Expect(fake.requestCount()).To(Equal(before))
		})

		It("caches misses as well", func() {
			fake.searchHits = nil

			_, err := client.Lookup(context.Background(), "Nope song")
			Expect(err).ToNot(HaveOccurred())

			before := fake.requestCount()

			res, err := client.Lookup(context.Background(), "Nope song")

			Expect(err).ToNot(HaveOccurred())
			Expect(res.Content).To(BeNil())
			Expect(fake.requestCount()).To(Equal(before))
		})
	})
})
