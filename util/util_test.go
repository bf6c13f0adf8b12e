package util_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dselans/melodia-harvester/util"
)

var _ = Describe("DoJSON", func() {
	var (
		server *httptest.Server
		client *http.Client
	)

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	newServer := func(status int, body string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rw.WriteHeader(status)
			rw.Write([]byte(body))
		}))
	}

	BeforeEach(func() {
		client = &http.Client{Timeout: 5 * time.Second}
	})

	It("decodes a 2xx JSON response into the target", func() {
		server = newServer(http.StatusOK, `{"name":"Daft Punk"}`)

		var target struct {
			Name string `json:"name"`
		}

		err := util.DoJSON(context.Background(), client, http.MethodGet, server.URL, nil, &target)

		Expect(err).ToNot(HaveOccurred())
		Expect(target.Name).To(Equal("Daft Punk"))
	})

	It("classifies 404 as ErrNotFound", func() {
		server = newServer(http.StatusNotFound, `{}`)

		err := util.DoJSON(context.Background(), client, http.MethodGet, server.URL, nil, nil)

		Expect(errors.Is(err, util.ErrNotFound)).To(BeTrue())
	})

	It("classifies 410 as ErrNotFound", func() {
		server = newServer(http.StatusGone, `{}`)

		err := util.DoJSON(context.Background(), client, http.MethodGet, server.URL, nil, nil)

		Expect(errors.Is(err, util.ErrNotFound)).To(BeTrue())
	})

	It("classifies other non-2xx statuses as TransportError", func() {
		server = newServer(http.StatusInternalServerError, ``)

		err := util.DoJSON(context.Background(), client, http.MethodGet, server.URL, nil, nil)

		var te *util.TransportError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(te.StatusCode).To(Equal(http.StatusInternalServerError))
	})

	It("classifies a dial failure as TransportError", func() {
		err := util.DoJSON(context.Background(), client, http.MethodGet, "http://127.0.0.1:1", nil, nil)

		var te *util.TransportError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(te.StatusCode).To(BeZero())
	})

	It("classifies malformed JSON as DecodeError", func() {
		server = newServer(http.StatusOK, `{"name":`)

		var target map[string]any

		err := util.DoJSON(context.Background(), client, http.MethodGet, server.URL, nil, &target)

		var de *util.DecodeError
		Expect(errors.As(err, &de)).To(BeTrue())
	})

	It("posts urlencoded form bodies with the right content type", func() {
		var (
			gotMethod      string
			gotContentType string
			gotBody        string
		)

		server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotContentType = r.Header.Get("Content-Type")
			Expect(r.ParseForm()).To(Succeed())
			gotBody = r.PostForm.Encode()
			rw.Write([]byte(`{}`))
		}))

		form := url.Values{"action": {"login"}, "lgname": {"bot"}}

		err := util.DoJSON(context.Background(), client, http.MethodPost, server.URL, form, nil)

		Expect(err).ToNot(HaveOccurred())
		Expect(gotMethod).To(Equal(http.MethodPost))
		Expect(gotContentType).To(Equal("application/x-www-form-urlencoded"))
		Expect(gotBody).To(Equal(form.Encode()))
	})

	It("sends the supplied headers", func() {
		var gotUA string

		server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			rw.Write([]byte(`{}`))
		}))

		h := http.Header{}
		h.Set("User-Agent", "melodia-harvester/1.0")

		err := util.DoJSON(context.Background(), client, http.MethodGet, server.URL, nil, nil, h)

		Expect(err).ToNot(HaveOccurred())
		Expect(gotUA).To(Equal("melodia-harvester/1.0"))
	})
})

var _ = Describe("WithRetry", func() {
	var origDelays []time.Duration

	BeforeEach(func() {
		origDelays = util.RetryDelays
		util.RetryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	})

	AfterEach(func() {
		util.RetryDelays = origDelays
	})

	It("retries transport errors until success", func() {
		calls := 0

		err := util.WithRetry(context.Background(), zap.NewNop(), "test", func() error {
			calls++
			if calls < 3 {
				return &util.TransportError{StatusCode: 500}
			}
			return nil
		})

		Expect(err).ToNot(HaveOccurred())
		Expect(calls).To(Equal(3))
	})

	It("gives up after the ladder is exhausted", func() {
		calls := 0

		err := util.WithRetry(context.Background(), zap.NewNop(), "test", func() error {
			calls++
			return &util.TransportError{StatusCode: 503}
		})

		var te *util.TransportError
		Expect(errors.As(err, &te)).To(BeTrue())
		Expect(calls).To(Equal(len(util.RetryDelays) + 1))
	})

	It("does not retry not-found", func() {
		calls := 0

		err := util.WithRetry(context.Background(), zap.NewNop(), "test", func() error {
			calls++
			return errors.Wrap(util.ErrNotFound, "gone")
		})

		Expect(errors.Is(err, util.ErrNotFound)).To(BeTrue())
		Expect(calls).To(Equal(1))
	})

	It("does not retry decode errors", func() {
		calls := 0

		err := util.WithRetry(context.Background(), zap.NewNop(), "test", func() error {
			calls++
			return &util.DecodeError{Err: errors.New("bad json")}
		})

		var de *util.DecodeError
		Expect(errors.As(err, &de)).To(BeTrue())
		Expect(calls).To(Equal(1))
	})

	It("aborts the wait when the context is cancelled", func() {
		util.RetryDelays = []time.Duration{time.Second}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		calls := 0

		err := util.WithRetry(ctx, zap.NewNop(), "test", func() error {
			calls++
			return &util.TransportError{StatusCode: 500}
		})

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
		Expect(calls).To(Equal(1))
	})
})
