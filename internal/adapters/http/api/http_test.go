package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/okian/crowdfund/internal/adapters/http/api"
	"github.com/okian/crowdfund/internal/adapters/repository"
	service "github.com/okian/crowdfund/internal/app"
	"github.com/okian/crowdfund/internal/domain/catalog"
	"github.com/okian/crowdfund/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const wallet = "0x52908400098527886e0f7030069857d2e4169ee7"

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// switchStore fails every call while down is set.
type switchStore struct {
	*repository.MemoryStore
	down atomic.Bool
}

func (s *switchStore) Find(ctx context.Context, w string) (repository.Row, error) {
	if s.down.Load() {
		return repository.Row{}, repository.ErrUnavailable
	}
	return s.MemoryStore.Find(ctx, w)
}

func (s *switchStore) Update(ctx context.Context, w, col string, v float64) error {
	if s.down.Load() {
		return repository.ErrUnavailable
	}
	return s.MemoryStore.Update(ctx, w, col, v)
}

type env struct {
	store   *switchStore
	handler http.Handler
}

func newEnv(opts ...api.Option) env {
	store := &switchStore{MemoryStore: repository.NewMemoryStore()}
	svc := service.New(store, catalog.Default())
	srv := api.NewServer(svc, svc, opts...)
	return env{store: store, handler: srv.Handler(context.Background())}
}

func (e env) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func fundingDisplays(v map[string]any) []string {
	list := v["funding"].([]any)
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.(map[string]any)["display"].(string)
	}
	return out
}

func TestServer_Basics(t *testing.T) {
	Convey("Given an API server", t, func() {
		e := newEnv()

		Convey("When checking health", func() {
			w := e.do(http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["status"], ShouldEqual, "ok")
			So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)
		})

		Convey("When a request id is supplied", func() {
			req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "abc-123")
			w := httptest.NewRecorder()
			e.handler.ServeHTTP(w, req)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, "abc-123")
		})

		Convey("When scraping metrics", func() {
			_ = e.do(http.MethodGet, "/healthz", "")
			w := e.do(http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "crowdfund_")
		})

		Convey("When reading stats and catalog", func() {
			stats := decode(e.do(http.MethodGet, "/stats", ""))
			So(stats["milestones"], ShouldEqual, 8)

			c := decode(e.do(http.MethodGet, "/catalog", ""))
			So(len(c["milestones"].([]any)), ShouldEqual, 8)
			So(len(c["tiers"].([]any)), ShouldEqual, 5)
			So(c["default_tier"], ShouldEqual, 100)
		})

		Convey("When a browser sends a preflight", func() {
			req := httptest.NewRequest(http.MethodOptions, "/participants/"+wallet+"/tier", http.NoBody)
			req.Header.Set("Origin", "https://app.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodPut)
			w := httptest.NewRecorder()
			e.handler.ServeHTTP(w, req)

			Convey("Then CORS should allow it", func() {
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
			})
		})

		Convey("When fetching the API docs", func() {
			So(e.do(http.MethodGet, "/openapi.yaml", "").Code, ShouldEqual, http.StatusOK)
			So(e.do(http.MethodGet, "/api-docs", "").Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestServer_Participants(t *testing.T) {
	Convey("Given an API server", t, func() {
		e := newEnv()
		base := "/participants/" + wallet

		Convey("When a new wallet is loaded", func() {
			w := e.do(http.MethodGet, base, "")

			Convey("Then the default record should be returned with zero funding", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				v := decode(w)
				rec := v["record"].(map[string]any)
				So(rec["wallet_address"], ShouldEqual, wallet)
				So(rec["tier"], ShouldEqual, 100)
				for _, d := range fundingDisplays(v) {
					So(d, ShouldEqual, "$0.0")
				}
			})
		})

		Convey("When scores and tier are set", func() {
			So(e.do(http.MethodPut, base+"/milestones/1", `{"score": 10}`).Code, ShouldEqual, http.StatusOK)
			So(e.do(http.MethodPut, base+"/milestones/2", `{"score": "10"}`).Code, ShouldEqual, http.StatusOK)
			w := e.do(http.MethodPut, base+"/tier", `{"tier": 500}`)

			Convey("Then the read-back record should drive funding", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				v := decode(w)
				So(fundingDisplays(v)[:3], ShouldResemble, []string{"$250.0", "$250.0", "$0.0"})
				So(v["total"], ShouldEqual, "$500.0")
			})

			Convey("And the funding route should agree", func() {
				f := decode(e.do(http.MethodGet, base+"/funding", ""))
				So(f["wallet"], ShouldEqual, wallet)
				So(fundingDisplays(f)[0], ShouldEqual, "$250.0")
			})

			Convey("And a mixed-case wallet should address the same record", func() {
				v := decode(e.do(http.MethodGet, "/participants/"+strings.ToUpper(wallet[2:]), ""))
				So(v["record"].(map[string]any)["tier"], ShouldEqual, 500)
			})
		})

		Convey("When inputs are invalid", func() {
			cases := []struct {
				method, path, body string
				status             int
				code               string
			}{
				{http.MethodPut, base + "/milestones/0", `{"score": 10}`, http.StatusNotFound, "invalid_milestone_index"},
				{http.MethodPut, base + "/milestones/9", `{"score": 10}`, http.StatusNotFound, "invalid_milestone_index"},
				{http.MethodPut, base + "/milestones/x", `{"score": 10}`, http.StatusNotFound, "invalid_milestone_index"},
				{http.MethodPut, base + "/milestones/1", `{"score": 33}`, http.StatusBadRequest, "invalid_score"},
				{http.MethodPut, base + "/milestones/1", `{"score": "lots"}`, http.StatusBadRequest, "bad_request"},
				{http.MethodPut, base + "/milestones/1", `{}`, http.StatusBadRequest, "bad_request"},
				{http.MethodPut, base + "/milestones/1", `{`, http.StatusBadRequest, "bad_request"},
				{http.MethodPut, base + "/tier", `{"tier": 7}`, http.StatusBadRequest, "invalid_tier"},
				{http.MethodGet, "/participants/not-a-wallet", "", http.StatusBadRequest, "invalid_wallet"},
			}
			for _, c := range cases {
				w := e.do(c.method, c.path, c.body)
				So(w.Code, ShouldEqual, c.status)
				So(decode(w)["code"], ShouldEqual, c.code)
			}
		})

		Convey("When the store fails after a successful load", func() {
			So(e.do(http.MethodPut, base+"/milestones/3", `{"score": 50}`).Code, ShouldEqual, http.StatusOK)
			e.store.down.Store(true)
			w := e.do(http.MethodPut, base+"/milestones/3", `{"score": 100}`)

			Convey("Then 503 should carry the last known-good view", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				v := decode(w)
				So(v["code"], ShouldEqual, "store_unavailable")
				stale := v["stale"].(map[string]any)
				So(stale["stale"], ShouldEqual, true)
				scores := stale["record"].(map[string]any)["milestone_scores"].([]any)
				So(scores[2], ShouldEqual, 50)
			})
		})

		Convey("When the store is down for an unknown wallet", func() {
			e.store.down.Store(true)
			w := e.do(http.MethodGet, base+"/funding", "")
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decode(w), ShouldNotContainKey, "stale")
		})
	})
}

func TestServer_Allocate(t *testing.T) {
	Convey("Given an API server", t, func() {
		e := newEnv()

		Convey("When allocating with the catalog multiplier", func() {
			w := e.do(http.MethodPost, "/allocate", `{"scores": [10, "25", null, 15], "tier": 100}`)

			Convey("Then amounts should follow the scores", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				v := decode(w)
				So(fundingDisplays(v), ShouldResemble, []string{"$20.0", "$50.0", "$0.0", "$30.0"})
				So(v["total"], ShouldEqual, "$100.0")
			})
		})

		Convey("When an explicit multiplier is given", func() {
			v := decode(e.do(http.MethodPost, "/allocate", `{"scores": [1, 1], "tier": 50, "multiplier": 3}`))
			So(fundingDisplays(v), ShouldResemble, []string{"$75.0", "$75.0"})
			So(v["multiplier"], ShouldEqual, 3)
		})

		Convey("When tier*multiplier overflows", func() {
			w := e.do(http.MethodPost, "/allocate", `{"scores": [1], "tier": 1e308, "multiplier": 10}`)

			Convey("Then a finite zero allocation is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				v := decode(w)
				So(fundingDisplays(v), ShouldResemble, []string{"$0.0"})
				So(v["total"], ShouldEqual, "$0.0")
			})
		})

		Convey("When required fields are missing", func() {
			So(e.do(http.MethodPost, "/allocate", `{"tier": 50}`).Code, ShouldEqual, http.StatusBadRequest)
			So(e.do(http.MethodPost, "/allocate", `{"scores": [1]}`).Code, ShouldEqual, http.StatusBadRequest)
			So(e.do(http.MethodPost, "/allocate", `{"scores": [1], "tier": 5, "multiplier": true}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestServer_RateLimit(t *testing.T) {
	Convey("Given a server limited to a burst of 2 writes", t, func() {
		e := newEnv(api.WithRateLimit(0.001, 2))
		path := "/participants/" + wallet + "/tier"

		Convey("When a client keeps writing", func() {
			first := e.do(http.MethodPut, path, `{"tier": 25}`)
			second := e.do(http.MethodPut, path, `{"tier": 50}`)
			third := e.do(http.MethodPut, path, `{"tier": 100}`)

			Convey("Then the third write should be rejected", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(third.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decode(third)["code"], ShouldEqual, "rate_limited")
			})

			Convey("And participant reads should share the client's bucket", func() {
				So(e.do(http.MethodGet, "/participants/"+wallet, "").Code, ShouldEqual, http.StatusTooManyRequests)
				So(e.do(http.MethodGet, "/participants/"+wallet+"/funding", "").Code, ShouldEqual, http.StatusTooManyRequests)
			})

			Convey("And catalog reads should stay unlimited", func() {
				So(e.do(http.MethodGet, "/catalog", "").Code, ShouldEqual, http.StatusOK)
			})
		})
	})

	Convey("Given a server limited to a burst of 1", t, func() {
		e := newEnv(api.WithRateLimit(0.001, 1))

		Convey("When a client reads many unseen wallets", func() {
			first := e.do(http.MethodGet, "/participants/"+wallet, "")
			second := e.do(http.MethodGet, "/participants/0x0000000000000000000000000000000000000001", "")

			Convey("Then only the first read creates a row", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(second.Code, ShouldEqual, http.StatusTooManyRequests)
				So(e.store.Len(), ShouldEqual, 1)
			})
		})
	})
}

func TestRateLimiter(t *testing.T) {
	Convey("Given a disabled rate limiter", t, func() {
		l := api.NewRateLimiter(0, 0)
		So(l.Enabled(), ShouldBeFalse)
		for i := 0; i < 100; i++ {
			So(l.Allow("c"), ShouldBeTrue)
		}
	})

	Convey("Given a limiter with burst 1", t, func() {
		l := api.NewRateLimiter(0.001, 1)
		So(l.Allow("a"), ShouldBeTrue)
		So(l.Allow("a"), ShouldBeFalse)

		Convey("Then other clients should have their own bucket", func() {
			So(l.Allow("b"), ShouldBeTrue)
		})
	})
}
