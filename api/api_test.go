package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	cachemem "github.com/papercomputeco/strata/pkg/cache/inmemory"
	"github.com/papercomputeco/strata/pkg/ciar"
	staticemb "github.com/papercomputeco/strata/pkg/embeddings/static"
	"github.com/papercomputeco/strata/pkg/engine/consolidation"
	"github.com/papercomputeco/strata/pkg/engine/distillation"
	"github.com/papercomputeco/strata/pkg/engine/promotion"
	"github.com/papercomputeco/strata/pkg/facade"
	factsmem "github.com/papercomputeco/strata/pkg/facts/inmemory"
	graphmem "github.com/papercomputeco/strata/pkg/graph/inmemory"
	"github.com/papercomputeco/strata/pkg/logger"
	searchmem "github.com/papercomputeco/strata/pkg/search/inmemory"
	synthstatic "github.com/papercomputeco/strata/pkg/synth/static"
	"github.com/papercomputeco/strata/pkg/telemetry"
	"github.com/papercomputeco/strata/pkg/tier/active"
	"github.com/papercomputeco/strata/pkg/tier/episodic"
	"github.com/papercomputeco/strata/pkg/tier/semantic"
	"github.com/papercomputeco/strata/pkg/tier/working"
	vecmem "github.com/papercomputeco/strata/pkg/vector/inmemory"
	"github.com/papercomputeco/strata/pkg/workspace"
)

func testMemory(flags facade.Flags) *facade.Memory {
	nop := logger.Nop()
	events := telemetry.NewEmitter(nil, nop)
	invoker := synthstatic.NewInvoker()

	store := cachemem.NewStore()
	graphs := graphmem.NewDriver()

	activeTier := active.New(store, active.Config{}, nop, events)
	workingTier := working.New(factsmem.NewDriver(), nop, events)
	episodicTier := episodic.New(vecmem.NewDriver(), graphs, staticemb.NewEmbedder(0),
		episodic.Config{RetryBackoff: time.Millisecond}, nop, events)
	semanticTier := semantic.New(searchmem.NewDriver(), graphs, invoker, nop, events)
	workspaces := workspace.New(store, workspace.Config{}, nop, events)

	scorer, err := ciar.NewScorer(ciar.DefaultWeights())
	Expect(err).NotTo(HaveOccurred())

	engines := facade.Engines{
		Promotion:     promotion.New(activeTier, workingTier, invoker, scorer, promotion.Config{}, nop, events),
		Consolidation: consolidation.New(workingTier, episodicTier, invoker, consolidation.Config{}, nop, events),
		Distillation:  distillation.New(episodicTier, semanticTier, invoker, distillation.Config{}, nop, events),
	}

	return facade.New(activeTier, workingTier, episodicTier, semanticTier, workspaces, engines, flags, nop)
}

var _ = Describe("Server", func() {
	var server *Server

	allOn := facade.Flags{Promotion: true, Consolidation: true, Distillation: true, Telemetry: true}

	jsonRequest := func(method, path string, body any) *http.Response {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequest(method, path, reader)
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, out any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}

	BeforeEach(func() {
		server = NewServer(Config{ListenAddr: ":0"}, testMemory(allOn), logger.Nop())
	})

	Describe("GET /ping", func() {
		It("responds pong", func() {
			resp := jsonRequest(http.MethodGet, "/ping", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("GET /health", func() {
		It("reports every tier healthy", func() {
			resp := jsonRequest(http.MethodGet, "/health", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Tiers map[string]string `json:"tiers"`
			}
			decode(resp, &body)
			Expect(body.Tiers).To(HaveLen(5))
		})
	})

	Describe("POST /sessions/:id/turns", func() {
		It("stores a turn and reports the window length", func() {
			resp := jsonRequest(http.MethodPost, "/sessions/sess_1/turns", AppendTurnRequest{
				TurnID:  "t1",
				Role:    "user",
				Content: "we decided to use canary releases",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var body AppendTurnResponse
			decode(resp, &body)
			Expect(body.WindowLength).To(Equal(int64(1)))
		})

		It("rejects turns without an ID", func() {
			resp := jsonRequest(http.MethodPost, "/sessions/sess_1/turns", AppendTurnRequest{
				Content: "no id",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /engines/:name/run", func() {
		appendTurns := func(n int) {
			for i := 1; i <= n; i++ {
				resp := jsonRequest(http.MethodPost, "/sessions/sess_1/turns", AppendTurnRequest{
					TurnID:  fmt.Sprintf("t%d", i),
					Role:    "user",
					Content: fmt.Sprintf("we decided on substantial topic number %d", i),
				})
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			}
		}

		It("runs promotion and reports the batch result", func() {
			appendTurns(3)

			resp := jsonRequest(http.MethodPost, "/engines/promotion/run", RunEngineRequest{SessionID: "sess_1"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Processed int `json:"processed"`
				Skipped   int `json:"skipped"`
				Failed    int `json:"failed"`
			}
			decode(resp, &body)
			Expect(body.Processed).To(BeNumerically(">", 0))
		})

		It("rejects unknown engines", func() {
			resp := jsonRequest(http.MethodPost, "/engines/compaction/run", RunEngineRequest{SessionID: "sess_1"})
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("refuses disabled engines", func() {
			server = NewServer(Config{ListenAddr: ":0"}, testMemory(facade.Flags{}), logger.Nop())

			resp := jsonRequest(http.MethodPost, "/engines/promotion/run", RunEngineRequest{SessionID: "sess_1"})
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		})
	})

	Describe("workspace endpoints", func() {
		It("round-trips data through CAS updates", func() {
			resp := jsonRequest(http.MethodPut, "/sessions/sess_1/workspace", UpdateWorkspaceRequest{
				Data:            map[string]any{"plan": "draft"},
				ExpectedVersion: 0,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = jsonRequest(http.MethodGet, "/sessions/sess_1/workspace", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var ws struct {
				Data    map[string]any `json:"data"`
				Version int64          `json:"version"`
			}
			decode(resp, &ws)
			Expect(ws.Version).To(Equal(int64(1)))
			Expect(ws.Data).To(HaveKeyWithValue("plan", "draft"))
		})

		It("returns 409 on a stale version", func() {
			resp := jsonRequest(http.MethodPut, "/sessions/sess_1/workspace", UpdateWorkspaceRequest{
				Data:            map[string]any{"plan": "draft"},
				ExpectedVersion: 0,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = jsonRequest(http.MethodPut, "/sessions/sess_1/workspace", UpdateWorkspaceRequest{
				Data:            map[string]any{"plan": "stale"},
				ExpectedVersion: 0,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("POST /sessions/:id/retrieve", func() {
		It("returns the merged cross-tier view", func() {
			resp := jsonRequest(http.MethodPost, "/sessions/sess_1/turns", AppendTurnRequest{
				TurnID:  "t1",
				Role:    "user",
				Content: "we decided the primary datastore will be postgres",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			resp = jsonRequest(http.MethodPost, "/engines/promotion/run", RunEngineRequest{SessionID: "sess_1"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = jsonRequest(http.MethodPost, "/sessions/sess_1/retrieve", RetrieveRequest{Query: "datastore"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Turns []any `json:"turns"`
				Facts []any `json:"facts"`
			}
			decode(resp, &body)
			Expect(body.Turns).NotTo(BeEmpty())
			Expect(body.Facts).NotTo(BeEmpty())
		})

		It("honors a tier filter", func() {
			resp := jsonRequest(http.MethodPost, "/sessions/sess_1/turns", AppendTurnRequest{
				TurnID:  "t1",
				Role:    "user",
				Content: "we decided the primary datastore will be postgres",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			resp = jsonRequest(http.MethodPost, "/engines/promotion/run", RunEngineRequest{SessionID: "sess_1"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = jsonRequest(http.MethodPost, "/sessions/sess_1/retrieve", RetrieveRequest{
				Query: "datastore",
				Tiers: []string{"working"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Turns []any `json:"turns"`
				Facts []any `json:"facts"`
			}
			decode(resp, &body)
			Expect(body.Turns).To(BeEmpty())
			Expect(body.Facts).NotTo(BeEmpty())
		})

		It("rejects an unknown tier name", func() {
			resp := jsonRequest(http.MethodPost, "/sessions/sess_1/retrieve", RetrieveRequest{
				Query: "anything",
				Tiers: []string{"archive"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /sessions/:id/context", func() {
		It("renders a context block", func() {
			resp := jsonRequest(http.MethodPost, "/sessions/sess_1/turns", AppendTurnRequest{
				TurnID:  "t1",
				Role:    "user",
				Content: "hello there",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			resp = jsonRequest(http.MethodGet, "/sessions/sess_1/context?max_turns=5", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Context string `json:"context"`
			}
			decode(resp, &body)
			Expect(body.Context).To(ContainSubstring("hello there"))
		})
	})
})
