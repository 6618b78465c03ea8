package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/pkg/engine"
	"github.com/reveriehq/reverie/pkg/store/inmemory"
	"github.com/reveriehq/reverie/pkg/summarizer"
	testutils "github.com/reveriehq/reverie/pkg/utils/test"
	"github.com/reveriehq/reverie/pkg/worker"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Suite")
}

const testDeltaJSON = `{
	"events": [{"id": "evt-1", "title": "相遇", "summary": "初见 (#0-3)", "type": "相遇", "weight": "核心"}],
	"factUpdates": [{"s": "Alice", "p": "position", "o": "tavern"}],
	"arcUpdates": [],
	"newCharacters": ["Alice"],
	"keywords": ["酒馆"]
}`

func jsonRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

var _ = Describe("Server", func() {
	var (
		server *Server
		eng    *engine.MemoryEngine
	)

	BeforeEach(func() {
		var err error
		eng, err = engine.New(engine.Config{
			Store:    inmemory.NewDriver(),
			Vectors:  testutils.NewMockVectorDriver(),
			Embedder: testutils.NewMockEmbedder(),
			Call: func(_ context.Context, _ string) (string, error) {
				return testDeltaJSON, nil
			},
			Summarizer: summarizer.Config{RetryDelay: time.Millisecond},
			Worker:     worker.Config{NumWorkers: 1, RetryBackoff: time.Millisecond},
			Logger:     zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		server, err = NewServer(Config{ListenAddr: ":0"}, eng, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		eng.Close()
	})

	Describe("NewServer", func() {
		It("requires an engine", func() {
			_, err := NewServer(Config{}, nil, zap.NewNop())
			Expect(err).To(HaveOccurred())
		})

		It("requires a logger", func() {
			_, err := NewServer(Config{}, eng, nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(ContainSubstring("pong"))
		})
	})

	Describe("POST /v1/chats/:chat_id/messages", func() {
		It("accepts a floor for ingestion", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/messages", IngestRequest{
				Floor:   0,
				Speaker: "Alice",
				IsUser:  true,
				Text:    "你好。很高兴见到你。",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		})

		It("rejects an empty text", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/messages", IngestRequest{
				Floor: 0,
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/chats/chat-1/messages", bytes.NewBufferString("{not json"))
			req.Header.Set("Content-Type", "application/json")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /v1/chats/:chat_id/lifecycle", func() {
		It("applies a message-sent event", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/lifecycle", LifecycleRequest{
				Kind:  "message-sent",
				Floor: 3,
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})

		It("rejects an unknown kind", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/lifecycle", LifecycleRequest{
				Kind:  "message-exploded",
				Floor: 3,
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a missing kind", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/lifecycle", LifecycleRequest{
				Floor: 3,
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /v1/chats/:chat_id/summarize", func() {
		It("reports a no-op when nothing is pending", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/summarize", SummarizeRequest{
				TargetFloor: 0,
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out SummarizeResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.NoOp).To(BeTrue())
		})

		It("commits a summary over ingested floors", func() {
			for floor := 0; floor <= 3; floor++ {
				resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/messages", IngestRequest{
					Floor:   floor,
					Speaker: "Alice",
					IsUser:  floor%2 == 0,
					Text:    "我们去酒馆吧。",
				}))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			}

			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/summarize", SummarizeRequest{
				TargetFloor: 3,
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out SummarizeResponse
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out.NoOp).To(BeFalse())
			Expect(out.NewEvents).To(Equal(1))
			Expect(out.FactUpdates).To(Equal(1))
		})
	})

	Describe("POST /v1/chats/:chat_id/recall", func() {
		It("rejects an empty query", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/recall", QueryRequest{}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("returns a recall result for an empty chat", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/recall", QueryRequest{
				Query: "酒馆",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /v1/chats/:chat_id/memory", func() {
		It("assembles a memory block", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/memory", QueryRequest{
				Query: "酒馆",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out).To(HaveKey("text"))
			Expect(out).To(HaveKey("depth"))
		})

		It("rejects an empty query", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/memory", QueryRequest{}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /v1/chats/:chat_id/status", func() {
		It("returns the chat status", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/v1/chats/chat-1/status", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out["chat_id"]).To(Equal("chat-1"))
			Expect(out["mode"]).To(Equal("vector"))
		})
	})

	Describe("archive round-trip", func() {
		It("exports and re-imports a chat", func() {
			resp, err := server.app.Test(jsonRequest(http.MethodPost, "/v1/chats/chat-1/messages", IngestRequest{
				Floor:   0,
				Speaker: "Alice",
				Text:    "你好。",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			resp, err = server.app.Test(httptest.NewRequest(http.MethodGet, "/v1/chats/chat-1/archive", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/gzip"))

			archive, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(archive).NotTo(BeEmpty())

			req := httptest.NewRequest(http.MethodPut, "/v1/chats/chat-2/archive", bytes.NewReader(archive))
			resp, err = server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp, err = server.app.Test(httptest.NewRequest(http.MethodGet, "/v1/chats/chat-2/status", nil))
			Expect(err).NotTo(HaveOccurred())

			var out map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
			Expect(out["chunks"]).To(BeNumerically("==", 1))
		})

		It("rejects an empty import body", func() {
			req := httptest.NewRequest(http.MethodPut, "/v1/chats/chat-1/archive", nil)
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
