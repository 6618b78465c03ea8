package mcp_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/reveriehq/reverie/api/mcp"
	"github.com/reveriehq/reverie/pkg/engine"
	"github.com/reveriehq/reverie/pkg/store/inmemory"
	testutils "github.com/reveriehq/reverie/pkg/utils/test"
)

func TestMCP(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "MCP Suite")
}

var _ = Describe("MCP Server", func() {
	var (
		server *mcp.Server
		eng    *engine.MemoryEngine
	)

	BeforeEach(func() {
		var err error
		eng, err = engine.New(engine.Config{
			Store:    inmemory.NewDriver(),
			Vectors:  testutils.NewMockVectorDriver(),
			Embedder: testutils.NewMockEmbedder(),
			Logger:   zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		server, err = mcp.NewServer(mcp.Config{
			Engine: eng,
			Logger: zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		eng.Close()
	})

	Describe("NewServer", func() {
		It("returns an error when the engine is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Logger: zap.NewNop(),
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("memory engine is required"))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Engine: eng,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger is required"))
		})

		It("creates a server with valid config", func() {
			Expect(server).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			handler := server.Handler()
			Expect(handler).NotTo(BeNil())
		})

		It("creates an empty server when noop is set", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop).NotTo(BeNil())
		})
	})
})
