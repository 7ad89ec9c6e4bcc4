package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/clidram/medrag/api/mcp"
	testutils "github.com/clidram/medrag/pkg/utils/test"
	"github.com/clidram/medrag/pkg/vector/inmemory"
)

var _ = Describe("MCP Server", func() {
	var (
		server       *mcp.Server
		vectorDriver *inmemory.Driver
		embedder     *testutils.MockEmbedder
	)

	BeforeEach(func() {
		logger := zap.NewNop()
		vectorDriver = inmemory.NewDriver(logger)
		embedder = testutils.NewMockEmbedder()

		var err error
		server, err = mcp.NewServer(mcp.Config{
			VectorDriver: vectorDriver,
			Embedder:     embedder,
			Logger:       logger,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when vector driver is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Embedder: embedder,
				Logger:   zap.NewNop(),
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("vector driver is required"))
		})

		It("returns an error when embedder is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				VectorDriver: vectorDriver,
				Logger:       zap.NewNop(),
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("embedder is required"))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				VectorDriver: vectorDriver,
				Embedder:     embedder,
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

		It("creates a noop server without dependencies", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop).NotTo(BeNil())
		})
	})
})
