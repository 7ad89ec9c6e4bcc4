package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/vector"
	"github.com/clidram/medrag/pkg/vector/inmemory"
)

var _ = Describe("InMemory Driver", func() {
	var (
		driver *inmemory.Driver
		ctx    context.Context
	)

	chunk := func(kind string, id int64, idx int, text string, emb []float32, meta map[string]any) vector.Chunk {
		return vector.Chunk{
			SourceKind: kind,
			SourceID:   id,
			ChunkIndex: idx,
			Content:    text,
			Metadata:   meta,
			Embedding:  emb,
		}
	}

	BeforeEach(func() {
		driver = inmemory.NewDriver(zap.NewNop())
		ctx = context.Background()
	})

	AfterEach(func() {
		driver.Close()
	})

	Describe("Upsert", func() {
		It("stores new chunks", func() {
			err := driver.Upsert(ctx, []vector.Chunk{
				chunk("appointment", 1, 0, "visit note", []float32{1, 0}, nil),
			})
			Expect(err).NotTo(HaveOccurred())

			stats, err := driver.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(Equal(int64(1)))
		})

		It("replaces chunks with the same key", func() {
			key := chunk("appointment", 1, 0, "old", []float32{1, 0}, nil)
			Expect(driver.Upsert(ctx, []vector.Chunk{key})).To(Succeed())

			key.Content = "new"
			Expect(driver.Upsert(ctx, []vector.Chunk{key})).To(Succeed())

			stats, _ := driver.Stats(ctx)
			Expect(stats.Total).To(Equal(int64(1)))

			results, err := driver.Search(ctx, []float32{1, 0}, 1, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Content).To(Equal("new"))
		})
	})

	Describe("Search", func() {
		BeforeEach(func() {
			Expect(driver.Upsert(ctx, []vector.Chunk{
				chunk("appointment", 1, 0, "fever and cough", []float32{1, 0}, map[string]any{"patient_seq": "P1", "patient_name": "Ana Cole"}),
				chunk("appointment", 2, 0, "knee pain", []float32{0, 1}, map[string]any{"patient_seq": "P2", "patient_name": "Ben Ford"}),
				chunk("prescription", 3, 0, "paracetamol", []float32{0.9, 0.1}, map[string]any{"patient_seq": "P1", "patient_name": "Ana Cole"}),
			})).To(Succeed())
		})

		It("ranks by cosine similarity", func() {
			results, err := driver.Search(ctx, []float32{1, 0}, 3, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].SourceID).To(Equal(int64(1)))
			Expect(results[0].Similarity).To(BeNumerically(">", results[1].Similarity))
		})

		It("applies conjunctive filters", func() {
			results, err := driver.Search(ctx, []float32{1, 0}, 10, vector.Filters{"patient_seq": "P1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, r := range results {
				Expect(r.Metadata["patient_seq"]).To(Equal("P1"))
			}
		})

		It("matches patient_name fuzzily", func() {
			results, err := driver.Search(ctx, []float32{1, 0}, 10, vector.Filters{"patient_name": "cole"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("truncates to topK", func() {
			results, err := driver.Search(ctx, []float32{1, 0}, 1, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})
	})

	Describe("FetchRecent", func() {
		It("returns chunks without embeddings, newest first", func() {
			Expect(driver.Upsert(ctx, []vector.Chunk{
				chunk("appointment", 1, 0, "first", []float32{1, 0}, map[string]any{"patient_seq": "P1"}),
			})).To(Succeed())
			Expect(driver.Upsert(ctx, []vector.Chunk{
				chunk("appointment", 2, 0, "second", []float32{0, 1}, map[string]any{"patient_seq": "P1"}),
			})).To(Succeed())

			chunks, err := driver.FetchRecent(ctx, vector.Filters{"patient_seq": "P1"}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(HaveLen(2))
			Expect(chunks[0].Embedding).To(BeNil())
		})
	})

	Describe("TrimChunks", func() {
		It("removes stale chunk tails", func() {
			Expect(driver.Upsert(ctx, []vector.Chunk{
				chunk("prescription", 5, 0, "a", []float32{1, 0}, nil),
				chunk("prescription", 5, 1, "b", []float32{1, 0}, nil),
				chunk("prescription", 5, 2, "c", []float32{1, 0}, nil),
			})).To(Succeed())

			Expect(driver.TrimChunks(ctx, "prescription", 5, 1)).To(Succeed())

			stats, _ := driver.Stats(ctx)
			Expect(stats.Total).To(Equal(int64(1)))
		})
	})

	Describe("DeleteSource", func() {
		It("removes all chunks of a record and reports the count", func() {
			Expect(driver.Upsert(ctx, []vector.Chunk{
				chunk("disease", 7, 0, "a", []float32{1, 0}, nil),
				chunk("disease", 7, 1, "b", []float32{1, 0}, nil),
				chunk("disease", 8, 0, "c", []float32{1, 0}, nil),
			})).To(Succeed())

			removed, err := driver.DeleteSource(ctx, "disease", 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(2)))

			stats, _ := driver.Stats(ctx)
			Expect(stats.ByKind["disease"]).To(Equal(int64(1)))
		})
	})
})
