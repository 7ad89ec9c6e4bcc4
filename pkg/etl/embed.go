package etl

import (
	"context"
	"sync"
)

// embedJob is one sub-batch of texts with its position in the output.
type embedJob struct {
	index int
	start int
	end   int
}

// embedAll embeds texts in sub-batches fanned out over a bounded worker
// pool. Results are reassembled in input order. The first error cancels the
// remaining work.
func (p *Pipeline) embedAll(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	numBatches := (len(texts) + batchSize - 1) / batchSize
	batches := make([][][]float32, numBatches)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan embedJob, numBatches)
	for i := 0; i < numBatches; i++ {
		start := i * batchSize
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		jobs <- embedJob{index: i, start: start, end: end}
	}
	close(jobs)

	workers := p.config.Workers
	if workers > numBatches {
		workers = numBatches
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					return
				}
				vectors, err := p.config.Embedder.EmbedBatch(ctx, texts[job.start:job.end])
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
					return
				}
				batches[job.index] = vectors
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range batches {
		out = append(out, batch...)
	}
	return out, nil
}
