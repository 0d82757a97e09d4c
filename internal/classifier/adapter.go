package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// Result is the classification outcome the moderation service consumes.
// Skipped marks a degraded result produced when the scoring API failed:
// score 0 and no labels, the most permissive disposition.
type Result struct {
	Score   float64
	Labels  map[string]float64
	Skipped bool
}

// SkippedResult is the degraded outcome used whenever scoring is
// unavailable. Classification failures never propagate past this package.
func SkippedResult() Result {
	return Result{Labels: map[string]float64{}, Skipped: true}
}

// Scorer is the external scoring call, implemented by Client.
type Scorer interface {
	Score(ctx context.Context, inputs []string) ([]ScoreResult, error)
}

type cacheKey struct {
	commentID   string
	contentHash [32]byte
}

type request struct {
	content string
	resp    chan Result
}

// Adapter batches classification requests across callers: concurrent
// requests queue up, a window timer (or a full batch) flushes them as one
// scoring call, and identical strings within a flush are deduplicated.
// Results are cached per (comment, content revision), so an edit invalidates
// exactly the entry it changes.
type Adapter struct {
	scorer    Scorer
	cache     *expirable.LRU[cacheKey, Result]
	requests  chan request
	batchSize int
	window    time.Duration
	logger    *zap.Logger
}

func NewAdapter(scorer Scorer, batchSize int, window time.Duration, cacheSize int, cacheTTL time.Duration, logger *zap.Logger) *Adapter {
	return &Adapter{
		scorer:    scorer,
		cache:     expirable.NewLRU[cacheKey, Result](cacheSize, nil, cacheTTL),
		requests:  make(chan request),
		batchSize: batchSize,
		window:    window,
		logger:    logger,
	}
}

// Classify scores one comment's content, going through the batcher unless a
// cached result for this exact content exists. It never returns an error;
// every failure degrades to SkippedResult.
func (a *Adapter) Classify(ctx context.Context, commentID, content string) Result {
	key := cacheKey{commentID: commentID, contentHash: sha3.Sum256([]byte(content))}
	if cached, ok := a.cache.Get(key); ok {
		return cached
	}

	req := request{content: content, resp: make(chan Result, 1)}
	select {
	case a.requests <- req:
	case <-ctx.Done():
		return SkippedResult()
	}

	select {
	case res := <-req.resp:
		if !res.Skipped {
			a.cache.Add(key, res)
		}
		return res
	case <-ctx.Done():
		return SkippedResult()
	}
}

// Run is the batching loop. It exits when ctx is cancelled, resolving any
// collected requests as skipped.
func (a *Adapter) Run(ctx context.Context) {
	a.logger.Info("Classifier adapter started.")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Classifier adapter stopped.")
			return
		case first := <-a.requests:
			batch := a.collect(ctx, first)
			a.flush(ctx, batch)
		}
	}
}

func (a *Adapter) collect(ctx context.Context, first request) []request {
	batch := []request{first}
	timer := time.NewTimer(a.window)
	defer timer.Stop()

	for len(batch) < a.batchSize {
		select {
		case <-ctx.Done():
			return batch
		case r := <-a.requests:
			batch = append(batch, r)
		case <-timer.C:
			return batch
		}
	}
	return batch
}

func (a *Adapter) flush(ctx context.Context, batch []request) {
	// Identical strings only go to the API once.
	waiters := make(map[string][]chan Result, len(batch))
	inputs := make([]string, 0, len(batch))
	for _, r := range batch {
		if _, seen := waiters[r.content]; !seen {
			inputs = append(inputs, r.content)
		}
		waiters[r.content] = append(waiters[r.content], r.resp)
	}

	results, err := a.scorer.Score(ctx, inputs)
	if err == nil && len(results) != len(inputs) {
		err = fmt.Errorf("scorer returned %d results for %d inputs", len(results), len(inputs))
	}
	if err != nil {
		a.logger.Warn("Classifier batch failed, degrading to skipped results",
			zap.Int("batch_size", len(inputs)), zap.Error(err))
		for _, chans := range waiters {
			for _, ch := range chans {
				ch <- SkippedResult()
			}
		}
		return
	}

	for i, input := range inputs {
		res := toResult(results[i])
		for _, ch := range waiters[input] {
			ch <- res
		}
	}
}

func toResult(sr ScoreResult) Result {
	labels := sr.CategoryScores
	if labels == nil {
		labels = map[string]float64{}
	}
	var score float64
	for _, v := range labels {
		if v > score {
			score = v
		}
	}
	return Result{Score: score, Labels: labels}
}
