// Package batch implements the batch processor core: a thin wrapper around
// github.com/joeycumines/go-microbatch's generic Batcher, configured with
// the size/time flush trigger spec.md §4.2 describes, plus the six-step
// per-batch pipeline (mark, call, parse, score, persist, publish) that runs
// against the pending registry and the cache store.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-microbatch"
	"github.com/joeycumines/logiface"

	"github.com/genomeannotate/varbatch/internal/cache"
	"github.com/genomeannotate/varbatch/internal/model"
	"github.com/genomeannotate/varbatch/internal/registry"
	"github.com/genomeannotate/varbatch/internal/scorer"
	"github.com/genomeannotate/varbatch/internal/variantkey"
	"github.com/genomeannotate/varbatch/internal/vep"
)

// Failure reason codes, matching spec.md §7's error taxonomy for the subset
// that can originate inside the batch pipeline (invalid_input and
// unavailable are raised by the submission façade, not here).
const (
	ReasonTransientUpstream    = `transient_upstream`
	ReasonNoAnnotationReturned = vep.ReasonNoAnnotationReturned
	ReasonPersistError         = `persist_error`
)

// Config configures the underlying Batcher and the per-batch pipeline's
// timeout/retry behavior. Field names mirror the ANNOTATOR_* environment
// variables that populate them, except SweepInterval, which has no variable
// of its own (cmd/varbatchd sets it to half of TerminalRetention).
type Config struct {
	MaxBatchSize      int
	MaxWaitTime       time.Duration
	MaxWorkers        int
	MaxRetries        int
	VEPTimeout        time.Duration
	TerminalRetention time.Duration
	SweepInterval     time.Duration

	// MLModelPath mirrors ANNOTATOR_ML_MODEL_PATH. Empty means the scorer is
	// unavailable: spec.md §4.6 attaches a null score and continues rather
	// than treating this as a pipeline failure.
	MLModelPath string
}

// Processor owns the microbatch.Batcher and the collaborators its
// BatchProcessor callback drives: the pending registry, the cache store,
// and the VEP client.
type Processor struct {
	batcher      *microbatch.Batcher[string]
	registry     *registry.Registry
	store        *cache.Store
	vepClient    *vep.Client
	maxRetries   int
	vepTimeout   time.Duration
	scoringReady bool
	logger       *logiface.Logger[logiface.Event]

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// NewProcessor wires a Processor and starts its batcher goroutine and
// registry sweeper. Callers must call Shutdown to drain in-flight batches
// and stop the sweeper.
func NewProcessor(cfg Config, reg *registry.Registry, store *cache.Store, vepClient *vep.Client, logger *logiface.Logger[logiface.Event]) *Processor {
	p := &Processor{
		registry:     reg,
		store:        store,
		vepClient:    vepClient,
		maxRetries:   cfg.MaxRetries,
		vepTimeout:   cfg.VEPTimeout,
		scoringReady: cfg.MLModelPath != ``,
		logger:       logger,
	}

	p.batcher = microbatch.NewBatcher[string](&microbatch.BatcherConfig{
		MaxSize:        cfg.MaxBatchSize,
		FlushInterval:  cfg.MaxWaitTime,
		MaxConcurrency: cfg.MaxWorkers,
	}, p.process)

	sweepCtx, cancel := context.WithCancel(context.Background())
	p.sweepCancel = cancel
	p.sweepDone = make(chan struct{})
	go func() {
		defer close(p.sweepDone)
		reg.RunSweeper(sweepCtx, cfg.TerminalRetention, cfg.SweepInterval)
	}()

	return p
}

// Submit enqueues key for annotation, returning a JobResult the caller may
// optionally Wait on. The submission façade does not wait on it: callers
// observe completion via the pending registry / poll endpoint instead, so
// that one slow batch never blocks the HTTP request that queued it.
func (p *Processor) Submit(ctx context.Context, key string) (*microbatch.JobResult[string], error) {
	return p.batcher.Submit(ctx, key)
}

// Shutdown stops accepting new submissions, drains and runs the final
// partial batch, then stops the registry sweeper.
func (p *Processor) Shutdown(ctx context.Context) error {
	err := p.batcher.Shutdown(ctx)
	p.sweepCancel()
	<-p.sweepDone
	return err
}

// process is the microbatch.BatchProcessor callback: the six-step pipeline
// spec.md §4.2 describes, run once per flushed batch of variant keys.
func (p *Processor) process(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	// step 1: mark queued -> processing, recording this attempt.
	attempts := make(map[string]int, len(keys))
	for _, key := range keys {
		entry, err := p.registry.Transition(key, registry.StateProcessing, 1, ``, ``)
		if err != nil {
			// entry vanished (e.g. swept already) — nothing further to publish.
			continue
		}
		attempts[key] = entry.Attempts
	}

	// step 2: call the external service for the whole batch.
	descriptors := make([]vep.Descriptor, 0, len(keys))
	for _, key := range keys {
		v, err := variantkey.Parse(key)
		if err != nil {
			p.fail(key, attempts[key], ReasonTransientUpstream, fmt.Sprintf(`unparseable variant key: %v`, err))
			continue
		}
		descriptors = append(descriptors, vep.Descriptor{VariantKey: key, Chrom: v.Chrom, Pos: v.Pos, Ref: v.Ref, Alt: v.Alt})
	}

	results, err := p.vepClient.Call(ctx, descriptors, p.vepTimeout)
	if err != nil {
		if p.logger != nil {
			p.logger.Warning().Err(err).Int(`batch_size`, len(keys)).Log(`vep call failed`)
		}
		for _, key := range keys {
			p.retryOrFail(key, attempts[key], ReasonTransientUpstream, err.Error())
		}
		return err
	}

	// step 3: parse.
	requested := make([]string, len(descriptors))
	for i, d := range descriptors {
		requested[i] = d.VariantKey
	}
	parsed, failures := vep.ParseBatch(requested, results)

	for _, f := range failures {
		// no_annotation_returned is not retriable: the upstream service
		// answered, it simply has nothing to report for this variant.
		p.fail(f.VariantKey, attempts[f.VariantKey], f.Reason, f.Reason)
	}

	if len(parsed) == 0 {
		return nil
	}

	// step 4: score.
	annotations := make([]model.Annotation, 0, len(parsed))
	for _, ann := range parsed {
		ann.Record.MLPathogenicityScore = p.scoreAnnotation(ann)
		annotations = append(annotations, ann)
	}

	// step 5: persist.
	if err := p.store.WriteBatch(ctx, annotations); err != nil {
		if p.logger != nil {
			p.logger.Warning().Err(err).Int(`batch_size`, len(annotations)).Log(`persist failed`)
		}
		for key := range parsed {
			p.retryOrFail(key, attempts[key], ReasonPersistError, err.Error())
		}
		return err
	}

	// step 6: publish completion.
	for key := range parsed {
		p.complete(key)
	}

	return nil
}

// scoreAnnotation derives the fixed-feature vector from the annotation's
// canonical transcript and the variant-level record, per spec.md §4.6. It
// returns a nil score when no scorer is configured (ANNOTATOR_ML_MODEL_PATH
// unset): the scorer is unavailable, so the record gets a null score rather
// than a fabricated one.
func (p *Processor) scoreAnnotation(ann model.Annotation) *float64 {
	if !p.scoringReady {
		return nil
	}

	t := ann.CanonicalTranscript()
	f := scorer.Features{
		Consequence:           ann.Record.MostSevereConsequence,
		GnomADAlleleFrequency: ann.Record.AlleleFrequency,
		GnomADMaxAlleleFreq:   ann.Record.MaxPopAlleleFrequency,
		CADD:                  ann.Record.CADDScore,
	}
	if t != nil {
		f.Impact = t.Impact
		f.PolyPhen = t.PolyPhen
		f.SpliceAI = t.SpliceAIDelta
		f.GERP = t.GERP
		f.LOFTEE = t.LOFTEE
	}

	score := scorer.Score(f)
	return &score
}

// retryOrFail transitions key to retry_available if attempts hasn't
// exhausted maxRetries, otherwise to failed.
func (p *Processor) retryOrFail(key string, attempts int, reason, detail string) {
	if attempts < p.maxRetries {
		if _, err := p.registry.Transition(key, registry.StateRetryAvailable, 0, ``, reason); err != nil {
			return
		}
		if p.logger != nil {
			p.logger.Info().Str(`variant_key`, key).Str(`reason`, reason).Log(`retry available`)
		}
		return
	}
	p.fail(key, attempts, reason, detail)
}

// fail transitions key directly to the terminal failed state.
func (p *Processor) fail(key string, _ int, reason, detail string) {
	if _, err := p.registry.Transition(key, registry.StateFailed, 0, ``, reason); err != nil {
		return
	}
	if p.logger != nil {
		p.logger.Warning().Str(`variant_key`, key).Str(`reason`, reason).Log(`annotation failed: ` + detail)
	}
}

// complete transitions key to completed, attaching a freshly minted opaque
// result reference (spec.md §6's result_ref).
func (p *Processor) complete(key string) {
	if _, err := p.registry.Transition(key, registry.StateCompleted, 0, uuid.NewString(), ``); err != nil {
		return
	}
	if p.logger != nil {
		p.logger.Info().Str(`variant_key`, key).Log(`annotation completed`)
	}
}
