// Package submission implements the submission façade: the single entry
// point spec.md §4.1 describes for turning a (chrom, pos, ref, alt) tuple
// into either an immediate cache hit, an already_pending observation, or a
// newly queued batch job.
package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/joeycumines/logiface"

	"github.com/genomeannotate/varbatch/internal/batch"
	"github.com/genomeannotate/varbatch/internal/cache"
	"github.com/genomeannotate/varbatch/internal/model"
	"github.com/genomeannotate/varbatch/internal/registry"
	"github.com/genomeannotate/varbatch/internal/variantkey"
)

// Outcome classifies how Submit resolved a request.
type Outcome string

const (
	// OutcomeCached means a variant-level annotation already exists; no
	// batch job was queued.
	OutcomeCached Outcome = `cached`
	// OutcomeAlreadyPending means the variant is already queued or being
	// processed by an earlier submission.
	OutcomeAlreadyPending Outcome = `already_pending`
	// OutcomeAccepted means a new batch job was queued for this variant.
	OutcomeAccepted Outcome = `accepted`
)

// ErrInvalidInput wraps a variantkey normalization failure.
var ErrInvalidInput = errors.New(`submission: invalid input`)

// ErrServiceUnavailable wraps a failure reaching the cache store or the
// batch processor: the caller should report this as a transient 503, not a
// client error.
var ErrServiceUnavailable = errors.New(`submission: service unavailable`)

// Result is Submit's successful return value.
type Result struct {
	Outcome    Outcome
	VariantKey string
	// Annotation is populated only when Outcome == OutcomeCached.
	Annotation *model.Annotation
	// State is populated only when Outcome == OutcomeAlreadyPending.
	State registry.State
}

// Facade wires the cache store, pending registry, and batch processor into
// a single Submit/Poll surface. The REST binding calls Submit; its poll
// handler reads the pending registry directly rather than calling Poll.
type Facade struct {
	Store     *cache.Store
	Registry  *registry.Registry
	Processor *batch.Processor
	Logger    *logiface.Logger[logiface.Event]
}

// New constructs a Facade from its collaborators.
func New(store *cache.Store, reg *registry.Registry, processor *batch.Processor, logger *logiface.Logger[logiface.Event]) *Facade {
	return &Facade{Store: store, Registry: reg, Processor: processor, Logger: logger}
}

// Submit normalizes v, then resolves it per spec.md §4.1: a cache hit
// returns immediately with no queueing; a variant already queued or
// processing returns already_pending; otherwise a new pending entry is
// inserted and the variant is enqueued on the batch processor. No partial
// registry state is left behind on any error path.
func (f *Facade) Submit(ctx context.Context, v variantkey.Variant) (Result, error) {
	key, err := variantkey.Normalize(v)
	if err != nil {
		return Result{}, fmt.Errorf(`%w: %v`, ErrInvalidInput, err)
	}

	ann, err := f.Store.GetAnnotation(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf(`%w: %v`, ErrServiceUnavailable, err)
	}
	if ann != nil {
		return Result{Outcome: OutcomeCached, VariantKey: key, Annotation: ann}, nil
	}

	if entry, err := f.Registry.Get(key); err == nil {
		switch entry.State {
		case registry.StateQueued, registry.StateProcessing:
			return Result{Outcome: OutcomeAlreadyPending, VariantKey: key, State: entry.State}, nil
		default:
			// a terminal or retry_available entry from a previous attempt:
			// restart the lifecycle at queued, but carry the attempt count
			// forward so max_retries is enforced across the resubmission.
			f.Registry.Requeue(key, entry.Attempts, entry.FirstEnqueuedAt)
		}
	} else if _, err := f.Registry.InsertIfAbsent(key); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			// lost a race with a concurrent submission for the same key.
			entry, getErr := f.Registry.Get(key)
			if getErr == nil {
				return Result{Outcome: OutcomeAlreadyPending, VariantKey: key, State: entry.State}, nil
			}
		}
		return Result{}, fmt.Errorf(`%w: %v`, ErrServiceUnavailable, err)
	}

	if _, err := f.Processor.Submit(ctx, key); err != nil {
		f.Registry.Remove(key)
		return Result{}, fmt.Errorf(`%w: %v`, ErrServiceUnavailable, err)
	}

	if f.Logger != nil {
		f.Logger.Info().Str(`variant_key`, key).Log(`accepted submission`)
	}

	return Result{Outcome: OutcomeAccepted, VariantKey: key}, nil
}

// Poll returns the current pending-registry entry for key, or
// registry.ErrNotFound if none exists (the variant was never submitted, or
// its terminal entry has already been swept).
func (f *Facade) Poll(key string) (registry.Entry, error) {
	return f.Registry.Get(key)
}
