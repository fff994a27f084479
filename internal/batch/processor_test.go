package batch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/genomeannotate/varbatch/internal/batch"
	"github.com/genomeannotate/varbatch/internal/cache"
	"github.com/genomeannotate/varbatch/internal/logging"
	"github.com/genomeannotate/varbatch/internal/registry"
	"github.com/genomeannotate/varbatch/internal/vep"
)

func testConfig() batch.Config {
	return batch.Config{
		MaxBatchSize:      1,
		MaxWaitTime:       20 * time.Millisecond,
		MaxWorkers:        2,
		MaxRetries:        2,
		VEPTimeout:        time.Second,
		TerminalRetention: time.Minute,
		SweepInterval:     time.Minute,
	}
}

func waitForState(t *testing.T, reg *registry.Registry, key string, want registry.State, timeout time.Duration) registry.Entry {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		entry, err := reg.Get(key)
		require.NoError(t, err)
		if entry.State == want {
			return entry
		}
		if time.Now().After(deadline) {
			t.Fatalf(`timed out waiting for %s to reach state %s, last seen %s`, key, want, entry.State)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestProcessorHappyPath(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var descriptors []vep.Descriptor
		require.NoError(t, json.NewDecoder(r.Body).Decode(&descriptors))
		require.Len(t, descriptors, 1)

		w.Header().Set(`Content-Type`, `application/json`)
		require.NoError(t, json.NewEncoder(w).Encode([]vep.RawResult{
			{
				VariantKey:            descriptors[0].VariantKey,
				MostSevereConsequence: `missense_variant`,
				TranscriptConsequences: []vep.RawTranscript{
					{TranscriptID: `ENST1`, Impact: `MODERATE`, ConsequenceTerms: []string{`missense_variant`}},
				},
			},
		}))
	}))
	defer server.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM transcript_annotations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO variant_annotations`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO transcript_annotations`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	reg := registry.New()
	store := &cache.Store{DB: db, Logger: logging.NewDefault()}
	vepClient := vep.NewClient(server.URL, server.Client())
	vepClient.Limiter = nil

	proc := batch.NewProcessor(testConfig(), reg, store, vepClient, logging.NewDefault())
	defer proc.Shutdown(context.Background())

	const key = `1:12345:A>G`
	_, err = reg.InsertIfAbsent(key)
	require.NoError(t, err)

	_, err = proc.Submit(context.Background(), key)
	require.NoError(t, err)

	entry := waitForState(t, reg, key, registry.StateCompleted, time.Second)
	require.NotEmpty(t, entry.ResultRef)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestProcessorScoringDisabledByDefaultNullsScore mirrors spec.md §4.6 and
// §7/§9: with no ANNOTATOR_ML_MODEL_PATH configured, the scorer is
// unavailable, so the persisted record gets a null ml_pathogenicity_score
// rather than a fabricated one.
func TestProcessorScoringDisabledByDefaultNullsScore(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var descriptors []vep.Descriptor
		require.NoError(t, json.NewDecoder(r.Body).Decode(&descriptors))

		w.Header().Set(`Content-Type`, `application/json`)
		require.NoError(t, json.NewEncoder(w).Encode([]vep.RawResult{
			{
				VariantKey:            descriptors[0].VariantKey,
				MostSevereConsequence: `missense_variant`,
				TranscriptConsequences: []vep.RawTranscript{
					{TranscriptID: `ENST1`, Impact: `MODERATE`, ConsequenceTerms: []string{`missense_variant`}},
				},
			},
		}))
	}))
	defer server.Close()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM transcript_annotations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO variant_annotations`).
		WithArgs(`1:12345:A>G`, nil, nil, nil, `missense_variant`, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO transcript_annotations`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	reg := registry.New()
	store := &cache.Store{DB: db, Logger: logging.NewDefault()}
	vepClient := vep.NewClient(server.URL, server.Client())
	vepClient.Limiter = nil

	cfg := testConfig()
	require.Empty(t, cfg.MLModelPath, `default config must leave scoring disabled`)

	proc := batch.NewProcessor(cfg, reg, store, vepClient, logging.NewDefault())
	defer proc.Shutdown(context.Background())

	const key = `1:12345:A>G`
	_, err = reg.InsertIfAbsent(key)
	require.NoError(t, err)

	_, err = proc.Submit(context.Background(), key)
	require.NoError(t, err)

	waitForState(t, reg, key, registry.StateCompleted, time.Second)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestProcessorTransientFailureRetriesThenFails mirrors spec.md §8 scenario
// 3's worked example with the default max_retries=3: the first two transient
// failures land in retry_available, and only the third (attempts==max_retries)
// becomes terminal.
func TestProcessorTransientFailureRetriesThenFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reg := registry.New()
	store := &cache.Store{DB: nil, Logger: logging.NewDefault()}
	vepClient := vep.NewClient(server.URL, server.Client())
	vepClient.Limiter = nil

	cfg := testConfig()
	cfg.MaxRetries = 3

	proc := batch.NewProcessor(cfg, reg, store, vepClient, logging.NewDefault())
	defer proc.Shutdown(context.Background())

	const key = `1:1:A>G`
	_, err := reg.InsertIfAbsent(key)
	require.NoError(t, err)

	for attempt := 1; attempt < cfg.MaxRetries; attempt++ {
		_, err = proc.Submit(context.Background(), key)
		require.NoError(t, err)
		entry := waitForState(t, reg, key, registry.StateRetryAvailable, time.Second)
		require.Equal(t, attempt, entry.Attempts)
	}

	// the third attempt reaches attempts == max_retries and becomes terminal.
	_, err = proc.Submit(context.Background(), key)
	require.NoError(t, err)
	entry := waitForState(t, reg, key, registry.StateFailed, time.Second)
	require.Equal(t, batch.ReasonTransientUpstream, entry.FailureReason)
	require.Equal(t, cfg.MaxRetries, entry.Attempts)
}

func TestProcessorNoAnnotationReturnedFailsImmediately(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(`Content-Type`, `application/json`)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	reg := registry.New()
	store := &cache.Store{DB: nil, Logger: logging.NewDefault()}
	vepClient := vep.NewClient(server.URL, server.Client())
	vepClient.Limiter = nil

	proc := batch.NewProcessor(testConfig(), reg, store, vepClient, logging.NewDefault())
	defer proc.Shutdown(context.Background())

	const key = `1:1:A>G`
	_, err := reg.InsertIfAbsent(key)
	require.NoError(t, err)

	_, err = proc.Submit(context.Background(), key)
	require.NoError(t, err)

	entry := waitForState(t, reg, key, registry.StateFailed, time.Second)
	require.Equal(t, batch.ReasonNoAnnotationReturned, entry.FailureReason)
}
