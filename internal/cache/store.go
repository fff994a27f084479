// Package cache implements the relational annotation cache store: the two
// tables described in spec.md §4.5/§3 and the get/write-batch/statistics
// operations the batch processor and submission façade use against them.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joeycumines/logiface"

	"github.com/genomeannotate/varbatch/internal/model"
)

// Store wraps a *sql.DB with the cache's get/write-batch/statistics
// operations. Exported as a struct (not an interface) since there's
// exactly one implementation and the pack's equivalent (sql/export's
// WriterImpl/ReaderImpl) reserves interfaces for genuinely swappable
// reader/writer pairs, which this isn't.
type Store struct {
	DB     *sql.DB
	Logger *logiface.Logger[logiface.Event]
}

// Open opens a MySQL connection pool using dataSourceName (the
// go-sql-driver/mysql DSN form, e.g. "user:pass@tcp(host:port)/dbname").
func Open(dataSourceName string, logger *logiface.Logger[logiface.Event]) (*Store, error) {
	db, err := sql.Open(`mysql`, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf(`cache: open: %w`, err)
	}
	return &Store{DB: db, Logger: logger}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Ping confirms the database is reachable, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// GetAnnotation returns the variant-level record and its transcript rows
// for key, or (nil, nil) if no variant-level row exists yet — a cache miss
// is not an error.
func (s *Store) GetAnnotation(ctx context.Context, key string) (*model.Annotation, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT gene, cadd_score, ml_pathogenicity_score, most_severe_consequence,
		       allele_frequency, max_pop_allele_frequency, omim_id, clinical_significance
		FROM variant_annotations
		WHERE variant_key = ?`, key)

	var rec model.AnnotationRecord
	rec.VariantKey = key
	if err := row.Scan(&rec.Gene, &rec.CADDScore, &rec.MLPathogenicityScore, &rec.MostSevereConsequence,
		&rec.AlleleFrequency, &rec.MaxPopAlleleFrequency, &rec.OMIMID, &rec.ClinicalSignificance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf(`cache: get annotation: %w`, err)
	}

	transcripts, err := s.getTranscripts(ctx, s.DB, key)
	if err != nil {
		return nil, err
	}

	return &model.Annotation{Record: rec, Transcripts: transcripts}, nil
}

type queryRower interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) getTranscripts(ctx context.Context, db queryRower, key string) ([]model.TranscriptAnnotation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT transcript_id, polyphen_score, protein_notation, revel_score, splice_ai_delta,
		       mane, loftee_class, impact, gerp_score, cdna_notation, consequences
		FROM transcript_annotations
		WHERE variant_key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf(`cache: get transcripts: %w`, err)
	}
	defer rows.Close()

	var out []model.TranscriptAnnotation
	for rows.Next() {
		var t model.TranscriptAnnotation
		var consequences sql.NullString
		t.VariantKey = key
		if err := rows.Scan(&t.TranscriptID, &t.PolyPhen, &t.ProteinNotation, &t.REVEL, &t.SpliceAIDelta,
			&t.MANE, &t.LOFTEE, &t.Impact, &t.GERP, &t.CDNANotation, &consequences); err != nil {
			return nil, fmt.Errorf(`cache: scan transcript: %w`, err)
		}
		if consequences.Valid && consequences.String != `` {
			t.Consequences = strings.Split(consequences.String, `,`)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(`cache: iterate transcripts: %w`, err)
	}

	return out, nil
}

// WriteBatch persists every annotation in one transaction: for each key, any
// existing transcript rows are deleted, the variant-level row is upserted,
// and the new transcript rows are inserted. Either the whole batch commits
// or none of it does.
func (s *Store) WriteBatch(ctx context.Context, annotations []model.Annotation) error {
	if len(annotations) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf(`cache: begin tx: %w`, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	for _, a := range annotations {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_annotations WHERE variant_key = ?`, a.Record.VariantKey); err != nil {
			return fmt.Errorf(`cache: delete transcripts for %s: %w`, a.Record.VariantKey, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO variant_annotations
				(variant_key, gene, cadd_score, ml_pathogenicity_score, most_severe_consequence,
				 allele_frequency, max_pop_allele_frequency, omim_id, clinical_significance)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				gene = VALUES(gene),
				cadd_score = VALUES(cadd_score),
				ml_pathogenicity_score = VALUES(ml_pathogenicity_score),
				most_severe_consequence = VALUES(most_severe_consequence),
				allele_frequency = VALUES(allele_frequency),
				max_pop_allele_frequency = VALUES(max_pop_allele_frequency),
				omim_id = VALUES(omim_id),
				clinical_significance = VALUES(clinical_significance)`,
			a.Record.VariantKey, a.Record.Gene, a.Record.CADDScore, a.Record.MLPathogenicityScore,
			a.Record.MostSevereConsequence, a.Record.AlleleFrequency, a.Record.MaxPopAlleleFrequency,
			a.Record.OMIMID, a.Record.ClinicalSignificance,
		); err != nil {
			return fmt.Errorf(`cache: upsert variant %s: %w`, a.Record.VariantKey, err)
		}

		for _, t := range a.Transcripts {
			var consequences any
			if len(t.Consequences) > 0 {
				consequences = strings.Join(t.Consequences, `,`)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transcript_annotations
					(variant_key, transcript_id, polyphen_score, protein_notation, revel_score,
					 splice_ai_delta, mane, loftee_class, impact, gerp_score, cdna_notation, consequences)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.Record.VariantKey, t.TranscriptID, t.PolyPhen, t.ProteinNotation, t.REVEL,
				t.SpliceAIDelta, t.MANE, t.LOFTEE, t.Impact, t.GERP, t.CDNANotation, consequences,
			); err != nil {
				return fmt.Errorf(`cache: insert transcript %s/%s: %w`, a.Record.VariantKey, t.TranscriptID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf(`cache: commit: %w`, err)
	}

	if s.Logger != nil {
		s.Logger.Info().Int(`count`, len(annotations)).Log(`persisted batch`)
	}

	return nil
}

// Statistics is the aggregate shape returned to the /statistics endpoint.
type Statistics struct {
	TotalRecords         int
	RecordsWithMLScore   int
	ConsequenceHistogram map[string]int
}

// Statistics computes the aggregate counts described in spec.md §4.5/§6.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	stats.ConsequenceHistogram = make(map[string]int)

	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(ml_pathogenicity_score)
		FROM variant_annotations`)
	if err := row.Scan(&stats.TotalRecords, &stats.RecordsWithMLScore); err != nil {
		return Statistics{}, fmt.Errorf(`cache: statistics counts: %w`, err)
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT most_severe_consequence, COUNT(*)
		FROM variant_annotations
		GROUP BY most_severe_consequence`)
	if err != nil {
		return Statistics{}, fmt.Errorf(`cache: statistics histogram: %w`, err)
	}
	defer rows.Close()

	for rows.Next() {
		var consequence string
		var count int
		if err := rows.Scan(&consequence, &count); err != nil {
			return Statistics{}, fmt.Errorf(`cache: scan histogram row: %w`, err)
		}
		stats.ConsequenceHistogram[consequence] = count
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, fmt.Errorf(`cache: iterate histogram: %w`, err)
	}

	return stats, nil
}
