package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/genomeannotate/varbatch/internal/model"
	"github.com/genomeannotate/varbatch/internal/registry"
	"github.com/genomeannotate/varbatch/internal/submission"
	"github.com/genomeannotate/varbatch/internal/variantkey"
)

// recordResponse is the REST-surface shape of the variant-level annotation
// record (spec.md §6's `record?`): the nine documented fields, nothing from
// the transcript-level detail rows.
type recordResponse struct {
	VariantKey            string   `json:"variant_key"`
	Gene                  *string  `json:"gene,omitempty"`
	CADDScore             *float64 `json:"cadd_score,omitempty"`
	MLPathogenicityScore  *float64 `json:"ml_pathogenicity_score,omitempty"`
	MostSevereConsequence string   `json:"most_severe_consequence"`
	AlleleFrequency       *float64 `json:"allele_frequency,omitempty"`
	MaxPopAlleleFrequency *float64 `json:"max_pop_allele_frequency,omitempty"`
	OMIMID                *string  `json:"omim_id,omitempty"`
	ClinicalSignificance  *string  `json:"clinical_significance,omitempty"`
}

// newRecordResponse adapts ann's variant-level record for the REST surface,
// or returns nil when ann is nil so the `record` field is omitted entirely.
func newRecordResponse(ann *model.Annotation) *recordResponse {
	if ann == nil {
		return nil
	}
	rec := ann.Record
	return &recordResponse{
		VariantKey:            rec.VariantKey,
		Gene:                  rec.Gene,
		CADDScore:             rec.CADDScore,
		MLPathogenicityScore:  rec.MLPathogenicityScore,
		MostSevereConsequence: rec.MostSevereConsequence,
		AlleleFrequency:       rec.AlleleFrequency,
		MaxPopAlleleFrequency: rec.MaxPopAlleleFrequency,
		OMIMID:                rec.OMIMID,
		ClinicalSignificance:  rec.ClinicalSignificance,
	}
}

type submitRequest struct {
	Chrom string `json:"chrom"`
	Pos   int64  `json:"pos"`
	Ref   string `json:"ref"`
	Alt   string `json:"alt"`
}

type submitResponse struct {
	Outcome    string          `json:"outcome"`
	VariantKey string          `json:"variant_key"`
	State      string          `json:"state,omitempty"`
	Record     *recordResponse `json:"record,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, `invalid_input`, err.Error())
		return
	}

	result, err := s.Facade.Submit(r.Context(), variantkey.Variant{Chrom: req.Chrom, Pos: req.Pos, Ref: req.Ref, Alt: req.Alt})
	if err != nil {
		switch {
		case errors.Is(err, submission.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, `invalid_input`, err.Error())
		case errors.Is(err, submission.ErrServiceUnavailable):
			writeError(w, http.StatusServiceUnavailable, `unavailable`, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, `unavailable`, err.Error())
		}
		return
	}

	resp := submitResponse{Outcome: string(result.Outcome), VariantKey: result.VariantKey}
	if result.Outcome == submission.OutcomeAlreadyPending {
		resp.State = result.State.String()
	}
	if result.Outcome == submission.OutcomeCached {
		resp.Record = newRecordResponse(result.Annotation)
	}

	status := http.StatusAccepted
	if result.Outcome == submission.OutcomeCached {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

type pollResponse struct {
	VariantKey    string          `json:"variant_key"`
	State         string          `json:"state"`
	Attempts      int             `json:"attempts"`
	ResultRef     string          `json:"result_ref,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Record        *recordResponse `json:"record,omitempty"`
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	key := ps.ByName(`variant_key`)

	entry, err := s.Registry.Get(key)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, `not_found`, `no pending or recently completed entry for this variant`)
			return
		}
		writeError(w, http.StatusInternalServerError, `unavailable`, err.Error())
		return
	}

	resp := pollResponse{
		VariantKey:    entry.VariantKey,
		State:         entry.State.String(),
		Attempts:      entry.Attempts,
		ResultRef:     entry.ResultRef,
		FailureReason: entry.FailureReason,
	}

	if entry.State == registry.StateCompleted {
		ann, err := s.Store.GetAnnotation(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, `unavailable`, err.Error())
			return
		}
		resp.Record = newRecordResponse(ann)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, `unavailable`, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{`status`: `ok`})
}

type consequenceCount struct {
	Consequence string `json:"consequence"`
	Count       int    `json:"count"`
}

type statisticsResponse struct {
	TotalRecords         int                `json:"total_records"`
	RecordsWithMLScore   int                `json:"records_with_ml_score"`
	ConsequenceHistogram []consequenceCount `json:"consequence_histogram"`
	Queued               int                `json:"queued"`
	Processing           int                `json:"processing"`
	Completed            int                `json:"completed"`
	Failed               int                `json:"failed"`
	RetryAvailable       int                `json:"retry_available"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := s.Store.Statistics(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, `unavailable`, err.Error())
		return
	}

	// present the histogram most-frequent-first, for a stable response shape
	// independent of Go's randomized map iteration order.
	consequences := maps.Keys(stats.ConsequenceHistogram)
	slices.SortFunc(consequences, func(a, b string) int {
		if d := stats.ConsequenceHistogram[b] - stats.ConsequenceHistogram[a]; d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	histogram := make([]consequenceCount, len(consequences))
	for i, c := range consequences {
		histogram[i] = consequenceCount{Consequence: c, Count: stats.ConsequenceHistogram[c]}
	}

	counts := s.Registry.Counts()
	writeJSON(w, http.StatusOK, statisticsResponse{
		TotalRecords:         stats.TotalRecords,
		RecordsWithMLScore:   stats.RecordsWithMLScore,
		ConsequenceHistogram: histogram,
		Queued:               counts[registry.StateQueued],
		Processing:           counts[registry.StateProcessing],
		Completed:            counts[registry.StateCompleted],
		Failed:               counts[registry.StateFailed],
		RetryAvailable:       counts[registry.StateRetryAvailable],
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(`Content-Type`, `application/json`)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, errorResponse{Reason: reason, Message: message})
}
