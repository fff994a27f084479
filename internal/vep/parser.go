package vep

import (
	"strings"

	"github.com/genomeannotate/varbatch/internal/model"
)

// ReasonNoAnnotationReturned names why a per-variant parse attempt produced
// no usable annotation. It is the only reason this package reports. No
// parse_error reason is produced anywhere: a response body that fails to
// decode makes Client.Call return an error, and the batch processor handles
// that like any other failed call (transient_upstream for the whole batch).
const ReasonNoAnnotationReturned = `no_annotation_returned`

// ParseFailure is returned, per variant key, when RawResult has neither
// transcript consequences nor a colocated-variant summary.
type ParseFailure struct {
	VariantKey string
	Reason     string
}

// ParseBatch parses one batch's raw results, matching each against the
// originally requested keys. Keys with no matching response entry and
// entries with no matching requested key are both accounted for per
// spec.md §4.2 step 3: responses for unrequested keys are ignored;
// requested keys with no response are reported as individual failures.
func ParseBatch(requested []string, results []RawResult) (map[string]model.Annotation, []ParseFailure) {
	byKey := make(map[string]RawResult, len(results))
	for _, r := range results {
		byKey[r.VariantKey] = r
	}

	parsed := make(map[string]model.Annotation, len(requested))
	var failures []ParseFailure

	for _, key := range requested {
		raw, ok := byKey[key]
		if !ok {
			failures = append(failures, ParseFailure{VariantKey: key, Reason: ReasonNoAnnotationReturned})
			continue
		}

		ann, ok := parseOne(key, raw)
		if !ok {
			failures = append(failures, ParseFailure{VariantKey: key, Reason: ReasonNoAnnotationReturned})
			continue
		}

		parsed[key] = ann
	}

	return parsed, failures
}

// parseOne builds one Annotation from a single raw result. It returns
// ok=false when the variant has no transcript entries and no colocated
// summary — the only parse-failure condition spec.md §4.4 defines.
func parseOne(key string, raw RawResult) (model.Annotation, bool) {
	if len(raw.TranscriptConsequences) == 0 && len(raw.ColocatedVariants) == 0 {
		return model.Annotation{}, false
	}

	transcripts := make([]model.TranscriptAnnotation, len(raw.TranscriptConsequences))
	for i, t := range raw.TranscriptConsequences {
		transcripts[i] = model.TranscriptAnnotation{
			VariantKey:      key,
			TranscriptID:    t.TranscriptID,
			PolyPhen:        t.PolyPhenScore,
			ProteinNotation: t.HGVSp,
			REVEL:           t.REVELScore,
			SpliceAIDelta:   t.SpliceAIDSMax,
			MANE:            t.MANESelect != ``,
			LOFTEE:          t.LOFTEE,
			Impact:          t.Impact,
			GERP:            t.GERPRS,
			CDNANotation:    t.HGVSc,
			Consequences:    t.ConsequenceTerms,
		}
	}

	record := model.AnnotationRecord{
		VariantKey:            key,
		Gene:                  resolveGene(raw, transcripts),
		CADDScore:             raw.CADDScore,
		MostSevereConsequence: raw.MostSevereConsequence,
	}

	record.AlleleFrequency, record.MaxPopAlleleFrequency = alleleFrequencies(raw.ColocatedVariants)
	record.OMIMID = joinUnique(collectOMIM(raw.ColocatedVariants))
	record.ClinicalSignificance = joinUnique(collectClinicalSignificance(raw.ColocatedVariants))

	return model.Annotation{Record: record, Transcripts: transcripts}, true
}

// resolveGene implements spec.md §4.4's gene-selection precedence: the
// MANE-flagged transcript, then the transcript matching the response's own
// most_severe_consequence, then the first listed transcript.
func resolveGene(raw RawResult, transcripts []model.TranscriptAnnotation) *string {
	if len(raw.TranscriptConsequences) == 0 {
		return nil
	}

	for _, t := range raw.TranscriptConsequences {
		if t.MANESelect != `` && t.GeneSymbol != nil {
			return t.GeneSymbol
		}
	}

	for _, t := range raw.TranscriptConsequences {
		for _, c := range t.ConsequenceTerms {
			if c == raw.MostSevereConsequence && t.GeneSymbol != nil {
				return t.GeneSymbol
			}
		}
	}

	return raw.TranscriptConsequences[0].GeneSymbol
}

// alleleFrequencies extracts the gnomAD exomes allele frequency from the
// first colocated-variant summary that has one, and the maximum across all
// reported populations across all colocated variants. Both are nil when
// absent — never coerced to zero.
func alleleFrequencies(colocated []RawColocatedVariant) (af *float64, maxAF *float64) {
	for _, c := range colocated {
		if af == nil && c.GnomADExomesAF != nil {
			v := *c.GnomADExomesAF
			af = &v
		}
	}

	var max float64
	found := false
	for _, c := range colocated {
		if c.GnomADExomesAF != nil && (!found || *c.GnomADExomesAF > max) {
			max = *c.GnomADExomesAF
			found = true
		}
		for _, v := range c.GnomADExomesPopAF {
			if !found || v > max {
				max = v
				found = true
			}
		}
	}
	if found {
		maxAF = &max
	}

	return af, maxAF
}

func collectOMIM(colocated []RawColocatedVariant) []string {
	var out []string
	for _, c := range colocated {
		out = append(out, c.OMIM...)
	}
	return out
}

func collectClinicalSignificance(colocated []RawColocatedVariant) []string {
	var out []string
	for _, c := range colocated {
		out = append(out, c.ClinicalSignificance...)
	}
	return out
}

// joinUnique deduplicates and joins values with "; ", the stable delimiter
// spec.md §4.4 requires for multi-value OMIM/ClinVar fields. Returns nil
// (not a pointer to an empty string) when values is empty.
func joinUnique(values []string) *string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(values))
	var unique []string
	for _, v := range values {
		if v == `` || seen[v] {
			continue
		}
		seen[v] = true
		unique = append(unique, v)
	}
	if len(unique) == 0 {
		return nil
	}

	joined := strings.Join(unique, `; `)
	return &joined
}
