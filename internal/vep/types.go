package vep

// RawResult is one element of the external service's batch response: the
// set of fields this client actually depends on (spec.md §4.4 scopes the
// parser to exactly these).
type RawResult struct {
	VariantKey             string                 `json:"variant_key"`
	MostSevereConsequence  string                 `json:"most_severe_consequence"`
	CADDScore              *float64               `json:"cadd_phred"`
	TranscriptConsequences []RawTranscript        `json:"transcript_consequences"`
	ColocatedVariants      []RawColocatedVariant  `json:"colocated_variants"`
}

// RawTranscript is one per-transcript consequence block.
type RawTranscript struct {
	TranscriptID     string   `json:"transcript_id"`
	GeneSymbol       *string  `json:"gene_symbol"`
	Impact           string   `json:"impact"`
	ConsequenceTerms []string `json:"consequence_terms"`
	PolyPhenScore    *float64 `json:"polyphen_score"`
	HGVSp            *string  `json:"hgvsp"`
	HGVSc            *string  `json:"hgvsc"`
	REVELScore       *float64 `json:"revel_score"`
	SpliceAIDSMax    *float64 `json:"spliceai_ds_max"`
	GERPRS           *float64 `json:"gerp_rs"`
	LOFTEE           *string  `json:"loftee"`
	MANESelect       string   `json:"mane_select"`
}

// RawColocatedVariant is one colocated-variant cross-reference summary.
type RawColocatedVariant struct {
	GnomADExomesAF        *float64           `json:"gnomad_exomes_af"`
	GnomADExomesPopAF     map[string]float64 `json:"gnomad_exomes_pop_af"`
	OMIM                  []string           `json:"omim"`
	ClinicalSignificance  []string           `json:"clin_sig"`
}
