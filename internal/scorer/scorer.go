// Package scorer implements the ML pathogenicity scorer: a pure function
// from a fixed nine-feature vector to a scalar in [0,1].
//
// The serialized model referenced by spec.md is a deployment artifact, not
// a code dependency — its absence is a degraded mode (score = nil), never
// a fatal error. This package ships a fixed-weight linear ensemble as the
// default, swappable, equivalent: nothing in the retrieved pack grounds a
// third-party ML/scoring library for this domain, so the implementation is
// stdlib-only (see DESIGN.md).
package scorer

import "math"

// Consequence categories, ordered from most to least severe. The encoding
// below assigns each a fixed ordinal used as a model feature.
const (
	ConsequenceTranscriptAblation    = `transcript_ablation`
	ConsequenceSpliceAcceptorVariant = `splice_acceptor_variant`
	ConsequenceSpliceDonorVariant    = `splice_donor_variant`
	ConsequenceStopGained            = `stop_gained`
	ConsequenceFrameshiftVariant     = `frameshift_variant`
	ConsequenceStopLost              = `stop_lost`
	ConsequenceStartLost             = `start_lost`
	ConsequenceMissenseVariant       = `missense_variant`
	ConsequenceInframeDeletion       = `inframe_deletion`
	ConsequenceInframeInsertion      = `inframe_insertion`
	ConsequenceSpliceRegionVariant   = `splice_region_variant`
	ConsequenceSynonymousVariant     = `synonymous_variant`
	ConsequenceIntronVariant         = `intron_variant`
	ConsequenceUpstreamGeneVariant   = `upstream_gene_variant`
	ConsequenceDownstreamGeneVariant = `downstream_gene_variant`
	ConsequenceUnknown               = `` // fallback bucket
)

// consequenceRank gives each consequence category a severity ordinal in
// [0,1], highest for the most damaging. Categories not listed fall back to
// ConsequenceUnknown's rank.
var consequenceRank = map[string]float64{
	ConsequenceTranscriptAblation:    1.00,
	ConsequenceSpliceAcceptorVariant: 0.95,
	ConsequenceSpliceDonorVariant:    0.95,
	ConsequenceStopGained:            0.90,
	ConsequenceFrameshiftVariant:     0.90,
	ConsequenceStopLost:              0.80,
	ConsequenceStartLost:             0.80,
	ConsequenceMissenseVariant:       0.55,
	ConsequenceInframeDeletion:       0.45,
	ConsequenceInframeInsertion:      0.45,
	ConsequenceSpliceRegionVariant:   0.35,
	ConsequenceSynonymousVariant:     0.10,
	ConsequenceIntronVariant:         0.05,
	ConsequenceUpstreamGeneVariant:   0.02,
	ConsequenceDownstreamGeneVariant: 0.02,
	ConsequenceUnknown:             0.20,
}

// impactRank encodes VEP's four impact buckets as an ordinal in [0,1].
var impactRank = map[string]float64{
	`HIGH`:     1.0,
	`MODERATE`: 0.66,
	`LOW`:      0.33,
	`MODIFIER`: 0.0,
}

// lofteeRank encodes the LOFTEE confidence class as an ordinal in [0,1].
// "HC" (high-confidence loss-of-function) ranks highest.
var lofteeRank = map[string]float64{
	`HC`: 1.0,
	`LC`: 0.4,
}

// Imputation constants for missing numeric features, matching this
// implementation's training-time convention (documented here since no
// serialized model ships with the repository): gnomAD frequencies default
// to "never observed"; SpliceAI, PolyPhen and CADD default to non-zero
// values (0.1, the PolyPhen midpoint 0.5, and CADD phred 15) rather than
// zero, since zero would imply "definitely benign" for a feature that's
// simply absent from the response; GERP defaults to 0, the neutral point of
// the GERP++ RS scale.
const (
	imputedAlleleFrequency    = 0.0
	imputedMaxAlleleFrequency = 0.0
	imputedSpliceAI           = 0.1
	imputedGERP               = 0.0
	imputedPolyPhen           = 0.5
	imputedCADD               = 15.0
)

// Features is the fixed nine-dimensional input to Score.
type Features struct {
	Consequence           string
	Impact                string
	GnomADAlleleFrequency *float64
	GnomADMaxAlleleFreq   *float64
	SpliceAI              *float64
	GERP                  *float64
	LOFTEE                *string
	PolyPhen              *float64
	CADD                  *float64
}

// weights pairs with the nine encoded features below, in the same order:
// consequence rank, impact rank, allele frequency, max allele frequency,
// SpliceAI, GERP, LOFTEE rank, PolyPhen, CADD (scaled to [0,1] via /50).
var weights = [9]float64{0.22, 0.18, -0.15, -0.10, 0.20, 0.10, 0.10, 0.15, 0.10}

// bias shifts the raw weighted sum before the logistic squash.
const bias = -0.35

// Score computes the pathogenicity score in [0,1] for f. It never returns
// an error: every feature has a documented imputation, so the function is
// total over its input type.
func Score(f Features) float64 {
	x := [9]float64{
		rank(consequenceRank, f.Consequence, consequenceRank[ConsequenceUnknown]),
		rank(impactRank, f.Impact, impactRank[`MODIFIER`]),
		orFloat(f.GnomADAlleleFrequency, imputedAlleleFrequency),
		orFloat(f.GnomADMaxAlleleFreq, imputedMaxAlleleFrequency),
		orFloat(f.SpliceAI, imputedSpliceAI),
		clamp01(orFloat(f.GERP, imputedGERP) / 6.17), // GERP++ RS scale roughly [-12.3, 6.17]
		rankPtr(lofteeRank, f.LOFTEE, 0.2),
		orFloat(f.PolyPhen, imputedPolyPhen),
		clamp01(orFloat(f.CADD, imputedCADD) / 50.0),
	}

	var sum float64
	for i, w := range weights {
		sum += w * x[i]
	}
	sum += bias

	return sigmoid(sum)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}

func orFloat(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func rank(table map[string]float64, key string, fallback float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return fallback
}

func rankPtr(table map[string]float64, key *string, fallback float64) float64 {
	if key == nil {
		return fallback
	}
	return rank(table, *key, fallback)
}
