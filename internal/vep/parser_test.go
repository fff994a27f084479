package vep_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genomeannotate/varbatch/internal/vep"
)

func fptr(f float64) *float64 { return &f }
func sptr(s string) *string   { return &s }

func TestParseBatchHappyPath(t *testing.T) {
	t.Parallel()

	results := []vep.RawResult{
		{
			VariantKey:            `1:12345:A>G`,
			MostSevereConsequence: `missense_variant`,
			CADDScore:             fptr(28.1),
			TranscriptConsequences: []vep.RawTranscript{
				{
					TranscriptID:     `ENST00000001`,
					GeneSymbol:       sptr(`BRCA2`),
					Impact:           `HIGH`,
					ConsequenceTerms: []string{`missense_variant`},
					MANESelect:       `NM_000059.4`,
					HGVSp:            sptr(`p.Val1736Ala`),
					HGVSc:            sptr(`c.5207T>C`),
				},
				{
					TranscriptID:     `ENST00000002`,
					GeneSymbol:       sptr(`BRCA2-AS1`),
					Impact:           `MODIFIER`,
					ConsequenceTerms: []string{`intron_variant`},
				},
			},
			ColocatedVariants: []vep.RawColocatedVariant{
				{
					GnomADExomesAF:    fptr(0.0001),
					GnomADExomesPopAF: map[string]float64{`afr`: 0.0005, `eas`: 0.00002},
					OMIM:              []string{`600185`},
					ClinicalSignificance: []string{`Pathogenic`, `Pathogenic`},
				},
			},
		},
	}

	parsed, failures := vep.ParseBatch([]string{`1:12345:A>G`}, results)
	require.Empty(t, failures)
	require.Len(t, parsed, 1)

	ann := parsed[`1:12345:A>G`]
	require.Equal(t, `BRCA2`, *ann.Record.Gene, `MANE transcript's gene wins over the first-listed one`)
	require.Equal(t, 28.1, *ann.Record.CADDScore)
	require.Equal(t, 0.0001, *ann.Record.AlleleFrequency)
	require.Equal(t, 0.0005, *ann.Record.MaxPopAlleleFrequency, `max across reported populations, not just the primary af`)
	require.Equal(t, `600185`, *ann.Record.OMIMID)
	require.Equal(t, `Pathogenic`, *ann.Record.ClinicalSignificance, `duplicate values collapse`)
	require.Len(t, ann.Transcripts, 2)
	require.True(t, ann.Transcripts[0].MANE)
	require.False(t, ann.Transcripts[1].MANE)
}

func TestParseBatchGeneFallsBackToConsequenceMatch(t *testing.T) {
	t.Parallel()

	results := []vep.RawResult{
		{
			VariantKey:            `1:1:A>G`,
			MostSevereConsequence: `stop_gained`,
			TranscriptConsequences: []vep.RawTranscript{
				{TranscriptID: `ENST1`, GeneSymbol: sptr(`GENE1`), ConsequenceTerms: []string{`intron_variant`}},
				{TranscriptID: `ENST2`, GeneSymbol: sptr(`GENE2`), ConsequenceTerms: []string{`stop_gained`}},
			},
		},
	}

	parsed, failures := vep.ParseBatch([]string{`1:1:A>G`}, results)
	require.Empty(t, failures)
	require.Equal(t, `GENE2`, *parsed[`1:1:A>G`].Record.Gene)
}

func TestParseBatchGeneFallsBackToFirstTranscript(t *testing.T) {
	t.Parallel()

	results := []vep.RawResult{
		{
			VariantKey:            `1:1:A>G`,
			MostSevereConsequence: `stop_gained`,
			TranscriptConsequences: []vep.RawTranscript{
				{TranscriptID: `ENST1`, GeneSymbol: sptr(`GENE1`), ConsequenceTerms: []string{`intron_variant`}},
			},
		},
	}

	parsed, _ := vep.ParseBatch([]string{`1:1:A>G`}, results)
	require.Equal(t, `GENE1`, *parsed[`1:1:A>G`].Record.Gene)
}

func TestParseBatchNoAnnotationReturned(t *testing.T) {
	t.Parallel()

	results := []vep.RawResult{
		{VariantKey: `1:1:A>G`, MostSevereConsequence: `intergenic_variant`},
	}

	parsed, failures := vep.ParseBatch([]string{`1:1:A>G`}, results)
	require.Empty(t, parsed)
	require.Equal(t, []vep.ParseFailure{{VariantKey: `1:1:A>G`, Reason: vep.ReasonNoAnnotationReturned}}, failures)
}

func TestParseBatchMissingKeyFailsIndividually(t *testing.T) {
	t.Parallel()

	parsed, failures := vep.ParseBatch([]string{`1:1:A>G`, `1:2:A>G`}, []vep.RawResult{
		{
			VariantKey:            `1:1:A>G`,
			MostSevereConsequence: `missense_variant`,
			TranscriptConsequences: []vep.RawTranscript{
				{TranscriptID: `ENST1`, GeneSymbol: sptr(`GENE1`), ConsequenceTerms: []string{`missense_variant`}},
			},
		},
	})

	require.Len(t, parsed, 1)
	require.Equal(t, []vep.ParseFailure{{VariantKey: `1:2:A>G`, Reason: vep.ReasonNoAnnotationReturned}}, failures)
}

func TestParseBatchIgnoresUnrequestedKeys(t *testing.T) {
	t.Parallel()

	parsed, failures := vep.ParseBatch([]string{`1:1:A>G`}, []vep.RawResult{
		{
			VariantKey:            `1:1:A>G`,
			MostSevereConsequence: `missense_variant`,
			TranscriptConsequences: []vep.RawTranscript{
				{TranscriptID: `ENST1`, GeneSymbol: sptr(`GENE1`), ConsequenceTerms: []string{`missense_variant`}},
			},
		},
		{
			VariantKey:            `99:1:A>G`, // never requested
			MostSevereConsequence: `missense_variant`,
			TranscriptConsequences: []vep.RawTranscript{
				{TranscriptID: `ENST9`, GeneSymbol: sptr(`GENE9`), ConsequenceTerms: []string{`missense_variant`}},
			},
		},
	})

	require.Len(t, parsed, 1)
	require.Empty(t, failures)
	_, ok := parsed[`99:1:A>G`]
	require.False(t, ok)
}
