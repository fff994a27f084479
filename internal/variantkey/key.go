// Package variantkey normalizes (chrom, pos, ref, alt) tuples into the
// stable string key used everywhere else in the service: the cache store,
// the pending registry, and the batch queue.
package variantkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidChrom indicates a chromosome name that isn't recognized.
	ErrInvalidChrom = errors.New(`variantkey: invalid chromosome`)
	// ErrInvalidPosition indicates a non-positive position.
	ErrInvalidPosition = errors.New(`variantkey: invalid position`)
	// ErrInvalidAllele indicates a ref or alt allele containing characters
	// outside {A, C, G, T}.
	ErrInvalidAllele = errors.New(`variantkey: invalid allele`)
)

// validChroms enumerates the 1-22, X, Y, MT chromosome names, in their
// canonical (bare, no "chr" prefix) form.
var validChroms = func() map[string]bool {
	m := make(map[string]bool, 25)
	for i := 1; i <= 22; i++ {
		m[strconv.Itoa(i)] = true
	}
	m[`X`] = true
	m[`Y`] = true
	m[`MT`] = true
	return m
}()

// Variant is the decoded input to Normalize: a variant prior to
// canonicalization. Ref and Alt may each be one or more bases.
type Variant struct {
	Chrom string
	Pos   int64
	Ref   string
	Alt   string
}

// Normalize canonicalizes v and returns the stable key string
// "{chrom}:{pos}:{ref}>{alt}". Chromosome normalization strips any leading
// "chr"/"Chr"/"CHR" prefix: the bare form is canonical, and this is the
// only place in the service that constructs a variant key, so every reader
// and writer sees the same convention.
func Normalize(v Variant) (string, error) {
	chrom := strings.TrimPrefix(strings.ToUpper(v.Chrom), `CHR`)

	if !validChroms[chrom] {
		return ``, fmt.Errorf(`%w: %q`, ErrInvalidChrom, v.Chrom)
	}

	if v.Pos <= 0 {
		return ``, fmt.Errorf(`%w: %d`, ErrInvalidPosition, v.Pos)
	}

	ref := strings.ToUpper(v.Ref)
	alt := strings.ToUpper(v.Alt)

	if !isBases(ref) || !isBases(alt) {
		return ``, fmt.Errorf(`%w: ref=%q alt=%q`, ErrInvalidAllele, v.Ref, v.Alt)
	}
	if ref == alt {
		return ``, fmt.Errorf(`%w: ref and alt must differ`, ErrInvalidAllele)
	}

	return fmt.Sprintf(`%s:%d:%s>%s`, chrom, v.Pos, ref, alt), nil
}

// Parse decodes a stable key string produced by Normalize back into its
// components. It's the inverse used when a variant key must be reissued to
// the external service as a (chrom, pos, ref, alt) descriptor.
func Parse(key string) (Variant, error) {
	chromAndRest, alleles, ok := strings.Cut(key, `>`)
	if !ok {
		return Variant{}, fmt.Errorf(`variantkey: malformed key %q`, key)
	}

	chrom, posStr, ok := strings.Cut(chromAndRest, `:`)
	if !ok {
		return Variant{}, fmt.Errorf(`variantkey: malformed key %q`, key)
	}
	posStr, ref, ok := strings.Cut(posStr, `:`)
	if !ok {
		return Variant{}, fmt.Errorf(`variantkey: malformed key %q`, key)
	}

	pos, err := strconv.ParseInt(posStr, 10, 64)
	if err != nil {
		return Variant{}, fmt.Errorf(`variantkey: malformed position in key %q: %w`, key, err)
	}

	return Variant{Chrom: chrom, Pos: pos, Ref: ref, Alt: alleles}, nil
}

func isBases(s string) bool {
	if s == `` {
		return false
	}
	for _, r := range s {
		switch r {
		case 'A', 'C', 'G', 'T':
		default:
			return false
		}
	}
	return true
}
