package ld

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
)

// RandomPair is the LD of two variants drawn from different chromosomes.
// Idx1 and Idx2 are store rows.
type RandomPair struct {
	Chrom1 string
	Idx1   int
	Chrom2 string
	Idx2   int
	R      float64
}

// RandomReader draws variant pairs that lie on different chromosomes.
type RandomReader struct {
	opts     Options
	rng      *rand.Rand
	sites    *sites
	dosage   *variation.Matrix[int32]
	want     int
	accepted int
	attempts int
	logged   bool
}

// RandomPairs draws pairs of variants from different chromosomes of s until
// numPairs pairs with a defined r have been yielded or the attempt budget is
// spent. Same-chromosome draws and NaN results are retried and do not count
// toward numPairs.
//
// The whole genotype matrix of s is loaded. It fails if s holds fewer than
// two chromosomes or if any variant has an undefined or too high MAF.
func RandomPairs(s variation.Store, numPairs int, optFns ...func(o *Options)) (*RandomReader, error) {
	opts := options(optFns)
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 100 * numPairs
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	whole, err := wholeStore(s)
	if err != nil {
		return nil, pfx.Err(err)
	}
	st, err := sitesOf(whole)
	if err != nil {
		return nil, pfx.Err(err)
	}

	chroms := map[string]struct{}{}
	for _, c := range st.chrom.Data() {
		chroms[c] = struct{}{}
	}
	if len(chroms) < 2 {
		return nil, pfx.Err(fmt.Errorf("%w: random cross-chromosome pairs need at least 2 chromosomes, found %d", variation.ErrLDPrecondition, len(chroms)))
	}
	if err := checkMAF(st.gt, st.chrom, st.pos, opts); err != nil {
		return nil, pfx.Err(err)
	}

	return &RandomReader{
		opts:   opts,
		rng:    rng,
		sites:  st,
		dosage: variation.Dosage012(st.gt),
		want:   numPairs,
	}, nil
}

func wholeStore(s variation.Store) (*variation.Arrays, error) {
	fields := map[string]variation.Array{}
	for _, path := range []string{variation.GTField, variation.ChromField, variation.PosField} {
		arr, err := s.Get(path)
		if err != nil {
			return nil, pfx.Err(err)
		}
		fields[path] = arr
	}
	return variation.NewChunk(fields, s.Metadata(), s.Samples(), s.Ploidy())
}

// Read returns the next accepted pair, or nil when done.
func (r *RandomReader) Read() *RandomPair {
	n := r.sites.gt.Rows()
	for r.accepted < r.want && r.attempts < r.opts.MaxAttempts {
		r.attempts++
		i, j := r.rng.Intn(n), r.rng.Intn(n)
		c1, c2 := r.sites.chrom.At(i), r.sites.chrom.At(j)
		if c1 == c2 {
			continue
		}
		v := PairR(r.dosage.Row(i), r.dosage.Row(j), r.opts.MinNumGenotypes)
		if math.IsNaN(v) {
			continue
		}
		r.accepted++
		return &RandomPair{Chrom1: c1, Idx1: i, Chrom2: c2, Idx2: j, R: v}
	}
	if r.accepted < r.want && !r.logged {
		r.opts.Logger.Info("random LD draw budget spent",
			"accepted", r.accepted,
			"wanted", r.want,
			"attempts", r.attempts)
		r.logged = true
	}
	return nil
}

// Attempts is the number of draws made so far.
func (r *RandomReader) Attempts() int { return r.attempts }
