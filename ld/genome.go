package ld

import (
	"math"

	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
)

// Pair is the LD between two variants. Dist is the distance in bases, NaN
// for variants on different chromosomes.
type Pair struct {
	R      float64
	Dist   float64
	Chrom1 string
	Pos1   int32
	Chrom2 string
	Pos2   int32
}

// GenomeReader walks the banded chunk pairs of a store and yields the LD of
// every variant pair in them. A variant is never paired with itself.
type GenomeReader struct {
	opts    Options
	pairs   *variation.ChunkPairReader
	pending []Pair
	err     error
}

// AlongGenome returns a reader over the LD of the variant pairs of s. Each
// call starts a fresh walk.
func AlongGenome(s variation.Store, optFns ...func(o *Options)) *GenomeReader {
	opts := options(optFns)
	return &GenomeReader{
		opts: opts,
		pairs: s.IterateChunkPairs(
			variation.WithPairChunkSize(opts.ChunkSize),
			variation.WithMaxDist(opts.MaxDist),
		),
	}
}

// Read returns the next pair, or nil when done or on error.
func (g *GenomeReader) Read() *Pair {
	for len(g.pending) == 0 {
		if g.err != nil {
			return nil
		}
		cp := g.pairs.Read()
		if cp == nil {
			if err := g.pairs.Error(); err != nil {
				g.err = pfx.Err(err)
			}
			return nil
		}
		if err := g.load(cp); err != nil {
			g.err = pfx.Err(err)
			return nil
		}
	}

	p := g.pending[0]
	g.pending = g.pending[1:]
	return &p
}

func (g *GenomeReader) Error() error { return g.err }

func (g *GenomeReader) load(cp *variation.ChunkPair) error {
	first, err := sitesOf(cp.First)
	if err != nil {
		return err
	}
	second, err := sitesOf(cp.Second)
	if err != nil {
		return err
	}
	if err := checkMAF(first.gt, first.chrom, first.pos, g.opts); err != nil {
		return err
	}
	if !cp.Diagonal() {
		if err := checkMAF(second.gt, second.chrom, second.pos, g.opts); err != nil {
			return err
		}
	}

	r := RogersHuffR(variation.Dosage012(first.gt), variation.Dosage012(second.gt), g.opts.MinNumGenotypes)
	n1, n2 := first.gt.Rows(), second.gt.Rows()
	for i := 0; i < n1; i++ {
		j0 := 0
		if cp.Diagonal() {
			j0 = i + 1
		}
		for j := j0; j < n2; j++ {
			p := Pair{
				R:      r.At(i, j),
				Dist:   math.NaN(),
				Chrom1: first.chrom.At(i),
				Pos1:   first.pos.At(i),
				Chrom2: second.chrom.At(j),
				Pos2:   second.pos.At(j),
			}
			if p.Chrom1 == p.Chrom2 {
				if p.Pos1 == p.Pos2 {
					continue
				}
				p.Dist = math.Abs(float64(p.Pos1) - float64(p.Pos2))
			}
			if g.opts.MaxDist >= 0 && (math.IsNaN(p.Dist) || p.Dist > float64(g.opts.MaxDist)) {
				continue
			}
			g.pending = append(g.pending, p)
		}
	}

	g.opts.Logger.Debug("computed LD for chunk pair",
		"first", cp.FirstStart,
		"second", cp.SecondStart,
		"pairs", len(g.pending))
	return nil
}
