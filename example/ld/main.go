package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/carbocation/variation"
	"github.com/carbocation/variation/config"
	"github.com/carbocation/variation/ld"
)

func main() {
	in := flag.String("in", "", "Store to read")
	maxDist := flag.Int("max-dist", variation.NoMaxDist, "Only report pairs on one chromosome at most this many bases apart. Negative reports every pair")
	random := flag.Int("random", 0, "Instead of walking the genome, draw this many pairs of variants from different chromosomes")
	flag.Parse()

	if *in == "" {
		flag.PrintDefaults()
		log.Fatalln("No store given")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalln(err)
	}

	s, err := cfg.OpenStore(*in, variation.ModeRead)
	if err != nil {
		log.Fatalln(err)
	}
	defer s.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	if *random > 0 {
		rr, err := ld.RandomPairs(s, *random, cfg.LDOptions()...)
		if err != nil {
			log.Fatalln(err)
		}
		fmt.Fprintln(w, "chrom1\tidx1\tchrom2\tidx2\tr")
		for p := rr.Read(); p != nil; p = rr.Read() {
			fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%g\n", p.Chrom1, p.Idx1, p.Chrom2, p.Idx2, p.R)
		}
		log.Println("Made", rr.Attempts(), "draws")
		return
	}

	g := ld.AlongGenome(s, append(cfg.LDOptions(), ld.WithMaxDist(*maxDist))...)
	fmt.Fprintln(w, "chrom1\tpos1\tchrom2\tpos2\tdist\tr")
	var n int
	for p := g.Read(); p != nil; p = g.Read() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%g\t%g\n", p.Chrom1, p.Pos1, p.Chrom2, p.Pos2, p.Dist, p.R)
		n++
	}
	if err := g.Error(); err != nil {
		w.Flush()
		log.Fatalln(err)
	}
	log.Println("Reported", n, "pairs")
}
