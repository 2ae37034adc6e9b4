package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/carbocation/variation"
	"github.com/carbocation/variation/config"
	"github.com/carbocation/variation/pipeline"
)

func main() {
	in := flag.String("in", "", "Store to read")
	out := flag.String("out", "", "Store to write the surviving variants to. Empty gathers statistics only")
	defPath := flag.String("def", "", "YAML pipeline definition")
	flag.Parse()

	if *in == "" || *defPath == "" {
		flag.PrintDefaults()
		log.Fatalln("Both -in and -def are required. Step kinds:", pipeline.Kinds())
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalln(err)
	}

	f, err := os.Open(*defPath)
	if err != nil {
		log.Fatalln(err)
	}
	def, err := pipeline.Decode(f)
	f.Close()
	if err != nil {
		log.Fatalln(err)
	}
	p, err := def.Build()
	if err != nil {
		log.Fatalln(err)
	}

	src, err := cfg.OpenStore(*in, variation.ModeRead)
	if err != nil {
		log.Fatalln(err)
	}
	defer src.Close()

	var dst variation.Store
	if *out != "" {
		s, err := cfg.OpenStore(*out, variation.ModeWrite)
		if err != nil {
			log.Fatalln(err)
		}
		defer s.Close()
		dst = s
	}

	chunkSize := cfg.ChunkSize
	if def.ChunkSize > 0 {
		chunkSize = def.ChunkSize
	}
	res, err := p.Run(src, dst, pipeline.WithChunkSize(chunkSize), pipeline.WithLogger(cfg.Logger()))
	if err != nil {
		log.Fatalln(err)
	}

	log.Println("Run", res.RunID, "kept", res.Rows, "of", src.NumVariations(), "variants")
	ids := p.IDs()
	sort.SliceStable(ids, func(i, j int) bool { return res.Steps[ids[i]].Order < res.Steps[ids[j]].Order })
	for _, id := range ids {
		r := res.Steps[id]
		if r.Stats != nil {
			fmt.Printf("%s\ttotal=%d\tkept=%d\tfiltered_out=%d\n", id, r.Stats.Total, r.Stats.Kept, r.Stats.FilteredOut)
		} else {
			fmt.Printf("%s\n", id)
		}
		for b, n := range r.Counts {
			fmt.Printf("\t[%g, %g]\t%d\n", r.Edges[b], r.Edges[b+1], n)
		}
	}
}
