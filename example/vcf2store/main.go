package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
	"github.com/carbocation/variation/config"
	"github.com/carbocation/variation/vcf"
	"golang.org/x/sync/errgroup"
)

func main() {
	outDir := flag.String("out", ".", "Directory in which to write one store per input VCF")
	bim := flag.Bool("bim", false, "Also write a PLINK .bim file of the sites of each store")
	workers := flag.Int("workers", runtime.NumCPU(), "Number of VCFs to convert at once")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.PrintDefaults()
		log.Fatalln("No VCF given. Pass local paths or gs://bucket/object paths as arguments")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalln(err)
	}

	if strings.HasPrefix(*outDir, "~/") {
		usr, err := user.Current()
		if err != nil {
			log.Fatalln(pfx.Err(err))
		}
		*outDir = filepath.Join(usr.HomeDir, (*outDir)[2:])
	}

	if cfg.Backend == config.BackendSQLite {
		log.Println("Using SQLite driver", variation.WhichSQLiteDriver())
	}

	// Every input gets its own store, so each store keeps a single writer.
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*workers)
	for _, path := range flag.Args() {
		path := path
		g.Go(func() error {
			return convert(ctx, cfg, path, filepath.Join(*outDir, storeName(path)), *bim)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalln(err)
	}
}

func storeName(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".gz", ".bgz", ".vcf"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name + ".store"
}

func convert(ctx context.Context, cfg *config.Config, path, out string, bim bool) error {
	log.Println("Converting", path, "to", out)

	rc, err := vcf.Open(ctx, path)
	if err != nil {
		return pfx.Err(err)
	}
	defer rc.Close()

	p, err := vcf.NewParser(rc, cfg.ParserOptions()...)
	if err != nil {
		return pfx.Err(err)
	}

	s, err := cfg.OpenStore(out, variation.ModeWrite)
	if err != nil {
		return pfx.Err(err)
	}
	defer s.Close()

	if err := s.PutVars(p); err != nil {
		return pfx.Err(err)
	}
	log.Println("Stored", s.NumVariations(), "variants of", len(s.Samples()), "samples from", path)

	if !bim {
		return nil
	}
	f, err := os.Create(strings.TrimSuffix(out, ".store") + ".bim")
	if err != nil {
		return pfx.Err(err)
	}
	defer f.Close()
	if err := variation.WriteBIM(f, s); err != nil {
		return pfx.Err(err)
	}
	if err := f.Close(); err != nil {
		return pfx.Err(err)
	}
	return nil
}
