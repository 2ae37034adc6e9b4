// Package config reads the settings shared by the example programs from the
// environment. Every variable carries the VARIATION_ prefix, for example
// VARIATION_CHUNK_SIZE=500.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/carbocation/variation"
	"github.com/carbocation/variation/ld"
	"github.com/carbocation/variation/vcf"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name.
const Prefix = "VARIATION"

// Backend selects the file format of paged stores.
type Backend uint32

const (
	BackendSQLite Backend = iota
	BackendBolt
)

func (b Backend) String() string {
	switch b {
	case BackendSQLite:
		return "sqlite"
	case BackendBolt:
		return "bolt"

	default:
		return "Illegal selection"
	}
}

// Decode lets envconfig parse a Backend.
func (b *Backend) Decode(value string) error {
	switch strings.ToLower(value) {
	case "sqlite", "":
		*b = BackendSQLite
	case "bolt", "bbolt":
		*b = BackendBolt
	default:
		return pfx.Err(fmt.Errorf("Unsupported backend %q", value))
	}
	return nil
}

type Config struct {
	ChunkSize       int                   `envconfig:"CHUNK_SIZE" default:"200"`
	PreReadMaxSize  int                   `envconfig:"PRE_READ_MAX_SIZE" default:"10485760"`
	Compression     variation.Compression `envconfig:"COMPRESSION" default:"zstd"`
	Backend         Backend               `envconfig:"BACKEND" default:"sqlite"`
	MinNumGenotypes int                   `envconfig:"MIN_NUM_GENOTYPES" default:"10"`
	MaxMAF          float64               `envconfig:"MAX_MAF" default:"0.95"`
	LogLevel        slog.Level            `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, pfx.Err(err)
	}
	if cfg.ChunkSize <= 0 {
		return nil, pfx.Err(fmt.Errorf("%s_CHUNK_SIZE must be positive, got %d", Prefix, cfg.ChunkSize))
	}
	return &cfg, nil
}

// Logger writes text logs to stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
}

func (c *Config) PagedOptions(mode variation.OpenMode) []func(o *variation.PagedOptions) {
	return []func(o *variation.PagedOptions){
		variation.WithCompression(c.Compression),
		variation.WithPageChunkSize(c.ChunkSize),
		variation.WithMode(mode),
	}
}

// OpenStore opens a paged store of the configured backend.
func (c *Config) OpenStore(path string, mode variation.OpenMode) (*variation.Paged, error) {
	var (
		s   *variation.Paged
		err error
	)
	switch c.Backend {
	case BackendBolt:
		s, err = variation.OpenBolt(path, c.PagedOptions(mode)...)
	default:
		s, err = variation.OpenSQLite(path, c.PagedOptions(mode)...)
	}
	if err != nil {
		return nil, pfx.Err(err)
	}
	return s, nil
}

func (c *Config) ParserOptions() []func(o *vcf.Options) {
	return []func(o *vcf.Options){
		vcf.WithPreReadMaxSize(c.PreReadMaxSize),
		vcf.WithLogger(c.Logger()),
	}
}

func (c *Config) LDOptions() []func(o *ld.Options) {
	return []func(o *ld.Options){
		ld.WithMinNumGenotypes(c.MinNumGenotypes),
		ld.WithMaxMAF(c.MaxMAF),
		ld.WithChunkSize(c.ChunkSize),
		ld.WithLogger(c.Logger()),
	}
}
