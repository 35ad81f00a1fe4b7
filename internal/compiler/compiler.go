// Package compiler is the front door of the compilation pipeline:
// protocol text in, executable command stream out. It runs parse,
// analyze and generate in sequence, records per-stage metrics, and
// caches results keyed by source, grammar version and device registry
// fingerprint.
package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/NK-639/ALHS-Backend/internal/analyzer"
	"github.com/NK-639/ALHS-Backend/internal/cache"
	"github.com/NK-639/ALHS-Backend/internal/codegen"
	"github.com/NK-639/ALHS-Backend/internal/device"
	"github.com/NK-639/ALHS-Backend/internal/gcode"
	"github.com/NK-639/ALHS-Backend/internal/ir"
	"github.com/NK-639/ALHS-Backend/internal/parser"
	"github.com/NK-639/ALHS-Backend/pkg/metrics"
)

// Result is one finished compilation.
type Result struct {
	// ID identifies this compilation for logs and the run archive.
	ID uuid.UUID `json:"id"`

	// SourceName is the protocol's file name or submission label.
	SourceName string `json:"source_name"`

	// Program is the analyzed intermediate form. Nil when the result
	// was decoded from cache; the stream alone suffices for execution.
	Program *ir.Program `json:"-"`

	// Stream is the executable command stream.
	Stream *gcode.CommandStream `json:"stream"`

	// GrammarVersion records the language revision the source was
	// parsed under.
	GrammarVersion string `json:"grammar_version"`

	// Cached reports whether the result came from the cache.
	Cached bool `json:"cached"`

	// Duration is the wall time of the pipeline, or of the cache
	// lookup for cached results.
	Duration time.Duration `json:"duration"`
}

// Config holds compiler configuration.
type Config struct {
	// Analyzer configures semantic analysis (error cap).
	Analyzer analyzer.Config

	// Codegen configures lowering (motion constants, feedrates).
	Codegen codegen.Config

	// CacheTTL bounds the lifetime of cached results. Zero uses the
	// cache backend's default.
	CacheTTL time.Duration
}

// DefaultConfig returns the default compiler configuration.
func DefaultConfig() Config {
	return Config{
		Analyzer: analyzer.DefaultConfig(),
		Codegen:  codegen.DefaultConfig(),
	}
}

// Compiler runs the pipeline against one device registry.
type Compiler struct {
	registry    device.Registry
	analyzer    *analyzer.Analyzer
	generator   *codegen.Generator
	cache       cache.Cache
	config      Config
	fingerprint string
	logger      *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCache attaches a compilation cache. Without one every Compile
// runs the full pipeline.
func WithCache(c cache.Cache) Option {
	return func(comp *Compiler) { comp.cache = c }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(comp *Compiler) { comp.logger = l }
}

// New creates a compiler for a device registry.
func New(registry device.Registry, cfg Config, opts ...Option) *Compiler {
	c := &Compiler{
		registry:    registry,
		analyzer:    analyzer.NewWithConfig(registry, cfg.Analyzer),
		generator:   codegen.NewWithConfig(cfg.Codegen),
		config:      cfg,
		fingerprint: Fingerprint(registry),
		logger:      slog.Default().With("component", "compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile runs the pipeline on protocol source text. Parse and
// semantic errors come back as the typed errors of their stages
// (*parser.SyntaxError, *analyzer.SemanticErrors, *codegen.LoweringError).
func (c *Compiler) Compile(ctx context.Context, sourceName, source string) (*Result, error) {
	start := time.Now()

	if cached := c.lookup(ctx, source); cached != nil {
		cached.SourceName = sourceName
		cached.Duration = time.Since(start)
		c.logger.Debug("compilation served from cache",
			"source", sourceName, "commands", cached.Stream.Len())
		return cached, nil
	}

	compileMetrics := metrics.Global().Compile()
	compileMetrics.IncActive()
	defer compileMetrics.DecActive()

	parseTimer := compileMetrics.NewStageTimer(metrics.StageParse)
	protocol, err := parser.ParseNamed(sourceName, source)
	parseTimer.Done(err)
	if err != nil {
		return nil, err
	}

	analyzeTimer := compileMetrics.NewStageTimer(metrics.StageAnalyze)
	program, err := c.analyzer.Analyze(protocol)
	analyzeTimer.Done(err)
	if err != nil {
		return nil, err
	}

	generateTimer := compileMetrics.NewStageTimer(metrics.StageGenerate)
	stream, err := c.generator.Generate(program)
	generateTimer.Done(err)
	if err != nil {
		return nil, err
	}

	compileMetrics.RecordStreamSize(stream.Len())

	result := &Result{
		ID:             uuid.New(),
		SourceName:     sourceName,
		Program:        program,
		Stream:         stream,
		GrammarVersion: parser.GrammarVersion,
		Duration:       time.Since(start),
	}
	c.store(ctx, source, result)

	c.logger.Info("protocol compiled",
		"source", sourceName,
		"compilation_id", result.ID.String(),
		"steps", len(program.Steps),
		"commands", stream.Len(),
		"duration", result.Duration,
	)
	return result, nil
}

// CompileFile reads and compiles a protocol file.
func (c *Compiler) CompileFile(ctx context.Context, path string) (*Result, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocol file: %w", err)
	}
	return c.Compile(ctx, path, string(source))
}

// =============================================================================
// Cache plumbing
// =============================================================================

// cachedResult is the cache encoding of a Result. The IR program is
// not stored; a cached hit yields the stream only.
type cachedResult struct {
	ID             uuid.UUID            `json:"id"`
	Stream         *gcode.CommandStream `json:"stream"`
	GrammarVersion string               `json:"grammar_version"`
}

func (c *Compiler) key(source string) string {
	return cache.Key(source, parser.GrammarVersion, c.fingerprint)
}

func (c *Compiler) lookup(ctx context.Context, source string) *Result {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.Get(ctx, c.key(source))
	if err != nil {
		return nil
	}
	var stored cachedResult
	if err := json.Unmarshal(data, &stored); err != nil {
		// A stale or corrupt entry is treated as a miss.
		_ = c.cache.Delete(ctx, c.key(source))
		return nil
	}
	return &Result{
		ID:             stored.ID,
		Stream:         stored.Stream,
		GrammarVersion: stored.GrammarVersion,
		Cached:         true,
	}
}

func (c *Compiler) store(ctx context.Context, source string, result *Result) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(cachedResult{
		ID:             result.ID,
		Stream:         result.Stream,
		GrammarVersion: result.GrammarVersion,
	})
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.key(source), data, c.config.CacheTTL); err != nil {
		c.logger.Warn("failed to cache compilation", "error", err)
	}
}

// Fingerprint derives a stable digest of a device registry. Any change
// to a device spec changes the fingerprint and therefore every cache
// key derived from it.
func Fingerprint(registry device.Registry) string {
	specs := registry.List()
	sorted := make([]*device.Spec, len(specs))
	copy(sorted, specs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	for _, spec := range sorted {
		data, err := json.Marshal(spec)
		if err != nil {
			fmt.Fprintf(h, "%s:unmarshalable", spec.Name)
			continue
		}
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
