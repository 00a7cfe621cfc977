// Package config loads scheduler configuration from YAML or CUE files.
//
// Both formats describe the same keys:
//
//	log_level:      debug | info | warn | error
//	queue_capacity: initial work queue capacity (>= 1)
//	auto_yield:     force-suspend every n-th checkpoint (0 disables)
//	lock_os_thread: pin the executor goroutine to its OS thread
//
// Keys left out of a file keep their Default() values. CUE files are
// unified with an embedded schema, so range errors carry file positions.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// MaxQueueCapacity bounds queue_capacity.
const MaxQueueCapacity = 1 << 20

// Config holds engine settings.
type Config struct {
	LogLevel      string
	QueueCapacity int
	AutoYield     int
	LockOSThread  bool
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:      "info",
		QueueCapacity: 64,
		AutoYield:     0,
		LockOSThread:  true,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if _, ok := parseLevel(c.LogLevel); !ok {
		return &Error{Field: "log_level", Message: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	if c.QueueCapacity < 1 || c.QueueCapacity > MaxQueueCapacity {
		return &Error{Field: "queue_capacity", Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxQueueCapacity, c.QueueCapacity)}
	}
	if c.AutoYield < 0 {
		return &Error{Field: "auto_yield", Message: fmt.Sprintf("must not be negative, got %d", c.AutoYield)}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Unknown levels map to Info.
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Error is a configuration problem, with a source position when the CUE
// evaluator reported one.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// file mirrors Config with optional fields so that omitted keys can be told
// apart from zero values.
type file struct {
	LogLevel      *string `yaml:"log_level" json:"log_level"`
	QueueCapacity *int    `yaml:"queue_capacity" json:"queue_capacity"`
	AutoYield     *int    `yaml:"auto_yield" json:"auto_yield"`
	LockOSThread  *bool   `yaml:"lock_os_thread" json:"lock_os_thread"`
}

func (f file) apply(c Config) Config {
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.QueueCapacity != nil {
		c.QueueCapacity = *f.QueueCapacity
	}
	if f.AutoYield != nil {
		c.AutoYield = *f.AutoYield
	}
	if f.LockOSThread != nil {
		c.LockOSThread = *f.LockOSThread
	}
	return c
}

// Load reads a configuration file. The format is chosen by extension:
// .yaml/.yml or .cue.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes data as the format implied by name's extension and
// merges it over Default().
func Parse(name string, data []byte) (Config, error) {
	var (
		f   file
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		f, err = decodeYAML(data)
	case ".cue":
		f, err = decodeCUE(name, data)
	default:
		return Config{}, &Error{Field: "file", Message: fmt.Sprintf("unsupported config format %q", ext)}
	}
	if err != nil {
		return Config{}, err
	}

	cfg := f.apply(Default())
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte) (file, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		// An empty document decodes to EOF; treat it as all defaults.
		if len(bytes.TrimSpace(data)) == 0 {
			return file{}, nil
		}
		return file{}, &Error{Field: "yaml", Message: err.Error()}
	}
	return f, nil
}

func decodeCUE(name string, data []byte) (file, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return file{}, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return file{}, formatCUEError(err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return file{}, formatCUEError(err)
	}

	var f file
	if err := unified.Decode(&f); err != nil {
		return file{}, formatCUEError(err)
	}
	return f, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "cue", Message: err.Error()}
	}

	first := errs[0]
	ce := &Error{Field: "cue", Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
