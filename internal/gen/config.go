package gen

import (
	"errors"
	"fmt"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// CoercePath is the import path of the runtime package whose Func and
	// AssertFunc declarations are directives.
	CoercePath = "github.com/gnolang/coerce"

	DefaultConfigFile = ".coercegen.yaml"
)

// Config controls code generation.
type Config struct {
	// Output is the name of the generated file in each package directory.
	Output string `yaml:"output"`
	// BuildTag marks directive files, which must be constrained by
	// //go:build <tag>. The generated file gets //go:build !<tag>.
	BuildTag string `yaml:"build_tag"`
	// TempPrefix prefixes every identifier introduced by generated code.
	TempPrefix string `yaml:"temp_prefix"`
	// IgnorePaths lists glob patterns of package directories to skip.
	IgnorePaths []string `yaml:"ignore_paths,omitempty"`
	// MaxComplexity warns about generated functions whose cyclomatic
	// complexity exceeds it. Zero disables the warning.
	MaxComplexity int `yaml:"max_complexity"`
}

func DefaultConfig() Config {
	return Config{
		Output:        "coerce_gen.go",
		BuildTag:      "coercegen",
		TempPrefix:    "_cg",
		MaxComplexity: 15,
	}
}

// LoadConfig reads the configuration at path over the defaults. A missing
// file yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	def := DefaultConfig()
	if cfg.Output == "" {
		cfg.Output = def.Output
	}
	if cfg.BuildTag == "" {
		cfg.BuildTag = def.BuildTag
	}
	if cfg.TempPrefix == "" {
		cfg.TempPrefix = def.TempPrefix
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if filepath.Base(c.Output) != c.Output || !strings.HasSuffix(c.Output, ".go") {
		return fmt.Errorf("output %q must be a .go file name without directories", c.Output)
	}
	if strings.HasSuffix(c.Output, "_test.go") {
		return fmt.Errorf("output %q must not be a test file", c.Output)
	}
	if !token.IsIdentifier(c.BuildTag) {
		return fmt.Errorf("build tag %q is not a valid identifier", c.BuildTag)
	}
	if !strings.HasPrefix(c.TempPrefix, "_") || !token.IsIdentifier(c.TempPrefix) {
		return fmt.Errorf("temp prefix %q must be an identifier starting with _", c.TempPrefix)
	}
	if c.MaxComplexity < 0 {
		return fmt.Errorf("max complexity %d must not be negative", c.MaxComplexity)
	}
	for _, p := range c.IgnorePaths {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("ignore path %q: %w", p, err)
		}
	}
	return nil
}

// Write stores the configuration at path.
func (c Config) Write(path string) error {
	d, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, d, 0o644)
}

// Ignored reports whether the package directory dir matches IgnorePaths.
func (c Config) Ignored(dir string) bool {
	dir = filepath.ToSlash(filepath.Clean(dir))
	for _, p := range c.IgnorePaths {
		p = filepath.ToSlash(p)
		if ok, _ := filepath.Match(p, dir); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(dir)); ok {
			return true
		}
		if strings.HasPrefix(dir+"/", strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}
