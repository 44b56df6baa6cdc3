// Package config loads the immutable, process-wide configuration for the
// query engine: data directory roots, genome build/annotation versions,
// association-column conventions, and Manhattan binning tunables.
// Precedence, matching the original preprocessing configuration module:
// an explicit environment variable wins, then a value from a loaded YAML
// override file, then the hardcoded default.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GaglianoTaliun-Lab/PheWeb2-API/internal/paths"
	"gopkg.in/yaml.v3"
)

// ManhattanParams mirrors manhattan.Params but lives here so it can be
// loaded from YAML/env without internal/config importing internal/manhattan.
type ManhattanParams struct {
	PeakPvalThreshold float64 `yaml:"peak_pval_threshold"`
	PeakSprawlDist    int     `yaml:"peak_sprawl_dist"`
	PeakCountThresh   float64 `yaml:"peak_count_threshold"`
	PeakCap           int     `yaml:"peak_cap"`
	UnbinnedCap       int     `yaml:"unbinned_cap"`
	BinLength         int     `yaml:"bin_length"`
	QvalBinStart      float64 `yaml:"qval_bin_start"`
}

// Config is the complete set of tunables for one process. Reloading
// requires a process restart; there is no mutation path once loaded.
type Config struct {
	BaseDir string `yaml:"base_dir"`
	DataDir string `yaml:"data_dir"`

	HGBuildNumber  int    `yaml:"hg_build_number"`
	DBSNPVersion   string `yaml:"dbsnp_version"`
	GencodeVersion string `yaml:"gencode_version"`

	AssocTestNames      []string `yaml:"assoc_test_names"`
	InteractionTestName string   `yaml:"interaction_test_name"`
	AssocMinMAF         float64  `yaml:"assoc_min_maf"`
	InteractionMinMAC   int      `yaml:"interaction_min_mac"`
	InteractionMinMAF   float64  `yaml:"interaction_min_maf"`

	PvalIsNegLog10 bool    `yaml:"pval_is_neglog10"`
	MinImpQuality  float64 `yaml:"min_imp_quality"`

	EnableStratifications bool `yaml:"enable_stratifications"`

	WithinPhenoMaskAroundPeak  int     `yaml:"within_pheno_mask_around_peak"`
	BetweenPhenoMaskAroundPeak int     `yaml:"between_pheno_mask_around_peak"`
	TopHitsPvalCutoff          float64 `yaml:"top_hits_pval_cutoff"`

	CORSOrigins []string `yaml:"cors_origins"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	EnableDebug bool     `yaml:"enable_debug"`
	URLPrefix   string   `yaml:"url_prefix"`

	Manhattan ManhattanParams `yaml:"manhattan"`

	// FieldAliases maps raw header names (case-insensitive) to canonical
	// field names. An entry whose key has the form "file://PATH,FIELD"
	// instead names an external R²/imputation-quality file and the column
	// of it to join into "imp_quality"; its value must be "imp_quality".
	// That join runs at the offline build step that produces the region/
	// pheno_gz files this engine reads (imp_quality already sits in those
	// files by the time a query ever runs), so Load only validates the
	// alias's shape — it never opens PATH itself. See DESIGN.md.
	FieldAliases map[string]string `yaml:"field_aliases"`
}

// DefaultConfig returns the hardcoded baseline, matching the original
// preprocessing conf.py module's defaults.
func DefaultConfig() *Config {
	p := paths.Get()
	return &Config{
		BaseDir: p.BaseDir,
		DataDir: p.DataDir,

		HGBuildNumber:  38,
		DBSNPVersion:   "",
		GencodeVersion: "",

		AssocTestNames:      []string{"ADD"},
		InteractionTestName: "",
		AssocMinMAF:         0.0,
		InteractionMinMAC:   0,
		InteractionMinMAF:   0.0,

		PvalIsNegLog10: false,
		MinImpQuality:  0.3,

		EnableStratifications: false,

		WithinPhenoMaskAroundPeak:  200_000,
		BetweenPhenoMaskAroundPeak: 0,
		TopHitsPvalCutoff:          5e-8,

		CORSOrigins: []string{"*"},
		Host:        "0.0.0.0",
		Port:        8000,
		EnableDebug: false,
		URLPrefix:   "",

		Manhattan: ManhattanParams{
			PeakPvalThreshold: 1e-6,
			PeakSprawlDist:    200_000,
			PeakCountThresh:   5e-8,
			PeakCap:           500,
			UnbinnedCap:       500,
			BinLength:         3_000_000,
			QvalBinStart:      0.05,
		},

		FieldAliases: map[string]string{},
	}
}

// Load builds a Config by layering, in increasing precedence: the
// hardcoded default, a YAML override file at path (if it exists), then the
// environment variables read by applyEnvOverrides. The Manhattan tunables
// and FieldAliases have no environment override; they come only from the
// default or the YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.InteractionMinMAC > 0 && cfg.InteractionMinMAF > 0 {
		return nil, fmt.Errorf("INTERACTION_MIN_MAC and INTERACTION_MIN_MAF are mutually exclusive")
	}

	if err := validateFieldAliases(cfg.FieldAliases); err != nil {
		return nil, err
	}

	cfg.BaseDir = expandPath(cfg.BaseDir)
	cfg.DataDir = expandPath(cfg.DataDir)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PHEWEB_BASE_DIR"); v != "" {
		cfg.BaseDir = v
	}
	if v := os.Getenv("PHEWEB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("HG_BUILD_NUMBER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HGBuildNumber = n
		}
	}
	if v := os.Getenv("DBSNP_VERSION"); v != "" {
		cfg.DBSNPVersion = v
	}
	if v := os.Getenv("GENCODE_VERSION"); v != "" {
		cfg.GencodeVersion = v
	}
	if v := os.Getenv("ASSOC_TEST_NAME"); v != "" {
		cfg.AssocTestNames = strings.Split(v, ",")
	}
	if v := os.Getenv("INTERACTION_TEST_NAME"); v != "" {
		cfg.InteractionTestName = v
	}
	if v := os.Getenv("ASSOC_MIN_MAF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.AssocMinMAF = f
		}
	}
	if v := os.Getenv("INTERACTION_MIN_MAC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.InteractionMinMAC = n
		}
	}
	if v := os.Getenv("INTERACTION_MIN_MAF"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.InteractionMinMAF = f
		}
	}
	if v := os.Getenv("PVAL_IS_NEGLOG10"); v != "" {
		cfg.PvalIsNegLog10 = isTruthy(v)
	}
	if v := os.Getenv("MIN_IMP_QUALITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinImpQuality = f
		}
	}
	if v := os.Getenv("ENABLE_STRATIFICATIONS"); v != "" {
		cfg.EnableStratifications = isTruthy(v)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("ENABLE_DEBUG"); v != "" {
		cfg.EnableDebug = isTruthy(v)
	}
}

// validateFieldAliases checks the shape of any "file://PATH,FIELD" alias
// key naming an external imp_quality source, without opening PATH: the
// join itself happens upstream of this engine, at the build step that
// produces the region/pheno_gz files Load's caller goes on to read.
func validateFieldAliases(aliases map[string]string) error {
	for alias, field := range aliases {
		if !strings.HasPrefix(alias, "file://") {
			continue
		}
		if field != "imp_quality" {
			return fmt.Errorf("field alias %q must map to imp_quality, got %q", alias, field)
		}
		rest := strings.TrimPrefix(alias, "file://")
		path, col, ok := strings.Cut(rest, ",")
		if !ok || path == "" || col == "" {
			return fmt.Errorf("field alias %q must have the form file://PATH,FIELD", alias)
		}
	}
	return nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// Paths returns the paths.Paths derived from this config's directory roots.
func (c *Config) Paths() paths.Paths {
	return paths.Paths{BaseDir: c.BaseDir, DataDir: c.DataDir}
}

// DefaultConfigPath returns the config file path checked by "config show"
// and the serve command when no --config flag is given.
func DefaultConfigPath() string {
	if v := os.Getenv("PHEWEB_CONFIG"); v != "" {
		return v
	}
	if _, err := os.Stat("pheweb.yaml"); err == nil {
		return "pheweb.yaml"
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pheweb.yaml")
}
