// Package config merges defaults, the YAML request file, special params,
// environment and command-line overrides into a single Config value.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultRequestFile is read from the working directory when present
	DefaultRequestFile = "cliRequestsData_Dream.yml"

	// DefaultHorde is the public AI Horde
	DefaultHorde = "https://aihorde.net"

	// DefaultAPIKey is the anonymous key
	DefaultAPIKey = "0000000000"
)

var validate = validator.New()

// Config is the fully merged request configuration.
type Config struct {
	// Horde is the base URL of the service
	Horde string `validate:"required,url"`

	// APIKey authenticates the request
	APIKey string `validate:"required"`

	// ClientAgent overrides the Client-Agent header when set
	ClientAgent string

	// Filename is where results are written (prefixed with the index for n > 1)
	Filename string `validate:"required"`

	// Params are the generation parameters (n, width, height, steps, sampler_name, ...)
	Params map[string]any

	Prompt           string   `validate:"required"`
	NSFW             bool
	CensorNSFW       bool
	TrustedWorkers   bool
	Models           []string `validate:"required,min=1,dive,required"`
	R2               bool
	DryRun           bool
	SourceImage      string
	SourceMask       string
	SourceProcessing string `validate:"oneof=img2img inpainting outpainting"`
}

// DefaultConfig returns the built-in request.
func DefaultConfig() *Config {
	return &Config{
		Horde:    DefaultHorde,
		APIKey:   DefaultAPIKey,
		Filename: "witch_dream.png",
		Params: map[string]any{
			"n":                  2,
			"width":              64 * 8,
			"height":             64 * 8,
			"steps":              20,
			"sampler_name":       "k_euler_a",
			"cfg_scale":          7.5,
			"denoising_strength": 0.6,
		},
		Prompt:           "a horde of cute stable robots in a sprawling server room repairing a massive mainframe",
		Models:           []string{"stable_diffusion"},
		R2:               true,
		SourceProcessing: "img2img",
	}
}

// LoadOptions locates the optional configuration sources.
type LoadOptions struct {
	// RequestFile is the YAML request file; a missing file is not an error
	RequestFile string

	// SpecialDir is searched for special.yml and special.json (default: ".")
	SpecialDir string

	// EnvFile is a dotenv file; a missing file is not an error (default: ".env")
	EnvFile string
}

// requestFile mirrors the YAML request file layout.
type requestFile struct {
	ClientAgent      string         `yaml:"client_agent"`
	APIKey           string         `yaml:"api_key"`
	Filename         string         `yaml:"filename"`
	ImgenParams      map[string]any `yaml:"imgen_params"`
	SubmitDict       submitDict     `yaml:"submit_dict"`
	SourceImage      string         `yaml:"source_image"`
	SourceProcessing string         `yaml:"source_processing"`
	SourceMask       string         `yaml:"source_mask"`
	Horde            string         `yaml:"horde"`
}

type submitDict struct {
	Prompt         *string  `yaml:"prompt"`
	NSFW           *bool    `yaml:"nsfw"`
	CensorNSFW     *bool    `yaml:"censor_nsfw"`
	TrustedWorkers *bool    `yaml:"trusted_workers"`
	Models         []string `yaml:"models"`
	R2             *bool    `yaml:"r2"`
	DryRun         *bool    `yaml:"dry_run"`
}

// Load builds a Config from defaults, the request file, special params and the
// environment. Command-line overrides are applied afterwards with Apply.
func Load(opts LoadOptions) (*Config, error) {
	if opts.SpecialDir == "" {
		opts.SpecialDir = "."
	}
	if opts.EnvFile == "" {
		opts.EnvFile = ".env"
	}

	cfg := DefaultConfig()

	if opts.RequestFile != "" {
		if err := cfg.mergeRequestFile(opts.RequestFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.mergeSpecial(opts.SpecialDir); err != nil {
		return nil, err
	}

	if err := cfg.mergeEnv(opts.EnvFile); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) mergeRequestFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not read request file %s: %w", path, err)
	}

	var rf requestFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("could not parse request file %s: %w", path, err)
	}

	setString(&c.ClientAgent, rf.ClientAgent)
	setString(&c.APIKey, rf.APIKey)
	setString(&c.Filename, rf.Filename)
	setString(&c.SourceImage, rf.SourceImage)
	setString(&c.SourceProcessing, rf.SourceProcessing)
	setString(&c.SourceMask, rf.SourceMask)
	setString(&c.Horde, rf.Horde)
	maps.Copy(c.Params, rf.ImgenParams)

	sd := rf.SubmitDict
	if sd.Prompt != nil {
		c.Prompt = *sd.Prompt
	}
	setBool(&c.NSFW, sd.NSFW)
	setBool(&c.CensorNSFW, sd.CensorNSFW)
	setBool(&c.TrustedWorkers, sd.TrustedWorkers)
	setBool(&c.R2, sd.R2)
	setBool(&c.DryRun, sd.DryRun)
	if len(sd.Models) > 0 {
		c.Models = slices.Clone(sd.Models)
	}
	return nil
}

// mergeSpecial loads special.yml, then special.json, into params.special.
// JSON is valid YAML, so both go through the same decoder; json wins.
func (c *Config) mergeSpecial(dir string) error {
	for _, name := range []string{"special.yml", "special.json"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("could not read %s: %w", path, err)
		}
		var special map[string]any
		if err := yaml.Unmarshal(data, &special); err != nil {
			return fmt.Errorf("could not parse %s: %w", path, err)
		}
		c.Params["special"] = special
	}
	return nil
}

// mergeEnv applies HORDE_API_KEY and HORDE_URL. Real environment variables
// take precedence over the dotenv file.
func (c *Config) mergeEnv(envFile string) error {
	fileEnv, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("could not read %s: %w", envFile, err)
		}
		fileEnv = map[string]string{}
	}

	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fileEnv[key]
	}
	setString(&c.APIKey, lookup("HORDE_API_KEY"))
	setString(&c.Horde, lookup("HORDE_URL"))
	return nil
}

// Overrides are command-line values; nil fields leave the config unchanged.
type Overrides struct {
	APIKey           *string
	Filename         *string
	Amount           *int
	Width            *int
	Height           *int
	Steps            *int
	Prompt           *string
	Model            *string
	Horde            *string
	NSFW             *bool
	CensorNSFW       *bool
	TrustedWorkers   *bool
	SourceImage      *string
	SourceProcessing *string
	SourceMask       *string
	DryRun           *bool
}

// Apply layers command-line overrides on top of the loaded config.
func (c *Config) Apply(o Overrides) {
	if o.APIKey != nil {
		c.APIKey = *o.APIKey
	}
	if o.Filename != nil {
		c.Filename = *o.Filename
	}
	if o.Amount != nil {
		c.Params["n"] = *o.Amount
	}
	if o.Width != nil {
		c.Params["width"] = *o.Width
	}
	if o.Height != nil {
		c.Params["height"] = *o.Height
	}
	if o.Steps != nil {
		c.Params["steps"] = *o.Steps
	}
	if o.Prompt != nil {
		c.Prompt = *o.Prompt
	}
	if o.Model != nil {
		c.Models = []string{*o.Model}
	}
	if o.Horde != nil {
		c.Horde = *o.Horde
	}
	setBool(&c.NSFW, o.NSFW)
	setBool(&c.CensorNSFW, o.CensorNSFW)
	setBool(&c.TrustedWorkers, o.TrustedWorkers)
	setBool(&c.DryRun, o.DryRun)
	if o.SourceImage != nil {
		c.SourceImage = *o.SourceImage
	}
	if o.SourceProcessing != nil {
		c.SourceProcessing = *o.SourceProcessing
	}
	if o.SourceMask != nil {
		c.SourceMask = *o.SourceMask
	}
}

// Validate checks that the configuration can be submitted.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if n, ok := IntParam(c.Params, "n"); ok && n < 1 {
		return ErrInvalidAmount
	}
	if steps, ok := IntParam(c.Params, "steps"); ok && steps < 1 {
		return ErrInvalidSteps
	}
	for _, key := range []string{"width", "height"} {
		if v, ok := IntParam(c.Params, key); ok && (v <= 0 || v%64 != 0) {
			return fmt.Errorf("%w: %s=%d", ErrInvalidDimensions, key, v)
		}
	}
	if c.SourceMask != "" && c.SourceImage == "" {
		return ErrMaskWithoutImage
	}
	return nil
}

// Amount returns params.n, defaulting to 1.
func (c *Config) Amount() int {
	if n, ok := IntParam(c.Params, "n"); ok && n > 0 {
		return n
	}
	return 1
}

// IntParam reads an integer-valued parameter regardless of how it was decoded.
func IntParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
