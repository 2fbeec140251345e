package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/go-fnbtagger/internal/annotation"
	"github.com/example/go-fnbtagger/internal/tfrecord"
	"github.com/example/go-fnbtagger/internal/vocab"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig  `mapstructure:"paths"`
	Split    SplitConfig  `mapstructure:"split"`
	Vocab    VocabConfig  `mapstructure:"vocab"`
	Input    InputConfig  `mapstructure:"input"`
	Output   OutputConfig `mapstructure:"output"`
	LogLevel string       `mapstructure:"log_level"`
}

type PathsConfig struct {
	Input       string `mapstructure:"input"`
	OutputDir   string `mapstructure:"output_dir"`
	Train       string `mapstructure:"train"`
	Dev         string `mapstructure:"dev"`
	Test        string `mapstructure:"test"`
	TokensVocab string `mapstructure:"tokens_vocab"`
	LabelsVocab string `mapstructure:"labels_vocab"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// SplitConfig holds the two split decisions. Each pair must sum to 1.
// DevComplement is the share of training lines also written to dev.
type SplitConfig struct {
	TrainFraction float64 `mapstructure:"train_fraction"`
	TestFraction  float64 `mapstructure:"test_fraction"`
	DevFraction   float64 `mapstructure:"dev_fraction"`
	DevComplement float64 `mapstructure:"dev_complement"`
}

type VocabConfig struct {
	UnknownToken string `mapstructure:"unknown_token"`
	UnknownLabel string `mapstructure:"unknown_label"`
	Fallback     string `mapstructure:"fallback"`
}

type InputConfig struct {
	Malformed    string `mapstructure:"malformed"`
	MaxLineBytes int    `mapstructure:"max_line_bytes"`
}

type OutputConfig struct {
	Compression string `mapstructure:"compression"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			Input:       "data/annotations.txt",
			OutputDir:   "output",
			Train:       "train.tfrecords",
			Dev:         "dev.tfrecords",
			Test:        "test.tfrecords",
			TokensVocab: "tokens.vocab",
			LabelsVocab: "labels.vocab",
			MetricsFile: "",
		},
		Split: SplitConfig{
			TrainFraction: 0.9,
			TestFraction:  0.1,
			DevFraction:   0.9,
			DevComplement: 0.1,
		},
		Vocab: VocabConfig{
			UnknownToken: "unk",
			UnknownLabel: "O",
			Fallback:     "first",
		},
		Input: InputConfig{
			Malformed:    "lenient",
			MaxLineBytes: 1 << 20,
		},
		Output: OutputConfig{
			Compression: "none",
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-input", defaults.Paths.Input, "Annotated input file (one sentence of token/LABEL pairs per line)")
	fs.String("paths-output-dir", defaults.Paths.OutputDir, "Directory for record and vocabulary files")
	fs.String("paths-train", defaults.Paths.Train, "Train record file (relative to output dir)")
	fs.String("paths-dev", defaults.Paths.Dev, "Dev record file (relative to output dir)")
	fs.String("paths-test", defaults.Paths.Test, "Test record file (relative to output dir)")
	fs.String("paths-tokens-vocab", defaults.Paths.TokensVocab, "Token vocabulary file (relative to output dir)")
	fs.String("paths-labels-vocab", defaults.Paths.LabelsVocab, "Label vocabulary file (relative to output dir)")
	fs.String("metrics-file", defaults.Paths.MetricsFile, "Write run metrics in Prometheus text format to this file")
	fs.Float64("train-fraction", defaults.Split.TrainFraction, "Share of lines routed to train")
	fs.Float64("test-fraction", defaults.Split.TestFraction, "Share of lines routed to test")
	fs.Float64("dev-fraction", defaults.Split.DevFraction, "Share of train lines kept out of dev")
	fs.Float64("dev-complement", defaults.Split.DevComplement, "Share of train lines also written to dev")
	fs.String("unknown-token", defaults.Vocab.UnknownToken, "Token vocabulary entry for id 0")
	fs.String("unknown-label", defaults.Vocab.UnknownLabel, "Label vocabulary entry for id 0")
	fs.String("vocab-fallback", defaults.Vocab.Fallback, "Token returned for unassigned ids (first|unknown)")
	fs.String("malformed", defaults.Input.Malformed, "Handling of fields without token/LABEL form (lenient|skip|reject)")
	fs.Int("max-line-bytes", defaults.Input.MaxLineBytes, "Maximum input line length in bytes")
	fs.String("compression", defaults.Output.Compression, "Record file compression (none|gzip|zlib)")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("FNBTAGGER")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("fnbtagger")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// Validate checks enum values and sizes. Split sums are checked by the
// splitter itself when the pipeline is built.
func (c Config) Validate() error {
	var errs []error

	if _, err := vocab.ParseFallback(c.Vocab.Fallback); err != nil {
		errs = append(errs, err)
	}
	if _, err := annotation.ParsePolicy(c.Input.Malformed); err != nil {
		errs = append(errs, err)
	}
	if _, err := tfrecord.ParseCompression(c.Output.Compression); err != nil {
		errs = append(errs, err)
	}
	if c.Input.MaxLineBytes <= 0 {
		errs = append(errs, fmt.Errorf("input.max_line_bytes must be positive, got %d", c.Input.MaxLineBytes))
	}
	if c.Paths.Input == "" {
		errs = append(errs, errors.New("paths.input must not be empty"))
	}
	if c.Vocab.UnknownToken == "" {
		errs = append(errs, errors.New("vocab.unknown_token must not be empty"))
	}
	if c.Vocab.UnknownLabel == "" {
		errs = append(errs, errors.New("vocab.unknown_label must not be empty"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}

// ParseLogLevel maps a level name to a slog.Level. Unknown names return
// slog.LevelInfo together with an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.input", c.Paths.Input)
	v.SetDefault("paths.output_dir", c.Paths.OutputDir)
	v.SetDefault("paths.train", c.Paths.Train)
	v.SetDefault("paths.dev", c.Paths.Dev)
	v.SetDefault("paths.test", c.Paths.Test)
	v.SetDefault("paths.tokens_vocab", c.Paths.TokensVocab)
	v.SetDefault("paths.labels_vocab", c.Paths.LabelsVocab)
	v.SetDefault("paths.metrics_file", c.Paths.MetricsFile)
	v.SetDefault("split.train_fraction", c.Split.TrainFraction)
	v.SetDefault("split.test_fraction", c.Split.TestFraction)
	v.SetDefault("split.dev_fraction", c.Split.DevFraction)
	v.SetDefault("split.dev_complement", c.Split.DevComplement)
	v.SetDefault("vocab.unknown_token", c.Vocab.UnknownToken)
	v.SetDefault("vocab.unknown_label", c.Vocab.UnknownLabel)
	v.SetDefault("vocab.fallback", c.Vocab.Fallback)
	v.SetDefault("input.malformed", c.Input.Malformed)
	v.SetDefault("input.max_line_bytes", c.Input.MaxLineBytes)
	v.SetDefault("output.compression", c.Output.Compression)
	v.SetDefault("log_level", c.LogLevel)
}

// flagKeys maps each config key to the flag that overrides it.
var flagKeys = map[string]string{
	"paths.input":          "paths-input",
	"paths.output_dir":     "paths-output-dir",
	"paths.train":          "paths-train",
	"paths.dev":            "paths-dev",
	"paths.test":           "paths-test",
	"paths.tokens_vocab":   "paths-tokens-vocab",
	"paths.labels_vocab":   "paths-labels-vocab",
	"paths.metrics_file":   "metrics-file",
	"split.train_fraction": "train-fraction",
	"split.test_fraction":  "test-fraction",
	"split.dev_fraction":   "dev-fraction",
	"split.dev_complement": "dev-complement",
	"vocab.unknown_token":  "unknown-token",
	"vocab.unknown_label":  "unknown-label",
	"vocab.fallback":       "vocab-fallback",
	"input.malformed":      "malformed",
	"input.max_line_bytes": "max-line-bytes",
	"output.compression":   "compression",
	"log_level":            "log-level",
}

// bindFlags binds every registered flag to its nested key so that an unset
// flag does not shadow config file or env values.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}

	return nil
}
