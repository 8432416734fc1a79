package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Log       Log       `mapstructure:"log"       validate:"required"`
	Telemetry Telemetry `mapstructure:"telemetry" validate:"required"`
	HTTP      HTTP      `mapstructure:"http"      validate:"required"`
	Registry  Registry  `mapstructure:"registry"  validate:"required"`
	Extract   Extract   `mapstructure:"extract"   validate:"required"`
	Nouns     Nouns     `mapstructure:"nouns"     validate:"required"`
	Batch     Batch     `mapstructure:"batch"`
}

type Log struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogDir   string `mapstructure:"log_dir"`
}

type Telemetry struct {
	Enabled     bool              `mapstructure:"enabled"`
	Exporter    string            `mapstructure:"exporter"     validate:"oneof=otlp stdout none"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"     validate:"omitempty,oneof=grpc http"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name" validate:"required"`
}

type HTTP struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Registry describes the upstream KIPRIS Plus endpoints.
type Registry struct {
	ServiceKey string        `mapstructure:"service_key" json:"-"`
	Timeout    time.Duration `mapstructure:"timeout"     validate:"required,gt=0"`
	Parallel   bool          `mapstructure:"parallel"`
	WordSearch string        `mapstructure:"word_search" validate:"required,url"`
	Cited      string        `mapstructure:"cited"       validate:"required,url"`
	Citing     string        `mapstructure:"citing"      validate:"required,url"`
	Family     string        `mapstructure:"family"      validate:"required,url"`
}

type Extract struct {
	NGramMin       int           `mapstructure:"ngram_min"       validate:"min=1"`
	NGramMax       int           `mapstructure:"ngram_max"       validate:"gtefield=NGramMin"`
	TopN           int           `mapstructure:"top_n"           validate:"min=1"`
	ThresholdRatio float64       `mapstructure:"threshold_ratio" validate:"gt=0,lte=1"`
	Embedder       string        `mapstructure:"embedder"        validate:"oneof=hashing remote"`
	Dimensions     int           `mapstructure:"dimensions"      validate:"min=16"`
	Model          string        `mapstructure:"model"`
	EmbeddingURL   string        `mapstructure:"embedding_url"   validate:"required_if=Embedder remote"`
	EmbeddingKey   string        `mapstructure:"embedding_key"   json:"-"`
	Timeout        time.Duration `mapstructure:"timeout"         validate:"gt=0"`
}

type Nouns struct {
	MinLength int  `mapstructure:"min_length" validate:"min=1"`
	KeepLatin bool `mapstructure:"keep_latin"`
}

type Batch struct {
	Workers   int    `mapstructure:"workers"    validate:"omitempty,min=1,max=32"`
	OutputCSV string `mapstructure:"output_csv"`
}

const (
	defaultWordSearch = "http://plus.kipris.or.kr/kipo-api/kipi/patUtiModInfoSearchSevice/getWordSearch"
	defaultCited      = "http://plus.kipris.or.kr/openapi/rest/CitationService/citationInfoV2"
	defaultCiting     = "http://plus.kipris.or.kr/openapi/rest/CitingService/citingInfo"
	defaultFamily     = "http://plus.kipris.or.kr/kipo-api/kipi/patFamInfoSearchService/getAppNoPatFamInfoSearch"
)

// Load reads configuration from the optional file, the environment (a .env
// file in the working directory is honored) and the given flags.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	// Missing .env is fine; existing process variables win.
	_ = gotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvPrefix("PATENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.patent-analyst")
		v.AddConfigPath("/etc/patent-analyst")
		v.SetConfigType("yaml")
	}

	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.log_dir", "")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "patent-analyst")
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 120*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("registry.service_key", "")
	v.SetDefault("registry.timeout", 15*time.Second)
	v.SetDefault("registry.parallel", false)
	v.SetDefault("registry.word_search", defaultWordSearch)
	v.SetDefault("registry.cited", defaultCited)
	v.SetDefault("registry.citing", defaultCiting)
	v.SetDefault("registry.family", defaultFamily)
	v.SetDefault("extract.ngram_min", 1)
	v.SetDefault("extract.ngram_max", 3)
	v.SetDefault("extract.top_n", 10)
	v.SetDefault("extract.threshold_ratio", 0.7)
	v.SetDefault("extract.embedder", "hashing")
	v.SetDefault("extract.dimensions", 512)
	v.SetDefault("extract.model", "jhgan/ko-sroberta-multitask")
	v.SetDefault("extract.embedding_url", "")
	v.SetDefault("extract.embedding_key", "")
	v.SetDefault("extract.timeout", 30*time.Second)
	v.SetDefault("nouns.min_length", 2)
	v.SetDefault("nouns.keep_latin", false)
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.output_csv", "./analysis.csv")

	// The credential is conventionally exported as KIPRIS_API_KEY.
	if err := v.BindEnv("registry.service_key", "PATENT_REGISTRY_SERVICE_KEY", "KIPRIS_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if !strings.Contains(f.Name, ".") || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
		// Not found is ok, use defaults/env
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint == "" {
		return Config{}, fmt.Errorf("telemetry.endpoint is required when using otlp exporter")
	}
	return cfg, nil
}
