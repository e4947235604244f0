package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	ServiceName string           `yaml:"service_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Store       StoreConfig      `yaml:"store"`
	Synthesis   SynthesisConfig  `yaml:"synthesis"`
	Transcribe  TranscribeConfig `yaml:"transcribe"`
	Extract     ExtractConfig    `yaml:"extract"`
	Presynth    PresynthConfig   `yaml:"presynth"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path             string `yaml:"path"`
	QuestionnaireDir string `yaml:"questionnaire_dir"`
	AudioDir         string `yaml:"audio_dir"`
}

// LocalVoice binds one language to a voice of the local neural pipeline.
type LocalVoice struct {
	PipelineCode string `yaml:"pipeline_code"`
	Voice        string `yaml:"voice"`
}

// LocalTTSConfig configures the self-contained neural synthesis pipeline.
// The pipeline runs as an external process speaking the exec JSON protocol.
type LocalTTSConfig struct {
	Enabled      bool                  `yaml:"enabled"`
	Command      string                `yaml:"command"`
	SampleRate   int                   `yaml:"sample_rate"`
	Speed        float64               `yaml:"speed"`
	SplitPattern string                `yaml:"split_pattern"`
	Languages    map[string]LocalVoice `yaml:"languages"`
}

// StreamVoice holds per-language generation parameters for the
// token-streaming API engine.
type StreamVoice struct {
	Model             string  `yaml:"model"`
	Voice             string  `yaml:"voice"`
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	MaxTokens         int     `yaml:"max_tokens"`
	RepetitionPenalty float64 `yaml:"repetition_penalty"`
	SampleRate        int     `yaml:"sample_rate"`
}

// StreamTTSConfig configures the token-streaming API engine and the paired
// codec used to turn token windows into PCM.
type StreamTTSConfig struct {
	Enabled        bool                   `yaml:"enabled"`
	BaseURL        string                 `yaml:"base_url"`
	EndpointPath   string                 `yaml:"endpoint_path"`
	TimeoutSeconds int                    `yaml:"timeout_seconds"`
	DecoderCommand string                 `yaml:"decoder_command"`
	Languages      map[string]StreamVoice `yaml:"languages"`
}

type SynthesisConfig struct {
	TempDir string          `yaml:"temp_dir"`
	Local   LocalTTSConfig  `yaml:"local"`
	Stream  StreamTTSConfig `yaml:"stream"`
}

// RecognizerConfig configures one speech recognition backend.
type RecognizerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
}

type TranscribeConfig struct {
	Multilingual RecognizerConfig `yaml:"multilingual"`
	English      RecognizerConfig `yaml:"english"`
}

type ExtractConfig struct {
	Enabled     bool   `yaml:"enabled"`
	OCRCommand  string `yaml:"ocr_command"`
	OCRLanguage string `yaml:"ocr_language"`
	Endpoint    string `yaml:"endpoint"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
}

type PresynthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	WorkerURL string `yaml:"worker_url"`
	Language  string `yaml:"language"`
}

func Default() Config {
	return Config{
		ServiceName: "voxform",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8087,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:             "./data/voxform.db",
			QuestionnaireDir: "./questionnaires",
			AudioDir:         "./data/audio",
		},
		Synthesis: SynthesisConfig{
			TempDir: "",
			Local: LocalTTSConfig{
				Enabled:      false,
				SampleRate:   24000,
				Speed:        1.0,
				SplitPattern: `\n+`,
				Languages: map[string]LocalVoice{
					"en": {PipelineCode: "a", Voice: "af_heart"},
					"de": {PipelineCode: "d", Voice: "df_heart"},
				},
			},
			Stream: StreamTTSConfig{
				Enabled:        false,
				BaseURL:        "http://localhost:1234/v1",
				EndpointPath:   "/completions",
				TimeoutSeconds: 120,
				Languages: map[string]StreamVoice{
					"en": {
						Model:             "orpheus-3b-0.1-ft",
						Voice:             "tara",
						Temperature:       0.7,
						TopP:              0.9,
						MaxTokens:         2048,
						RepetitionPenalty: 1.1,
						SampleRate:        24000,
					},
					"de": {
						Model:             "3b-de-ft-research_release",
						Voice:             "jana",
						Temperature:       0.7,
						TopP:              0.9,
						MaxTokens:         2048,
						RepetitionPenalty: 1.1,
						SampleRate:        24000,
					},
				},
			},
		},
		Transcribe: TranscribeConfig{
			Multilingual: RecognizerConfig{Enabled: false},
			English:      RecognizerConfig{Enabled: false},
		},
		Extract: ExtractConfig{
			Enabled:     false,
			OCRLanguage: "deu",
			Endpoint:    "https://openrouter.ai/api/v1",
			Model:       "google/gemini-2.5-flash-preview",
		},
		Presynth: PresynthConfig{
			Enabled:   false,
			WorkerURL: "http://localhost:8087",
			Language:  "de",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "VOXFORM_SERVICE_NAME")
	overrideString(&cfg.Environment, "VOXFORM_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXFORM_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXFORM_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXFORM_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXFORM_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXFORM_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXFORM_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VOXFORM_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXFORM_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "VOXFORM_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "VOXFORM_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXFORM_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXFORM_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXFORM_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXFORM_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXFORM_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "VOXFORM_STORE_PATH")
	overrideString(&cfg.Store.QuestionnaireDir, "VOXFORM_STORE_QUESTIONNAIRE_DIR")
	overrideString(&cfg.Store.AudioDir, "VOXFORM_STORE_AUDIO_DIR")
	overrideString(&cfg.Synthesis.TempDir, "VOXFORM_SYNTHESIS_TEMP_DIR")
	overrideBool(&cfg.Synthesis.Local.Enabled, "VOXFORM_LOCAL_TTS_ENABLED")
	overrideString(&cfg.Synthesis.Local.Command, "VOXFORM_LOCAL_TTS_COMMAND")
	overrideInt(&cfg.Synthesis.Local.SampleRate, "VOXFORM_LOCAL_TTS_SAMPLE_RATE")
	overrideFloat(&cfg.Synthesis.Local.Speed, "VOXFORM_LOCAL_TTS_SPEED")
	overrideString(&cfg.Synthesis.Local.SplitPattern, "VOXFORM_LOCAL_TTS_SPLIT_PATTERN")
	overrideBool(&cfg.Synthesis.Stream.Enabled, "VOXFORM_STREAM_TTS_ENABLED")
	overrideString(&cfg.Synthesis.Stream.BaseURL, "VOXFORM_STREAM_TTS_BASE_URL")
	overrideString(&cfg.Synthesis.Stream.EndpointPath, "VOXFORM_STREAM_TTS_ENDPOINT_PATH")
	overrideInt(&cfg.Synthesis.Stream.TimeoutSeconds, "VOXFORM_STREAM_TTS_TIMEOUT_SECONDS")
	overrideString(&cfg.Synthesis.Stream.DecoderCommand, "VOXFORM_STREAM_TTS_DECODER_COMMAND")
	overrideBool(&cfg.Transcribe.Multilingual.Enabled, "VOXFORM_STT_MULTILINGUAL_ENABLED")
	overrideString(&cfg.Transcribe.Multilingual.Command, "VOXFORM_STT_MULTILINGUAL_COMMAND")
	overrideString(&cfg.Transcribe.Multilingual.ModelPath, "VOXFORM_STT_MULTILINGUAL_MODEL_PATH")
	overrideBool(&cfg.Transcribe.English.Enabled, "VOXFORM_STT_ENGLISH_ENABLED")
	overrideString(&cfg.Transcribe.English.Command, "VOXFORM_STT_ENGLISH_COMMAND")
	overrideString(&cfg.Transcribe.English.ModelPath, "VOXFORM_STT_ENGLISH_MODEL_PATH")
	overrideBool(&cfg.Extract.Enabled, "VOXFORM_EXTRACT_ENABLED")
	overrideString(&cfg.Extract.OCRCommand, "VOXFORM_EXTRACT_OCR_COMMAND")
	overrideString(&cfg.Extract.OCRLanguage, "VOXFORM_EXTRACT_OCR_LANGUAGE")
	overrideString(&cfg.Extract.Endpoint, "VOXFORM_EXTRACT_ENDPOINT")
	overrideString(&cfg.Extract.APIKey, "VOXFORM_EXTRACT_API_KEY")
	overrideString(&cfg.Extract.Model, "VOXFORM_EXTRACT_MODEL")
	overrideBool(&cfg.Presynth.Enabled, "VOXFORM_PRESYNTH_ENABLED")
	overrideString(&cfg.Presynth.WorkerURL, "VOXFORM_PRESYNTH_WORKER_URL")
	overrideString(&cfg.Presynth.Language, "VOXFORM_PRESYNTH_LANGUAGE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Synthesis.Local.Enabled {
		if cfg.Synthesis.Local.Command == "" {
			return errors.New("synthesis.local.command must be set when the local engine is enabled")
		}
		if cfg.Synthesis.Local.SampleRate <= 0 {
			return errors.New("synthesis.local.sample_rate must be positive")
		}
	}
	if cfg.Synthesis.Stream.Enabled {
		if cfg.Synthesis.Stream.BaseURL == "" {
			return errors.New("synthesis.stream.base_url must be set when the streaming engine is enabled")
		}
		if cfg.Synthesis.Stream.DecoderCommand == "" {
			return errors.New("synthesis.stream.decoder_command must be set when the streaming engine is enabled")
		}
		if cfg.Synthesis.Stream.TimeoutSeconds <= 0 {
			return errors.New("synthesis.stream.timeout_seconds must be positive")
		}
	}
	if cfg.Transcribe.Multilingual.Enabled && cfg.Transcribe.Multilingual.Command == "" {
		return errors.New("transcribe.multilingual.command must be set when enabled")
	}
	if cfg.Transcribe.English.Enabled && cfg.Transcribe.English.Command == "" {
		return errors.New("transcribe.english.command must be set when enabled")
	}
	return nil
}

// StreamURL joins the streaming API base URL and endpoint path.
func (c StreamTTSConfig) StreamURL() string {
	return strings.TrimRight(c.BaseURL, "/") + c.EndpointPath
}
