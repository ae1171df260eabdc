package config

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type AppCfg struct {
	Name string
	Env  string
	Host string
	Port int
}

type LogCfg struct {
	Level string
}

type DBCfg struct {
	DSN         string
	MaxOpen     int
	MaxIdle     int
	AutoMigrate bool
}

type RedisCfg struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	TaskTTLSec int
}

type MQCfg struct {
	URL      string
	Exchange string
}

type S3Cfg struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
	SSE          string
}

type TelemetryCfg struct {
	Enabled      bool
	OtlpEndpoint string
	SampleRatio  float64
}

type AuthCfg struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
	Audience  string
}

type AICfg struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	GoogleAPIKey     string
	GoogleBaseURL    string
	TimeoutSec       int
	SystemPrompt     string
}

type ExecutorCfg struct {
	Workers              int
	QueueSize            int
	MaxTurns             int
	KeepRecentToolInputs int
}

type SchedulerCfg struct {
	PollIntervalSec int
}

type EffectorCfg struct {
	BaseURL    string
	TimeoutSec int
}

type GatewayCfg struct {
	AllowedOrigins  []string
	SendBuffer      int
	WriteTimeoutSec int
	PingIntervalSec int
}

type Config struct {
	App       AppCfg
	Log       LogCfg
	Database  DBCfg
	Redis     RedisCfg
	RabbitMQ  MQCfg
	S3        S3Cfg
	Telemetry TelemetryCfg
	Auth      AuthCfg
	AI        AICfg
	Executor  ExecutorCfg
	Scheduler SchedulerCfg
	Effector  EffectorCfg
	Gateway   GatewayCfg
}

func (c AICfg) Timeout() time.Duration {
	return seconds(c.TimeoutSec, 300*time.Second)
}

func (c SchedulerCfg) PollInterval() time.Duration {
	return seconds(c.PollIntervalSec, 10*time.Second)
}

func (c EffectorCfg) Timeout() time.Duration {
	return seconds(c.TimeoutSec, 60*time.Second)
}

func (c RedisCfg) TaskTTL() time.Duration {
	return seconds(c.TaskTTLSec, 5*time.Minute)
}

func (c GatewayCfg) WriteTimeout() time.Duration {
	return seconds(c.WriteTimeoutSec, 10*time.Second)
}

func (c GatewayCfg) PingInterval() time.Duration {
	return seconds(c.PingIntervalSec, 30*time.Second)
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

// Load reads configs/config.yaml (or ./config.yaml) when present, expands
// ${ENV} references in it, then layers APP_* environment variables and the
// conventional provider variables on top.
func Load() (*Config, error) {
	v, err := New()
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// New builds the viper instance behind Load. It is exposed so callers can
// Watch the same file.
func New() (*viper.Viper, error) {
	base := viper.New()
	base.SetConfigName("config")
	base.SetConfigType("yaml")
	base.AddConfigPath("./configs")
	base.AddConfigPath(".")
	if path := os.Getenv("APP_CONFIG"); path != "" {
		base.SetConfigFile(path)
	}
	bindEnv(base)

	if err := base.ReadInConfig(); err != nil {
		// No file is also allowed, using only env + default values
		return base, nil
	}

	// After finding the file, expand ${ENV} once and parse it again.
	path := base.ConfigFileUsed()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(raw))

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return nil, err
	}
	bindEnv(v)
	return v, nil
}

func Decode(v *viper.Viper) (*Config, error) {
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch calls onChange with the re-decoded config whenever the backing file
// is written. Decode failures are passed through so the caller can log them.
func Watch(v *viper.Viper, onChange func(*Config, error)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(Decode(v))
	})
	v.WatchConfig()
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("APP") // e.g. APP_APP_PORT -> app.port

	// conventional names, checked after the APP_ form
	_ = v.BindEnv("ai.anthropicApiKey", "APP_AI_ANTHROPICAPIKEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("ai.openaiApiKey", "APP_AI_OPENAIAPIKEY", "OPENAI_API_KEY")
	_ = v.BindEnv("ai.googleApiKey", "APP_AI_GOOGLEAPIKEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("database.dsn", "APP_DATABASE_DSN", "DATABASE_URL")
	_ = v.BindEnv("redis.addr", "APP_REDIS_ADDR", "REDIS_URL")
	_ = v.BindEnv("auth.jwtSecret", "APP_AUTH_JWTSECRET", "JWT_SECRET")

	setDefaults(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "taskrelay")
	v.SetDefault("app.env", "release")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 9991)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.maxOpen", 20)
	v.SetDefault("database.maxIdle", 5)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.taskTTLSec", 300)
	v.SetDefault("rabbitmq.exchange", "taskrelay.events")
	v.SetDefault("s3.region", "auto")
	v.SetDefault("s3.usePathStyle", true)
	v.SetDefault("telemetry.sampleRatio", 1.0)
	v.SetDefault("auth.issuer", "taskrelay")
	v.SetDefault("ai.anthropicBaseUrl", "https://api.anthropic.com")
	v.SetDefault("ai.googleBaseUrl", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("ai.timeoutSec", 300)
	v.SetDefault("ai.systemPrompt", DefaultSystemPrompt)
	v.SetDefault("executor.workers", 4)
	v.SetDefault("executor.queueSize", 256)
	v.SetDefault("executor.maxTurns", 50)
	v.SetDefault("executor.keepRecentToolInputs", 3)
	v.SetDefault("scheduler.pollIntervalSec", 10)
	v.SetDefault("effector.baseURL", "http://localhost:9990")
	v.SetDefault("effector.timeoutSec", 60)
	v.SetDefault("gateway.allowedOrigins", []string{"*"})
	v.SetDefault("gateway.sendBuffer", 64)
	v.SetDefault("gateway.writeTimeoutSec", 10)
	v.SetDefault("gateway.pingIntervalSec", 30)
}

const DefaultSystemPrompt = `You are an assistant operating a remote desktop on behalf of a user.
Use the computer tools to carry out the task step by step, taking a screenshot whenever you need to see the screen.
When the task is finished call set_task_status with "completed". If you are blocked and need the user, call it with "needs_help". If the task cannot be done, call it with "failed" and explain why.`
