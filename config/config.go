package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"stika"`

	// PostgreSQL 配置
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"stika"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"30"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"200"`

	// Redis 配置
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"stika"`

	// RabbitMQ 配置
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置
	JWTSecret        string `env:"JWT_SECRET"` // 必填，用于签名 JWT
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"30"`
	JWTRefreshDays   int    `env:"JWT_REFRESH_DAYS" envDefault:"7"`

	// GPS 批量同步配置
	SyncBatchMaxSamples int `env:"SYNC_BATCH_MAX_SAMPLES" envDefault:"100"`
	SyncBatchErrorLimit int `env:"SYNC_BATCH_ERROR_LIMIT" envDefault:"20"` // error_log 中最多保留的条目数

	// 地理围栏配置
	GeofenceToleranceMeters float64 `env:"GEOFENCE_TOLERANCE_METERS" envDefault:"50"`

	// 工作会话配置
	SessionAbandonHours int `env:"SESSION_ABANDON_HOURS" envDefault:"12"` // 超过该时长仍 active 的会话标记为 abandoned

	// 收益配置
	EarningsCurrency string `env:"EARNINGS_CURRENCY" envDefault:"NGN"`

	// 照片验证配置
	VerificationImageMaxBytes     int64  `env:"VERIFICATION_IMAGE_MAX_BYTES" envDefault:"5242880"` // 5MB
	VerificationImageMinDimension int    `env:"VERIFICATION_IMAGE_MIN_DIMENSION" envDefault:"200"`
	VerificationResponseSeconds   int    `env:"VERIFICATION_RESPONSE_SECONDS" envDefault:"600"` // 提交窗口 10 分钟
	VerificationMediaDir          string `env:"VERIFICATION_MEDIA_DIR" envDefault:"./media/verifications"`
	VisionProvider                string `env:"VISION_PROVIDER" envDefault:"basic"` // basic, mock

	// 冷却窗口配置（秒）
	CooldownZoneJoinSeconds  int `env:"COOLDOWN_ZONE_JOIN_SECONDS" envDefault:"60"`
	CooldownSpotCheckSeconds int `env:"COOLDOWN_SPOT_CHECK_SECONDS" envDefault:"300"`
	CooldownManualSeconds    int `env:"COOLDOWN_MANUAL_SECONDS" envDefault:"0"`

	// 重复加入幂等窗口（分钟）：窗口内已有通过的加入验证则直接返回成功
	DuplicateJoinWindowMinutes int `env:"DUPLICATE_JOIN_WINDOW_MINUTES" envDefault:"60"`

	// 调度器配置
	SessionSweepMinutes        int  `env:"SESSION_SWEEP_MINUTES" envDefault:"30"`
	VerificationSweepMinutes   int  `env:"VERIFICATION_SWEEP_MINUTES" envDefault:"1"`
	SpotCheckDispatchEnabled   bool `env:"SPOT_CHECK_DISPATCH_ENABLED" envDefault:"true"`
	SpotCheckDispatchMinutes   int  `env:"SPOT_CHECK_DISPATCH_MINUTES" envDefault:"60"`
	SpotCheckMinSessionMinutes int  `env:"SPOT_CHECK_MIN_SESSION_MINUTES" envDefault:"60"` // 会话持续超过该时长才会被抽查

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// OpenTelemetry 配置
	OTLPEndpoint string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTLPSampler  float64 `env:"OTLP_SAMPLER" envDefault:"0.1"`

	// 速率限制配置, 配置在中间件内
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     int  `env:"RATE_LIMIT_RPS" envDefault:"100"` // 每秒请求数
}

func init() {

	if err := godotenv.Load(); err != nil {

		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.JWTSecret == "" {
		if Cfg.IsProduction() {
			log.Fatal("JWT_SECRET is required")
		}
		log.Printf("WARN: JWT_SECRET is not set, using insecure development default")
		Cfg.JWTSecret = "stika-dev-secret"
	}

	if Cfg.SyncBatchMaxSamples <= 0 {
		log.Fatal("SYNC_BATCH_MAX_SAMPLES must be positive")
	}

	if Cfg.GeofenceToleranceMeters < 0 {
		log.Fatal("GEOFENCE_TOLERANCE_METERS must not be negative")
	}

	if Cfg.VerificationImageMaxBytes <= 0 {
		log.Fatal("VERIFICATION_IMAGE_MAX_BYTES must be positive")
	}

	if Cfg.VerificationMediaDir == "" {
		log.Printf("WARN: VERIFICATION_MEDIA_DIR is not set, verification images will not be persisted")
	}
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
