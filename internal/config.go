package internal

import (
	"chat-relay/errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	ProviderTwilio = "twilio"
	ProviderMemory = "memory"

	BlobS3     = "s3"
	BlobBadger = "badger"
)

type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR,default=:8080" validate:"required"`
	DebugAddr string `env:"DEBUG_ADDR,default=localhost:8081"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true" validate:"required"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true" validate:"required"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES" validate:"omitempty,gt=0"`

	BufferSize           int           `env:"BUFFER_SIZE,default=256" validate:"gt=0"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"gt=0"`
	PublishTimeout       time.Duration `env:"PUBLISH_TIMEOUT,default=2s" validate:"gt=0"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s" validate:"gt=0"`
	TopicIdleTimeout     time.Duration `env:"TOPIC_IDLE_TIMEOUT,default=10m" validate:"gt=0"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s" validate:"gt=0"`
	ProvisioningTimeout  time.Duration `env:"PROVISIONING_TIMEOUT,default=10s" validate:"gt=0"`
	MediaTimeout         time.Duration `env:"MEDIA_TIMEOUT,default=30s" validate:"gt=0"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gt=0"`
	MaxUploadBytes       int64         `env:"MAX_UPLOAD_BYTES,default=26214400" validate:"gt=0"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=10s" validate:"gt=0"`
	LowCapacityThreshold float64       `env:"LOW_CAPACITY_THRESHOLD,default=0.8" validate:"gte=0,lte=1"`

	JWTSecret         string        `env:"JWT_SECRET,required=true" validate:"min=32"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h" validate:"gt=0"`

	Provider          string `env:"CONVERSATION_PROVIDER,default=memory" validate:"oneof=twilio memory"`
	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID" validate:"required_if=Provider twilio"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN" validate:"required_if=Provider twilio"`
	TwilioAPIKeySID   string `env:"TWILIO_API_KEY_SID" validate:"required_if=Provider twilio"`
	TwilioAPISecret   string `env:"TWILIO_API_SECRET" validate:"required_if=Provider twilio"`
	TwilioServiceSID  string `env:"TWILIO_CONVERSATION_SERVICE_SID" validate:"required_if=Provider twilio"`
	TwilioAdminRole   string `env:"TWILIO_ROLE_ADMIN_SID" validate:"required_if=Provider twilio"`
	TwilioMemberRole  string `env:"TWILIO_ROLE_MEMBER_SID" validate:"required_if=Provider twilio"`
	SyncUsersOnStart  bool   `env:"SYNC_USERS_ON_START,default=false"`

	BlobBackend string `env:"BLOB_BACKEND,default=badger" validate:"oneof=s3 badger"`
	S3Endpoint  string `env:"S3_ENDPOINT" validate:"required_if=BlobBackend s3"`
	S3Bucket    string `env:"S3_BUCKET" validate:"required_if=BlobBackend s3"`
	S3AccessKey string `env:"S3_ACCESS_KEY" validate:"required_if=BlobBackend s3"`
	S3SecretKey string `env:"S3_SECRET_KEY" validate:"required_if=BlobBackend s3"`
	S3Region    string `env:"S3_REGION,default=us-east-1"`
	S3UseSSL    bool   `env:"S3_USE_SSL,default=true"`

	AMQPURL      string `env:"AMQP_URL" validate:"omitempty,url"`
	AMQPExchange string `env:"AMQP_EXCHANGE,default=conversations" validate:"required_with=AMQPURL"`

	RedisAddr     string        `env:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDatabase int           `env:"REDIS_DB,default=0" validate:"gte=0"`
	PresenceTTL   time.Duration `env:"PRESENCE_TTL,default=2m" validate:"gt=0"`

	CensoredWordsDir string `env:"CENSORED_WORDS_DIR"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=5" validate:"gt=0"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=10" validate:"gt=0"`
}

// LoadConfig reads an optional .env file, then the environment, then checks
// cross-field rules. Variables already set in the environment win over the file.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("env file: %w", err)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
