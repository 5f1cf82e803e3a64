package configs

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "STOREFRONT_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
		WebDir   string `koanf:"web_dir"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		IdleTimeout     time.Duration `koanf:"idle_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	Store struct {
		Events string `koanf:"events"` // memory | postgres | dynamodb
		Reads  string `koanf:"reads"`  // memory | postgres | mongo
	} `koanf:"store"`

	Postgres struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	} `koanf:"postgres"`

	Dynamo struct {
		Region         string `koanf:"region"`
		Endpoint       string `koanf:"endpoint"`
		EventsTable    string `koanf:"events_table"`
		SnapshotsTable string `koanf:"snapshots_table"`
	} `koanf:"dynamodb"`

	Mongo struct {
		URI      string `koanf:"uri"`
		Database string `koanf:"database"`
	} `koanf:"mongo"`

	Bus struct {
		Driver string `koanf:"driver"` // inline | kafka | rabbitmq
	} `koanf:"bus"`

	Kafka struct {
		Brokers        []string `koanf:"brokers"`
		Topic          string   `koanf:"topic"`
		ProjectorGroup string   `koanf:"projector_group"`
		NotifierGroup  string   `koanf:"notifier_group"`
	} `koanf:"kafka"`

	Rabbit struct {
		URL            string `koanf:"url"`
		Exchange       string `koanf:"exchange"`
		ProjectorQueue string `koanf:"projector_queue"`
		NotifierQueue  string `koanf:"notifier_queue"`
	} `koanf:"rabbitmq"`

	Redis struct {
		Addr     string `koanf:"addr"` // empty keeps sessions and idempotency keys in memory
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Idempotency struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Session struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"session"`

	Security struct {
		JWTSecret  string        `koanf:"jwt_secret"`
		AccessTTL  time.Duration `koanf:"access_ttl"`
		RefreshTTL time.Duration `koanf:"refresh_ttl"`
	} `koanf:"security"`

	Admin struct {
		Email    string `koanf:"email"`
		Password string `koanf:"password"`
		Name     string `koanf:"name"`
	} `koanf:"admin"`

	Pricing struct {
		TaxRate           float64 `koanf:"tax_rate"`
		ServerShipping    string  `koanf:"server_shipping"` // flat | threshold
		ShippingFee       float64 `koanf:"shipping_fee"`
		FreeShippingAbove float64 `koanf:"free_shipping_above"`
	} `koanf:"pricing"`

	Checkout struct {
		ConfirmationURL string        `koanf:"confirmation_url"`
		RedirectAfter   time.Duration `koanf:"redirect_after"`
	} `koanf:"checkout"`

	Payment struct {
		Provider           string        `koanf:"provider"` // simulated | iyzico
		Currency           string        `koanf:"currency"`
		CallbackURL        string        `koanf:"callback_url"`
		ThreeDSCallbackURL string        `koanf:"three_ds_callback_url"`
		SuccessURL         string        `koanf:"success_url"`
		FailureURL         string        `koanf:"failure_url"`
		SimulatedSecret    string        `koanf:"simulated_secret"`
		SimulatedLatency   time.Duration `koanf:"simulated_latency"`

		Iyzico struct {
			BaseURL   string        `koanf:"base_url"`
			APIKey    string        `koanf:"api_key"`
			SecretKey string        `koanf:"secret_key"`
			Timeout   time.Duration `koanf:"timeout"`

			// DefaultIdentityNumber is sent for buyers without one.
			DefaultIdentityNumber string `koanf:"default_identity_number"`
		} `koanf:"iyzico"`
	} `koanf:"payment"`

	Email struct {
		Provider string `koanf:"provider"` // log | smtp | sendgrid | postmark
		From     string `koanf:"from"`
		FromName string `koanf:"from_name"`

		SMTP struct {
			Host     string `koanf:"host"`
			Port     string `koanf:"port"`
			Username string `koanf:"username"`
			Password string `koanf:"password"`
		} `koanf:"smtp"`

		SendGridAPIKey string `koanf:"sendgrid_api_key"`
		PostmarkToken  string `koanf:"postmark_token"`
	} `koanf:"email"`
}

// Load reads <dir>/base.yaml, then the optional <dir>/<envName>.yaml, then
// STOREFRONT_ environment variables, where "__" separates nesting levels
// (STOREFRONT_POSTGRES__DSN). A .env file in the working directory is
// loaded into the environment first.
func Load(dir, envName string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", dir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// Missing environment files are allowed for local runs.
	if envName != "" {
		_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", dir, envName)), yaml.Parser())
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	// Comma separated brokers are accepted from the environment.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.App.HTTPAddr == "" {
		errs = append(errs, errors.New("app.http_addr required"))
	}
	if len(c.Security.JWTSecret) < 32 {
		errs = append(errs, errors.New("security.jwt_secret must be at least 32 characters"))
	}

	switch c.Store.Events {
	case "memory", "":
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn required for postgres event store"))
		}
	case "dynamodb":
		if c.Dynamo.EventsTable == "" || c.Dynamo.SnapshotsTable == "" {
			errs = append(errs, errors.New("dynamodb.events_table and dynamodb.snapshots_table required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.events: unknown driver %q", c.Store.Events))
	}

	switch c.Store.Reads {
	case "memory", "":
	case "postgres":
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn required for postgres read store"))
		}
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.database required"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.reads: unknown driver %q", c.Store.Reads))
	}

	switch c.Bus.Driver {
	case "inline", "":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka.brokers and kafka.topic required"))
		}
	case "rabbitmq":
		if c.Rabbit.URL == "" || c.Rabbit.Exchange == "" {
			errs = append(errs, errors.New("rabbitmq.url and rabbitmq.exchange required"))
		}
	default:
		errs = append(errs, fmt.Errorf("bus.driver: unknown driver %q", c.Bus.Driver))
	}

	switch c.Payment.Provider {
	case "simulated", "":
	case "iyzico":
		if c.Payment.Iyzico.BaseURL == "" || c.Payment.Iyzico.APIKey == "" || c.Payment.Iyzico.SecretKey == "" {
			errs = append(errs, errors.New("payment.iyzico base_url, api_key and secret_key required"))
		}
	default:
		errs = append(errs, fmt.Errorf("payment.provider: unknown provider %q", c.Payment.Provider))
	}

	switch c.Pricing.ServerShipping {
	case "flat", "threshold", "":
	default:
		errs = append(errs, fmt.Errorf("pricing.server_shipping: unknown policy %q", c.Pricing.ServerShipping))
	}

	switch c.Email.Provider {
	case "log", "":
	case "smtp":
		if c.Email.SMTP.Host == "" {
			errs = append(errs, errors.New("email.smtp.host required"))
		}
	case "sendgrid":
		if c.Email.SendGridAPIKey == "" {
			errs = append(errs, errors.New("email.sendgrid_api_key required"))
		}
	case "postmark":
		if c.Email.PostmarkToken == "" {
			errs = append(errs, errors.New("email.postmark_token required"))
		}
	default:
		errs = append(errs, fmt.Errorf("email.provider: unknown provider %q", c.Email.Provider))
	}

	return errors.Join(errs...)
}
