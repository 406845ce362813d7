package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	AMQPURL          string `env:"AMQP_URL"`
	EventExchange    string `env:"EVENT_EXCHANGE" envDefault:"coop.events"`
	PayoutGatewayURL string `env:"PAYOUT_GATEWAY_URL" envDefault:"http://gateway:8090"`

	// Cron schedules for the batch jobs; the job bodies are also exposed as
	// HTTP trigger endpoints so an external scheduler can own timing.
	LoanDeductionSchedule string `env:"LOAN_DEDUCTION_SCHEDULE" envDefault:"0 2 * * *"`
	LoanDefaultSchedule   string `env:"LOAN_DEFAULT_SCHEDULE" envDefault:"30 2 * * *"`
	AutoSaveSchedule      string `env:"AUTO_SAVE_SCHEDULE" envDefault:"0 3 * * *"`
	PlanInterestSchedule  string `env:"PLAN_INTEREST_SCHEDULE" envDefault:"30 3 * * *"`
	PlanMaturitySchedule  string `env:"PLAN_MATURITY_SCHEDULE" envDefault:"0 4 * * *"`

	// Watermark window: an entity is due when its watermark is null or at
	// least this many days old.
	JobWindowDays int `env:"JOB_WINDOW_DAYS" envDefault:"30"`

	PayoutPollIntervalMS int `env:"PAYOUT_POLL_INTERVAL_MS" envDefault:"2000"`
	PayoutBatchSize      int `env:"PAYOUT_BATCH_SIZE" envDefault:"25"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
