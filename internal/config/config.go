package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	Env         string `env:"APP_ENV" envDefault:"development"`
	DatabaseDSN string `env:"DATABASE_DSN"`
	JWTSecret   string `env:"JWT_SECRET"`

	HeartbeatGrace time.Duration `env:"HEARTBEAT_GRACE" envDefault:"60s"`
	MemberGrace    time.Duration `env:"MEMBER_GRACE" envDefault:"5m"`
	RoomTTL        time.Duration `env:"ROOM_TTL" envDefault:"2h"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"30m"`

	BattleTurnTimeout     time.Duration `env:"BATTLE_TURN_TIMEOUT" envDefault:"0"`
	ScenarioChoiceTimeout time.Duration `env:"SCENARIO_CHOICE_TIMEOUT" envDefault:"0"`
	ScenarioMajority      float64       `env:"SCENARIO_MAJORITY" envDefault:"0.5"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load() // absent .env is fine
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
