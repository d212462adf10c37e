package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/predmarket/internal/domain"
)

// Direcciones por defecto para simulación local.
const (
	DefaultMarketAddress   = "0x00000000000000000000000000000000000E5C40"
	DefaultResolverAddress = "0x00000000000000000000000000000000000000A0"
)

// Config es la configuración completa del mercado.
type Config struct {
	Market     MarketConfig     `yaml:"market"`
	Simulation SimulationConfig `yaml:"simulation"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// MarketConfig controla el market maker. Los importes van en tokens ("100", "0.000001").
type MarketConfig struct {
	Address          string `yaml:"address" validate:"required,eth_addr"`  // cuenta escrow del servicio
	Resolver         string `yaml:"resolver" validate:"required,eth_addr"` // única cuenta que puede resolver
	InitialLiquidity string `yaml:"initial_liquidity" validate:"required,numeric"`
	LiquidityParam   string `yaml:"liquidity_param" validate:"required,numeric"` // b del LMSR
	ShareTick        string `yaml:"share_tick" validate:"required,numeric"`      // granularidad de buyByAmount
}

// SimulationConfig controla el reloj simulado y el guion por defecto.
type SimulationConfig struct {
	Start          string  `yaml:"start" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"` // RFC3339; vacío = ahora
	Scenario       string  `yaml:"scenario"`
	StepsPerSecond float64 `yaml:"steps_per_second" validate:"gte=0"` // 0 = sin pausa
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn" validate:"required"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML. Con path vacío
// solo se aplican entorno y defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba formatos y que los importes sean positivos.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	if _, err := c.MarketAmounts(); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	if _, err := c.StartTime(); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	return nil
}

// Amounts son los parámetros del market maker en unidades base.
type Amounts struct {
	InitialLiquidity *big.Int
	LiquidityParam   *big.Int
	ShareTick        *big.Int
}

// MarketAmounts convierte los importes de la sección market a unidades base.
func (c *Config) MarketAmounts() (Amounts, error) {
	var errs []error
	parse := func(name, value string) *big.Int {
		amt, err := domain.ParseAmount(value)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("market.%s: %w", name, err))
		case amt.Sign() <= 0:
			errs = append(errs, fmt.Errorf("market.%s must be positive: %w", name, domain.ErrInvalidQuantity))
		}
		return amt
	}
	out := Amounts{
		InitialLiquidity: parse("initial_liquidity", c.Market.InitialLiquidity),
		LiquidityParam:   parse("liquidity_param", c.Market.LiquidityParam),
		ShareTick:        parse("share_tick", c.Market.ShareTick),
	}
	if err := errors.Join(errs...); err != nil {
		return Amounts{}, err
	}
	return out, nil
}

// MarketAddress devuelve la cuenta escrow del servicio.
func (c *Config) MarketAddress() common.Address {
	return common.HexToAddress(c.Market.Address)
}

// ResolverAddress devuelve la cuenta autorizada a resolver.
func (c *Config) ResolverAddress() common.Address {
	return common.HexToAddress(c.Market.Resolver)
}

// StartTime devuelve el instante inicial del reloj simulado (cero si no se configuró).
func (c *Config) StartTime() (time.Time, error) {
	if c.Simulation.Start == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.Simulation.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("simulation.start: %w", err)
	}
	return t.UTC(), nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PREDMARKET_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("PREDMARKET_RESOLVER"); v != "" {
		cfg.Market.Resolver = strings.TrimSpace(v)
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Market.Address == "" {
		cfg.Market.Address = DefaultMarketAddress
	}
	if cfg.Market.Resolver == "" {
		cfg.Market.Resolver = DefaultResolverAddress
	}
	if cfg.Market.InitialLiquidity == "" {
		cfg.Market.InitialLiquidity = "100"
	}
	if cfg.Market.LiquidityParam == "" {
		cfg.Market.LiquidityParam = "100"
	}
	if cfg.Market.ShareTick == "" {
		cfg.Market.ShareTick = "0.000001"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "predmarket.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
