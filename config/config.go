package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type JWTConfig struct {
	SecretKey string `mapstructure:"secretKey"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

type GenerationConfig struct {
	DailyLimit  int           `mapstructure:"dailyLimit"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"apiKey"`
}

// StripePrices maps every plan/cycle pair to a processor price id.
type StripePrices struct {
	ProMonthly   string `mapstructure:"proMonthly"`
	ProYearly    string `mapstructure:"proYearly"`
	UltraMonthly string `mapstructure:"ultraMonthly"`
	UltraYearly  string `mapstructure:"ultraYearly"`
}

type StripeConfig struct {
	SecretKey     string        `mapstructure:"secretKey"`
	WebhookSecret string        `mapstructure:"webhookSecret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Prices        StripePrices  `mapstructure:"prices"`
}

type SecurityConfig struct {
	// SettingsKey is a 32 byte hex key used to seal custom API keys at rest.
	SettingsKey string `mapstructure:"settingsKey"`
}

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port      string `mapstructure:"port"`
			CertFile  string `mapstructure:"certFile"`
			KeyFile   string `mapstructure:"keyFile"`
			EnableTLS bool   `mapstructure:"enableTLS"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
		Redis struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort       string        `mapstructure:"HTTPPort"`
		Timeout        time.Duration `mapstructure:"HTTPTimeout"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	} `mapstructure:"server"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Generation GenerationConfig `mapstructure:"generation"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Security   SecurityConfig   `mapstructure:"security"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")
	v.AddConfigPath("/usr/local/bin")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Secrets come from the environment, e.g. STRIPE_SECRETKEY or GEMINI_APIKEY.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// AutomaticEnv only applies to keys viper already knows about, so bind the
	// secrets explicitly in case the yml leaves them out.
	for _, key := range []string{
		"jwt.secretKey",
		"gemini.apiKey",
		"stripe.secretKey",
		"stripe.webhookSecret",
		"security.settingsKey",
		"repositories.postgres.password",
		"repositories.redis.password",
	} {
		if err = v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// PriceFor resolves the processor price id for a plan/cycle pair.
// An empty string means the pair is not configured.
func (p StripePrices) PriceFor(plan, cycle string) string {
	switch {
	case plan == "PRO" && cycle == "monthly":
		return p.ProMonthly
	case plan == "PRO" && cycle == "yearly":
		return p.ProYearly
	case plan == "ULTRA" && cycle == "monthly":
		return p.UltraMonthly
	case plan == "ULTRA" && cycle == "yearly":
		return p.UltraYearly
	}
	return ""
}

// PlanForPrice is the reverse of PriceFor, used when webhook payloads only
// carry the price id.
func (p StripePrices) PlanForPrice(priceID string) (plan, cycle string, ok bool) {
	if priceID == "" {
		return "", "", false
	}
	switch priceID {
	case p.ProMonthly:
		return "PRO", "monthly", true
	case p.ProYearly:
		return "PRO", "yearly", true
	case p.UltraMonthly:
		return "ULTRA", "monthly", true
	case p.UltraYearly:
		return "ULTRA", "yearly", true
	}
	return "", "", false
}
