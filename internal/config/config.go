package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	dues "feeledger/internal/dues/domain"
)

// Audit sinks.
const (
	AuditSinkPostgres = "postgres"
	AuditSinkKafka    = "kafka"
	AuditSinkNone     = "none"
)

// Config holds runtime configuration.
type Config struct {
	DatabaseURL     string   `validate:"required"`
	PolicyPath      string   `validate:"omitempty,file"`
	AuditSink       string   `validate:"oneof=postgres kafka none"`
	KafkaBrokers    []string `validate:"required_if=AuditSink kafka,dive,hostname_port"`
	KafkaAuditTopic string   `validate:"required_if=AuditSink kafka"`
	PushgatewayURL  string   `validate:"omitempty,url"`
	PushJob         string   `validate:"required"`
	Timezone        string
	Actor           string
	Policy          PolicyFile
}

// PolicyFile is the yaml layout of the billing policy.
type PolicyFile struct {
	MonthlyClasses      []string          `yaml:"monthly_classes"`
	RegistrationClasses []string          `yaml:"registration_classes"`
	ClassBands          map[string]string `yaml:"class_bands"`
	DefaultBand         string            `yaml:"default_band"`
	TransportFreeMonth  int               `yaml:"transport_free_month" validate:"min=0,max=12"`
	Timezone            string            `yaml:"timezone"`
}

// Load reads .env (when present), the environment and the optional policy file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		PolicyPath:      os.Getenv("FEELEDGER_CONFIG"),
		AuditSink:       strings.ToLower(getenvDefault("AUDIT_SINK", AuditSinkPostgres)),
		KafkaBrokers:    splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaAuditTopic: getenvDefault("KAFKA_AUDIT_TOPIC", "feeledger.audit"),
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		PushJob:         getenvDefault("PUSHGATEWAY_JOB", "feeledger"),
		Timezone:        os.Getenv("FEELEDGER_TIMEZONE"),
		Actor:           getenvDefault("FEELEDGER_ACTOR", getenvDefault("USER", "operator")),
	}

	if cfg.PolicyPath != "" {
		policy, err := LoadPolicyFile(cfg.PolicyPath)
		if err != nil {
			return cfg, err
		}
		cfg.Policy = policy
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadPolicyFile parses a yaml policy file.
func LoadPolicyFile(path string) (PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyFile{}, err
	}
	return ParsePolicy(data)
}

// ParsePolicy parses yaml policy content.
func ParsePolicy(data []byte) (PolicyFile, error) {
	var policy PolicyFile
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return PolicyFile{}, fmt.Errorf("config: parse policy: %w", err)
	}
	if err := validator.New().Struct(policy); err != nil {
		return PolicyFile{}, fmt.Errorf("config: invalid policy: %w", err)
	}
	return policy, nil
}

// Validate checks struct tags.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// BillingPolicy merges the policy file over the default policy. The
// FEELEDGER_TIMEZONE setting wins over the file's timezone.
func (c Config) BillingPolicy() (dues.Policy, error) {
	policy := dues.DefaultPolicy()
	file := c.Policy
	if len(file.MonthlyClasses) > 0 {
		policy.MonthlyClasses = file.MonthlyClasses
	}
	if len(file.RegistrationClasses) > 0 {
		policy.RegistrationClasses = file.RegistrationClasses
	}
	if len(file.ClassBands) > 0 {
		bands := make(map[string]string, len(file.ClassBands))
		for class, band := range file.ClassBands {
			bands[strings.ToUpper(strings.TrimSpace(class))] = band
		}
		policy.ClassBands = bands
	}
	if file.DefaultBand != "" {
		policy.DefaultBand = file.DefaultBand
	}
	if file.TransportFreeMonth != 0 {
		policy.TransportFreeMonth = time.Month(file.TransportFreeMonth)
	}

	zone := c.Timezone
	if zone == "" {
		zone = file.Timezone
	}
	if zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return dues.Policy{}, fmt.Errorf("config: timezone %q: %w", zone, err)
		}
		policy.Location = loc
	}
	if err := policy.Validate(); err != nil {
		return dues.Policy{}, err
	}
	return policy, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
