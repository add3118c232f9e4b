package ledger

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PricingConfig parameterizes job pricing. Base costs differ per job kind;
// auth options are priced per option and any non-empty database selection
// adds one flat amount.
type PricingConfig struct {
	GenerationBase float64 `yaml:"generation_base"`
	EditBase       float64 `yaml:"edit_base"`
	AuthOptionUnit float64 `yaml:"auth_option_unit"`
	DatabaseFlat   float64 `yaml:"database_flat"`
}

// DefaultPricing returns the standard token pricing.
func DefaultPricing() PricingConfig {
	return PricingConfig{
		GenerationBase: 2.00,
		EditBase:       0.10,
		AuthOptionUnit: 2.00,
		DatabaseFlat:   1.00,
	}
}

// LoadPricing reads a pricing override file.
func LoadPricing(path string) (PricingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PricingConfig{}, fmt.Errorf("read pricing config: %w", err)
	}
	cfg := DefaultPricing()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PricingConfig{}, fmt.Errorf("parse pricing config: %w", err)
	}
	if cfg.GenerationBase < 0 || cfg.EditBase < 0 || cfg.AuthOptionUnit < 0 || cfg.DatabaseFlat < 0 {
		return PricingConfig{}, fmt.Errorf("pricing config: negative amounts are not allowed")
	}
	return cfg, nil
}

// LoadPricingOrDefault reads a pricing override file, falling back to the
// default pricing when the path is empty or unreadable.
func LoadPricingOrDefault(path string) PricingConfig {
	if path == "" {
		return DefaultPricing()
	}
	cfg, err := LoadPricing(path)
	if err != nil {
		return DefaultPricing()
	}
	return cfg
}
