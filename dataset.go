package cocoyolo

// The dataset descriptor consumed by the training framework.

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DatasetFileName is the conventional file name of the dataset descriptor.
const DatasetFileName = "dataset.yaml"

// DatasetConfig describes a converted dataset: its root, the image directory of every subset
// relative to the root, and the class names in class index order.
type DatasetConfig struct {
	Path  string   `yaml:"path" validate:"required"`
	Train string   `yaml:"train" validate:"required"`
	Val   string   `yaml:"val" validate:"required"`
	Test  string   `yaml:"test,omitempty"`
	NC    int      `yaml:"nc" validate:"gt=0,eqfield=NumNames"`
	Names []string `yaml:"names" validate:"required,dive,required"`

	NumNames int `yaml:"-"`
}

// NewDatasetConfig returns the descriptor for a dataset written by the Converter to root.
func NewDatasetConfig(root string) DatasetConfig {
	names := ClassNames()
	return DatasetConfig{
		Path:     root,
		Train:    "images/train",
		Val:      "images/val",
		Test:     "images/test",
		NC:       len(names),
		Names:    names,
		NumNames: len(names),
	}
}

var validate = validator.New()

// Validate checks that the descriptor is complete and that nc matches the class names.
func (c DatasetConfig) Validate() error {
	c.NumNames = len(c.Names)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid dataset config: %w", err)
	}
	return nil
}

// WriteDatasetConfig validates cfg and writes it as YAML to path.
func WriteDatasetConfig(path string, cfg DatasetConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	enc, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}

// ReadDatasetConfig reads and validates the dataset descriptor at path.
func ReadDatasetConfig(path string) (DatasetConfig, error) {
	var cfg DatasetConfig
	enc, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(enc, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse dataset config %q: %v", path, err)
	}
	return cfg, cfg.Validate()
}
