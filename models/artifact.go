package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Metadata is what training recorded about a model besides its parameters.
type Metadata struct {
	// Accuracy is the held-out accuracy as a fraction in [0, 1]. Nil when
	// the artifact does not record one.
	Accuracy *float64 `yaml:"accuracy,omitempty"`
}

// modelFile is the on-disk form of a trained model. Columns is the training
// column list and must match the shared feature schema exactly.
type modelFile struct {
	Metadata     `yaml:",inline"`
	Kind         Kind      `yaml:"kind"`
	Columns      []string  `yaml:"columns"`
	Coefficients []float64 `yaml:"coefficients,omitempty"`
	Intercept    float64   `yaml:"intercept,omitempty"`
	Importances  []float64 `yaml:"importances,omitempty"`
	Trees        []Tree    `yaml:"trees,omitempty"`
}

// LoadModel reads a model artifact and builds the matching Classifier.
func LoadModel(path string) (Classifier, error) {
	m, _, err := loadModelFile(path)
	return m, err
}

func loadModelFile(path string) (Classifier, Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("failed to read model: %w", err)
	}
	return parseModelFile(data)
}

// ParseModel decodes a YAML model artifact.
func ParseModel(data []byte) (Classifier, error) {
	m, _, err := parseModelFile(data)
	return m, err
}

func parseModelFile(data []byte) (Classifier, Metadata, error) {
	var f modelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, Metadata{}, fmt.Errorf("failed to decode model: %w", err)
	}
	if err := f.Metadata.validate(); err != nil {
		return nil, Metadata{}, err
	}

	var (
		m   Classifier
		err error
	)
	switch f.Kind {
	case KindLogistic:
		m, err = NewLogistic(f.Columns, f.Coefficients, f.Intercept)
	case KindForest:
		m, err = NewForest(f.Columns, f.Trees, f.Importances)
	case "":
		err = fmt.Errorf("model kind is required")
	default:
		err = fmt.Errorf("unsupported model kind %q", f.Kind)
	}
	if err != nil {
		return nil, Metadata{}, err
	}
	return m, f.Metadata, nil
}

func (md Metadata) validate() error {
	if md.Accuracy != nil && (*md.Accuracy < 0 || *md.Accuracy > 1) {
		return fmt.Errorf("model accuracy must be within [0, 1], got %v", *md.Accuracy)
	}
	return nil
}
