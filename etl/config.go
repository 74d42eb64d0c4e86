package etl

import (
	"os"

	"gopkg.in/yaml.v3"
)

type FileConfig struct {
	// DB is the warehouse SQLite path.
	DB string `yaml:"db"`

	// SourceCSV is the processed online-retail extract read in windows.
	SourceCSV string `yaml:"source_csv"`

	// BatchSize is the fixed window width B. Defaults to 1000.
	BatchSize int `yaml:"batch_size"`

	Debug bool `yaml:"debug"`

	// APIAddr is the listen address of the read-only API server.
	APIAddr string `yaml:"api_addr"`
}

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
