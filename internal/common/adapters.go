package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

type AdapterConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type AdaptersConfig struct {
	Adapters []AdapterConfig `yaml:"adapters"`
}

// LoadAdapterConfig reads the adapter namespaces that deposit memos may name.
func LoadAdapterConfig(adaptersFile string) ([]AdapterConfig, error) {
	var adaptersPath string
	if filepath.IsAbs(adaptersFile) {
		adaptersPath = adaptersFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		adaptersPath = filepath.Join(wd, adaptersFile)
	}

	data, err := os.ReadFile(adaptersPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", adaptersFile, err)
	}

	var config AdaptersConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", adaptersFile, err)
	}

	seen := make(map[string]bool, len(config.Adapters))
	for i, adapter := range config.Adapters {
		if adapter.Name == "" {
			return nil, fmt.Errorf("adapter at index %d missing name", i)
		}
		if strings.ContainsAny(adapter.Name, "/ \t") {
			return nil, fmt.Errorf("adapter %q: name must not contain '/' or whitespace", adapter.Name)
		}
		if seen[adapter.Name] {
			return nil, fmt.Errorf("adapter %q listed twice", adapter.Name)
		}
		seen[adapter.Name] = true
	}

	return config.Adapters, nil
}

func LoadAdapterNames(adaptersFile string) ([]string, error) {
	adapters, err := LoadAdapterConfig(adaptersFile)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(adapters))
	for i, adapter := range adapters {
		names[i] = adapter.Name
	}

	return names, nil
}
