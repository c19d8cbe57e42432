package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ContentFile is the YAML document shape for world content.
type ContentFile struct {
	Hosts         []Host         `yaml:"hosts"`
	Organizations []Organization `yaml:"organizations"`
	Contacts      []Contact      `yaml:"contacts"`
}

// LoadFile reads a world content YAML file and builds a registry from it.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world content: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes builds a registry from raw YAML.
func LoadBytes(data []byte) (*Registry, error) {
	var cf ContentFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse world content: %w", err)
	}
	return NewRegistry(cf.Hosts, cf.Organizations, cf.Contacts)
}
