package ip

import (
	_ "embed"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultTOML is the built-in provider table.
//
//go:embed providers.toml
var DefaultTOML string

type table struct {
	Providers []tableEntry `toml:"providers" yaml:"providers"`
}

type tableEntry struct {
	Name          string   `toml:"name" yaml:"name"`
	PType         string   `toml:"ptype" yaml:"ptype"`
	AddressFamily string   `toml:"address_family" yaml:"address_family"`
	Protocol      string   `toml:"protocol" yaml:"protocol"`
	Format        string   `toml:"format" yaml:"format"`
	URL           string   `toml:"url" yaml:"url"`
	Key           []string `toml:"key" yaml:"key"`
	Padding       string   `toml:"padding" yaml:"padding"`
	Record        string   `toml:"record" yaml:"record"`
}

// ParseTOML decodes a provider table. Unknown fields are rejected.
func ParseTOML(text string) ([]Descriptor, error) {
	var t table
	if err := toml.NewDecoder(strings.NewReader(text)).DisallowUnknownFields().Decode(&t); err != nil {
		return nil, &ConfigError{Err: errors.Wrap(err, "decode toml")}
	}
	return t.descriptors()
}

// ParseYAML decodes a provider table written in YAML.
func ParseYAML(text string) ([]Descriptor, error) {
	var t table
	dec := yaml.NewDecoder(strings.NewReader(text))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ConfigError{Err: errors.Wrap(err, "decode yaml")}
	}
	return t.descriptors()
}

// FromTOML builds a provider set from a TOML provider table.
func FromTOML(text string, opts ...Option) (*Any, error) {
	descriptors, err := ParseTOML(text)
	if err != nil {
		return nil, err
	}
	return New(descriptors, opts...)
}

// FromYAML builds a provider set from a YAML provider table.
func FromYAML(text string, opts ...Option) (*Any, error) {
	descriptors, err := ParseYAML(text)
	if err != nil {
		return nil, err
	}
	return New(descriptors, opts...)
}

// Default builds a provider set from DefaultTOML.
func Default(opts ...Option) (*Any, error) {
	return FromTOML(DefaultTOML, opts...)
}

func (t table) descriptors() ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(t.Providers))
	for i, e := range t.Providers {
		d, err := e.descriptor()
		if err != nil {
			return nil, &ConfigError{Err: errors.Wrapf(err, "providers[%d]", i)}
		}
		if err := d.Validate(); err != nil {
			return nil, &ConfigError{Err: errors.Wrapf(err, "providers[%d]", i)}
		}
		out = append(out, d)
	}
	return out, nil
}

func (e tableEntry) descriptor() (Descriptor, error) {
	familyName := firstNonEmpty(e.AddressFamily, e.PType)
	if familyName == "" {
		return Descriptor{}, errors.Errorf("provider %q: missing ptype", e.Name)
	}
	family, err := ParseFamily(familyName)
	if err != nil {
		return Descriptor{}, err
	}
	protocolName := firstNonEmpty(e.Protocol, e.Format)
	if protocolName == "" {
		return Descriptor{}, errors.Errorf("provider %q: missing protocol", e.Name)
	}
	protocol, err := ParseProtocol(protocolName)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Name:     e.Name,
		Family:   family,
		Protocol: protocol,
		Endpoint: e.URL,
		JSONPath: e.Key,
		Padding:  e.Padding,
		Record:   e.Record,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
