package config

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ghodss/yaml"
	"github.com/hashicorp/hcl"
)

// encoder decodes configuration source into generic map.
type encoder interface {
	Decode(d []byte, v any) error
	String() string
}

type jsonEncoder struct{}

func (jsonEncoder) Decode(d []byte, v any) error { return json.Unmarshal(d, v) }
func (jsonEncoder) String() string               { return "json" }

type yamlEncoder struct{}

func (yamlEncoder) Decode(d []byte, v any) error { return yaml.Unmarshal(d, v) }
func (yamlEncoder) String() string               { return "yaml" }

type tomlEncoder struct{}

func (tomlEncoder) Decode(d []byte, v any) error { return toml.Unmarshal(d, v) }
func (tomlEncoder) String() string               { return "toml" }

type hclEncoder struct{}

func (hclEncoder) Decode(d []byte, v any) error { return hcl.Unmarshal(d, v) }
func (hclEncoder) String() string               { return "hcl" }

// encoderFor selects encoder by file extension, JSON is the default.
func encoderFor(fname string) encoder {
	switch strings.ToLower(filepath.Ext(fname)) {
	case ".yml", ".yaml":
		return yamlEncoder{}
	case ".toml":
		return tomlEncoder{}
	case ".hcl":
		return hclEncoder{}
	default:
		return jsonEncoder{}
	}
}

// Convert re-encodes JSON configuration into format selected by file extension, so dumped
// configuration could be used as a layer as is. HCL is read only, JSON is produced for it.
func Convert(data []byte, fname string) ([]byte, error) {
	switch encoderFor(fname).(type) {
	case yamlEncoder:
		return yaml.JSONToYAML(data)
	case tomlEncoder:
		m := make(map[string]any)
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		var out bytes.Buffer
		if err := toml.NewEncoder(&out).Encode(m); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	default:
		return data, nil
	}
}

// source is a single configuration layer.
type source struct {
	name string
	data []byte
	enc  encoder
}

func (s source) load() (map[string]any, error) {
	m := make(map[string]any)
	if err := s.enc.Decode(s.data, &m); err != nil {
		return nil, err
	}
	if _, ok := s.enc.(hclEncoder); ok {
		return flattenBlocks(m), nil
	}
	return m, nil
}

// flattenBlocks turns HCL blocks (decoded as lists of objects) into plain objects.
func flattenBlocks(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case []map[string]any:
			merged := make(map[string]any)
			for _, block := range val {
				for bk, bv := range flattenBlocks(block) {
					merged[bk] = bv
				}
			}
			out[k] = merged
		case map[string]any:
			out[k] = flattenBlocks(val)
		default:
			out[k] = v
		}
	}
	return out
}
