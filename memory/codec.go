package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// codec encodes the long-term mapping as a single document.
type codec interface {
	Decode(data []byte) (map[string]string, error)
	Encode(values map[string]string) ([]byte, error)
}

var errNotMapping = errors.New("document is not a key/value mapping")

type jsonCodec struct{}

func (jsonCodec) Decode(data []byte) (map[string]string, error) {
	values := make(map[string]string)
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	// A literal null decodes without error and leaves the map nil.
	if values == nil {
		return nil, errNotMapping
	}
	return values, nil
}

// Encode writes keys in sorted order (encoding/json sorts map keys).
func (jsonCodec) Encode(values map[string]string) ([]byte, error) {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

type tomlCodec struct{}

func (tomlCodec) Decode(data []byte) (map[string]string, error) {
	values := make(map[string]string)
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	if values == nil {
		return nil, errNotMapping
	}
	return values, nil
}

func (tomlCodec) Encode(values map[string]string) ([]byte, error) {
	return toml.Marshal(values)
}

func codecForPath(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return jsonCodec{}, nil
	case ".toml":
		return tomlCodec{}, nil
	default:
		return nil, &Error{
			Code:    ErrCodeUnsupportedFormat,
			Message: "memory file must end in .json or .toml: " + path,
		}
	}
}
