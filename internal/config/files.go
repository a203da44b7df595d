package config

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"strconv"

	"github.com/kdimtricp/skysight/internal/ai"
	"github.com/kdimtricp/skysight/internal/database"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

const notFound = "Not Found"

// VisionFile is the aivision_config.json credential file.
type VisionFile struct {
	Endpoint string `json:"AI_VISION_ENDPOINT" yaml:"AI_VISION_ENDPOINT"`
	APIKey   string `json:"AI_VISION_API_KEY" yaml:"AI_VISION_API_KEY"`
}

// DBFile is the db_config.json connection file.
type DBFile struct {
	Server       string `json:"server" yaml:"server"`
	Port         int    `json:"port" yaml:"port"`
	DatabaseName string `json:"database_name" yaml:"database_name"`
	Username     string `json:"username" yaml:"username"`
	Password     string `json:"password" yaml:"password"`
}

// readFile decodes a JSON or YAML file into v.
func readFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("file", path))
	}

	// Tab-indented JSON is not valid YAML, so JSON objects take the JSON path.
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		if err := json.Unmarshal(raw, v); err != nil {
			return goerr.Wrap(err, "failed to parse config file", goerr.V("file", path))
		}
		return nil
	}

	if err := yaml.Unmarshal(raw, v); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("file", path))
	}
	return nil
}

func LoadVisionFile(path string) (*VisionFile, error) {
	var file VisionFile
	if err := readFile(path, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func LoadDBFile(path string) (*DBFile, error) {
	var file DBFile
	if err := readFile(path, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// apply fills only the fields flags and environment left empty.
func (f *VisionFile) apply(cfg *ai.Config) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = f.Endpoint
	}
	if cfg.APIKey == "" {
		cfg.APIKey = f.APIKey
	}
}

func (f *DBFile) apply(cfg *database.Config) {
	host, port := f.Server, f.Port
	if h, p, err := net.SplitHostPort(f.Server); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil && port == 0 {
			port = n
		}
	}

	if cfg.Host == "" {
		cfg.Host = host
	}
	if cfg.Port == 0 {
		cfg.Port = port
	}
	if cfg.Name == "" {
		cfg.Name = f.DatabaseName
	}
	if cfg.User == "" {
		cfg.User = f.Username
	}
	if cfg.Password == "" {
		cfg.Password = f.Password
	}
}

// MirrorVisionEnv reads the vision credential file at path and copies its
// endpoint and key into VISION_ENDPOINT and VISION_KEY. Missing keys are
// mirrored as "Not Found". The returned document has the key masked.
func MirrorVisionEnv(path string) (map[string]any, error) {
	data := map[string]any{}
	if err := readFile(path, &data); err != nil {
		return nil, err
	}

	key := stringOr(data["AI_VISION_API_KEY"], notFound)
	endpoint := stringOr(data["AI_VISION_ENDPOINT"], notFound)

	if err := os.Setenv("VISION_KEY", key); err != nil {
		return nil, goerr.Wrap(err, "failed to set VISION_KEY")
	}
	if err := os.Setenv("VISION_ENDPOINT", endpoint); err != nil {
		return nil, goerr.Wrap(err, "failed to set VISION_ENDPOINT")
	}

	if _, ok := data["AI_VISION_API_KEY"]; ok {
		data["AI_VISION_API_KEY"] = Mask(key)
	}
	return data, nil
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fallback
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	const visible = 4
	if len(secret) <= visible {
		return "****"
	}
	return "****" + secret[len(secret)-visible:]
}
