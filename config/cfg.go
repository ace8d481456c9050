// Package config abstracts all program configuration.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/asaskevich/govalidator"
)

// Logger configuration for single logger.
type Logger struct {
	Level       string `json:"level"`
	Destination string `json:"destination"`
	Mode        string `json:"mode"`
	// rotation, file logger only
	MaxSize    int  `json:"max_size_mb"`
	MaxAge     int  `json:"max_age_days"`
	MaxBackups int  `json:"max_backups"`
	Compress   bool `json:"compress"`
}

// Server keeps web front-end configuration.
type Server struct {
	Listen         string `json:"listen"`
	MaxConnections int    `json:"max_connections"`
	Templates      string `json:"templates"`
}

// Jncep keeps everything related to the external epub generator. Generation options are fixed for
// the life of the process and could not be changed by the requestor.
type Jncep struct {
	Path                string   `json:"path"`
	Output              string   `json:"output"`
	Email               string   `json:"email"`
	Password            string   `json:"password"`
	CredentialsOverride bool     `json:"allow_credentials_override"`
	AllowedHosts        []string `json:"allowed_hosts"`
	ByVolume            bool     `json:"by_volume"`
	ExtractImages       bool     `json:"extract_images"`
	ExtractContent      bool     `json:"extract_content"`
	NoReplaceChars      bool     `json:"no_replace_chars"`
	Stylesheet          string   `json:"style_css_path"`
	FixZip              bool     `json:"fix_zip_format"`
}

// Purchase controls automatic redemption of volumes which require payment.
type Purchase struct {
	Enabled bool   `json:"enabled"`
	API     string `json:"api"`
	Delay   int    `json:"delay_seconds"`
}

// SMTPConfig keeps STK configuration.
type SMTPConfig struct {
	Server   string `json:"smtp_server"`
	Port     int    `json:"smtp_port"`
	User     string `json:"smtp_user"`
	Password string `json:"smtp_password"`
	From     string `json:"from_mail"`
	To       string `json:"to_mail"`
}

// IsValid checks if we have enough smtp parameters to attempt sending mail.
// It does not attempt actual connection.
func (c *SMTPConfig) IsValid() bool {
	return len(c.Server) > 0 && govalidator.IsDNSName(c.Server) &&
		c.Port > 0 && c.Port <= 65535 &&
		len(c.User) > 0 &&
		len(c.From) > 0 && govalidator.IsEmail(c.From) &&
		len(c.To) > 0 && govalidator.IsEmail(c.To)
}

// document mirrors the layout of configuration files.
type document struct {
	Logger struct {
		Console Logger `json:"console"`
		File    Logger `json:"file"`
	} `json:"logger"`
	Server       Server     `json:"server"`
	Jncep        Jncep      `json:"jncep"`
	Purchase     Purchase   `json:"purchase"`
	SendToKindle SMTPConfig `json:"sendtokindle"`
}

// Config keeps all configuration values.
type Config struct {
	// Directory of the first configuration file, relative paths are resolved against it
	Path string
	// Configuration the way it was read from various sources, before unmarshaling
	raw map[string]any

	// Actual configuration used everywhere - immutable
	ConsoleLogger Logger
	FileLogger    Logger
	Server        Server
	Jncep         Jncep
	Purchase      Purchase
	SMTPConfig    SMTPConfig
}

var defaultConfig = []byte(`{
  "logger": {
    "console": {
      "level": "normal"
    },
    "file": {
      "destination": "jncweb.log",
      "level": "debug",
      "mode": "append",
      "max_size_mb": 50,
      "max_age_days": 7,
      "compress": true
    }
  },
  "server": {
    "listen": "0.0.0.0:5000"
  },
  "jncep": {
    "output": "/output",
    "allowed_hosts": [ "j-novel.club" ],
    "by_volume": true
  },
  "purchase": {
    "api": "https://labs.j-novel.club/app/v2",
    "delay_seconds": 10
  }
}`)

// Environment variables read once at startup, they take precedence over configuration files.
const (
	EnvOutput   = "JNCEP_OUTPUT"
	EnvEmail    = "JNCEP_EMAIL"
	EnvPassword = "JNCEP_PASSWORD"
	EnvListen   = "JNCEP_LISTEN"
	EnvLog      = "JNCEP_LOG"
)

// BuildConfig loads configuration.
func BuildConfig(fnames ...string) (*Config, error) {

	var err error
	// base configuration directory, always calculated from the path of the first configuration file
	var base string

	sources := []source{{name: "defaults", data: defaultConfig, enc: jsonEncoder{}}}

	var wasStdin bool
	for i, fname := range fnames {
		switch {
		case fname == "-":
			// NOTE: only one configuration could be read from STDIN, the rest should be ignored
			if wasStdin {
				continue
			}
			wasStdin = true
			// stdin - json format ONLY
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, fmt.Errorf("unable to read configuration from stdin: %w", err)
			}
			sources = append(sources, source{name: "stdin", data: data, enc: jsonEncoder{}})
			if i == 0 {
				if base, err = os.Getwd(); err != nil {
					return nil, fmt.Errorf("unable to get working directory: %w", err)
				}
			}
		case len(fname) > 0:
			data, err := os.ReadFile(fname)
			if err != nil {
				return nil, fmt.Errorf("unable to read configuration file: %w", err)
			}
			sources = append(sources, source{name: fname, data: data, enc: encoderFor(fname)})
			if i == 0 {
				if base, err = filepath.Abs(filepath.Dir(fname)); err != nil {
					return nil, fmt.Errorf("unable to get configuration directory: %w", err)
				}
			}
		}
	}

	var doc document
	raw := make(map[string]any)
	for _, s := range sources {
		layer, err := s.load()
		if err != nil {
			return nil, fmt.Errorf("unable to parse configuration %s: %w", s.name, err)
		}
		if err := mergo.Merge(&raw, layer, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("unable to merge configuration %s: %w", s.name, err)
		}
		// every layer overwrites only values it actually has
		data, err := json.Marshal(layer)
		if err != nil {
			return nil, fmt.Errorf("unable to process configuration %s: %w", s.name, err)
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("unable to read configuration %s: %w", s.name, err)
		}
	}

	if err = mergo.Merge(&doc, fromEnvironment(), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("unable to apply environment: %w", err)
	}

	conf := &Config{
		Path:          base,
		raw:           raw,
		ConsoleLogger: doc.Logger.Console,
		FileLogger:    doc.Logger.File,
		Server:        doc.Server,
		Jncep:         doc.Jncep,
		Purchase:      doc.Purchase,
		SMTPConfig:    doc.SendToKindle,
	}

	// some defaults
	if conf.Purchase.Delay < 0 {
		conf.Purchase.Delay = 0
	}
	if conf.Server.MaxConnections < 0 {
		conf.Server.MaxConnections = 0
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// fromEnvironment collects overwrites from process environment. Empty values are ignored when merging.
func fromEnvironment() document {
	var doc document
	doc.Jncep.Output = strings.TrimSpace(os.Getenv(EnvOutput))
	doc.Jncep.Email = strings.TrimSpace(os.Getenv(EnvEmail))
	doc.Jncep.Password = os.Getenv(EnvPassword)
	doc.Server.Listen = strings.TrimSpace(os.Getenv(EnvListen))
	doc.Logger.File.Destination = strings.TrimSpace(os.Getenv(EnvLog))
	return doc
}

func (conf *Config) validate() error {

	var errs []error
	if len(conf.Jncep.Output) == 0 {
		errs = append(errs, errors.New("output directory is not specified"))
	}
	if len(conf.Server.Listen) == 0 {
		errs = append(errs, errors.New("server listen address is not specified"))
	}
	for _, h := range conf.Jncep.AllowedHosts {
		if !govalidator.IsDNSName(h) {
			errs = append(errs, fmt.Errorf("bad allowed host name: %q", h))
		}
	}
	if conf.Purchase.Enabled && !govalidator.IsURL(conf.Purchase.API) {
		errs = append(errs, fmt.Errorf("bad purchase API URL: %q", conf.Purchase.API))
	}
	for name, l := range map[string]Logger{"console": conf.ConsoleLogger, "file": conf.FileLogger} {
		switch l.Level {
		case "", "none", "normal", "debug":
		default:
			errs = append(errs, fmt.Errorf("unknown %s logger level: %q", name, l.Level))
		}
	}
	return errors.Join(errs...)
}

// ResolvePath returns path relative to configuration directory unless it is absolute.
func (conf *Config) ResolvePath(fname string) string {
	if len(fname) == 0 || filepath.IsAbs(fname) || len(conf.Path) == 0 {
		return fname
	}
	return filepath.Join(conf.Path, fname)
}

// GetJncepPath provides path to the jncep executable. When not configured, program directory is checked first and then PATH.
func (conf *Config) GetJncepPath() (string, error) {

	fname := conf.Jncep.Path
	if len(fname) > 0 {
		fname = conf.ResolvePath(fname)
		if _, err := os.Stat(fname); err != nil {
			return "", fmt.Errorf("unable to find jncep: %w", err)
		}
		return fname, nil
	}

	if expath, err := os.Executable(); err == nil {
		local := filepath.Join(filepath.Dir(expath), jncep())
		if _, err := os.Stat(local); err == nil {
			return local, nil
		}
	}

	fname, err := exec.LookPath(jncep())
	if err != nil {
		return "", fmt.Errorf("unable to find jncep: %w", err)
	}
	return fname, nil
}

// GetBytes returns configuration the way it was read from various sources, before unmarshaling.
// Secrets are masked.
func (conf *Config) GetBytes() ([]byte, error) {
	b, err := json.Marshal(maskSecrets(conf.raw))
	if err != nil {
		return []byte{}, err
	}
	// do some pretty-printing
	var out bytes.Buffer
	err = json.Indent(&out, b, "", "  ")
	return out.Bytes(), err
}

// GetActualBytes returns actual configuration, including fields initialized by default.
// Secrets are masked.
func (conf *Config) GetActualBytes() ([]byte, error) {

	var doc document
	doc.Logger.Console = conf.ConsoleLogger
	doc.Logger.File = conf.FileLogger
	doc.Server = conf.Server
	doc.Jncep = conf.Jncep
	doc.Purchase = conf.Purchase
	doc.SendToKindle = conf.SMTPConfig

	if len(doc.Jncep.Password) > 0 {
		doc.Jncep.Password = secretMask
	}
	if len(doc.SendToKindle.Password) > 0 {
		doc.SendToKindle.Password = secretMask
	}

	// Marshall it to json
	b, err := json.Marshal(doc)
	if err != nil {
		return []byte{}, err
	}

	// And pretty-print it
	var out bytes.Buffer
	err = json.Indent(&out, b, "", "  ")
	return out.Bytes(), err
}

const secretMask = "********"

// secretKeys are configuration keys holding passwords, in any section.
var secretKeys = map[string]bool{"password": true, "smtp_password": true}

// maskSecrets returns copy of raw configuration with passwords replaced.
func maskSecrets(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = maskSecrets(val)
		case string:
			if secretKeys[strings.ToLower(k)] && len(val) > 0 {
				val = secretMask
			}
			out[k] = val
		default:
			out[k] = v
		}
	}
	return out
}
