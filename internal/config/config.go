package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/naoina/toml"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

// Config is the compiler configuration. Every field has a built-in default;
// a TOML file only overrides what it names.
type Config struct {
	VM         VMConfig
	ABI        ABIConfig
	Intrinsics IntrinsicsConfig
}

// VMConfig carries the VM capacity constants.
type VMConfig struct {
	CellBits       int
	CellRefs       int
	ArrayKeyLength int
	AddressBits    int
	DictValueBits  int
}

// ABIConfig carries ABI defaults.
type ABIConfig struct {
	DefaultVersion int
	StdlibContract string
}

// IntrinsicsConfig describes the low-level intrinsic functions.
type IntrinsicsConfig struct {
	Prefix          string
	Deprecated      map[string]string // name => replacement API
	Internal        []string
	StorageMutating []string
	DeployContract  string
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config %s", path)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Marshal renders cfg as TOML.
func Marshal(cfg *Config) ([]byte, error) {
	return tomlSettings.Marshal(cfg)
}

// Validate rejects limits the backend cannot lay data out against.
func (c *Config) Validate() error {
	switch {
	case c.VM.CellBits <= 0:
		return errors.Newf("VM.CellBits must be positive, got %d", c.VM.CellBits)
	case c.VM.CellRefs < 2:
		return errors.Newf("VM.CellRefs must leave room for a continuation link, got %d", c.VM.CellRefs)
	case c.VM.ArrayKeyLength < 8 || c.VM.ArrayKeyLength > 256:
		return errors.Newf("VM.ArrayKeyLength must be within [8, 256], got %d", c.VM.ArrayKeyLength)
	case c.VM.AddressBits <= 0 || c.VM.AddressBits > c.VM.CellBits:
		return errors.Newf("VM.AddressBits must fit in a cell, got %d", c.VM.AddressBits)
	case c.VM.DictValueBits <= 0 || c.VM.DictValueBits > c.VM.CellBits:
		return errors.Newf("VM.DictValueBits must be within (0, CellBits], got %d", c.VM.DictValueBits)
	case c.ABI.DefaultVersion != 1 && c.ABI.DefaultVersion != 2:
		return errors.Newf("ABI.DefaultVersion must be 1 or 2, got %d", c.ABI.DefaultVersion)
	case c.Intrinsics.Prefix == "":
		return errors.New("Intrinsics.Prefix must not be empty")
	}
	return nil
}
