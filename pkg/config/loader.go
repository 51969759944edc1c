// Package config loads service configuration into tagged structs.
//
// Values are resolved in three layers, later layers winning:
//
//	envDefault tags -> YAML/JSON file -> environment variables
//
// Supported tags:
//
//   - `env:"NAME"` reads NAME (joined to the loader prefix and to any
//     enclosing struct's env tag with "_")
//   - `envDefault:"value"` applies when the field is still zero
//   - `required:"true"` rejects a zero value after all layers ran
//
// File loading uses the `yaml` or `json` tags of the same fields.
//
//	type ServiceConfig struct {
//	    HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080" yaml:"http_addr"`
//	    Webhook  struct {
//	        Secret string `env:"SECRET" yaml:"secret"`
//	    } `env:"WEBHOOK" yaml:"webhook"`
//	}
//
//	// IDENTITY_HTTP_ADDR, IDENTITY_WEBHOOK_SECRET
//	err := config.New().WithEnvPrefix("identity").WithFile(path).Load(&cfg)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration layers into a struct. A Loader is not safe
// for concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
}

// New returns a Loader that reads environment variables only.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix prepends PREFIX_ to every env tag. The prefix is uppercased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets an optional .yaml, .yml or .json file. A missing file is
// not an error; an unknown extension is.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, then checks
// required tags and calls cfg.Validate when cfg implements [Validator].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	if err := applyDefaults(rv); err != nil {
		return err
	}
	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}
	if err := applyEnv(rv, l.envPrefix); err != nil {
		return err
	}
	return validate(cfg, rv)
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to parse %q", l.filePath)
	}
	return nil
}

func isNested(field reflect.Value) bool {
	return field.Kind() == reflect.Struct && field.Type() != durationType
}

func applyDefaults(rv reflect.Value) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		if isNested(field) {
			if err := applyDefaults(field); err != nil {
				return err
			}
			continue
		}
		def := sf.Tag.Get("envDefault")
		if def == "" || !field.IsZero() {
			continue
		}
		if err := setField(field, def); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to apply default for field %q", sf.Name)
		}
	}
	return nil
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "_" + name
}

func applyEnv(rv reflect.Value, prefix string) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		tag := sf.Tag.Get("env")
		if isNested(field) {
			if err := applyEnv(field, joinKey(prefix, tag)); err != nil {
				return err
			}
			continue
		}
		if tag == "" {
			continue
		}
		key := joinKey(prefix, tag)
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setField(field, val); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to set field %q from env var %q", sf.Name, key)
		}
	}
	return nil
}

// setField parses value into field. Handles named string types (Secret),
// bool, signed ints, time.Duration and comma-separated string slices.
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(p)
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
