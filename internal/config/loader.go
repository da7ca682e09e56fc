package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads path, strictly decodes it against Config's recognized yaml
// keys at every nesting level, and returns the populated struct
// overlaying Default(). yaml.v3's Decoder.KnownFields(true) only
// rejects unknown keys when decoding straight into the destination
// struct, so Load does exactly that rather than merging through an
// intermediate map.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, describeStrictError(err))
	}
	if err := decoder.Decode(new(any)); err != io.EOF {
		return Config{}, fmt.Errorf("config: %s: expected a single YAML document", path)
	}
	return cfg, nil
}

// describeStrictError marks yaml.v3's "field X not found in type Y"
// message as an unrecognized key. The wrapped message is yaml.v3's own,
// so it still names the Go type, not the yaml key path.
func describeStrictError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "not found in type") {
		return fmt.Errorf("unrecognized key (%s)", msg)
	}
	return err
}

// KnownKeys walks Config's yaml struct tags and returns the full set of
// recognized dotted key paths, for a --print-schema style diagnostic and
// for tests asserting the schema and the loader agree.
func KnownKeys() []string {
	var keys []string
	walkKnownKeys(reflect.TypeOf(Config{}), "", &keys)
	return keys
}

func walkKnownKeys(t reflect.Type, prefix string, out *[]string) {
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		*out = append(*out, path)

		ft := f.Type
		for ft.Kind() == reflect.Ptr || ft.Kind() == reflect.Slice {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			walkKnownKeys(ft, path, out)
		}
	}
}
