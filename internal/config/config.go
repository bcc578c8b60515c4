// Package config loads command options from a TOML file and the
// environment, and reloads the settings file while the server runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "VIDCAP_"

// layer yields the raw value one configuration source holds for a field.
type layer func(sf reflect.StructField) (any, bool)

// LoadConfig fills opts from the TOML file named by its Config field,
// then from VIDCAP_* environment variables. Fields map through
// `toml:"section.key"` and `env:"KEY"` tags. Flags set explicitly on cmd
// win over both and are left alone.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: options must be a struct pointer, got %T", opts)
	}
	v = v.Elem()

	doc, err := readDocument(v.FieldByName("Config"))
	if err != nil {
		return err
	}
	layers := []layer{fileLayer(doc), envLayer}

	explicit := map[string]bool{}
	if cmd != nil {
		cmd.Flags().Visit(func(f *pflag.Flag) { explicit[f.Name] = true })
	}

	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		if explicit[flagName(sf.Name)] || !v.Field(i).CanSet() {
			continue
		}
		for _, l := range layers {
			if raw, ok := l(sf); ok {
				assign(v.Field(i), raw)
			}
		}
	}
	return nil
}

// readDocument decodes the file named by the Config field. A missing file
// is an empty document.
func readDocument(path reflect.Value) (map[string]any, error) {
	if !path.IsValid() || path.Kind() != reflect.String || path.String() == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path.String())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path.String(), err)
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path.String(), err)
	}
	return doc, nil
}

func fileLayer(doc map[string]any) layer {
	return func(sf reflect.StructField) (any, bool) {
		key := sf.Tag.Get("toml")
		if key == "" || doc == nil {
			return nil, false
		}
		value := lookup(doc, key)
		return value, value != nil
	}
}

func envLayer(sf reflect.StructField) (any, bool) {
	key := sf.Tag.Get("env")
	if key == "" {
		return nil, false
	}
	value := os.Getenv(EnvPrefix + key)
	return value, value != ""
}

// flagName is the kebab-case flag humacli derives from a field name:
// LoggingLevel becomes logging-level.
func flagName(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('-')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// lookup resolves a dotted key such as "capture.permit_rescale".
func lookup(doc map[string]any, key string) any {
	var node any = doc
	for _, part := range strings.Split(key, ".") {
		table, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = table[part]
	}
	return node
}

var durationType = reflect.TypeFor[time.Duration]()

// assign stores raw in field. Strings, from the environment or quoted in
// TOML, are parsed into the field's type; other values must already match
// it. Values that do not fit are ignored.
func assign(field reflect.Value, raw any) {
	if s, ok := raw.(string); ok && field.Kind() != reflect.String {
		parsed, ok := parseString(field.Type(), s)
		if !ok {
			return
		}
		raw = parsed
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := raw.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := raw.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			if d, ok := raw.(time.Duration); ok {
				field.SetInt(int64(d))
			}
			return
		}
		if n, ok := raw.(int64); ok {
			field.SetInt(n)
		}
	case reflect.Float64:
		switch n := raw.(type) {
		case float64:
			field.SetFloat(n)
		case int64:
			field.SetFloat(float64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		items, ok := raw.([]any)
		if !ok {
			return
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		field.Set(reflect.ValueOf(out))
	}
}

// parseString converts s into the representation assign expects for t.
// Lists are comma separated.
func parseString(t reflect.Type, s string) (any, bool) {
	if t == durationType {
		d, err := time.ParseDuration(s)
		return d, err == nil
	}
	switch t.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		return b, err == nil
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case reflect.Slice:
		parts := strings.Split(s, ",")
		items := make([]any, len(parts))
		for i, p := range parts {
			items[i] = strings.TrimSpace(p)
		}
		return items, true
	}
	return nil, false
}
