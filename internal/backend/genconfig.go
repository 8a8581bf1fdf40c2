package backend

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
)

type fieldKind int

const (
	intField fieldKind = iota
	floatField
	boolField
)

// generationSchema lists the generation settings the local backend knows.
// Everything else a user passes is ignored (and logged).
var generationSchema = map[string]fieldKind{
	"max_new_tokens":     intField,
	"temperature":        floatField,
	"top_p":              floatField,
	"top_k":              intField,
	"min_p":              floatField,
	"repetition_penalty": floatField,
	"do_sample":          boolField,
}

// libraryDefaults apply when neither the model nor the user sets a field.
var libraryDefaults = map[string]any{
	"max_new_tokens":     512,
	"temperature":        1.0,
	"top_p":              1.0,
	"top_k":              50,
	"min_p":              0.0,
	"repetition_penalty": 1.0,
	"do_sample":          false,
}

// GenerationConfig is the resolved set of generation settings for one run.
type GenerationConfig struct {
	MaxNewTokens      int
	Temperature       float64
	TopP              float64
	TopK              int
	MinP              float64
	RepetitionPenalty float64
	DoSample          bool
	Seed              *int64

	// Overridden holds the schema fields the user set, sorted.
	Overridden []string
}

// Defaulted returns the schema fields left at model or library defaults.
func (g GenerationConfig) Defaulted() []string {
	var out []string
	for name := range generationSchema {
		if !slices.Contains(g.Overridden, name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// BuildGenerationConfig layers library defaults, then the model's own
// generation_config.json values, then the temperature and user options.
// It returns the user keys that are not part of the schema.
func BuildGenerationConfig(modelDefaults map[string]any, temperature *float64, options map[string]any) (GenerationConfig, []string, error) {
	values := maps.Clone(libraryDefaults)
	for k, v := range modelDefaults {
		if _, ok := generationSchema[k]; ok && v != nil {
			values[k] = v
		}
	}

	user := make(map[string]any, len(options)+1)
	if temperature != nil {
		user["temperature"] = *temperature
	}
	maps.Copy(user, options)

	var gen GenerationConfig
	var ignored []string
	for k, v := range user {
		if k == "seed" {
			seed, err := toInt(v)
			if err != nil {
				return GenerationConfig{}, nil, fmt.Errorf("option seed: %w", err)
			}
			s := int64(seed)
			gen.Seed = &s
			continue
		}
		if _, ok := generationSchema[k]; !ok {
			ignored = append(ignored, k)
			continue
		}
		values[k] = v
		gen.Overridden = append(gen.Overridden, k)
	}
	slices.Sort(gen.Overridden)
	slices.Sort(ignored)

	var err error
	set := func(name string, fn func(any) error) {
		if err != nil {
			return
		}
		if e := fn(values[name]); e != nil {
			err = fmt.Errorf("option %s: %w", name, e)
		}
	}
	set("max_new_tokens", func(v any) (e error) { gen.MaxNewTokens, e = toInt(v); return })
	set("temperature", func(v any) (e error) { gen.Temperature, e = toFloat(v); return })
	set("top_p", func(v any) (e error) { gen.TopP, e = toFloat(v); return })
	set("top_k", func(v any) (e error) { gen.TopK, e = toInt(v); return })
	set("min_p", func(v any) (e error) { gen.MinP, e = toFloat(v); return })
	set("repetition_penalty", func(v any) (e error) { gen.RepetitionPenalty, e = toFloat(v); return })
	set("do_sample", func(v any) (e error) { gen.DoSample, e = toBool(v); return })
	if err != nil {
		return GenerationConfig{}, nil, err
	}

	return gen, ignored, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("want integer, got %v", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("want integer, got %T", v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(b)
	}
	return false, fmt.Errorf("want bool, got %T", v)
}
