// Package messages holds the localized texts the bot sends to users.
package messages

import (
	"embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed lang/*.yaml
var langFS embed.FS

// DefaultLang is used when no language is configured
const DefaultLang = "en"

var placeholder = regexp.MustCompile(`%[A-Z0-9_]+%`)

// Catalog maps message keys to texts for one language
type Catalog struct {
	lang    string
	entries map[string]string
}

// Load reads the catalog for lang. Keys missing from lang fall back to English.
func Load(lang string) (*Catalog, error) {
	base, err := readLang(DefaultLang)
	if err != nil {
		return nil, err
	}
	if lang == "" || lang == DefaultLang {
		return &Catalog{lang: DefaultLang, entries: base}, nil
	}

	entries, err := readLang(lang)
	if err != nil {
		return nil, err
	}
	for k, v := range base {
		if _, ok := entries[k]; !ok {
			entries[k] = v
		}
	}
	return &Catalog{lang: lang, entries: entries}, nil
}

func readLang(lang string) (map[string]string, error) {
	data, err := langFS.ReadFile("lang/" + lang + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown message language %q", lang)
	}
	entries := make(map[string]string)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s messages: %w", lang, err)
	}
	return entries, nil
}

// Lang returns the catalog language
func (c *Catalog) Lang() string {
	return c.lang
}

// Get returns the text for key, or the key itself if it is unknown
func (c *Catalog) Get(key string) string {
	if text, ok := c.entries[key]; ok {
		return text
	}
	return key
}

// Format returns the text for key with %NAME% placeholders replaced from vars.
// Placeholders without a value are removed.
func (c *Catalog) Format(key string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(c.Get(key), func(match string) string {
		return vars[match[1:len(match)-1]]
	})
}
