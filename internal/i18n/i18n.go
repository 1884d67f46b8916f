// Package i18n loads YAML message catalogs and formats localized text with
// golang.org/x/text.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the fallback locale every bundle must define.
const BaseLocale = "en-US"

//go:embed locales/*/*.yaml
var embedded embed.FS

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle holds every loaded locale.
type Bundle struct {
	messages map[string]map[string]string
	builder  *catalog.Builder
	tags     []language.Tag
	matcher  language.Matcher
}

// LoadEmbedded loads the catalogs compiled into the binary.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embedded)
}

// LoadDir loads catalogs from dir laid out as <dir>/locales/<locale>/<ns>.yaml.
func LoadDir(dir string) (*Bundle, error) {
	return LoadFromFS(os.DirFS(dir))
}

// LoadFromFS loads every locales/*/*.yaml file in fsys.
//
// Postcondition: the returned bundle defines BaseLocale, or an error is returned.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{messages: map[string]map[string]string{}, builder: catalog.NewBuilder()}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		if err := b.add(path, file); err != nil {
			return nil, err
		}
	}
	if _, ok := b.messages[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}

	locales := b.Locales()
	// the base locale goes first so the matcher falls back to it
	sort.SliceStable(locales, func(i, j int) bool { return locales[i] == BaseLocale })
	for _, locale := range locales {
		tag := language.MustParse(locale)
		b.tags = append(b.tags, tag)
		for key, msg := range b.messages[locale] {
			if err := b.builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("register %s/%s: %w", locale, key, err)
			}
		}
	}
	b.matcher = language.NewMatcher(b.tags)
	return b, nil
}

func (b *Bundle) add(path string, file catalogFile) error {
	locale := strings.TrimSpace(file.Locale)
	if locale == "" {
		return fmt.Errorf("catalog %s: locale is required", path)
	}
	if dir := filepath.Base(filepath.Dir(path)); locale != dir {
		return fmt.Errorf("catalog %s: locale %q must match path locale %q", path, locale, dir)
	}
	if _, err := language.Parse(locale); err != nil {
		return fmt.Errorf("catalog %s: %w", path, err)
	}
	if file.Messages == nil {
		return fmt.Errorf("catalog %s: messages map is required", path)
	}
	msgs, ok := b.messages[locale]
	if !ok {
		msgs = map[string]string{}
		b.messages[locale] = msgs
	}
	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: message key cannot be blank", path)
		}
		if _, dup := msgs[key]; dup {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %q", path, key, locale)
		}
		msgs[key] = value
	}
	return nil
}

// Locales returns the loaded locale identifiers, sorted.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.messages))
	for l := range b.messages {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Localizer returns a Localizer for the closest available match of locale.
// Unknown locales fall back to BaseLocale.
func (b *Bundle) Localizer(locale string) *Localizer {
	tag, _, _ := b.matcher.Match(language.Make(locale))
	base, _ := tag.Base()
	var chosen language.Tag
	for _, t := range b.tags {
		if tb, _ := t.Base(); tb == base {
			chosen = t
			break
		}
	}
	if chosen == language.Und {
		chosen = b.tags[0]
	}
	return &Localizer{
		locale:   chosen.String(),
		printer:  message.NewPrinter(chosen, message.Catalog(b.builder)),
		messages: b.messages[chosen.String()],
		fallback: b.messages[BaseLocale],
	}
}

// Localizer renders messages for one locale.
type Localizer struct {
	locale   string
	printer  *message.Printer
	messages map[string]string
	fallback map[string]string
}

// Locale returns the locale this Localizer renders.
func (l *Localizer) Locale() string { return l.locale }

// Localize returns the message for key. Keys missing from the locale fall back
// to the base locale, then to the key itself.
func (l *Localizer) Localize(key string) string {
	return l.Format(key)
}

// Format renders the message for key with printf-style args.
func (l *Localizer) Format(key string, args ...any) string {
	if _, ok := l.messages[key]; ok {
		return l.printer.Sprintf(key, args...)
	}
	if msg, ok := l.fallback[key]; ok {
		return fmt.Sprintf(msg, args...)
	}
	return key
}
