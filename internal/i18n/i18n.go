package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// DefaultLang is used when no language is configured.
const DefaultLang = "zh"

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
	bundleErr  error

	mu          sync.RWMutex
	defaultLang = DefaultLang
)

func loadBundle() (*i18n.Bundle, error) {
	bundleOnce.Do(func() {
		b := i18n.NewBundle(language.Chinese)
		b.RegisterUnmarshalFunc("json", json.Unmarshal)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			bundleErr = fmt.Errorf("read locales dir: %w", err)
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := localeFS.ReadFile("locales/" + e.Name())
			if err != nil {
				bundleErr = fmt.Errorf("read locale file %s: %w", e.Name(), err)
				return
			}
			if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
				bundleErr = fmt.Errorf("parse locale file %s: %w", e.Name(), err)
				return
			}
		}
		bundle = b
	})
	return bundle, bundleErr
}

// Init loads the translation bundle and sets the default language.
func Init(lang string) error {
	if _, err := language.Parse(lang); err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}
	if _, err := loadBundle(); err != nil {
		return err
	}
	mu.Lock()
	defaultLang = lang
	mu.Unlock()
	slog.Debug("i18n initialized", "lang", lang)
	return nil
}

// NewLocalizer creates a localizer for the given languages (tags or
// Accept-Language values), falling back to the bundle default (Chinese).
func NewLocalizer(langs ...string) *i18n.Localizer {
	b, err := loadBundle()
	if err != nil {
		slog.Error("i18n bundle unavailable", "error", err)
		b = i18n.NewBundle(language.Chinese)
	}
	return i18n.NewLocalizer(b, langs...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok {
		return loc
	}
	mu.RLock()
	lang := defaultLang
	mu.RUnlock()
	return NewLocalizer(lang)
}

// T translates a message by ID using the localizer in ctx.
func T(ctx context.Context, msgID string) string {
	return localize(localizerFromCtx(ctx), msgID, nil)
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(localizerFromCtx(ctx), msgID, data)
}

// Translator is a context-free handle for callers that are not request scoped.
type Translator struct {
	loc *i18n.Localizer
}

// NewTranslator returns a Translator for lang.
func NewTranslator(lang string) Translator {
	return Translator{loc: NewLocalizer(lang)}
}

// T translates a message by ID.
func (t Translator) T(msgID string) string {
	return localize(t.loc, msgID, nil)
}

// Td translates a message by ID with template data.
func (t Translator) Td(msgID string, data map[string]any) string {
	return localize(t.loc, msgID, data)
}

func localize(loc *i18n.Localizer, msgID string, data map[string]any) string {
	if loc == nil {
		return msgID
	}
	s, err := loc.Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		slog.Warn("missing translation", "id", msgID, "error", err)
		return msgID
	}
	return s
}
