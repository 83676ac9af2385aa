package i18n

import "net/http"

// Middleware injects the localizer for the given language into every request context.
// An Accept-Language header takes precedence over the configured language.
func Middleware(lang string) func(http.Handler) http.Handler {
	fallback := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				loc = NewLocalizer(accept, lang)
			}
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
