// Package render produces the server-side markup half of the verification
// hand-off: a hidden token field annotated with the attributes the browser
// controller discovers forms by, and the challenge script include.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"regexp"
	"sort"

	"github.com/google/uuid"

	"recaptcha-gate/internal/acquire"
	"recaptcha-gate/internal/common/config"
)

// DefaultFieldName is the form field the token travels in.
const DefaultFieldName = "recaptcha_token"

var hiddenInputTmpl = template.Must(template.New("hidden-input").Parse(
	`<input type="hidden" id="{{.ID}}" name="{{.Name}}" value="{{.Value}}"{{range .Attrs}} {{.Key}}="{{.Value}}"{{end}}>`,
))

// Widget renders the hidden input for one form. The action name is
// sanitized at construction so markup and token acquisition agree on it.
type Widget struct {
	cfg       config.RecaptchaConfig
	id        string
	fieldName string
	action    string
}

type WidgetOption func(*Widget)

// WithFieldName overrides the token field name.
func WithFieldName(name string) WidgetOption {
	return func(w *Widget) { w.fieldName = name }
}

// WithID pins the element id instead of generating one.
func WithID(id string) WidgetOption {
	return func(w *Widget) { w.id = id }
}

// NewWidget builds a widget for the given resolved configuration and form
// action. The configuration must already have passed Resolve; an empty site
// key here is a programming error, not a recoverable condition.
func NewWidget(cfg config.RecaptchaConfig, action string, opts ...WidgetOption) *Widget {
	w := &Widget{
		cfg:       cfg,
		id:        "recaptcha-" + uuid.NewString(),
		fieldName: DefaultFieldName,
		action:    acquire.SanitizeAction(action),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the element id of the hidden input.
func (w *Widget) ID() string { return w.id }

// Action returns the sanitized action name carried in the markup.
func (w *Widget) Action() string { return w.action }

// HiddenInput renders the marker field the browser controller binds to.
func (w *Widget) HiddenInput() (template.HTML, error) {
	return RenderHiddenInput(w.fieldName, "", map[string]string{
		"id":             w.id,
		"data-recaptcha": "true",
		"data-sitekey":   w.cfg.SiteKey,
		"data-action":    w.action,
	})
}

// ScriptTag renders the challenge script include with the site key as the
// render query parameter.
func (w *Widget) ScriptTag() (template.HTML, error) {
	return ScriptTag(w.cfg)
}

// ScriptTag builds the challenge script include for the given configuration.
func ScriptTag(cfg config.RecaptchaConfig) (template.HTML, error) {
	u, err := url.Parse(cfg.ScriptURL)
	if err != nil {
		return "", fmt.Errorf("parsing challenge script URL: %w", err)
	}
	q := u.Query()
	q.Set("render", cfg.SiteKey)
	u.RawQuery = q.Encode()

	var buf bytes.Buffer
	err = template.Must(template.New("script").Parse(
		`<script src="{{.}}" async defer></script>`,
	)).Execute(&buf, u.String())
	if err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

type attr struct {
	Key   template.HTMLAttr
	Value string
}

var attrName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)

// RenderHiddenInput is the generic hidden-field renderer. Attribute names
// are restricted to a letter-and-dash shape and values are template-escaped,
// so caller-supplied content cannot break out of the element.
func RenderHiddenInput(name, value string, attrs map[string]string) (template.HTML, error) {
	ordered := make([]attr, 0, len(attrs))
	for k, v := range attrs {
		if k == "id" {
			continue
		}
		if !attrName.MatchString(k) {
			return "", fmt.Errorf("invalid attribute name %q", k)
		}
		ordered = append(ordered, attr{Key: template.HTMLAttr(k), Value: v})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Key < ordered[j].Key })

	data := struct {
		ID    string
		Name  string
		Value string
		Attrs []attr
	}{
		ID:    attrs["id"],
		Name:  name,
		Value: value,
		Attrs: ordered,
	}

	var buf bytes.Buffer
	if err := hiddenInputTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering hidden input: %w", err)
	}
	return template.HTML(buf.String()), nil
}
