package llm

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Templates renders prompt templates. A name registered with Register is
// looked up first; text containing template actions is parsed inline.
// A bare name that was never registered is an error.
type Templates struct {
	mu     sync.RWMutex
	named  map[string]string
	parsed map[string]*template.Template
}

func NewTemplates() *Templates {
	return &Templates{
		named:  make(map[string]string),
		parsed: make(map[string]*template.Template),
	}
}

// Register stores a named template after checking that it parses.
func (t *Templates) Register(name, text string) error {
	tmpl, err := parseTemplate(name, text)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.named[name] = text
	t.parsed[name] = tmpl
	return nil
}

// Render executes the template identified by nameOrText with vars.
// Missing variables are an error.
func (t *Templates) Render(nameOrText string, vars map[string]any) (string, error) {
	tmpl, err := t.lookup(nameOrText)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", fmt.Errorf("render template %q: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}

func (t *Templates) lookup(key string) (*template.Template, error) {
	t.mu.RLock()
	tmpl, ok := t.parsed[key]
	t.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	if !strings.Contains(key, "{{") {
		return nil, fmt.Errorf("template %q is not registered", key)
	}
	tmpl, err := parseTemplate("inline", key)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if len(t.parsed) < 256 {
		t.parsed[key] = tmpl
	}
	t.mu.Unlock()
	return tmpl, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	return tmpl, nil
}
