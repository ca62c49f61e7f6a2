// Package catalog loads the write actions and system messages the flow
// engine reads. The catalog is immutable once loaded.
package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/support-flow/internal/placeholder"
)

// System message keys the engine looks up.
const (
	KeyTransferToAgent = "TRANSFER_TO_AGENT_MESSAGE"
	KeyFallback        = "FALLBACK_MESSAGE"
	KeyGenericError    = "GENERIC_ERROR_MESSAGE"
	KeyWriteSuccess    = "WRITE_ACTION_SUCCESS_MESSAGE"
	KeyWriteFailure    = "WRITE_ACTION_FAILURE_MESSAGE"
)

// WriteAction is a templated external mutation.
type WriteAction struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	HTTPMethod     string `yaml:"http_method" json:"http_method"`
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	BodyTemplate   string `yaml:"body_template" json:"body_template"`
	IsActive       bool   `yaml:"is_active" json:"is_active"`
	SuccessMessage string `yaml:"success_message,omitempty" json:"success_message,omitempty"`
	ErrorMessage   string `yaml:"error_message,omitempty" json:"error_message,omitempty"`
}

// Catalog holds write actions by id and system messages by key.
type Catalog struct {
	writeActions   map[string]WriteAction
	systemMessages map[string]string
}

type file struct {
	SystemMessages map[string]string `yaml:"system_messages"`
	WriteActions   []WriteAction     `yaml:"write_actions"`
}

// New builds a catalog from in-memory values.
func New(actions []WriteAction, messages map[string]string) (*Catalog, error) {
	c := &Catalog{
		writeActions:   make(map[string]WriteAction, len(actions)),
		systemMessages: make(map[string]string, len(messages)),
	}
	for _, a := range actions {
		if a.ID == "" {
			return nil, fmt.Errorf("write action %q has no id", a.Name)
		}
		if _, dup := c.writeActions[a.ID]; dup {
			return nil, fmt.Errorf("duplicate write action id %q", a.ID)
		}
		c.writeActions[a.ID] = a
	}
	for k, v := range messages {
		c.systemMessages[k] = v
	}
	return c, nil
}

// Parse reads a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f.WriteActions, f.SystemMessages)
}

// LoadFile reads a YAML catalog file. An empty path yields an empty catalog.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return New(nil, nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// FindByID returns the active write action with the given id.
func (c *Catalog) FindByID(_ context.Context, id string) (*WriteAction, bool, error) {
	a, ok := c.writeActions[id]
	if !ok || !a.IsActive {
		return nil, false, nil
	}
	return &a, true, nil
}

// ExtractVariableNames lists the placeholders used by a template.
func (c *Catalog) ExtractVariableNames(template string) []string {
	return placeholder.Names(template)
}

// ContentFor returns the system message stored under key.
func (c *Catalog) ContentFor(_ context.Context, key string) (string, bool, error) {
	v, ok := c.systemMessages[key]
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}
