package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/reportwise-ai/reportwise/provider"
)

// classifier maps a free-text query to exactly one known knowledge domain
// using a single completion call. Any failure falls back to the configured
// default domain; availability beats precision here.
type classifier struct {
	client        provider.Client
	model         string
	domains       []string
	defaultDomain string
	schema        *jsonschema.Schema
	logger        *log.Logger
}

func newClassifier(client provider.Client, model string, domains []string, defaultDomain string, logger *log.Logger) (*classifier, error) {
	schemaDoc := map[string]interface{}{
		"type":     "object",
		"required": []string{"domain"},
		"properties": map[string]interface{}{
			"domain": map[string]interface{}{
				"type": "string",
				"enum": domains,
			},
		},
	}
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("marshal classifier schema: %w", err)
	}
	schema, err := jsonschema.CompileString("classifier.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile classifier schema: %w", err)
	}
	return &classifier{
		client:        client,
		model:         model,
		domains:       domains,
		defaultDomain: defaultDomain,
		schema:        schema,
		logger:        logger,
	}, nil
}

// Classify never fails: service errors and unparsable output both fall back
// to the default domain.
func (c *classifier) Classify(ctx context.Context, query string) string {
	res, err := c.client.Complete(ctx, provider.CompletionRequest{
		Prompt:    classifierPrompt(c.domains, query),
		Model:     c.model,
		MaxTokens: 64,
	})
	if err != nil {
		c.logger.Printf("warn: classification failed, using default domain %s: %v", c.defaultDomain, err)
		return c.defaultDomain
	}

	payload := extractJSON(res.Text)
	var doc interface{}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		c.logger.Printf("warn: unparsable classification %q, using default domain %s", res.Text, c.defaultDomain)
		return c.defaultDomain
	}
	if err := c.schema.Validate(doc); err != nil {
		c.logger.Printf("warn: classification outside known domains %q, using default domain %s", res.Text, c.defaultDomain)
		return c.defaultDomain
	}

	var out struct {
		Domain string `json:"domain"`
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return c.defaultDomain
	}
	return out.Domain
}

// extractJSON pulls the first JSON object out of a completion that may be
// wrapped in markdown fences or prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
