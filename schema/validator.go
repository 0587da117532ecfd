// Package payloadschema validates raw adapter payloads before they enter the
// routing pipeline. Validation failures here are the "schema drift" signal:
// callers skip the record and aggregate the failure for alerting instead of
// failing the batch.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed candidate.schema.json
var candidateSchemaJSON string

type Candidate struct {
	PayloadVersion string         `json:"payload_version"`
	Source         string         `json:"source"`
	SourceItemID   string         `json:"source_item_id"`
	Title          string         `json:"title"`
	ContentType    string         `json:"content_type"`
	Priority       *int           `json:"priority,omitempty"`
	Locator        *string        `json:"locator,omitempty"`
	Excerpt        *string        `json:"excerpt,omitempty"`
	CreatedAt      *string        `json:"created_at,omitempty"`
	ExpiresAt      *string        `json:"expires_at,omitempty"`
	Windows        []string       `json:"windows,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateCandidatePayload(payload json.RawMessage) (*Candidate, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var candidate Candidate
	if err := json.Unmarshal(normalized, &candidate); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&candidate); err != nil {
		return nil, err
	}

	return &candidate, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("candidate.schema.json", strings.NewReader(candidateSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("candidate.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(candidate *Candidate) error {
	if candidate == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(candidate.Source) == "" {
		return fmt.Errorf("source must not be empty")
	}
	if strings.TrimSpace(candidate.SourceItemID) == "" {
		return fmt.Errorf("source_item_id must not be empty")
	}
	if strings.TrimSpace(candidate.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if strings.TrimSpace(candidate.ContentType) == "" {
		return fmt.Errorf("content_type must not be empty")
	}
	if strings.TrimSpace(candidate.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if candidate.Priority != nil && (*candidate.Priority < 0 || *candidate.Priority > 100) {
		return fmt.Errorf("priority must be in [0,100]")
	}

	if candidate.CreatedAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*candidate.CreatedAt)); err != nil {
			return fmt.Errorf("created_at must be RFC3339: %w", err)
		}
	}
	if candidate.ExpiresAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*candidate.ExpiresAt)); err != nil {
			return fmt.Errorf("expires_at must be RFC3339: %w", err)
		}
	}

	return nil
}
