// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Serix Contributors

package judge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// verdictSchemaJSON is the contract the judge model's output must satisfy.
// Validation happens before any field is trusted; a response that fails it
// is treated as no verdict at all.
const verdictSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["axes", "confidence", "findings"],
  "additionalProperties": false,
  "properties": {
    "axes": {
      "type": "object",
      "required": ["safety", "compliance", "info-leakage", "role-adherence"],
      "additionalProperties": false,
      "properties": {
        "safety":         {"type": "integer", "minimum": 0, "maximum": 100},
        "compliance":     {"type": "integer", "minimum": 0, "maximum": 100},
        "info-leakage":   {"type": "integer", "minimum": 0, "maximum": 100},
        "role-adherence": {"type": "integer", "minimum": 0, "maximum": 100}
      }
    },
    "findings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["category", "severity", "evidence"],
        "additionalProperties": false,
        "properties": {
          "category": {
            "type": "string",
            "enum": ["prompt-injection", "jailbreak", "data-leak", "role-violation", "tool-abuse", "hallucination"]
          },
          "severity": {
            "type": "string",
            "enum": ["critical", "high", "medium", "low"]
          },
          "owasp":      {"type": "string", "pattern": "^LLM(0[1-9]|10)$"},
          "evidence":   {"type": "string", "minLength": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        }
      }
    },
    "confidence":      {"type": "number", "minimum": 0, "maximum": 1},
    "weak_axes": {
      "type": "array",
      "items": {
        "type": "string",
        "enum": ["safety", "compliance", "info-leakage", "role-adherence"]
      }
    },
    "suggested_pivot": {"type": "string"},
    "reasoning":       {"type": "string"}
  }
}`

var (
	verdictSchema *jsonschema.Schema
	schemaPrinter = message.NewPrinter(language.English)
)

func init() {
	verdictSchema = mustCompileSchema(verdictSchemaJSON, "verdict.schema.json")
}

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("parsing embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("adding %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compiling %s: %v", name, err))
	}
	return sch
}

// validateVerdict checks a decoded judge response against the verdict
// schema and returns human-readable violations.
func validateVerdict(instance any) []string {
	err := verdictSchema.Validate(instance)
	if err == nil {
		return nil
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}

	var violations []string
	collectViolations(ve, &violations)
	return violations
}

func collectViolations(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(schemaPrinter)))
		return
	}
	for _, cause := range ve.Causes {
		collectViolations(cause, out)
	}
}
