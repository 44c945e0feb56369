// Package schema validates export tree metadata before an import consumes
// it, so a truncated or hand-edited export fails fast instead of midway
// through a run.
package schema

import (
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const exportSchemaURL = "coursemover://schemas/export.json"

// exportSchema describes the export summary document written at the root of
// every export tree.
const exportSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["format_version", "course", "exported_at", "counts"],
  "properties": {
    "format_version": {"type": "integer", "minimum": 1},
    "exported_at": {"type": "string"},
    "course": {
      "type": "object",
      "required": ["id", "name"],
      "properties": {
        "id": {"type": "integer", "minimum": 1},
        "name": {"type": "string", "minLength": 1},
        "course_code": {"type": "string"},
        "source_api_url": {"type": "string"}
      }
    },
    "counts": {
      "type": "object",
      "additionalProperties": {"type": "integer", "minimum": 0}
    }
  }
}`

var compiled = mustCompile()

func mustCompile() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(exportSchema))
	if err != nil {
		panic(fmt.Sprintf("schema: parse: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(exportSchemaURL, doc); err != nil {
		panic(fmt.Sprintf("schema: add resource: %v", err))
	}
	sch, err := c.Compile(exportSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("schema: compile: %v", err))
	}
	return sch
}

// ValidateExportSummary checks the export summary file at path against the
// export schema. The returned error includes the validation detail for
// malformed documents.
func ValidateExportSummary(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export summary: %w", err)
	}
	defer f.Close()

	doc, err := jsonschema.UnmarshalJSON(f)
	if err != nil {
		return fmt.Errorf("parse export summary %s: %w", path, err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("invalid export summary %s: %w", path, err)
	}
	return nil
}

// ValidateExportSummaryBytes validates an in-memory summary document. The
// exporter calls this before writing so it never produces a tree an import
// would reject.
func ValidateExportSummaryBytes(data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("parse export summary: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("invalid export summary: %w", err)
	}
	return nil
}
