package decision

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// 中文说明：
// HTTP 边界先用 JSON Schema 粗筛结构（类型、取值域、必填项），
// 再进 validate.go 做语义校验。Schema 只约束形状，
// 不重复语义规则（比如 option_price 与 portfolio 的关系）。

const entrySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["bundle", "option_price", "portfolio_value"],
  "properties": {
    "bundle": {
      "type": "object",
      "required": ["signal"],
      "properties": {
        "signal": {
          "type": "object",
          "properties": {
            "ticker": {"type": "string"},
            "direction": {"type": "string"},
            "strength": {"type": "number", "minimum": 0, "maximum": 100}
          }
        }
      }
    },
    "option_symbol": {"type": "string"},
    "option_price": {"type": "number", "exclusiveMinimum": 0},
    "portfolio_value": {"type": "number", "exclusiveMinimum": 0},
    "dte": {"type": "integer", "minimum": 0},
    "overrides": {"type": "object"}
  }
}`

const positionRequestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["position", "current_price"],
  "properties": {
    "position": {
      "type": "object",
      "required": ["ticker", "entry_price", "quantity"],
      "properties": {
        "ticker": {"type": "string", "minLength": 1},
        "entry_price": {"type": "number", "exclusiveMinimum": 0},
        "quantity": {"type": "integer", "minimum": 1},
        "partial_exits_taken": {"type": "integer", "minimum": 0},
        "highest_price": {"type": "number", "minimum": 0},
        "dte": {"type": "integer", "minimum": 0}
      }
    },
    "current_price": {"type": "number", "exclusiveMinimum": 0},
    "overrides": {"type": "object"}
  }
}`

var (
	entrySchema    = jsonschema.MustCompileString("entry.json", entrySchemaJSON)
	positionSchema = jsonschema.MustCompileString("position.json", positionRequestSchemaJSON)
)

// ValidateEntryPayload 校验入场请求的 JSON 形状。
func ValidateEntryPayload(raw []byte) error {
	return validatePayload(entrySchema, raw)
}

// ValidatePositionPayload 校验 Hold/Exit 请求的 JSON 形状。
func ValidatePositionPayload(raw []byte) error {
	return validatePayload(positionSchema, raw)
}

func validatePayload(schema *jsonschema.Schema, raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("请求不是合法 JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("请求结构校验失败: %w", err)
	}
	return nil
}
