package rates

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Structurally broken payloads are rejected before they reach the decoder.
const responseSchema = `{
	"type": "object",
	"properties": {
		"instrument": {"type": "string"},
		"granularity": {"type": "string"},
		"candles": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["time", "open", "high", "low", "close"],
				"properties": {
					"time": {"type": "number"},
					"open": {"type": "number"},
					"high": {"type": "number"},
					"low": {"type": "number"},
					"close": {"type": "number"}
				}
			}
		}
	}
}`

var candleSchema = jsonschema.MustCompileString("candles.schema.json", responseSchema)

func validateResponse(body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("decode candles response: %w", err)
	}
	if err := candleSchema.Validate(doc); err != nil {
		return fmt.Errorf("candles response schema: %w", err)
	}
	return nil
}
