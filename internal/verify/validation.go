package verify

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"recaptcha-gate/internal/common/logger"
)

// responseSchema documents the siteverify response contract. Shape checks
// are diagnostic only: a mismatch is logged so contract drift shows up in
// the logs, but the decision is always made from the parsed struct.
var responseSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"success"},
	"properties": map[string]interface{}{
		"success":      map[string]interface{}{"type": "boolean"},
		"score":        map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
		"action":       map[string]interface{}{"type": "string"},
		"hostname":     map[string]interface{}{"type": "string"},
		"challenge_ts": map[string]interface{}{"type": "string"},
		"error-codes": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
	},
}

func checkResponseShape(body []byte, log logger.Logger) {
	schemaLoader := gojsonschema.NewGoLoader(responseSchema)
	documentLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		log.WithError(err).Warn("siteverify response shape check errored", nil)
		return
	}

	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		log.Warn("siteverify response does not match documented contract", map[string]interface{}{
			"issues": strings.Join(issues, "; "),
		})
	}
}
