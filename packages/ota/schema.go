package ota

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrContract reports that the backend answered but its payload breaks the
// update-check contract. The connection and HTTP layers were fine.
var ErrContract = errors.New("ota: response violates the backend contract")

// checkResponseSchema pins the update-check response contract. status 1
// means an update is available and must come with the firmware location.
const checkResponseSchema = `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"type": "integer", "enum": [0, 1]},
		"version": {"type": "string"},
		"url": {"type": "string"},
		"size": {"type": "integer", "minimum": 0},
		"id": {"type": "string"},
		"message": {"type": "string"}
	},
	"if": {"properties": {"status": {"const": 1}}},
	"then": {"required": ["status", "version", "url", "size", "id"]}
}`

func validateCheckResponse(body []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(checkResponseSchema),
		gojsonschema.NewBytesLoader(body),
	)
	if err != nil {
		return fmt.Errorf("%w: response is not valid JSON: %v", ErrContract, err)
	}
	if result.Valid() {
		return nil
	}

	var problems []string
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("%w: %s", ErrContract, strings.Join(problems, "; "))
}
