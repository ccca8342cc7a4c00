package callback

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Ady-cod/POC-HRMS-NextJS-ExpressJS-sub000/internal/popup"
)

//go:embed message.schema.json
var messageSchemaData []byte

// messageValidator checks posted completion messages against the embedded
// schema before they reach the hub.
type messageValidator struct {
	schema *jsonschema.Schema
}

func newMessageValidator() (*messageValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("message.json", strings.NewReader(string(messageSchemaData))); err != nil {
		return nil, fmt.Errorf("adding message schema: %w", err)
	}
	schema, err := compiler.Compile("message.json")
	if err != nil {
		return nil, fmt.Errorf("compiling message schema: %w", err)
	}
	return &messageValidator{schema: schema}, nil
}

// decode validates raw and returns the message it describes.
func (v *messageValidator) decode(raw []byte) (popup.Message, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return popup.Message{}, fmt.Errorf("parsing message: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			var msgs []string
			collectErrors(verr, &msgs)
			return popup.Message{}, fmt.Errorf("invalid message: %s", strings.Join(msgs, "; "))
		}
		return popup.Message{}, fmt.Errorf("invalid message: %w", err)
	}

	var msg popup.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return popup.Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return msg, nil
}

func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if err.InstanceLocation != "" || len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*messages = append(*messages, fmt.Sprintf("%s: %s", loc, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
