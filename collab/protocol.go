package collab

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

type (
	AuthRequest struct {
		Token string `mapstructure:"token" validate:"required"`
	}

	// DocumentRequest is the payload of join and leave.
	DocumentRequest struct {
		DocumentID string `mapstructure:"documentId" validate:"required,max=256"`
	}

	// EditRequest.Content is a pointer so that a missing key is rejected
	// while an explicit empty string still clears the document.
	EditRequest struct {
		DocumentID  string  `mapstructure:"documentId" validate:"required,max=256"`
		Content     *string `mapstructure:"content" validate:"required"`
		BaseVersion string  `mapstructure:"baseVersion" validate:"required"`
	}

	CursorRequest struct {
		DocumentID string `mapstructure:"documentId" validate:"required,max=256"`
		Position   any    `mapstructure:"position"`
	}
)

var validate = validator.New()

// decodeArgs fills out from socket arguments. A single object argument is
// decoded by field name; anything else is matched positionally against
// fields, so join("doc1") and join({documentId: "doc1"}) are equivalent.
func decodeArgs(args []any, fields []string, out any) error {
	var input map[string]any
	if len(args) == 1 {
		if m, ok := args[0].(map[string]any); ok {
			input = m
		}
	}
	if input == nil {
		if len(args) > len(fields) {
			return newError(KindProtocol, "expected at most %d arguments, got %d", len(fields), len(args))
		}
		input = make(map[string]any, len(args))
		for i, arg := range args {
			input[fields[i]] = arg
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return newError(KindProtocol, "malformed payload: %v", err)
	}

	if err := validate.Struct(out); err != nil {
		return newError(KindProtocol, "invalid payload: %s", describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, ", ")
}
