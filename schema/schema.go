// Package schema provides runtime-validated codecs for the opaque JSON
// payloads carried by requests, results and callback contexts.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/tarik02-org/mediabot/errors"
)

// Schema decodes and encodes a payload of type T, reporting
// *errors.InvalidPayloadError when the payload does not conform.
type Schema[T any] interface {
	// Parse decodes raw JSON into a validated T
	Parse(raw json.RawMessage) (T, error)

	// Marshal encodes a validated T into JSON
	Marshal(value T) (json.RawMessage, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type structSchema[T any] struct{}

// Struct returns a schema that JSON-decodes into T and checks the
// struct's `validate` tags. T must be a struct type.
func Struct[T any]() Schema[T] {
	return structSchema[T]{}
}

func (structSchema[T]) Parse(raw json.RawMessage) (T, error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, errors.NewInvalidPayloadError(kindOf[T](), err)
	}
	if err := validate.Struct(&value); err != nil {
		return value, errors.NewInvalidPayloadError(kindOf[T](), err)
	}
	return value, nil
}

func (structSchema[T]) Marshal(value T) (json.RawMessage, error) {
	if err := validate.Struct(&value); err != nil {
		return nil, errors.NewInvalidPayloadError(kindOf[T](), err)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.NewInvalidPayloadError(kindOf[T](), err)
	}
	return raw, nil
}

type jsonSchema[T any] struct{}

// JSON returns a schema that JSON-decodes into T without further
// validation. Use it for scalars, maps and other non-struct payloads.
func JSON[T any]() Schema[T] {
	return jsonSchema[T]{}
}

func (jsonSchema[T]) Parse(raw json.RawMessage) (T, error) {
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, errors.NewInvalidPayloadError(kindOf[T](), err)
	}
	return value, nil
}

func (jsonSchema[T]) Marshal(value T) (json.RawMessage, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.NewInvalidPayloadError(kindOf[T](), err)
	}
	return raw, nil
}

type anySchema struct{}

// Any returns a passthrough schema for callers that keep payloads opaque.
func Any() Schema[json.RawMessage] {
	return anySchema{}
}

func (anySchema) Parse(raw json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(raw) {
		return nil, errors.NewInvalidPayloadError("json.RawMessage",
			fmt.Errorf("not valid JSON"))
	}
	return raw, nil
}

func (anySchema) Marshal(value json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(value) {
		return nil, errors.NewInvalidPayloadError("json.RawMessage",
			fmt.Errorf("not valid JSON"))
	}
	return value, nil
}

func kindOf[T any]() string {
	var zero T
	return fmt.Sprintf("%T", zero)
}
