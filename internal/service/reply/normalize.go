// Package reply turns the bodies returned by the inference endpoint into the
// single display string shown in a conversation.
package reply

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
)

// Fallback is shown when a well-formed reply carries no text.
const Fallback = "No response received."

const responseKey = "response"

// ErrUnrecognizedShape marks a JSON reply that matches none of the known layouts.
var ErrUnrecognizedShape = errors.New("unrecognized reply shape")

// Normalize accepts plain text, {"response": "..."}, {"response": {"response": "..."}}
// or an array of such objects, and returns the text to display. Anything that is
// not valid JSON counts as plain text.
func Normalize(body []byte) (string, error) {
	return normalize(body, true)
}

func normalize(body []byte, unwrap bool) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Fallback, nil
	}

	var (
		text string
		err  error
	)
	switch {
	case !json.Valid(trimmed) && trimmed[0] != '"':
		// Bracketed prose such as "[Note] ..." is plain text.
		text = string(trimmed)
	case trimmed[0] == '{':
		text, err = fromObject(trimmed, unwrap)
	case trimmed[0] == '[':
		text, err = fromArray(trimmed)
	case trimmed[0] == '"':
		text = unquote(trimmed)
	default:
		text = string(trimmed)
	}
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return Fallback, nil
	}
	return text, nil
}

func fromObject(obj []byte, unwrap bool) (string, error) {
	value, dataType, _, err := jsonparser.Get(obj, responseKey)
	if err != nil {
		return "", errors.Wrapf(ErrUnrecognizedShape, "object without %q", responseKey)
	}

	switch dataType {
	case jsonparser.String:
		text, err := jsonparser.ParseString(value)
		if err != nil {
			return "", errors.Wrap(ErrUnrecognizedShape, err.Error())
		}
		if unwrap {
			if inner, ok := embedded(text); ok {
				return inner, nil
			}
		}
		return text, nil
	case jsonparser.Object:
		nested, nestedType, _, err := jsonparser.Get(value, responseKey)
		if err != nil || nestedType != jsonparser.String {
			return "", errors.Wrapf(ErrUnrecognizedShape, "nested %q is not a string", responseKey)
		}
		text, err := jsonparser.ParseString(nested)
		if err != nil {
			return "", errors.Wrap(ErrUnrecognizedShape, err.Error())
		}
		return text, nil
	default:
		return "", errors.Wrapf(ErrUnrecognizedShape, "%q has type %s", responseKey, dataType)
	}
}

func fromArray(arr []byte) (string, error) {
	var (
		fragments []string
		shapeErr  error
	)
	_, err := jsonparser.ArrayEach(arr, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if shapeErr != nil {
			return
		}
		if dataType != jsonparser.Object {
			shapeErr = errors.Wrapf(ErrUnrecognizedShape, "array element of type %s", dataType)
			return
		}
		text, err := fromObject(value, false)
		if err != nil {
			shapeErr = err
			return
		}
		if strings.TrimSpace(text) != "" {
			fragments = append(fragments, text)
		}
	})
	if err != nil {
		return "", errors.Wrap(ErrUnrecognizedShape, err.Error())
	}
	if shapeErr != nil {
		return "", shapeErr
	}
	return strings.Join(fragments, " "), nil
}

// embedded handles relays that forward an upstream JSON body as a string.
func embedded(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return "", false
	}
	inner, err := normalize([]byte(trimmed), false)
	if err != nil {
		return "", false
	}
	return inner, true
}

func unquote(raw []byte) string {
	value, dataType, offset, err := jsonparser.Get(raw)
	if err != nil || dataType != jsonparser.String || offset != len(raw) {
		return string(raw)
	}
	text, err := jsonparser.ParseString(value)
	if err != nil {
		return string(raw)
	}
	return strings.TrimSpace(text)
}
