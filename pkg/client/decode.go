package client

import (
	"fmt"

	"github.com/raykavin/rsdash/pkg/core"
	"github.com/tidwall/gjson"
)

// Decode validates an update body and converts it into a payload. Every
// field is required; a body carrying the backend error shape is reported
// as core.ErrInvalidYear.
func Decode(body []byte) (*core.Payload, error) {
	if !gjson.ValidBytes(body) {
		return nil, &core.MalformedPayloadError{Reason: "body is not valid JSON"}
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, &core.MalformedPayloadError{Reason: "body is not a JSON object"}
	}

	if backendErr := root.Get("error"); backendErr.Exists() {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidYear, backendErr.String())
	}

	var (
		payload core.Payload
		err     error
	)

	if payload.WorldMap, err = markup(root, "world_map"); err != nil {
		return nil, err
	}
	if payload.WorldMap2, err = markup(root, "world_map2"); err != nil {
		return nil, err
	}
	if payload.WorldMap3, err = markup(root, "world_map3"); err != nil {
		return nil, err
	}
	if payload.NDVICategories, err = categories(root, "graph1AXA"); err != nil {
		return nil, err
	}
	if payload.NDVIValues, err = values(root, "graph1AYA"); err != nil {
		return nil, err
	}
	if payload.LSTCategories, err = categories(root, "graph1AX"); err != nil {
		return nil, err
	}
	if payload.LSTValues, err = values(root, "graph1AY"); err != nil {
		return nil, err
	}

	return &payload, nil
}

func field(root gjson.Result, name string) (gjson.Result, error) {
	// field names are fixed identifiers without gjson path syntax
	result := root.Get(name)
	if !result.Exists() {
		return result, &core.MalformedPayloadError{Field: name, Reason: "is missing"}
	}
	return result, nil
}

func markup(root gjson.Result, name string) (string, error) {
	result, err := field(root, name)
	if err != nil {
		return "", err
	}
	if result.Type != gjson.String {
		return "", &core.MalformedPayloadError{Field: name, Reason: "is not a string"}
	}
	return result.Str, nil
}

func categories(root gjson.Result, name string) ([]string, error) {
	result, err := field(root, name)
	if err != nil {
		return nil, err
	}
	if !result.IsArray() {
		return nil, &core.MalformedPayloadError{Field: name, Reason: "is not an array"}
	}

	items := result.Array()
	labels := make([]string, 0, len(items))
	for i, item := range items {
		switch item.Type {
		case gjson.String:
			labels = append(labels, item.Str)
		case gjson.Number:
			labels = append(labels, item.Raw)
		default:
			return nil, &core.MalformedPayloadError{
				Field:  name,
				Reason: fmt.Sprintf("has a non label element at index %d", i),
			}
		}
	}
	return labels, nil
}

func values(root gjson.Result, name string) ([]float64, error) {
	result, err := field(root, name)
	if err != nil {
		return nil, err
	}
	if !result.IsArray() {
		return nil, &core.MalformedPayloadError{Field: name, Reason: "is not an array"}
	}

	items := result.Array()
	numbers := make([]float64, 0, len(items))
	for i, item := range items {
		if item.Type != gjson.Number {
			return nil, &core.MalformedPayloadError{
				Field:  name,
				Reason: fmt.Sprintf("has a non numeric element at index %d", i),
			}
		}
		numbers = append(numbers, item.Num)
	}
	return numbers, nil
}
