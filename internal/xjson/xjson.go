package xjson

import (
	stdjson "encoding/json"

	gjson "github.com/goccy/go-json"
)

// Marshal/Unmarshal wrappers keep a single import site for the JSON codec.

func Marshal(v interface{}) ([]byte, error) {
	return gjson.Marshal(v)
}

func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gjson.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v interface{}) error {
	return gjson.Unmarshal(data, v)
}

// RawMessage is kept compatible with encoding/json's RawMessage type.
type RawMessage = stdjson.RawMessage

// EncodeMap renders a map as a JSON object; nil becomes "{}".
func EncodeMap(m map[string]interface{}) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := gjson.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeMap parses a JSON object column; empty or null input yields an empty map.
func DecodeMap(raw string) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if raw == "" || raw == "null" {
		return out, nil
	}
	if err := gjson.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = make(map[string]interface{})
	}
	return out, nil
}

// Normalize passes m through the codec so its values take the shapes they
// have after a storage round trip: numbers become float64, structs become
// maps. nil stays nil.
func Normalize(m map[string]interface{}) (map[string]interface{}, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := EncodeMap(m)
	if err != nil {
		return nil, err
	}
	return DecodeMap(raw)
}
