package binstream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/xeipuuv/gojsonschema"
)

// capabilitySchema is the JSON Schema (Draft-7) for a peer's announced
// binaryTransfer capability object. Unknown properties are allowed so
// newer peers can extend the object without breaking older sessions.
const capabilitySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["supported"],
  "properties": {
    "supported": {"type": "boolean"},
    "maxBinarySize": {"type": "integer", "minimum": 0},
    "supportedModes": {
      "type": "array",
      "items": {"type": "string"}
    }
  },
  "additionalProperties": true
}`

// ValidateCapabilityJSON validates the raw capability JSON a peer
// announced at session initialization against the capability schema.
func ValidateCapabilityJSON(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(capabilitySchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("capability validation failed: %w", err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("invalid capability object: %s", strings.Join(details, "; "))
	}
	return nil
}

// ParseCapability validates and decodes a peer capability from its raw
// JSON form. Unknown modes are dropped rather than rejected so that a
// newer peer's extra modes simply fall out of the intersection.
func ParseCapability(data []byte) (BinaryTransferCapability, error) {
	if err := ValidateCapabilityJSON(data); err != nil {
		return BinaryTransferCapability{}, err
	}

	var raw struct {
		Supported      bool     `json:"supported"`
		MaxBinarySize  *uint64  `json:"maxBinarySize"`
		SupportedModes []string `json:"supportedModes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return BinaryTransferCapability{}, fmt.Errorf("decode capability: %w", err)
	}

	return BinaryTransferCapability{
		Supported:      raw.Supported,
		MaxBinarySize:  raw.MaxBinarySize,
		SupportedModes: knownModes(raw.SupportedModes),
	}, nil
}

// CapabilityFromMap decodes a peer capability from the generic map the
// RPC layer hands over after JSON decoding. JSON numbers arrive as
// float64 and some peers send sizes as strings, so field extraction is
// deliberately lenient.
func CapabilityFromMap(m map[string]any) (BinaryTransferCapability, error) {
	if m == nil {
		return BinaryTransferCapability{}, nil
	}

	cap := BinaryTransferCapability{
		Supported: cast.ToBool(m["supported"]),
	}

	if raw, ok := m["maxBinarySize"]; ok && raw != nil {
		size, err := cast.ToUint64E(raw)
		if err != nil {
			return BinaryTransferCapability{}, fmt.Errorf("maxBinarySize: %w", err)
		}
		cap.MaxBinarySize = &size
	}

	if raw, ok := m["supportedModes"]; ok && raw != nil {
		names, err := cast.ToStringSliceE(raw)
		if err != nil {
			return BinaryTransferCapability{}, fmt.Errorf("supportedModes: %w", err)
		}
		cap.SupportedModes = knownModes(names)
	}

	return cap, nil
}

// knownModes keeps the modes this implementation understands, preserving
// the peer's declared order.
func knownModes(names []string) []Mode {
	var modes []Mode
	for _, name := range names {
		if m, err := ParseMode(name); err == nil {
			modes = append(modes, m)
		}
	}
	return modes
}
