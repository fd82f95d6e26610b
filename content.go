package binstream

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ContentMode discriminates the two content representations.
type ContentMode string

const (
	// ContentModeBase64 carries the bytes inline, base64-encoded.
	ContentModeBase64 ContentMode = "base64"
	// ContentModeBinaryRef carries a BinaryReference; the bytes move
	// separately over a negotiated transport.
	ContentModeBinaryRef ContentMode = "binaryRef"
)

// Content is the RPC-visible representation of a binary payload: either
// inline base64 data or a reference to a registered binary stream. The
// JSON form is discriminated by a "transferMode" tag; an absent tag is
// always interpreted as base64 for backward compatibility with peers
// that predate the side channel.
type Content struct {
	// Mode selects the active variant.
	Mode ContentMode
	// Data holds the raw (decoded) bytes of the base64 variant.
	Data []byte
	// Ref holds the reference of the binaryRef variant.
	Ref *BinaryReference
	// MimeType describes the payload for the base64 variant. The
	// binaryRef variant carries its mime type inside the reference.
	MimeType string
}

// NewBase64Content creates an inline base64 content item.
func NewBase64Content(data []byte, mimeType string) Content {
	return Content{Mode: ContentModeBase64, Data: data, MimeType: mimeType}
}

// NewBinaryRefContent creates a content item referencing a registered
// binary stream.
func NewBinaryRefContent(ref BinaryReference) Content {
	return Content{Mode: ContentModeBinaryRef, Ref: &ref}
}

// IsBinary reports whether the content references a binary stream
// rather than carrying inline data.
func (c Content) IsBinary() bool {
	return c.Mode == ContentModeBinaryRef
}

// contentJSON is the wire form of Content.
type contentJSON struct {
	TransferMode ContentMode      `json:"transferMode,omitempty"`
	Data         string           `json:"data,omitempty"`
	MimeType     string           `json:"mimeType,omitempty"`
	BinaryRef    *BinaryReference `json:"binaryRef,omitempty"`
}

// MarshalJSON emits the tagged wire form. The switch over variants is
// exhaustive: an unknown mode is a programming error, not a default.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Mode {
	case ContentModeBase64:
		return json.Marshal(contentJSON{
			TransferMode: ContentModeBase64,
			Data:         base64.StdEncoding.EncodeToString(c.Data),
			MimeType:     c.MimeType,
		})
	case ContentModeBinaryRef:
		if c.Ref == nil {
			return nil, fmt.Errorf("binaryRef content without reference")
		}
		return json.Marshal(contentJSON{
			TransferMode: ContentModeBinaryRef,
			BinaryRef:    c.Ref,
		})
	default:
		return nil, fmt.Errorf("unknown content mode %q", c.Mode)
	}
}

// UnmarshalJSON decodes the tagged wire form. An absent transferMode tag
// decodes as base64; only an explicitly unknown tag is an error.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw contentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.TransferMode {
	case "", ContentModeBase64:
		decoded, err := base64.StdEncoding.DecodeString(raw.Data)
		if err != nil {
			return fmt.Errorf("decode base64 content: %w", err)
		}
		*c = Content{Mode: ContentModeBase64, Data: decoded, MimeType: raw.MimeType}
		return nil
	case ContentModeBinaryRef:
		if raw.BinaryRef == nil {
			return fmt.Errorf("binaryRef content missing binaryRef field")
		}
		*c = Content{Mode: ContentModeBinaryRef, Ref: raw.BinaryRef}
		return nil
	default:
		return fmt.Errorf("unknown transferMode %q", raw.TransferMode)
	}
}
