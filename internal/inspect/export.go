package inspect

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
	"github.com/goccy/go-yaml"

	"github.com/xirelogy/go-lunar/internal/bytecode"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCBOR Format = "cbor"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts a case-insensitive format name; "yml" is an alias for yaml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "cbor":
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, s)
	}
}

// cborEncMode uses canonical encoding so equal chunks yield equal snapshots.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("inspect: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal encodes a chunk document in the given format.
func Marshal(c *bytecode.Chunk, format Format) ([]byte, error) {
	if c == nil || c.Main == nil {
		return nil, fmt.Errorf("inspect: nil chunk")
	}
	doc := FromChunk(c)
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatCBOR:
		return cborEncMode.Marshal(doc)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}

// Export writes the chunk document to w.
func Export(w io.Writer, c *bytecode.Chunk, format Format) error {
	data, err := Marshal(c, format)
	if err != nil {
		return err
	}
	if format == FormatJSON {
		data = append(data, '\n')
	}
	_, err = w.Write(data)
	return err
}

// Unmarshal decodes a chunk document and rebuilds the bytecode chunk.
func Unmarshal(data []byte, format Format) (*bytecode.Chunk, error) {
	var doc Chunk
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatCBOR:
		err = cbor.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("inspect: unmarshal %s: %w", format, err)
	}
	return doc.Chunk()
}

// MarshalSnapshot serializes a chunk to canonical CBOR bytes.
func MarshalSnapshot(c *bytecode.Chunk) ([]byte, error) {
	return Marshal(c, FormatCBOR)
}

// UnmarshalSnapshot deserializes a chunk from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*bytecode.Chunk, error) {
	return Unmarshal(data, FormatCBOR)
}
