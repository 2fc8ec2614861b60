package driver

import (
	"fmt"
	"strconv"
	"strings"
)

// Codec encodes requests and decodes responses for one wire protocol.
// Each request gets exactly one response line.
type Codec interface {
	// EncodeWrite returns the request setting t to value in unit u.
	EncodeWrite(t Target, u Unit, value int) []byte

	// EncodeRead returns the request asking t for its brightness.
	EncodeRead(t Target) []byte

	// DecodeAck interprets the response to a write. Nil means accepted.
	DecodeAck(line string) error

	// DecodeBrightness interprets the response to a read.
	// Returns ErrNoData or ErrMalformedResponse when no reading is available.
	DecodeBrightness(line string) (uint8, error)
}

// LineCodec is the CRLF ASCII protocol described in the package doc.
type LineCodec struct{}

var _ Codec = LineCodec{}

// familyCodes maps families to their two-letter wire codes.
var familyCodes = map[Family]string{
	FamilyMultivision: "MV",
	FamilyOnlyGlass:   "OG",
}

// FamilyFromCode is the inverse of the wire family code.
func FamilyFromCode(code string) (Family, bool) {
	for f, c := range familyCodes {
		if c == code {
			return f, true
		}
	}
	return "", false
}

func unitCode(u Unit) string {
	if u == UnitPercent {
		return "PCT"
	}
	return "B8"
}

// UnitFromCode is the inverse of the wire unit code.
func UnitFromCode(code string) (Unit, bool) {
	switch code {
	case "B8":
		return Unit8Bit, true
	case "PCT":
		return UnitPercent, true
	default:
		return 0, false
	}
}

func module(t Target) int {
	if t.Family == FamilyOnlyGlass {
		return 0
	}
	return t.Module
}

// EncodeWrite implements Codec.
func (LineCodec) EncodeWrite(t Target, u Unit, value int) []byte {
	return fmt.Appendf(nil, "W %s %d %s %d\r\n", familyCodes[t.Family], module(t), unitCode(u), value)
}

// EncodeRead implements Codec.
func (LineCodec) EncodeRead(t Target) []byte {
	return fmt.Appendf(nil, "R %s %d\r\n", familyCodes[t.Family], module(t))
}

// DecodeAck implements Codec.
func (LineCodec) DecodeAck(line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "OK":
		return nil
	case strings.HasPrefix(line, "ERR"):
		reason := strings.TrimSpace(strings.TrimPrefix(line, "ERR"))
		if reason == "" {
			return ErrCommandRejected
		}
		return fmt.Errorf("%w: %s", ErrCommandRejected, reason)
	case line == "":
		return ErrNoData
	default:
		return fmt.Errorf("%w: unexpected ack %q", ErrMalformedResponse, line)
	}
}

// DecodeBrightness implements Codec.
func (LineCodec) DecodeBrightness(line string) (uint8, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, ErrNoData
	}

	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != "V" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil || v < 0 || v > 255 {
		return 0, fmt.Errorf("%w: brightness %q", ErrMalformedResponse, fields[1])
	}
	return uint8(v), nil
}
