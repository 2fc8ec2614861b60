package driver

import (
	"errors"
	"testing"
)

func TestLineCodec_Encode(t *testing.T) {
	c := LineCodec{}

	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{"multivision 8bit", c.EncodeWrite(Target{Family: FamilyMultivision, Module: 3}, Unit8Bit, 200), "W MV 3 B8 200\r\n"},
		{"onlyglass percent ignores module", c.EncodeWrite(Target{Family: FamilyOnlyGlass, Module: 9}, UnitPercent, 0), "W OG 0 PCT 0\r\n"},
		{"read", c.EncodeRead(Target{Family: FamilyMultivision, Module: 12}), "R MV 12\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.got) != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestLineCodec_DecodeAck(t *testing.T) {
	c := LineCodec{}

	tests := []struct {
		line    string
		wantErr error
	}{
		{"OK", nil},
		{" OK\r", nil},
		{"ERR overtemp", ErrCommandRejected},
		{"ERR", ErrCommandRejected},
		{"", ErrNoData},
		{"V 12", ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			err := c.DecodeAck(tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeAck(%q) = %v, want %v", tt.line, err, tt.wantErr)
			}
		})
	}
}

func TestLineCodec_DecodeBrightness(t *testing.T) {
	c := LineCodec{}

	tests := []struct {
		line    string
		want    uint8
		wantErr error
	}{
		{"V 0", 0, nil},
		{"V 255", 255, nil},
		{"V 128\r", 128, nil},
		{"", 0, ErrNoData},
		{"   ", 0, ErrNoData},
		{"V", 0, ErrMalformedResponse},
		{"V 256", 0, ErrMalformedResponse},
		{"V -1", 0, ErrMalformedResponse},
		{"V abc", 0, ErrMalformedResponse},
		{"X 12", 0, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := c.DecodeBrightness(tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecodeBrightness(%q) error = %v, want %v", tt.line, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DecodeBrightness(%q) = %d, want %d", tt.line, got, tt.want)
			}
		})
	}
}

func TestFamilyAndUnitCodes(t *testing.T) {
	for _, f := range Families() {
		code := familyCodes[f]
		back, ok := FamilyFromCode(code)
		if !ok || back != f {
			t.Errorf("FamilyFromCode(%q) = %v, %v, want %v", code, back, ok, f)
		}
	}
	if _, ok := FamilyFromCode("XX"); ok {
		t.Error("FamilyFromCode(XX) ok = true")
	}
	for _, u := range []Unit{Unit8Bit, UnitPercent} {
		back, ok := UnitFromCode(unitCode(u))
		if !ok || back != u {
			t.Errorf("UnitFromCode(%q) = %v, %v, want %v", unitCode(u), back, ok, u)
		}
	}
}
