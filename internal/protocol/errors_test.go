package protocol

import (
	"errors"
	"testing"
)

func TestDecodeResponse_MalformedInputs(t *testing.T) {
	cases := map[string][]byte{
		"truncated tag":        {0x80},
		"truncated length":     {0x4a, 0x05, 0x01},
		"truncated varint":     {0x08, 0xff, 0xff},
		"truncated fixed32":    {0x0d, 0x01, 0x02},
		"reserved field zero":  {0x00, 0x01},
		"nested garbage":       {0x52, 0x02, 0x1a, 0x09},
		"garbage in game info": {0x4a, 0x03, 0x22, 0x01, 0xff},
	}
	for name, b := range cases {
		resp, err := DecodeResponse(b)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
		if resp.Kind != KindNone || resp.GameInfo != nil || resp.Observation != nil {
			t.Fatalf("%s: expected zero response, got %+v", name, resp)
		}
	}
}

func TestDecodeRequest_Malformed(t *testing.T) {
	_, err := DecodeRequest([]byte{0x0a, 0x7f})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecode_EmptyFrame(t *testing.T) {
	resp, err := DecodeResponse(nil)
	if err != nil {
		t.Fatalf("DecodeResponse(nil): %v", err)
	}
	if resp.Kind != KindNone {
		t.Fatalf("kind: got %v", resp.Kind)
	}
}
