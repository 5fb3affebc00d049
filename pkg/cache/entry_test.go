package cache

import (
	"testing"
)

func TestNewPayload_CopiesInput(t *testing.T) {
	src := []byte("hello")
	p := NewPayload(src)

	src[0] = 'j'

	if got := p.String(); got != "hello" {
		t.Errorf("Payload changed with its source: got %q, want %q", got, "hello")
	}
	if p.Len() != 5 {
		t.Errorf("Len() = %d, want 5", p.Len())
	}
}

func TestPayload_Empty(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{name: "nil input", in: nil},
		{name: "empty input", in: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPayload(tt.in)
			if p.Len() != 0 {
				t.Errorf("Len() = %d, want 0", p.Len())
			}
			if p.Bytes() == nil {
				t.Error("Bytes() should be non-nil for constructed payloads")
			}
		})
	}
}

func TestPayload_SharedBytes(t *testing.T) {
	p := NewPayload([]byte("shared"))

	a, b := p.Bytes(), p.Bytes()
	if &a[0] != &b[0] {
		t.Error("Bytes() should hand out the same backing array to every reader")
	}
}
