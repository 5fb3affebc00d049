package origin

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStub_Fetch(t *testing.T) {
	s := NewStub(DefaultStubLatency, nil)

	start := time.Now()
	p, err := s.Fetch(context.Background(), "/x")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < DefaultStubLatency {
		t.Errorf("Fetch() returned after %v, want at least %v", elapsed, DefaultStubLatency)
	}
	if p.String() != DefaultStubPayload {
		t.Errorf("Fetch() = %q, want %q", p.String(), DefaultStubPayload)
	}
}

func TestStub_PayloadIndependentOfPath(t *testing.T) {
	s := NewStub(0, []byte("canned"))

	for _, path := range []string{"/", "/a", "/b/c?d"} {
		p, err := s.Fetch(context.Background(), path)
		if err != nil {
			t.Fatalf("Fetch(%q) error = %v", path, err)
		}
		if p.String() != "canned" {
			t.Errorf("Fetch(%q) = %q, want %q", path, p.String(), "canned")
		}
	}
}

func TestStub_ContextCancelled(t *testing.T) {
	s := NewStub(time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := s.Fetch(ctx, "/slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Fetch() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestStub_Name(t *testing.T) {
	var b Backend = NewStub(0, nil)
	if b.Name() != "stub" {
		t.Errorf("Name() = %q, want stub", b.Name())
	}
}
