package useragent

import (
	"testing"
)

func TestNewPool_DefaultsWhenEmpty(t *testing.T) {
	p := NewPool(nil)
	if p.Len() != len(DefaultPool) {
		t.Fatalf("expected %d user agents, got %d", len(DefaultPool), p.Len())
	}
}

func TestNewPool_CopiesInput(t *testing.T) {
	in := []string{"UA-1", "UA-2"}
	p := NewPool(in)
	in[0] = "mutated"

	if got := p.At(0); got != "UA-1" {
		t.Errorf("expected pool to be isolated from caller slice, got %q", got)
	}
}

func TestPool_At(t *testing.T) {
	p := NewPool([]string{"UA-1", "UA-2"})
	if p.At(3) != "UA-2" || p.At(-2) != "UA-1" {
		t.Errorf("unexpected modulo indexing: %q %q", p.At(3), p.At(-2))
	}
}
