package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(32, 7)
	v1, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v1) != 32 {
		t.Fatalf("expected dim 32, got %d", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("same text produced different vectors at index %d", i)
		}
	}
}

func TestLocalProviderDistinctTextsDiffer(t *testing.T) {
	p := NewLocalProvider(32, 7)
	v1, _ := p.Embed(context.Background(), "alpha")
	v2, _ := p.Embed(context.Background(), "beta")
	if Similarity(v1, v2) > 0.999 {
		t.Fatalf("distinct texts produced near-identical vectors")
	}
}

func TestSimilarityIdentical(t *testing.T) {
	p := NewLocalProvider(16, 1)
	v, _ := p.Embed(context.Background(), "same")
	if s := Similarity(v, v); s < 0.999 {
		t.Fatalf("self-similarity should be ~1.0, got %v", s)
	}
}

type failingProvider struct{ dim int }

func (f *failingProvider) Dim() int { return f.dim }
func (f *failingProvider) Embed(ctx context.Context, text string) (Vector, error) {
	return nil, errors.New("upstream unavailable")
}

func TestDegradingProviderFallsBackAndMarksDegraded(t *testing.T) {
	fallback := NewLocalProvider(16, 9)
	dp := NewDegradingProvider(&failingProvider{dim: 16}, fallback, 1, time.Millisecond, nil)

	v, degraded, err := dp.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !degraded {
		t.Fatalf("expected degraded=true after primary failure")
	}
	if !dp.Degraded() {
		t.Fatalf("expected Degraded() to report true after fallback")
	}
	want, _ := fallback.Embed(context.Background(), "text")
	for i := range v {
		if v[i] != want[i] {
			t.Fatalf("fallback vector mismatch at index %d", i)
		}
	}
}

type okProvider struct{ dim int }

func (p *okProvider) Dim() int { return p.dim }
func (p *okProvider) Embed(ctx context.Context, text string) (Vector, error) {
	return NewLocalProvider(p.dim, 1).Embed(ctx, text)
}

func TestDegradingProviderNoFallbackWhenPrimaryHealthy(t *testing.T) {
	dp := NewDegradingProvider(&okProvider{dim: 8}, NewLocalProvider(8, 2), 2, time.Millisecond, nil)
	_, degraded, err := dp.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if degraded {
		t.Fatalf("expected degraded=false when primary succeeds")
	}
}

func TestTextSHAStable(t *testing.T) {
	if TextSHA("abc") != TextSHA("abc") {
		t.Fatalf("TextSHA not stable for identical input")
	}
	if TextSHA("abc") == TextSHA("abd") {
		t.Fatalf("TextSHA collided for distinct input")
	}
}
