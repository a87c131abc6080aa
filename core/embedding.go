// core/embedding.go
package core

// Embedding Provider (C3) — pluggable text→vector capability (spec §4.3).
// Two variants are provided: a deterministic local hash-based pseudo-
// embedding (used in tests and as the fallback target for degraded remote
// providers) and a remote HTTP provider whose results are cached by the
// SHA-256 of the input text. Vector/search shapes follow
// other_examples/72f94701_liliang-cn-sqvect__pkg-core-embedding.go.go.

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Vector is a fixed-dimension, L2-normalized embedding (spec §4.3).
type Vector []float32

// EmbeddingProvider is the C3 capability set: embed text, score similarity.
// Implementations must be deterministic for a given provider version and
// must return L2-normalized vectors of the provider-global dimension D.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dim() int
}

// Similarity returns the cosine similarity of two vectors, in [-1, 1].
// Vectors need not be pre-normalized; this computes the true cosine.
func Similarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func normalize(v Vector) Vector {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// LocalProvider is a deterministic, seed-fixed hash-based pseudo-embedding.
// It requires no network access and is used for tests and as the degraded
// fallback target (spec §4.3).
type LocalProvider struct {
	dim  int
	seed uint64
}

// NewLocalProvider constructs a LocalProvider producing vectors of the
// given dimension, all derived from a fixed seed so runs are reproducible.
func NewLocalProvider(dim int, seed uint64) *LocalProvider {
	if dim <= 0 {
		dim = 64
	}
	return &LocalProvider{dim: dim, seed: seed}
}

func (p *LocalProvider) Dim() int { return p.dim }

// Embed derives a pseudo-embedding from repeated SHA-256 hashing of the
// input text salted with the provider seed and a running counter — a
// bag-of-hashes embedding, not semantically meaningful, but stable across
// calls and processes for the same (seed, text).
func (p *LocalProvider) Embed(_ context.Context, text string) (Vector, error) {
	out := make(Vector, p.dim)
	block := make([]byte, 8+len(text))
	binary.BigEndian.PutUint64(block, p.seed)
	copy(block[8:], text)
	h := sha256.Sum256(block)
	for i := 0; i < p.dim; i++ {
		if i > 0 && i%32 == 0 {
			h = sha256.Sum256(h[:])
		}
		byteVal := h[i%32]
		out[i] = float32(int(byteVal)-128) / 128.0
	}
	return normalize(out), nil
}

// RemoteProvider calls an external embedding service over HTTP, caching
// results by the SHA-256 of the request text so repeat lookups are free.
// On timeout or error it does not itself fall back — DegradingProvider
// wraps it with the bounded-retry/fallback policy (spec §4.3 failure mode).
type RemoteProvider struct {
	url    string
	dim    int
	client *http.Client

	mu    sync.RWMutex
	cache map[[32]byte]Vector
}

// NewRemoteProvider constructs a RemoteProvider targeting url, expecting
// vectors of dimension dim.
func NewRemoteProvider(url string, dim int, timeout time.Duration) *RemoteProvider {
	return &RemoteProvider{
		url:    url,
		dim:    dim,
		client: &http.Client{Timeout: timeout},
		cache:  make(map[[32]byte]Vector),
	}
}

func (p *RemoteProvider) Dim() int { return p.dim }

type remoteEmbedRequest struct {
	Text string `json:"text"`
}

type remoteEmbedResponse struct {
	Vector []float32 `json:"vector"`
}

// Embed calls the remote provider, caching by content hash.
func (p *RemoteProvider) Embed(ctx context.Context, text string) (Vector, error) {
	key := sha256.Sum256([]byte(text))

	p.mu.RLock()
	if v, ok := p.cache[key]; ok {
		p.mu.RUnlock()
		return v, nil
	}
	p.mu.RUnlock()

	body, err := json.Marshal(remoteEmbedRequest{Text: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding provider %s: status %d", p.url, resp.StatusCode)
	}
	var out remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	v := normalize(Vector(out.Vector))

	p.mu.Lock()
	p.cache[key] = v
	p.mu.Unlock()
	return v, nil
}

// DegradingProvider wraps a primary provider (typically RemoteProvider)
// with a bounded retry budget and a local fallback, per spec §4.3: provider
// timeout falls back to local within a bounded retry budget, tagging the
// result as degraded.
type DegradingProvider struct {
	primary   EmbeddingProvider
	fallback  *LocalProvider
	retries   int
	retryWait time.Duration
	log       *logrus.Logger

	mu       sync.Mutex
	degraded bool
}

// NewDegradingProvider wires primary with a bounded-retry fallback to
// fallback. retries is the number of additional attempts after the first.
func NewDegradingProvider(primary EmbeddingProvider, fallback *LocalProvider, retries int, retryWait time.Duration, log *logrus.Logger) *DegradingProvider {
	return &DegradingProvider{primary: primary, fallback: fallback, retries: retries, retryWait: retryWait, log: log}
}

func (p *DegradingProvider) Dim() int { return p.primary.Dim() }

// Embed attempts the primary provider up to 1+retries times, falling back
// to the local provider and marking the result degraded if all attempts
// fail.
func (p *DegradingProvider) Embed(ctx context.Context, text string) (v Vector, degraded bool, err error) {
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		v, lastErr = p.primary.Embed(ctx, text)
		if lastErr == nil {
			p.setDegraded(false)
			return v, false, nil
		}
		if attempt < p.retries {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(p.retryWait):
			}
		}
	}
	if p.log != nil {
		p.log.WithError(lastErr).Warn("embedding: provider degraded, falling back to local")
	}
	p.setDegraded(true)
	v, err = p.fallback.Embed(ctx, text)
	return v, true, err
}

func (p *DegradingProvider) setDegraded(d bool) {
	p.mu.Lock()
	p.degraded = d
	p.mu.Unlock()
}

// Degraded reports whether the most recent Embed call used the fallback.
func (p *DegradingProvider) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

// TextSHA returns the hex SHA-256 of text, used as the cache key contract
// described in spec §4.3.
func TextSHA(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
