// Package credpool manages a set of API credentials for one brokerage account
// family, selecting a credential per request under a rotation policy and
// tracking which credentials are currently unusable.
package credpool

import (
	"log/slog"
	"math/rand"
	"strings"
	"sync"
)

// Strategy selects how Acquire picks among eligible credentials.
type Strategy string

const (
	// RoundRobin advances a cursor over the eligible credentials, wrapping.
	RoundRobin Strategy = "round_robin"
	// Random picks uniformly among eligible credentials.
	Random Strategy = "random"
	// First returns the lowest-index eligible credential.
	First Strategy = "first"
)

// Credential is an opaque authentication string paired with its stable index
// in the owning pool. The value never changes after construction; only its
// failed/working eligibility does.
type Credential struct {
	Value string
	Index int
}

// Pool holds an ordered sequence of credentials, a rotation cursor, and the
// set of indices currently marked failed. All mutation is guarded by a single
// mutex so concurrent retries cannot race the cursor onto the same failed
// credential.
type Pool struct {
	mu     sync.Mutex
	creds  []Credential
	cursor int
	failed map[int]struct{}
	log    *slog.Logger
}

// New creates a Pool over the given credential values. An empty set is not an
// error at the pool level; Acquire simply reports no credential.
func New(values []string) *Pool {
	p := &Pool{
		creds:  make([]Credential, 0, len(values)),
		failed: make(map[int]struct{}),
		log:    slog.Default().With("component", "credpool"),
	}
	for i, v := range values {
		p.creds = append(p.creds, Credential{Value: v, Index: i})
	}
	if len(p.creds) == 0 {
		p.log.Warn("credential pool is empty")
	} else {
		p.log.Info("credential pool initialised", "size", len(p.creds))
	}
	return p
}

// ParseValues splits a delimited credential string into individual values.
// Comma, semicolon, and newline all act as separators; entries are trimmed
// and empties discarded.
func ParseValues(s string) []string {
	s = strings.ReplaceAll(s, "\n", ",")
	s = strings.ReplaceAll(s, ";", ",")

	var values []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// Acquire returns one credential chosen by the given strategy, or false if
// the pool is empty. If every credential is marked failed, the failed set is
// cleared first: transient network issues would otherwise leave the pool
// permanently unusable.
func (p *Pool) Acquire(strategy Strategy) (Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.creds) == 0 {
		return Credential{}, false
	}

	eligible := p.eligibleLocked()
	if len(eligible) == 0 {
		p.log.Error("all credentials marked failed, resetting failed set")
		p.failed = make(map[int]struct{})
		eligible = p.eligibleLocked()
	}

	switch strategy {
	case RoundRobin:
		cred := eligible[p.cursor%len(eligible)]
		p.cursor = (p.cursor + 1) % len(eligible)
		return cred, true
	case Random:
		return eligible[rand.Intn(len(eligible))], true
	case First:
		return eligible[0], true
	default:
		return eligible[0], true
	}
}

// MarkFailed marks the credential as unusable. Lookup is by value; marking a
// credential that is not a pool member is a no-op. Idempotent.
func (p *Pool) MarkFailed(cred Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.indexOfLocked(cred.Value)
	if !ok {
		return
	}
	if _, already := p.failed[idx]; !already {
		p.failed[idx] = struct{}{}
		p.log.Warn("credential marked failed", "index", idx)
	}
}

// MarkWorking clears the failed mark from the credential. Lookup is by value;
// no-op for non-members. Idempotent.
func (p *Pool) MarkWorking(cred Credential) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.indexOfLocked(cred.Value)
	if !ok {
		return
	}
	if _, was := p.failed[idx]; was {
		delete(p.failed, idx)
		p.log.Info("credential restored", "index", idx)
	}
}

// EligibleCount returns the number of credentials not currently marked failed.
func (p *Pool) EligibleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds) - len(p.failed)
}

// Size returns the total number of credentials in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

func (p *Pool) eligibleLocked() []Credential {
	eligible := make([]Credential, 0, len(p.creds))
	for _, c := range p.creds {
		if _, bad := p.failed[c.Index]; !bad {
			eligible = append(eligible, c)
		}
	}
	return eligible
}

func (p *Pool) indexOfLocked(value string) (int, bool) {
	for _, c := range p.creds {
		if c.Value == value {
			return c.Index, true
		}
	}
	return 0, false
}
