// Package customer resolves caller identity against imported CRM records via
// vector similarity search, producing personalized greeting instructions.
//
// The lookup is an asynchronous collaborator with a hard internal timeout: it
// races the AI connection setup and must never block or fail a live call. An
// empty result ("not a known customer") is a normal, common outcome.
package customer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Context is the outcome of a caller-identity lookup.
type Context struct {
	IsExistingCustomer bool

	// Identity fields, set when IsExistingCustomer is true.
	Name    string
	Phone   string
	Content string

	// ContextInstructions is the precomposed block spliced into the AI
	// session instructions for a recognized caller.
	ContextInstructions string
}

// Lookup resolves caller identity for a business.
type Lookup interface {
	// Lookup returns the caller's customer context. A caller unknown to the
	// business yields a zero-value Context and a nil error.
	Lookup(ctx context.Context, businessID, callerNumber string) (Context, error)
}

// Embedder produces embedding vectors for query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Record is one imported CRM record with its precomputed embedding.
type Record struct {
	ID         string
	BusinessID string
	Name       string
	Phone      string
	Content    string
	Embedding  []float32
}

// Match is a scored search result.
type Match struct {
	Record Record
	Score  float64
}

// VectorStore searches imported CRM records by embedding similarity.
type VectorStore interface {
	// Search returns the topK most similar records for a business, best
	// first. An empty result is not an error.
	Search(ctx context.Context, businessID string, query []float32, topK int) ([]Match, error)
}

const (
	// DefaultTimeout bounds the whole lookup (embedding + search).
	DefaultTimeout = 2500 * time.Millisecond

	// DefaultMinScore is the similarity floor below which a best match is
	// treated as "not this caller".
	DefaultMinScore = 0.55

	defaultTopK = 3
)

// VectorLookup implements Lookup over an Embedder and a VectorStore.
type VectorLookup struct {
	embedder Embedder
	store    VectorStore
	timeout  time.Duration
	minScore float64
}

var _ Lookup = (*VectorLookup)(nil)

// VectorLookupOption customizes a VectorLookup.
type VectorLookupOption func(*VectorLookup)

// WithTimeout overrides the internal lookup timeout.
func WithTimeout(d time.Duration) VectorLookupOption {
	return func(l *VectorLookup) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMinScore overrides the similarity floor.
func WithMinScore(score float64) VectorLookupOption {
	return func(l *VectorLookup) { l.minScore = score }
}

// NewVectorLookup creates a caller-identity lookup.
func NewVectorLookup(embedder Embedder, store VectorStore, opts ...VectorLookupOption) *VectorLookup {
	l := &VectorLookup{
		embedder: embedder,
		store:    store,
		timeout:  DefaultTimeout,
		minScore: DefaultMinScore,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lookup embeds the caller's number and searches the business's imported CRM
// records. The phone digits of the best match must corroborate the caller
// number; similarity alone is not enough to claim an identity on a live call.
func (l *VectorLookup) Lookup(ctx context.Context, businessID, callerNumber string) (Context, error) {
	callerNumber = strings.TrimSpace(callerNumber)
	if businessID == "" || callerNumber == "" {
		return Context{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	query := fmt.Sprintf("customer with phone number %s", callerNumber)
	vec, err := l.embedder.Embed(ctx, query)
	if err != nil {
		return Context{}, fmt.Errorf("customer: embed query: %w", err)
	}

	matches, err := l.store.Search(ctx, businessID, vec, defaultTopK)
	if err != nil {
		return Context{}, fmt.Errorf("customer: search: %w", err)
	}

	caller := normalizeDigits(callerNumber)
	for _, m := range matches {
		if m.Score < l.minScore {
			break
		}
		if !samePhone(caller, normalizeDigits(m.Record.Phone)) {
			continue
		}
		return Context{
			IsExistingCustomer:  true,
			Name:                m.Record.Name,
			Phone:               m.Record.Phone,
			Content:             m.Record.Content,
			ContextInstructions: composeInstructions(m.Record),
		}, nil
	}

	return Context{}, nil
}

// composeInstructions builds the instruction block spliced into the session
// configuration for a recognized caller.
func composeInstructions(rec Record) string {
	var b strings.Builder
	b.WriteString("CUSTOMER CONTEXT: The caller is an existing customer")
	if rec.Name != "" {
		b.WriteString(" named ")
		b.WriteString(rec.Name)
	}
	b.WriteString(". Greet them by name and do not ask for information you already have.")
	if rec.Content != "" {
		b.WriteString("\nKnown details: ")
		b.WriteString(rec.Content)
	}
	return b.String()
}

// normalizeDigits strips everything but digits and a leading country code.
func normalizeDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	// US numbers may arrive with or without the leading 1.
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

func samePhone(a, b string) bool {
	return a != "" && a == b
}

// LogResult is a convenience for the caller-side log line every lookup
// produces, hit or miss.
func LogResult(businessID, callerNumber string, c Context, err error) {
	switch {
	case err != nil:
		log.Printf("[CustomerLookup] business=%s caller=%s failed: %v", businessID, callerNumber, err)
	case c.IsExistingCustomer:
		log.Printf("[CustomerLookup] business=%s caller=%s matched existing customer %q", businessID, callerNumber, c.Name)
	default:
		log.Printf("[CustomerLookup] business=%s caller=%s no match", businessID, callerNumber)
	}
}
