package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-process Authorizer for development. Payment method refs
// starting with "decline" are refused.
type Sandbox struct {
	mu     sync.Mutex
	byKey  map[string]string
	amount map[string]AuthorizeRequest
	voided map[string]bool
}

var _ Authorizer = (*Sandbox)(nil)

// NewSandbox creates an empty sandbox.
func NewSandbox() *Sandbox {
	return &Sandbox{
		byKey:  make(map[string]string),
		amount: make(map[string]AuthorizeRequest),
		voided: make(map[string]bool),
	}
}

// Authorize approves anything not marked as declined.
func (s *Sandbox) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.HasPrefix(strings.ToLower(req.PaymentMethodRef), "decline") {
		return "", fmt.Errorf("%w: method %s", ErrDeclined, req.PaymentMethodRef)
	}
	if req.Amount.Amount <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrDeclined)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return ref, nil
	}
	ref := "auth-" + uuid.NewString()
	s.byKey[req.IdempotencyKey] = ref
	s.amount[ref] = req
	return ref, nil
}

// Void marks the authorization voided.
func (s *Sandbox) Void(ctx context.Context, authorizationRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voided[authorizationRef] = true
	return nil
}

// Voided reports whether ref was voided.
func (s *Sandbox) Voided(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voided[ref]
}

// Authorized returns the request behind ref.
func (s *Sandbox) Authorized(ref string) (AuthorizeRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.amount[ref]
	return req, ok
}
