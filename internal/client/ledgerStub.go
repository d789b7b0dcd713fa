package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"

	"craftchain/internal/apperr"
)

// LedgerStub is a deterministic in-process ledger. Token ids come from a
// counter, optionally prefixed with an instance id so two processes sharing
// a store never hand out the same id. Repeated submissions for a payment
// return the original receipt.
type LedgerStub struct {
	mu        sync.Mutex
	prefix    string
	next      uint64
	byPayment map[string]LedgerReceipt
	tokens    map[string]bool
	fault     func(LedgerSubmission) error
	calls     int
}

func NewLedgerStub(instancePrefix string) *LedgerStub {
	return &LedgerStub{
		prefix:    instancePrefix,
		byPayment: make(map[string]LedgerReceipt),
		tokens:    make(map[string]bool),
	}
}

// SetFault installs a hook that runs before every submission; a non-nil
// error is returned to the caller and nothing is recorded.
func (s *LedgerStub) SetFault(fault func(LedgerSubmission) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fault
}

// Calls returns how many submissions reached the stub.
func (s *LedgerStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *LedgerStub) SubmitCertificate(ctx context.Context, sub LedgerSubmission) (*LedgerReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, mintError("ledger stub submit", err)
	}
	if sub.PaymentID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "ledger stub submit", "payment id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if s.fault != nil {
		if err := s.fault(sub); err != nil {
			return nil, err
		}
	}

	if r, ok := s.byPayment[sub.PaymentID]; ok {
		return &r, nil
	}

	s.next++
	tokenID := strconv.FormatUint(s.next, 10)
	if s.prefix != "" {
		tokenID = s.prefix + "-" + tokenID
	}
	sum := sha256.Sum256([]byte(sub.PaymentID + "|" + tokenID))

	r := LedgerReceipt{
		TokenID:         tokenID,
		TransactionHash: "0x" + hex.EncodeToString(sum[:]),
		OwnerAddress:    sub.OwnerAddress,
		BlockNumber:     s.next,
	}
	s.byPayment[sub.PaymentID] = r
	s.tokens[tokenID] = true
	return &r, nil
}

func (s *LedgerStub) VerifyCertificate(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[tokenID], nil
}
