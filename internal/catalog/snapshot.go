package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateCode indicates two active accounts share a hierarchy
// code, which would corrupt aggregation.
var ErrDuplicateCode = errors.New("catalog: duplicate account code")

// Snapshot is an immutable view of a company's active accounts, taken
// once per report request. It validates structural invariants at
// construction so downstream tree building can trust the codes.
type Snapshot struct {
	accounts []Account
	byCode   map[string]Account
	byID     map[int64]Account
}

// NewSnapshot indexes the accounts and rejects duplicate codes.
func NewSnapshot(accounts []Account) (*Snapshot, error) {
	snap := &Snapshot{
		accounts: make([]Account, len(accounts)),
		byCode:   make(map[string]Account, len(accounts)),
		byID:     make(map[int64]Account, len(accounts)),
	}
	copy(snap.accounts, accounts)
	sort.Slice(snap.accounts, func(i, j int) bool {
		return CompareCodes(snap.accounts[i].Code, snap.accounts[j].Code) < 0
	})
	for _, acc := range snap.accounts {
		if _, exists := snap.byCode[acc.Code]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCode, acc.Code)
		}
		snap.byCode[acc.Code] = acc
		snap.byID[acc.ID] = acc
	}
	return snap, nil
}

// Accounts returns every account ordered by code.
func (s *Snapshot) Accounts() []Account {
	return s.accounts
}

// ByCode looks an account up by hierarchy code.
func (s *Snapshot) ByCode(code string) (Account, bool) {
	acc, ok := s.byCode[code]
	return acc, ok
}

// ByID looks an account up by identifier.
func (s *Snapshot) ByID(id int64) (Account, bool) {
	acc, ok := s.byID[id]
	return acc, ok
}

// UnderPrefix returns accounts whose code falls under the prefix,
// preserving code order.
func (s *Snapshot) UnderPrefix(prefix string) []Account {
	var out []Account
	for _, acc := range s.accounts {
		if HasPrefix(acc.Code, prefix) {
			out = append(out, acc)
		}
	}
	return out
}

// Temporary returns the revenue and expense accounts, the set zeroed
// by period closing.
func (s *Snapshot) Temporary() []Account {
	var out []Account
	for _, acc := range s.accounts {
		if acc.Temporary() {
			out = append(out, acc)
		}
	}
	return out
}

// IDs returns the identifiers of the given accounts.
func IDs(accounts []Account) []int64 {
	ids := make([]int64, 0, len(accounts))
	for _, acc := range accounts {
		ids = append(ids, acc.ID)
	}
	return ids
}
