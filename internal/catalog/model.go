package catalog

import (
	"strconv"
	"strings"
	"time"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// AccountNature marks which side carries the account's normal balance.
type AccountNature string

const (
	NatureDebit  AccountNature = "DEBIT"
	NatureCredit AccountNature = "CREDIT"
)

// Account models a chart of accounts node. The code is a string of
// dot-separated positive integer segments; segment count is the depth.
type Account struct {
	ID         int64
	CompanyID  int64
	Code       string
	Name       string
	Type       AccountType
	Nature     AccountNature
	Synthetic  bool
	Analytical bool
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Temporary reports whether the account is zeroed at period close.
func (a Account) Temporary() bool {
	return a.Type == AccountTypeRevenue || a.Type == AccountTypeExpense
}

// Level returns the hierarchy depth of the account code.
func (a Account) Level() int {
	return strings.Count(a.Code, ".") + 1
}

// ParentCode strips the last dot-segment from a code. An empty string
// means the code is a root.
func ParentCode(code string) string {
	idx := strings.LastIndex(code, ".")
	if idx < 0 {
		return ""
	}
	return code[:idx]
}

// CompareCodes orders two hierarchy codes segment by segment, numeric
// within each segment, so "1.2" sorts before "1.10".
func CompareCodes(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	default:
		return 0
	}
}

// HasPrefix reports whether code falls under the given hierarchy
// prefix on segment boundaries, so "1.1" covers "1.1.2" but not "1.10".
func HasPrefix(code, prefix string) bool {
	if prefix == "" {
		return true
	}
	if code == prefix {
		return true
	}
	return strings.HasPrefix(code, prefix+".")
}
