package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a ledger row. Balance is the full coin balance; Reserved is the sum of
// the user's live bid amounts. Spendable coins = Balance - Reserved. Both columns
// are mutated only inside engine transactions.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID       string `bun:"id,pk"`
	Username string `bun:"username,notnull"`
	Balance  int64  `bun:"balance,notnull,default:0"`
	Reserved int64  `bun:"reserved,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Spendable returns the portion of the balance not encumbered by live bids.
func (u *User) Spendable() int64 {
	return u.Balance - u.Reserved
}
