package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Capture is the tradeable unit of ownership. The registry tracks only the
// current owner; capture media and metadata live in the external capture
// service. A capture is "disabled" while it is attached to an active listing or
// offered in a pending trade offer; that state is derived, never stored.
type Capture struct {
	bun.BaseModel `bun:"table:captures,alias:cap"`

	ID         int64     `bun:"id,pk,autoincrement"`
	OwnerID    string    `bun:"owner_id,notnull"`
	Label      string    `bun:"label,notnull"`
	CapturedAt time.Time `bun:"captured_at,notnull,default:current_timestamp"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
