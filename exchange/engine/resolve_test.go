package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capdex/exchange/exchange/database/models"
)

func bidAt(id int64, bidder string, amount int64, offset time.Duration) *models.Bid {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &models.Bid{
		ID:        id,
		BidderID:  bidder,
		Amount:    amount,
		Status:    models.BidStatusActive,
		CreatedAt: base.Add(offset),
	}
}

func TestResolveSecondPrice(t *testing.T) {
	tests := []struct {
		name       string
		bids       []*models.Bid
		reserve    int64
		wantWinner string
		wantPrice  int64
		wantNoSale bool
	}{
		{
			name: "winner pays second highest",
			bids: []*models.Bid{
				bidAt(1, "alice", 100, 0),
				bidAt(2, "bob", 80, time.Minute),
				bidAt(3, "carol", 60, 2*time.Minute),
			},
			reserve:    50,
			wantWinner: "alice",
			wantPrice:  80,
		},
		{
			name:       "single bid pays reserve",
			bids:       []*models.Bid{bidAt(1, "alice", 100, 0)},
			reserve:    50,
			wantWinner: "alice",
			wantPrice:  50,
		},
		{
			name:       "single bid no reserve pays zero",
			bids:       []*models.Bid{bidAt(1, "alice", 100, 0)},
			reserve:    0,
			wantWinner: "alice",
			wantPrice:  0,
		},
		{
			name:       "top bid below reserve means no sale",
			bids:       []*models.Bid{bidAt(1, "alice", 40, 0)},
			reserve:    50,
			wantNoSale: true,
		},
		{
			name:       "no bids no sale",
			bids:       nil,
			reserve:    0,
			wantNoSale: true,
		},
		{
			name: "tie goes to earlier bid",
			bids: []*models.Bid{
				bidAt(2, "bob", 100, time.Minute),
				bidAt(1, "alice", 100, 0),
			},
			reserve:    0,
			wantWinner: "alice",
			wantPrice:  100,
		},
		{
			name: "second highest below reserve clamps to reserve",
			bids: []*models.Bid{
				bidAt(1, "alice", 100, 0),
				bidAt(2, "bob", 30, time.Minute),
			},
			reserve:    50,
			wantWinner: "alice",
			wantPrice:  50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := ResolveSecondPrice(tt.bids, tt.reserve)

			if tt.wantNoSale {
				assert.Nil(t, outcome)
				return
			}
			require.NotNil(t, outcome)
			assert.Equal(t, tt.wantWinner, outcome.Winner.BidderID)
			assert.Equal(t, tt.wantPrice, outcome.Price)
		})
	}
}

func TestResolveSecondPriceDoesNotMutateInput(t *testing.T) {
	bids := []*models.Bid{
		bidAt(1, "carol", 60, 2*time.Minute),
		bidAt(2, "alice", 100, 0),
		bidAt(3, "bob", 80, time.Minute),
	}

	outcome := ResolveSecondPrice(bids, 0)
	require.NotNil(t, outcome)
	assert.Equal(t, "alice", outcome.Winner.BidderID)

	assert.Equal(t, "carol", bids[0].BidderID)
	assert.Equal(t, "alice", bids[1].BidderID)
	assert.Equal(t, "bob", bids[2].BidderID)
}

func TestResolveSecondPriceWinnerNeverPaysMoreThanBid(t *testing.T) {
	bids := []*models.Bid{
		bidAt(1, "alice", 70, 0),
		bidAt(2, "bob", 70, time.Minute),
	}

	outcome := ResolveSecondPrice(bids, 0)
	require.NotNil(t, outcome)
	assert.LessOrEqual(t, outcome.Price, outcome.Winner.Amount)
	assert.Equal(t, int64(70), outcome.Price)
}
