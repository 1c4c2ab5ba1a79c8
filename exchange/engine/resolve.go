package engine

import (
	"sort"

	"github.com/capdex/exchange/exchange/database/models"
)

// AuctionOutcome is the result of resolving a sealed second-price auction.
// A nil outcome means no sale: either no live bids, or the highest bid fell
// below the reserve.
type AuctionOutcome struct {
	Winner *models.Bid
	Price  int64
}

// ResolveSecondPrice applies the Vickrey rule to the live bids of an auction:
// the highest bidder wins and pays max(second-highest amount, reserve). Ties
// on amount go to the earlier bid. The input is not mutated.
func ResolveSecondPrice(bids []*models.Bid, reservePrice int64) *AuctionOutcome {
	if len(bids) == 0 {
		return nil
	}

	sorted := make([]*models.Bid, len(bids))
	copy(sorted, bids)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Amount != sorted[j].Amount {
			return sorted[i].Amount > sorted[j].Amount
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	top := sorted[0]
	if top.Amount < reservePrice {
		return nil
	}

	price := reservePrice
	if len(sorted) > 1 && sorted[1].Amount > price {
		price = sorted[1].Amount
	}

	return &AuctionOutcome{Winner: top, Price: price}
}
