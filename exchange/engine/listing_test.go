package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/capdex/exchange/exchange/database/models"
)

func TestCreateListingInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateListingInput
		wantErr bool
	}{
		{
			name: "valid buy-now",
			input: CreateListingInput{
				Type:       models.ListingTypeBuyNow,
				CaptureIDs: []int64{1},
				Price:      100,
			},
		},
		{
			name: "valid auction with reserve",
			input: CreateListingInput{
				Type:         models.ListingTypeAuction,
				CaptureIDs:   []int64{1, 2},
				ReservePrice: 50,
				Duration:     time.Hour,
			},
		},
		{
			name: "valid trade",
			input: CreateListingInput{
				Type:       models.ListingTypeTrade,
				CaptureIDs: []int64{1},
			},
		},
		{
			name: "buy-now without price",
			input: CreateListingInput{
				Type:       models.ListingTypeBuyNow,
				CaptureIDs: []int64{1},
			},
			wantErr: true,
		},
		{
			name: "buy-now with reserve",
			input: CreateListingInput{
				Type:         models.ListingTypeBuyNow,
				CaptureIDs:   []int64{1},
				Price:        100,
				ReservePrice: 10,
			},
			wantErr: true,
		},
		{
			name: "auction with fixed price",
			input: CreateListingInput{
				Type:       models.ListingTypeAuction,
				CaptureIDs: []int64{1},
				Price:      100,
			},
			wantErr: true,
		},
		{
			name: "auction with negative reserve",
			input: CreateListingInput{
				Type:         models.ListingTypeAuction,
				CaptureIDs:   []int64{1},
				ReservePrice: -1,
			},
			wantErr: true,
		},
		{
			name: "trade with price",
			input: CreateListingInput{
				Type:       models.ListingTypeTrade,
				CaptureIDs: []int64{1},
				Price:      5,
			},
			wantErr: true,
		},
		{
			name: "unknown type",
			input: CreateListingInput{
				Type:       "raffle",
				CaptureIDs: []int64{1},
			},
			wantErr: true,
		},
		{
			name: "no captures",
			input: CreateListingInput{
				Type:  models.ListingTypeBuyNow,
				Price: 100,
			},
			wantErr: true,
		},
		{
			name: "duration too short",
			input: CreateListingInput{
				Type:       models.ListingTypeBuyNow,
				CaptureIDs: []int64{1},
				Price:      100,
				Duration:   time.Second,
			},
			wantErr: true,
		},
		{
			name: "duration too long",
			input: CreateListingInput{
				Type:       models.ListingTypeBuyNow,
				CaptureIDs: []int64{1},
				Price:      100,
				Duration:   30 * 24 * time.Hour,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCreateListingInputValidateDefaultsDuration(t *testing.T) {
	input := CreateListingInput{
		Type:       models.ListingTypeTrade,
		CaptureIDs: []int64{1},
	}
	assert.NoError(t, input.validate())
	assert.Equal(t, defaultListingDuration, input.Duration)
}
