package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raine/tori-extract/internal/extraction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingWriter_CreateListing(t *testing.T) {
	text := &fakeText{reply: `{"title": "Grey IKEA sofa", "description": "Three seater, no stains.", "price": 150, "keywords": ["sofa", "ikea"]}`}
	w := NewListingWriter(text)

	item := extraction.Item{ID: "item_0", Name: "sofa", Category: "Furniture", Condition: "good", EstimatedPrice: 120}
	listing, err := w.CreateListing(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, "item_0", listing.ItemID)
	assert.Equal(t, "Grey IKEA sofa", listing.Title)
	assert.Equal(t, 150.0, listing.Price)
	assert.Equal(t, "Furniture", listing.Category)
	assert.Equal(t, "good", listing.Condition)
	assert.Equal(t, []string{"sofa", "ikea"}, listing.Keywords)

	assert.Equal(t, listingSystemPrompt, text.system)
	assert.Contains(t, text.prompt, "Estimated price: 120.00 EUR")
}

func TestListingWriter_FallsBackToItem(t *testing.T) {
	w := NewListingWriter(&fakeText{reply: `{"title": "", "price": 0}`})

	item := extraction.Item{Name: strings.Repeat("very long name ", 10), Description: "From the video", EstimatedPrice: 30}
	listing, err := w.CreateListing(context.Background(), item)
	require.NoError(t, err)

	assert.LessOrEqual(t, len([]rune(listing.Title)), maxTitleLength)
	assert.Equal(t, "From the video", listing.Description)
	assert.Equal(t, 30.0, listing.Price)
	assert.NotNil(t, listing.Keywords)
}

func TestListingWriter_Errors(t *testing.T) {
	w := NewListingWriter(&fakeText{err: errors.New("rate limited")})
	_, err := w.CreateListing(context.Background(), extraction.Item{Name: "lamp"})
	assert.ErrorContains(t, err, "rate limited")

	w = NewListingWriter(&fakeText{reply: "I cannot help with that"})
	_, err = w.CreateListing(context.Background(), extraction.Item{Name: "lamp"})
	assert.ErrorContains(t, err, "failed to parse listing JSON")
}

func TestNegotiationAssistant(t *testing.T) {
	text := &fakeText{reply: `  "Thanks for the offer! I could do 40."  `}
	a := NewNegotiationAssistant(text)

	reply, err := a.HandleNegotiation(context.Background(), extraction.NegotiationRequest{
		ListingID:    "listing_item_0",
		BuyerMessage: "Would you take 30?",
		CurrentPrice: 45,
	})
	require.NoError(t, err)
	assert.Equal(t, "Thanks for the offer! I could do 40.", reply)
	assert.Contains(t, text.prompt, "Asking price: 45.00 EUR")
	assert.Contains(t, text.prompt, `"Would you take 30?"`)

	a = NewNegotiationAssistant(&fakeText{reply: "  "})
	_, err = a.HandleNegotiation(context.Background(), extraction.NegotiationRequest{BuyerMessage: "hi"})
	assert.Error(t, err)
}
