package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/raine/tori-extract/internal/extraction"
	"github.com/rs/zerolog/log"
)

const maxTitleLength = 60

// ListingWriter turns extracted items into marketplace listings.
type ListingWriter struct {
	text TextGenerator
}

// NewListingWriter creates a listing writer backed by text.
func NewListingWriter(text TextGenerator) *ListingWriter {
	return &ListingWriter{text: text}
}

// CreateListing implements extraction.ListingGenerator.
func (w *ListingWriter) CreateListing(ctx context.Context, item extraction.Item) (extraction.Listing, error) {
	prompt := fmt.Sprintf(listingPrompt, item.Name, item.Category, item.Condition, item.EstimatedPrice, item.Description)

	text, err := w.text.Generate(ctx, listingSystemPrompt, prompt)
	if err != nil {
		return extraction.Listing{}, err
	}

	resp, err := parseListing(text)
	if err != nil {
		return extraction.Listing{}, err
	}

	listing := extraction.Listing{
		ItemID:      item.ID,
		Title:       truncateTitle(resp.Title),
		Description: resp.Description,
		Price:       resp.Price,
		Category:    item.Category,
		Condition:   item.Condition,
		Keywords:    resp.Keywords,
	}
	if listing.Title == "" {
		listing.Title = truncateTitle(item.Name)
	}
	if listing.Description == "" {
		listing.Description = item.Description
	}
	if listing.Price <= 0 {
		listing.Price = item.EstimatedPrice
	}
	if listing.Keywords == nil {
		listing.Keywords = []string{}
	}

	log.Debug().Str("itemID", item.ID).Str("title", listing.Title).Float64("price", listing.Price).Msg("listing drafted")
	return listing, nil
}

func truncateTitle(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= maxTitleLength {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:maxTitleLength]))
}

// NegotiationAssistant drafts seller replies to buyer messages.
type NegotiationAssistant struct {
	text TextGenerator
}

// NewNegotiationAssistant creates an assistant backed by text.
func NewNegotiationAssistant(text TextGenerator) *NegotiationAssistant {
	return &NegotiationAssistant{text: text}
}

// HandleNegotiation implements extraction.Negotiator.
func (a *NegotiationAssistant) HandleNegotiation(ctx context.Context, req extraction.NegotiationRequest) (string, error) {
	prompt := fmt.Sprintf(negotiationPrompt, req.ListingID, req.CurrentPrice, req.BuyerMessage)

	reply, err := a.text.Generate(ctx, negotiationSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	reply = strings.Trim(strings.TrimSpace(reply), `"`)
	if reply == "" {
		return "", fmt.Errorf("empty negotiation reply")
	}
	return reply, nil
}
