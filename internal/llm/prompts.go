package llm

import "github.com/lithammer/dedent"

var detectionPrompt = dedent.Dedent(`
	These frames were sampled from a short video of a room. Each frame is
	preceded by a line with its frame id.

	List every distinct physical object you can see. If the same object
	appears in several frames, list it once, using the frame where it is
	seen best.

	For each object return:
	- name: short common name ("office chair", "table lamp")
	- description: one sentence about what is visible
	- brand: brand name if identifiable, empty string otherwise
	- condition: one of "new", "like new", "good", "fair", "poor"
	- confidence: 0.0 - 1.0, how sure you are about the identification
	- frame_id: id of the frame the object was taken from

	Respond ONLY with a JSON object: {"objects": [...]}`)

var sellabilityPrompt = dedent.Dedent(`
	Decide which of the detected objects below could realistically be sold
	on a second-hand marketplace. Drop fixtures and parts of the building
	(walls, floors, windows, radiators), people, pets, food and anything
	worth less than a few euros.

	For each object that can be sold return:
	- name: marketplace friendly item name
	- category: one of %s
	- estimated_price: fair used price in euros as a number
	- condition: one of "new", "like new", "good", "fair", "poor"
	- description: two sentences suitable for a listing
	- frame_id: copied from the detected object

	Detected objects:
	%s

	Respond ONLY with a JSON object: {"items": [...]}`)

var listingSystemPrompt = dedent.Dedent(`
	You write second-hand marketplace listings. Titles are short and
	concrete, descriptions are honest about condition and never invent
	features that are not mentioned.`)

var listingPrompt = dedent.Dedent(`
	Write a listing for this item.

	Name: %s
	Category: %s
	Condition: %s
	Estimated price: %.2f EUR
	Notes: %s

	Respond ONLY with a JSON object with these fields:
	- title: at most 60 characters
	- description: 2-4 sentences
	- price: asking price in euros as a number
	- keywords: 3-6 search keywords

	Example: {"title": "IKEA Poäng armchair, beige", "description": "...", "price": 45, "keywords": ["armchair", "ikea", "poäng"]}`)

var negotiationSystemPrompt = dedent.Dedent(`
	You help a private seller answer buyers on a second-hand marketplace.
	Be friendly and brief. Accept reasonable offers, counter low offers
	politely and never go below 70% of the asking price.`)

var negotiationPrompt = dedent.Dedent(`
	Listing: %s
	Asking price: %.2f EUR
	Buyer wrote: %q

	Reply to the buyer in one to three sentences. Respond with the reply
	text only.`)
