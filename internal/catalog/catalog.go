// Package catalog holds the fixed appliance catalog and the deck builder.
package catalog

import "math/rand"

// Item is a static catalog entry. The catalog is immutable for the process
// lifetime; cards reference items by ID only.
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Appliances is the default catalog of 10 appliance pairs.
func Appliances() []Item {
	return []Item{
		{ID: "lavatrice", Name: "Lavatrice"},
		{ID: "lavastoviglie", Name: "Lavastoviglie"},
		{ID: "frigorifero", Name: "Frigorifero"},
		{ID: "forno", Name: "Forno"},
		{ID: "piano_cottura", Name: "Piano cottura"},
		{ID: "frullatore", Name: "Frullatore"},
		{ID: "microonde", Name: "Microonde"},
		{ID: "cappa", Name: "Cappa"},
		{ID: "tostapane", Name: "Tostapane"},
		{ID: "aspirapolvere", Name: "Aspirapolvere"},
	}
}

// BuildDeck returns a shuffled deck of 2N item IDs, every catalog item
// appearing exactly twice. The shuffle is an unbiased Fisher-Yates driven by
// the supplied random source, so each of the (2N)! permutations is
// equiprobable given a uniform source.
func BuildDeck(items []Item, rng *rand.Rand) []string {
	deck := make([]string, 0, len(items)*2)
	for _, it := range items {
		deck = append(deck, it.ID, it.ID)
	}
	for i := len(deck) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}
