package catalog

import (
	"strings"

	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

// Rule describes one display card. A rule with Options becomes a group card holding
// the first package matching each option; otherwise it shows the first package whose
// name contains every Match term.
type Rule struct {
	Key         string     `toml:"key"`
	Name        string     `toml:"name"`
	Description string     `toml:"description"`
	Match       []string   `toml:"match"`
	Options     [][]string `toml:"options"`
}

// Card is a package as presented in the booking wizard.
type Card struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	DurationMinutes int              `json:"duration_minutes,omitempty"`
	Options         []model.Package  `json:"options,omitempty"`
}

// Selectable reports whether the card maps to one bookable package.
func (c Card) Selectable() bool {
	return len(c.Options) == 0
}

func DefaultRules() []Rule {
	return []Rule{
		{Key: "promo", Match: []string{"Promo"}},
		{
			Key:         "base-group",
			Name:        "Base",
			Description: "3 foto con editing.",
			Options:     [][]string{{"Base", "Singolo"}, {"Base", "Coppia"}},
		},
		{Key: "premium", Match: []string{"Premium"}},
		{Key: "gold", Match: []string{"Gold"}},
		{Key: "star", Match: []string{"Star"}},
	}
}

// Group arranges packages (already sorted by price) into display cards. Matching is
// by name substring, so when no rule matches it falls back to one card per package.
func Group(packages []model.Package, rules []Rule) []Card {
	var cards []Card
	for _, rule := range rules {
		if len(rule.Options) > 0 {
			var opts []model.Package
			for _, terms := range rule.Options {
				if p, ok := find(packages, terms); ok {
					opts = append(opts, p)
				}
			}
			if len(opts) > 0 {
				cards = append(cards, Card{ID: rule.Key, Name: rule.Name, Description: rule.Description, Options: opts})
			}
			continue
		}
		if len(rule.Match) == 0 {
			continue
		}
		if p, ok := find(packages, rule.Match); ok {
			cards = append(cards, single(p))
		}
	}
	if len(cards) > 0 {
		return cards
	}
	return Flat(packages)
}

func Flat(packages []model.Package) []Card {
	cards := make([]Card, 0, len(packages))
	for _, p := range packages {
		cards = append(cards, single(p))
	}
	return cards
}

func single(p model.Package) Card {
	price := p.Price
	return Card{ID: p.ID, Name: p.Name, Description: p.Description, Price: &price, DurationMinutes: p.DurationMinutes}
}

func find(packages []model.Package, terms []string) (model.Package, bool) {
	for _, p := range packages {
		if containsAll(p.Name, terms) {
			return p, true
		}
	}
	return model.Package{}, false
}

func containsAll(name string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(name, t) {
			return false
		}
	}
	return len(terms) > 0
}
