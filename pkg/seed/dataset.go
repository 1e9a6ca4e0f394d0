// Package seed builds and loads the sample shop database used to try
// ekaya-dbmeta end to end: users, products, orders, order_items and events.
package seed

import (
	"math"
	"strings"
	"time"

	"github.com/jaswdr/faker"
)

// Sizes controls how many rows of each table are generated.
type Sizes struct {
	Users      int
	Products   int
	Orders     int
	OrderItems int
	Events     int
}

// DefaultSizes returns the row counts of the sample database.
func DefaultSizes() Sizes {
	return Sizes{Users: 100, Products: 50, Orders: 500, OrderItems: 1200, Events: 2000}
}

var (
	productCategories = []string{"Electronics", "Home", "Office", "Clothing", "Sports", "Books"}
	eventTypes        = []string{"login", "view_product", "purchase", "logout", "add_to_cart"}

	usersFrom  = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	usersTo    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	activeFrom = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	activeTo   = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

// Dataset holds generated rows in insertion order. Row n of a table gets the
// SERIAL id n+1, so foreign keys reference those ids directly.
type Dataset struct {
	Users      [][]any // name, email, created_at
	Products   [][]any // name, price, category
	Orders     [][]any // user_id, order_date
	OrderItems [][]any // order_id, product_id, quantity, price
	Events     [][]any // user_id, event_type, event_time
}

// Generate builds a dataset with f. A seeded faker yields a reproducible
// dataset.
func Generate(f faker.Faker, sizes Sizes) *Dataset {
	ds := &Dataset{}

	emails := make(map[string]bool, sizes.Users)
	for i := 0; i < sizes.Users; i++ {
		email := strings.ToLower(f.Internet().Email())
		for emails[email] {
			email = strings.ToLower(f.Internet().User()) + "." + f.RandomStringWithLength(6) + "@example.com"
		}
		emails[email] = true
		ds.Users = append(ds.Users, []any{
			f.Person().Name(),
			email,
			f.Time().TimeBetween(usersFrom, usersTo),
		})
	}

	prices := make([]float64, sizes.Products)
	for i := 0; i < sizes.Products; i++ {
		prices[i] = roundCents(f.Float64(2, 5, 2000))
		ds.Products = append(ds.Products, []any{
			productName(f),
			prices[i],
			f.RandomStringElement(productCategories),
		})
	}

	if sizes.Users > 0 {
		for i := 0; i < sizes.Orders; i++ {
			ds.Orders = append(ds.Orders, []any{
				f.IntBetween(1, sizes.Users),
				f.Time().TimeBetween(activeFrom, activeTo),
			})
		}
		for i := 0; i < sizes.Events; i++ {
			ds.Events = append(ds.Events, []any{
				f.IntBetween(1, sizes.Users),
				f.RandomStringElement(eventTypes),
				f.Time().TimeBetween(activeFrom, activeTo),
			})
		}
	}

	if len(ds.Orders) > 0 && sizes.Products > 0 {
		for i := 0; i < sizes.OrderItems; i++ {
			productID := f.IntBetween(1, sizes.Products)
			ds.OrderItems = append(ds.OrderItems, []any{
				f.IntBetween(1, len(ds.Orders)),
				productID,
				f.IntBetween(1, 5),
				prices[productID-1],
			})
		}
	}

	return ds
}

func productName(f faker.Faker) string {
	word := f.Lorem().Word()
	if word != "" {
		word = strings.ToUpper(word[:1]) + word[1:]
	}
	return f.Color().SafeColorName() + " " + word
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
