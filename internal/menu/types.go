// Package menu defines the restaurant, catalog, and cart records shared by the
// crawler pipeline, the persistence gateway, and the HTTP API.
package menu

import (
	"fmt"
	"time"
)

// Collection names one of the two catalogs a restaurant publishes.
type Collection string

// Supported catalog collections.
const (
	CollectionMenu Collection = "menu"
	CollectionWine Collection = "wine"
)

// Table returns the relational table backing the collection.
func (c Collection) Table() string {
	if c == CollectionWine {
		return "vine_card"
	}
	return "menu"
}

// IsWine reports whether the collection is the wine list.
func (c Collection) IsWine() bool {
	return c == CollectionWine
}

// ParseCollection validates a collection name from user input.
func ParseCollection(raw string) (Collection, error) {
	switch Collection(raw) {
	case CollectionMenu:
		return CollectionMenu, nil
	case CollectionWine, "vine_card":
		return CollectionWine, nil
	default:
		return "", fmt.Errorf("unknown collection %q", raw)
	}
}

// Restaurant is one landing page of the chain directory.
type Restaurant struct {
	ID            int64  `json:"restaurant_id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	Image         string `json:"image"`
	Metro         string `json:"metro"`
	Description   string `json:"description"`
	Veranda       string `json:"veranda"`
	ChangingTable string `json:"changing_table"`
	Animation     string `json:"animation"`
	WorkTime      string `json:"work_time"`
	Contacts      string `json:"contacts"`
	VineCard      string `json:"vine_card"`

	// MenuURL and WineURL drive the catalog crawl and are never persisted.
	MenuURL string `json:"-"`
	WineURL string `json:"-"`
}

// HasKey reports whether the record carries its natural key.
func (r Restaurant) HasKey() bool {
	return r.ID != 0
}

// CatalogItem is a dish or a wine-list entry scraped from an item page.
type CatalogItem struct {
	ID            int64  `json:"id"`
	RestaurantID  int64  `json:"restaurant_id"`
	Category      string `json:"category"`
	CategoryID    int    `json:"category_id"`
	Name          string `json:"name"`
	Price         string `json:"price"`
	Calories      int    `json:"calories"`
	Proteins      string `json:"proteins"`
	Fats          string `json:"fats"`
	Carbohydrates string `json:"carbohydrates"`
	Weight        string `json:"weight"`
	Description   string `json:"description"`
	Composition   string `json:"composition"`
	Allergens     string `json:"allergens"`
	Image         string `json:"image"`
	Availability  bool   `json:"availability"`
	Timetable     string `json:"timetable"`
}

// HasKey reports whether both halves of the composite key are present.
func (i CatalogItem) HasKey() bool {
	return i.ID != 0 && i.RestaurantID != 0
}

// Category groups the item URLs found under one heading of a listing page.
type Category struct {
	Name string
	ID   int
	URLs []string
}

// CategorySummary is the read projection of a category for the bot layer.
type CategorySummary struct {
	ID    int    `json:"category_id"`
	Name  string `json:"category"`
	Items int    `json:"items"`
}

// FetchResult captures the outcome of a plain HTTP fetch.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
	Attempts   int
	Duration   time.Duration
}

// RunStatus describes the state of an ingestion run.
type RunStatus string

// Run statuses persisted in crawl_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// RunSummary is the ledger row and notification payload for one ingestion run.
type RunSummary struct {
	RunID             string     `json:"run_id"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
	Status            RunStatus  `json:"status"`
	RestaurantsOK     int        `json:"restaurants_ok"`
	RestaurantsFailed int        `json:"restaurants_failed"`
	MenuItems         int        `json:"menu_items"`
	WineItems         int        `json:"wine_items"`
	ItemsDropped      int        `json:"items_dropped"`
	Error             string     `json:"error,omitempty"`
}

// CartLine is one row of a user's cart.
type CartLine struct {
	UserID       int64  `json:"user_id"`
	ItemID       int64  `json:"item_id"`
	RestaurantID int64  `json:"restaurant_id"`
	IsWine       bool   `json:"is_wine"`
	Name         string `json:"item_name"`
	PriceMinor   int64  `json:"price"`
	Count        int    `json:"count"`
}

// Order is a snapshot of a cart taken at checkout.
type Order struct {
	ID         string     `json:"order_id"`
	UserID     int64      `json:"user_id"`
	Lines      []CartLine `json:"items"`
	TotalMinor int64      `json:"total"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CartTotal sums price times count over the lines.
func CartTotal(lines []CartLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.PriceMinor * int64(line.Count)
	}
	return total
}
