// Package catalog turns rendered listing pages and item pages into catalog
// records.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/menu"
)

// ErrMissingSKU marks an item page without a usable Product sku.
var ErrMissingSKU = errors.New("item sku missing")

// ParsedItem holds the fields of one item page before it is bound to a
// restaurant and category.
type ParsedItem struct {
	ID          int64
	Name        string
	Description string
	Price       string
	Nutrition   map[string]string
	Composition string
	Allergens   string
	Image       string
	Timetable   string
}

// CatalogItem binds the parsed page to its restaurant and category.
func (p ParsedItem) CatalogItem(restaurantID int64, category string, categoryID int) menu.CatalogItem {
	return menu.CatalogItem{
		ID:            p.ID,
		RestaurantID:  restaurantID,
		Category:      category,
		CategoryID:    categoryID,
		Name:          p.Name,
		Price:         p.Price,
		Calories:      menu.ParseCalories(p.nutrition(menu.NutritionCalories, "0")),
		Proteins:      p.nutrition(menu.NutritionProteins, menu.NoData),
		Fats:          p.nutrition(menu.NutritionFats, menu.NoData),
		Carbohydrates: p.nutrition(menu.NutritionCarbohydrates, menu.NoData),
		Weight:        p.nutrition(menu.NutritionWeight, menu.NoData),
		Description:   p.Description,
		Composition:   p.Composition,
		Allergens:     p.Allergens,
		Image:         p.Image,
		Availability:  true,
		Timetable:     p.Timetable,
	}
}

func (p ParsedItem) nutrition(key, fallback string) string {
	if v, ok := p.Nutrition[key]; ok {
		return v
	}
	return fallback
}

// ParseItemHTML extracts an item page. Fields that cannot be found fall back
// to placeholders; only a missing sku is an error.
func ParseItemHTML(html []byte, baseURL string) (ParsedItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ParsedItem{}, fmt.Errorf("parse html: %w", err)
	}
	sku, ok := productSKU(doc)
	if !ok {
		return ParsedItem{}, ErrMissingSKU
	}

	item := ParsedItem{
		ID:          sku,
		Name:        textOr(doc.Find("h1.itemTitle"), menu.NoName),
		Description: textOr(doc.Find("div.itemDesc"), menu.NoDescription),
		Price:       menu.NoPrice,
		Nutrition:   nutrition(doc),
		Composition: textOr(doc.Find("div.itemAboutCompositionContent p"), menu.NoComposition),
		Allergens:   textOr(doc.Find(`p[style="font-style: italic"]`), menu.NoAllergens),
		Image:       menu.ResolveImage(baseURL, imageSrc(doc)),
		Timetable:   textOr(doc.Find("div.timeLabel"), ""),
	}
	if price := doc.Find("div.itemPrice").First(); price.Length() > 0 {
		item.Price = menu.ParsePrice(price.Text())
	}
	return item, nil
}

func textOr(s *goquery.Selection, fallback string) string {
	s = s.First()
	if s.Length() == 0 {
		return fallback
	}
	return menu.CleanText(s.Text())
}

func productSKU(doc *goquery.Document) (int64, bool) {
	var (
		sku   int64
		found bool
	)
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var obj map[string]any
		dec := json.NewDecoder(strings.NewReader(s.Text()))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return true
		}
		if t, _ := obj["@type"].(string); t != "Product" {
			return true
		}
		sku, found = parseSKU(obj["sku"])
		return !found
	})
	return sku, found
}

func parseSKU(v any) (int64, bool) {
	var raw string
	switch t := v.(type) {
	case json.Number:
		raw = t.String()
	case string:
		raw = strings.TrimSpace(t)
	default:
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

func nutrition(doc *goquery.Document) map[string]string {
	out := make(map[string]string)
	doc.Find("div.itemAboutValueContent").First().Find("div.itemStat").Each(func(_ int, stat *goquery.Selection) {
		label := stat.Find("span").First()
		if label.Length() == 0 {
			return
		}
		key := menu.CleanText(label.Text())
		if key == "" {
			return
		}
		out[key] = menu.CleanText(strings.ReplaceAll(menu.CleanText(stat.Text()), key, ""))
	})
	return out
}

func imageSrc(doc *goquery.Document) string {
	if src, ok := doc.Find("div#itemImage img[itemprop=contentUrl]").First().Attr("src"); ok && src != "" {
		return src
	}
	src, _ := doc.Find("div#itemSlider div.itemSlide").First().Find("img[itemprop=contentUrl]").First().Attr("src")
	return src
}

// Extractor fetches and parses item pages.
type Extractor struct {
	fetcher menu.Fetcher
	baseURL string
	logger  *zap.Logger
}

// NewExtractor builds an Extractor resolving relative links against baseURL.
func NewExtractor(fetcher menu.Fetcher, baseURL string, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, baseURL: baseURL, logger: logger}
}

// ParseItem fetches url and returns the bound catalog item. It returns false
// when the page could not be fetched or carries no sku.
func (e *Extractor) ParseItem(ctx context.Context, url, category string, categoryID int, restaurantID int64) (menu.CatalogItem, bool) {
	res, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		e.logger.Warn("item page unavailable", zap.String("url", url), zap.Error(err))
		return menu.CatalogItem{}, false
	}
	parsed, err := ParseItemHTML(res.Body, e.baseURL)
	if err != nil {
		e.logger.Warn("item page unparseable",
			zap.String("url", url),
			zap.String("category", category),
			zap.Error(err),
		)
		return menu.CatalogItem{}, false
	}
	return parsed.CatalogItem(restaurantID, category, categoryID), true
}
