// Package directory extracts the restaurant list and each restaurant's landing
// page into menu.Restaurant records.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/metrics"
)

// ErrMissingID marks a landing page without a restaurant inner-id.
var ErrMissingID = errors.New("restaurant inner-id missing")

const menuLinkText = "Смотреть меню"

// VirtualRestaurant is listed in the directory but takes no orders. It is
// always excluded.
const VirtualRestaurant = "Кофемания Chef's"

// Config points the extractor at the chain site. Excluded names are dropped
// in addition to VirtualRestaurant.
type Config struct {
	BaseURL        string
	RestaurantsURL string
	Excluded       []string
}

// Extractor reads the restaurant directory through a menu.Fetcher.
type Extractor struct {
	fetcher  menu.Fetcher
	baseURL  string
	listURL  string
	excluded map[string]struct{}
	logger   *zap.Logger
}

// New builds an Extractor.
func New(fetcher menu.Fetcher, cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	excluded := make(map[string]struct{}, len(cfg.Excluded)+1)
	excluded[VirtualRestaurant] = struct{}{}
	for _, name := range cfg.Excluded {
		excluded[name] = struct{}{}
	}
	listURL := cfg.RestaurantsURL
	if listURL == "" {
		listURL = strings.TrimRight(cfg.BaseURL, "/") + "/restaurants"
	}
	return &Extractor{
		fetcher:  fetcher,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		listURL:  listURL,
		excluded: excluded,
		logger:   logger,
	}
}

// ListRestaurants returns restaurant name to landing page URL.
func (e *Extractor) ListRestaurants(ctx context.Context) (map[string]string, error) {
	res, err := e.fetcher.Fetch(ctx, e.listURL)
	if err != nil {
		return nil, fmt.Errorf("fetch restaurant list: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, fmt.Errorf("parse restaurant list: %w", err)
	}

	out := make(map[string]string)
	doc.Find("a.image-side").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Find("img").First().Attr("title")
		href, hasHref := s.Attr("href")
		if !ok || !hasHref {
			return
		}
		out[name] = e.baseURL + href
	})
	for name := range e.excluded {
		delete(out, name)
	}
	return out, nil
}

// FetchRestaurant loads a landing page and parses it. The name comes from the
// directory listing since the landing page title is not always the display name.
func (e *Extractor) FetchRestaurant(ctx context.Context, name, url string) (menu.Restaurant, error) {
	res, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return menu.Restaurant{}, fmt.Errorf("fetch restaurant %q: %w", name, err)
	}
	r, err := ParseRestaurant(res.Body, e.baseURL)
	if err != nil {
		return menu.Restaurant{}, fmt.Errorf("parse restaurant %q: %w", name, err)
	}
	r.Name = name
	return r, nil
}

// Refresh lists the directory and loads every landing page. Restaurants that
// fail are logged and left out. The result is sorted by name.
func (e *Extractor) Refresh(ctx context.Context) ([]menu.Restaurant, error) {
	list, err := e.ListRestaurants(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out = make([]menu.Restaurant, 0, len(list))
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, url := range list {
		g.Go(func() error {
			r, err := e.FetchRestaurant(gctx, name, url)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.ObserveRestaurant("unparseable")
				e.logger.Warn("skipping restaurant", zap.String("name", name), zap.String("url", url), zap.Error(err))
				return nil
			}
			mu.Lock()
			out = append(out, r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("refresh directory: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ParseRestaurant extracts a restaurant from landing page HTML.
func ParseRestaurant(html []byte, baseURL string) (menu.Restaurant, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return menu.Restaurant{}, fmt.Errorf("parse html: %w", err)
	}
	data, err := nextData(doc)
	if err != nil {
		return menu.Restaurant{}, err
	}
	id, ok := data.innerID()
	if !ok {
		return menu.Restaurant{}, ErrMissingID
	}

	r := menu.Restaurant{
		ID:            id,
		Name:          data.str("title", menu.NoName),
		Address:       data.str("address", menu.NoAddress),
		Metro:         data.str("metro", menu.NoMetro),
		ChangingTable: data.str("changing-tables", menu.NoData),
		WorkTime:      data.workTime(),
		Contacts:      data.phone(),
		Description:   menu.NoDescription,
		Veranda:       menu.NoVeranda,
		Animation:     menu.NoAnimation,
		Image:         menu.NoImage,
		VineCard:      menu.NoVineCard,
	}
	if v, ok := description(doc); ok && v != "" {
		r.Description = v
	}
	if v, ok := image(doc); ok && v != "" {
		r.Image = v
	}
	if v, ok := extraInfo(doc, 0); ok {
		r.Veranda = v
	}
	if v, ok := extraInfo(doc, 2); ok {
		r.Animation = v
	}
	if text, href, ok := wineLink(doc); ok {
		if text != "" {
			r.VineCard = text
		}
		r.WineURL = menu.AbsoluteURL(baseURL, href)
	}
	if href, ok := menuLink(doc); ok {
		r.MenuURL = menu.AbsoluteURL(baseURL, href)
	}
	return r, nil
}

func description(doc *goquery.Document) (string, bool) {
	s := doc.Find("div.styles__AboutContent-sc-1q087s8-26.kcNVuQ").First()
	if s.Length() == 0 {
		return "", false
	}
	return menu.CleanText(s.Text()), true
}

func extraInfo(doc *goquery.Document, idx int) (string, bool) {
	s := doc.Find("div.styles__ExtraInfoItemText-sc-1q087s8-23.KvPwL")
	if s.Length() <= idx {
		return "", false
	}
	return menu.CleanText(s.Eq(idx).Text()), true
}

func wineLink(doc *goquery.Document) (string, string, bool) {
	s := doc.Find(`a.underline[rel="noopener noreferrer"]`).First()
	href, ok := s.Attr("href")
	if !ok {
		return "", "", false
	}
	return menu.CleanText(s.Text()), href, true
}

func image(doc *goquery.Document) (string, bool) {
	return doc.Find("img[itemprop=contentUrl]").First().Attr("src")
}

func menuLink(doc *goquery.Document) (string, bool) {
	var (
		href  string
		found bool
	)
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != menuLinkText {
			return true
		}
		href, found = s.Attr("href")
		return !found
	})
	return href, found
}

// restaurantData is props.pageProps.restaurant from the __NEXT_DATA__ island.
type restaurantData map[string]any

func nextData(doc *goquery.Document) (restaurantData, error) {
	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return nil, fmt.Errorf("__NEXT_DATA__ script: %w", ErrMissingID)
	}
	var payload struct {
		Props struct {
			PageProps struct {
				Restaurant restaurantData `json:"restaurant"`
			} `json:"pageProps"`
		} `json:"props"`
	}
	dec := json.NewDecoder(strings.NewReader(script.Text()))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode __NEXT_DATA__: %w", err)
	}
	if payload.Props.PageProps.Restaurant == nil {
		return nil, fmt.Errorf("restaurant payload: %w", ErrMissingID)
	}
	return payload.Props.PageProps.Restaurant, nil
}

func (d restaurantData) innerID() (int64, bool) {
	switch v := d["inner-id"].(type) {
	case json.Number:
		id, err := v.Int64()
		return id, err == nil && id != 0
	case string:
		id, err := json.Number(strings.TrimSpace(v)).Int64()
		return id, err == nil && id != 0
	default:
		return 0, false
	}
}

func (d restaurantData) str(key, fallback string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return fallback
	}
	s := menu.CleanText(scalar(v))
	if s == "" {
		return fallback
	}
	return s
}

func (d restaurantData) workTime() string {
	switch v := d["working-hours"].(type) {
	case []any:
		parts := make([]string, 0, len(v))
		for _, entry := range v {
			if s := menu.CleanText(scalar(entry)); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return menu.NoWorkTime
		}
		return strings.Join(parts, ", ")
	case nil:
		return menu.NoWorkTime
	default:
		return d.str("working-hours", menu.NoWorkTime)
	}
}

func (d restaurantData) phone() string {
	raw, ok := d["phone"]
	if !ok || raw == nil {
		return menu.NoContacts
	}
	digits := menu.DigitsOnly(scalar(raw))
	if digits == "" {
		return menu.NoContacts
	}
	return digits
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}
