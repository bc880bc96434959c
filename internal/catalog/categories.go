package catalog

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/menu-crawler/internal/menu"
)

const (
	categorySelector = ".deliveryCategoryBlockWrapper.deliveryCategoryContainer"
	itemPathMarker   = "/menu/"
)

// ListCategories groups the item links of a rendered listing page by
// category. Categories keep page order; repeated titles are merged and
// categories without item links are dropped.
func ListCategories(html, baseURL string) []menu.Category {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var (
		order []string
		byKey = make(map[string]*menu.Category)
		seen  = make(map[string]map[string]struct{})
	)
	doc.Find(categorySelector).Each(func(_ int, block *goquery.Selection) {
		title := menu.UnknownCategory
		if v, ok := block.Attr("data-title"); ok && strings.TrimSpace(v) != "" {
			title = strings.TrimSpace(v)
		}

		links := itemLinks(block, baseURL)
		if len(links) == 0 {
			return
		}

		cat, ok := byKey[title]
		if !ok {
			cat = &menu.Category{Name: title, ID: categoryID(block)}
			byKey[title] = cat
			seen[title] = make(map[string]struct{})
			order = append(order, title)
		}
		for _, link := range links {
			if _, dup := seen[title][link]; dup {
				continue
			}
			seen[title][link] = struct{}{}
			cat.URLs = append(cat.URLs, link)
		}
	})

	out := make([]menu.Category, 0, len(order))
	for _, title := range order {
		out = append(out, *byKey[title])
	}
	return out
}

func categoryID(block *goquery.Selection) int {
	raw, _ := block.Attr("data-id")
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return id
}

func itemLinks(block *goquery.Selection, baseURL string) []string {
	var links []string
	block.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, itemPathMarker) {
			return
		}
		links = append(links, menu.AbsoluteURL(baseURL, href))
	})
	return links
}

// TotalURLs counts item links across categories.
func TotalURLs(categories []menu.Category) int {
	n := 0
	for _, c := range categories {
		n += len(c.URLs)
	}
	return n
}
