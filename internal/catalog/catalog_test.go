package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	collyfetcher "github.com/JakeFAU/menu-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/menu-crawler/internal/menu"
)

const listingHTML = `<html><body>
<div class="deliveryCategoryBlockWrapper deliveryCategoryContainer" data-title=" Завтраки " data-id="11">
  <a href="/menu/syrniki">Сырники</a>
  <a href="/menu/syrniki">Сырники (дубль)</a>
  <a href="https://cm.test/menu/omlet">Омлет</a>
  <a href="/about">О нас</a>
</div>
<div class="deliveryCategoryBlockWrapper deliveryCategoryContainer" data-title="Пусто" data-id="12">
  <a href="/contacts">Контакты</a>
</div>
<div class="deliveryCategoryBlockWrapper deliveryCategoryContainer" data-id="oops">
  <a href="/menu/mystery">?</a>
</div>
<div class="deliveryCategoryBlockWrapper deliveryCategoryContainer" data-title="Завтраки" data-id="99">
  <a href="/menu/kasha">Каша</a>
  <a href="/menu/omlet">Омлет</a>
</div>
<div class="deliveryCategoryBlockWrapper" data-title="Не категория"><a href="/menu/x">x</a></div>
</body></html>`

const itemHTML = `<html><head>
<script type="application/ld+json">{"@type":"BreadcrumbList"}</script>
<script type="application/ld+json">{"@type":"Product","sku":"10457","name":"Сырники"}</script>
</head><body>
<h1 class="itemTitle">Сырники&nbsp;со сметаной</h1>
<div class="itemDesc">  Нежные  сырники </div>
<div class="itemPrice">650₽</div>
<div class="itemAboutValueContent">
  <div class="itemStat"><span>Ккал</span> 450 ккал</div>
  <div class="itemStat"><span>Белки</span> 20 г</div>
  <div class="itemStat"><span>Жиры</span> 18 г</div>
  <div class="itemStat"><span>Углеводы</span> 40 г</div>
  <div class="itemStat"><span>Вес</span> 250 г</div>
</div>
<div class="itemAboutCompositionContent"><p>Творог, мука, яйцо</p><p>второй абзац</p></div>
<p style="font-style: italic">Аллергены: глютен, молоко</p>
<div id="itemImage"><img itemprop="contentUrl" src="/img/syrniki.jpg"></div>
<div class="timeLabel">до 12:00</div>
</body></html>`

const sliderItemHTML = `<html><head>
<script type="application/ld+json">{"@type":"Product","sku":777}</script>
</head><body>
<div id="itemSlider"><div class="itemSlide"><img itemprop="contentUrl" src="/img/icon.SVG"></div></div>
</body></html>`

func TestListCategories(t *testing.T) {
	t.Parallel()

	got := ListCategories(listingHTML, "https://cm.test")
	require.Equal(t, []menu.Category{
		{
			Name: "Завтраки",
			ID:   11,
			URLs: []string{
				"https://cm.test/menu/syrniki",
				"https://cm.test/menu/omlet",
				"https://cm.test/menu/kasha",
			},
		},
		{
			Name: menu.UnknownCategory,
			ID:   0,
			URLs: []string{"https://cm.test/menu/mystery"},
		},
	}, got)
	require.Equal(t, 4, TotalURLs(got))
}

func TestListCategoriesEmptyPage(t *testing.T) {
	t.Parallel()

	require.Empty(t, ListCategories("<html></html>", "https://cm.test"))
}

func TestParseItemHTML(t *testing.T) {
	t.Parallel()

	parsed, err := ParseItemHTML([]byte(itemHTML), "https://cm.test")
	require.NoError(t, err)
	require.EqualValues(t, 10457, parsed.ID)
	require.Equal(t, "Сырники со сметаной", parsed.Name)
	require.Equal(t, "Нежные сырники", parsed.Description)
	require.Equal(t, "650 ₽", parsed.Price)
	require.Equal(t, "Творог, мука, яйцо", parsed.Composition)
	require.Equal(t, "Аллергены: глютен, молоко", parsed.Allergens)
	require.Equal(t, "https://cm.test/img/syrniki.jpg", parsed.Image)
	require.Equal(t, "до 12:00", parsed.Timetable)

	item := parsed.CatalogItem(42, "Завтраки", 11)
	require.Equal(t, menu.CatalogItem{
		ID:            10457,
		RestaurantID:  42,
		Category:      "Завтраки",
		CategoryID:    11,
		Name:          "Сырники со сметаной",
		Price:         "650 ₽",
		Calories:      450,
		Proteins:      "20 г",
		Fats:          "18 г",
		Carbohydrates: "40 г",
		Weight:        "250 г",
		Description:   "Нежные сырники",
		Composition:   "Творог, мука, яйцо",
		Allergens:     "Аллергены: глютен, молоко",
		Image:         "https://cm.test/img/syrniki.jpg",
		Availability:  true,
		Timetable:     "до 12:00",
	}, item)
}

func TestParseItemHTMLPlaceholders(t *testing.T) {
	t.Parallel()

	parsed, err := ParseItemHTML([]byte(sliderItemHTML), "https://cm.test")
	require.NoError(t, err)
	require.EqualValues(t, 777, parsed.ID)
	require.Equal(t, menu.NoName, parsed.Name)
	require.Equal(t, menu.NoDescription, parsed.Description)
	require.Equal(t, menu.NoPrice, parsed.Price)
	require.Equal(t, menu.NoComposition, parsed.Composition)
	require.Equal(t, menu.NoAllergens, parsed.Allergens)
	require.Equal(t, menu.NoPhoto, parsed.Image)
	require.Empty(t, parsed.Timetable)

	item := parsed.CatalogItem(1, "Вино", 3)
	require.Zero(t, item.Calories)
	require.Equal(t, menu.NoData, item.Proteins)
	require.Equal(t, menu.NoData, item.Weight)
}

func TestParseItemHTMLMissingSKU(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no json-ld":     `<html><h1 class="itemTitle">x</h1></html>`,
		"not a product":  `<script type="application/ld+json">{"@type":"Offer","sku":"1"}</script>`,
		"malformed sku":  `<script type="application/ld+json">{"@type":"Product","sku":"abc"}</script>`,
		"broken json":    `<script type="application/ld+json">{"@type":</script>`,
		"sku not scalar": `<script type="application/ld+json">{"@type":"Product","sku":{"v":1}}</script>`,
	}
	for name, html := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseItemHTML([]byte(html), "https://cm.test")
			require.ErrorIs(t, err, ErrMissingSKU)
		})
	}
}

type stubFetcher struct {
	body string
	err  error
}

func (s stubFetcher) Fetch(_ context.Context, url string) (menu.FetchResult, error) {
	if s.err != nil {
		return menu.FetchResult{}, s.err
	}
	return menu.FetchResult{URL: url, StatusCode: http.StatusOK, Body: []byte(s.body)}, nil
}

func TestExtractorParseItem(t *testing.T) {
	t.Parallel()

	e := NewExtractor(stubFetcher{body: itemHTML}, "https://cm.test", nil)
	item, ok := e.ParseItem(context.Background(), "https://cm.test/menu/syrniki", "Завтраки", 11, 42)
	require.True(t, ok)
	require.EqualValues(t, 10457, item.ID)
	require.EqualValues(t, 42, item.RestaurantID)

	e = NewExtractor(stubFetcher{err: errors.New("down")}, "https://cm.test", nil)
	_, ok = e.ParseItem(context.Background(), "https://cm.test/menu/syrniki", "Завтраки", 11, 42)
	require.False(t, ok)

	e = NewExtractor(stubFetcher{body: "<html></html>"}, "https://cm.test", nil)
	_, ok = e.ParseItem(context.Background(), "https://cm.test/menu/empty", "Завтраки", 11, 42)
	require.False(t, ok)
}

func TestExtractorParseItemOverHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(itemHTML))
	}))
	t.Cleanup(srv.Close)

	fetcher := collyfetcher.New(collyfetcher.Config{MaxAttempts: 1, Timeout: 2 * time.Second})
	e := NewExtractor(fetcher, srv.URL, nil)
	item, ok := e.ParseItem(context.Background(), srv.URL+"/menu/syrniki", "Завтраки", 11, 42)
	require.True(t, ok)
	require.Equal(t, srv.URL+"/img/syrniki.jpg", item.Image)
	require.Equal(t, 450, item.Calories)
}
