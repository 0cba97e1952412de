// Package parser converts raw booth.pm response bodies into the canonical
// item shape. The marketplace publishes no stable document format, so every
// lookup runs an ordered chain of candidate selectors and degrades field by
// field instead of failing whole documents.
package parser

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/boothhunter/boothhunter/internal/models"
)

// ErrNoItem reports a document that cannot yield a usable item: a JSON body
// without an id, or a detail page without a resolvable title.
var ErrNoItem = errors.New("document contains no usable item")

// jsonItemDetail mirrors the semi-structured /ja/items/{id}.json payload.
// Every field may be absent.
type jsonItemDetail struct {
	ID          *int64          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       json.RawMessage `json:"price"`
	Category    *struct {
		Name string `json:"name"`
	} `json:"category"`
	Shop *struct {
		Name string `json:"name"`
	} `json:"shop"`
	URL    string `json:"url"`
	Images []struct {
		Original string `json:"original"`
		Resized  string `json:"resized"`
	} `json:"images"`
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

// ParseItemJSON decodes a JSON detail body into an Item. A missing or
// negative id, or an empty name, makes the document unusable (ErrNoItem);
// the caller falls back to HTML in that case.
func ParseItemJSON(body []byte) (*models.Item, error) {
	var detail jsonItemDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, err
	}

	if detail.ID == nil || *detail.ID < 0 {
		return nil, ErrNoItem
	}
	if strings.TrimSpace(detail.Name) == "" {
		return nil, ErrNoItem
	}

	item := &models.Item{
		ID:          *detail.ID,
		Name:        detail.Name,
		Description: detail.Description,
		Price:       parseJSONPrice(detail.Price),
		URL:         detail.URL,
		Images:      make([]string, 0, len(detail.Images)),
		Tags:        make([]string, 0, len(detail.Tags)),
	}
	if item.URL == "" {
		item.URL = models.ItemURL(item.ID)
	}
	if detail.Category != nil {
		item.CategoryName = detail.Category.Name
	}
	if detail.Shop != nil {
		item.ShopName = detail.Shop.Name
	}
	for _, img := range detail.Images {
		switch {
		case img.Original != "":
			item.Images = append(item.Images, img.Original)
		case img.Resized != "":
			item.Images = append(item.Images, img.Resized)
		}
	}
	for _, tag := range detail.Tags {
		if tag.Name != "" {
			item.Tags = append(item.Tags, tag.Name)
		}
	}

	return item, nil
}

// parseJSONPrice normalizes the two price encodings booth.pm emits: a bare
// number (truncated to whole units) or a currency-formatted string like
// "¥1,200". Anything unparsable becomes 0 rather than failing the item.
func parseJSONPrice(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		if num < 0 {
			return 0
		}
		return int64(num)
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return digitsToInt(str)
	}

	return 0
}

// digitsToInt strips every non-digit byte and parses the remainder.
func digitsToInt(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Ordered candidate locators. The upstream markup shifts between campaign and
// theme variants, so each field tries several selectors; the first one that
// matches anything wins and the rest are never consulted. The ordering is
// load-bearing: a looser selector listed earlier deliberately shadows the
// later ones.
var (
	cardTitleSelectors = []string{
		".item-card__title-anchor--multiline",
		".item-card__title a",
	}
	totalCountSelectors = []string{
		".u-tpg-caption1",
		".search-result-count",
		".u-tpg-body2",
		"title",
	}
	detailTitleSelectors = []string{
		".u-tpg-title2",
		"h2.u-tpg-title2",
		".item-name h1",
		"[data-product-name]",
	}
	detailPriceSelectors = []string{
		".item-price .u-tpg-body1",
		".price",
		".u-tpg-title2-price",
	}
	detailDescSelectors = []string{
		".u-mb-400 .u-tpg-body1",
		".item-description",
		".description",
	}
	detailImageSelectors = []string{
		".item-gallery img",
		".slick-slide img",
		".market-item-detail-item-image img",
	}
	detailShopSelectors = []string{
		".shop-name",
		".shop-name-mini a",
		".u-d-ib a",
	}
	detailTagSelectors = []string{
		".item-tag a",
		"a.tag",
		".item-info-tag a",
	}
	detailCategorySelectors = []string{
		".item-category a",
		".category-name a",
	}
)

// firstMatch returns the selection produced by the first selector that
// matches at least one element, or nil when none do.
func firstMatch(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if m := root.Find(sel); m.Length() > 0 {
			return m
		}
	}
	return nil
}

// firstText returns the trimmed text of the first element matched by the
// selector chain, or empty.
func firstText(root *goquery.Selection, selectors []string) string {
	m := firstMatch(root, selectors)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m.First().Text())
}

// ParseSearchHTML extracts item summaries and the best-effort total count
// from a search or browse results page. Cards missing an id or any usable
// name are skipped silently; partial markup is expected, not an error.
func ParseSearchHTML(r io.Reader) ([]models.Item, *int64, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, err
	}

	var items []models.Item
	doc.Find("li.item-card[data-product-id]").Each(func(_ int, card *goquery.Selection) {
		if item, ok := parseItemCard(card); ok {
			items = append(items, item)
		}
	})

	return items, parseTotalCount(doc), nil
}

func parseItemCard(card *goquery.Selection) (models.Item, bool) {
	idAttr, _ := card.Attr("data-product-id")
	id, err := strconv.ParseInt(idAttr, 10, 64)
	if err != nil || id < 0 {
		return models.Item{}, false
	}

	name, _ := card.Attr("data-product-name")
	if name == "" {
		name = firstText(card, cardTitleSelectors)
	}
	if name == "" {
		return models.Item{}, false
	}

	var price int64
	if p, ok := card.Attr("data-product-price"); ok {
		price, _ = strconv.ParseInt(p, 10, 64)
		if price < 0 {
			price = 0
		}
	}

	// Thumbnails load lazily; the real URL lives on the anchor, not the img.
	images := make([]string, 0, 1)
	card.Find("a.js-thumbnail-image[data-original]").Each(func(_ int, a *goquery.Selection) {
		if src, ok := a.Attr("data-original"); ok && src != "" {
			images = append(images, src)
		}
	})

	return models.Item{
		ID:           id,
		Name:         name,
		Price:        price,
		ShopName:     strings.TrimSpace(card.Find(".item-card__shop-name").First().Text()),
		CategoryName: strings.TrimSpace(card.Find(".item-card__category-anchor").First().Text()),
		URL:          models.ItemURL(id),
		Images:       images,
		Tags:         []string{},
	}, true
}

// parseTotalCount scans caption, count and title regions for a digit run
// followed by a count-unit glyph. The scan is heuristic and can pick up an
// unrelated number that happens to precede the glyph elsewhere on the page;
// kept as-is for compatibility with how the marketplace renders counts.
func parseTotalCount(doc *goquery.Document) *int64 {
	for _, sel := range totalCountSelectors {
		var count *int64
		doc.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if n, ok := extractCount(el.Text()); ok {
				count = &n
				return false
			}
			return true
		})
		if count != nil {
			return count
		}
	}
	return nil
}

// extractCount finds the first positive digit run (commas tolerated inside)
// immediately followed by 件 or 点.
func extractCount(text string) (int64, bool) {
	var digits []rune
	inRun := false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			inRun = true
			digits = append(digits, r)
		case r == ',' && inRun:
			// thousands separator inside the run
		case (r == '件' || r == '点') && inRun:
			if n, err := strconv.ParseInt(string(digits), 10, 64); err == nil && n > 0 {
				return n, true
			}
			inRun = false
			digits = digits[:0]
		default:
			inRun = false
			digits = digits[:0]
		}
	}
	return 0, false
}

// ParseItemDetailHTML extracts a full item from a detail page. The id is
// taken from the caller, not the page: detail pages are fetched by id and
// that id is canonical regardless of what the markup claims. A page without
// a resolvable title is indistinguishable from a removed listing and yields
// ErrNoItem.
func ParseItemDetailHTML(r io.Reader, itemID int64) (*models.Item, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	name := detailTitle(doc)
	if name == "" {
		return nil, ErrNoItem
	}

	item := &models.Item{
		ID:           itemID,
		Name:         name,
		Description:  firstText(doc.Selection, detailDescSelectors),
		Price:        detailPrice(doc),
		CategoryName: firstText(doc.Selection, detailCategorySelectors),
		ShopName:     firstText(doc.Selection, detailShopSelectors),
		URL:          models.ItemURL(itemID),
		Images:       detailImages(doc),
		Tags:         detailTags(doc),
	}

	return item, nil
}

func detailTitle(doc *goquery.Document) string {
	m := firstMatch(doc.Selection, detailTitleSelectors)
	if m == nil {
		return ""
	}
	el := m.First()
	if name, ok := el.Attr("data-product-name"); ok && name != "" {
		return name
	}
	return strings.TrimSpace(el.Text())
}

// priceStripper removes currency glyphs, thousands separators and both space
// variants booth.pm renders around prices.
var priceStripper = strings.NewReplacer("¥", "", "￥", "", ",", "", " ", "", "\u00a0", "")

func detailPrice(doc *goquery.Document) int64 {
	m := firstMatch(doc.Selection, detailPriceSelectors)
	if m == nil {
		return 0
	}
	cleaned := strings.TrimSpace(priceStripper.Replace(m.First().Text()))
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func detailImages(doc *goquery.Document) []string {
	images := []string{}
	m := firstMatch(doc.Selection, detailImageSelectors)
	if m == nil {
		return images
	}
	m.Each(func(_ int, img *goquery.Selection) {
		// Gallery images lazy-load; the full-size URL hides behind
		// data-origin / data-original before it ever reaches src.
		for _, attr := range []string{"data-origin", "data-original", "src"} {
			if src, ok := img.Attr(attr); ok && src != "" {
				images = append(images, src)
				return
			}
		}
	})
	return images
}

func detailTags(doc *goquery.Document) []string {
	tags := []string{}
	m := firstMatch(doc.Selection, detailTagSelectors)
	if m == nil {
		return tags
	}
	m.Each(func(_ int, a *goquery.Selection) {
		if tag := strings.TrimSpace(a.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})
	return tags
}
