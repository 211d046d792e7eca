// Package extract turns fetched catalog pages into links, products, and
// pagination targets using configurable CSS selectors.
package extract

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

// Selectors locate the page regions the parser reads. Each value is a CSS
// selector understood by goquery.
type Selectors struct {
	SubcategoryLinks  string `mapstructure:"subcategory_links"`
	ProductCard       string `mapstructure:"product_card"`
	ProductName       string `mapstructure:"product_name"`
	ProductPrice      string `mapstructure:"product_price"`
	ProductAttributes string `mapstructure:"product_attributes"`
	NextPage          string `mapstructure:"next_page"`
}

// DefaultSelectors matches the markup of the Shufersal online store.
func DefaultSelectors() Selectors {
	return Selectors{
		SubcategoryLinks:  ".subCategories a[href]",
		ProductCard:       "li.miglog-prod",
		ProductName:       ".description strong",
		ProductPrice:      ".line .price .number",
		ProductAttributes: ".labelsListContainer .label, .smallText span",
		NextPage:          "a.btnNext[href], link[rel=next][href]",
	}
}

// Validate reports missing selectors. Attributes and pagination are optional.
func (s Selectors) Validate() error {
	required := map[string]string{
		"subcategory_links": s.SubcategoryLinks,
		"product_card":      s.ProductCard,
		"product_name":      s.ProductName,
		"product_price":     s.ProductPrice,
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("selectors.%s is required", name)
		}
	}
	return nil
}

// Parser parses documents with a fixed selector set.
type Parser struct {
	sel  Selectors
	norm *catalog.URLNormalizer
}

// NewParser constructs a Parser. A nil normalizer uses the default tracking
// parameter list.
func NewParser(sel Selectors, norm *catalog.URLNormalizer) (*Parser, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if norm == nil {
		norm = catalog.NewURLNormalizer(nil)
	}
	return &Parser{sel: sel, norm: norm}, nil
}

// Document is a parsed page.
type Document struct {
	page catalog.Page
	doc  *goquery.Document
	sel  Selectors
	norm *catalog.URLNormalizer
}

// Parse builds a Document from a fetched page.
func (p *Parser) Parse(page catalog.Page) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page.URL, err)
	}
	return &Document{page: page, doc: doc, sel: p.sel, norm: p.norm}, nil
}

// Kind classifies the page. A page linking to subcategories is a category
// page, a page with product cards is a listing, and anything else is unknown.
func (d *Document) Kind() catalog.PageKind {
	switch {
	case len(d.SubcategoryLinks()) > 0:
		return catalog.PageKindCategory
	case d.doc.Find(d.sel.ProductCard).Length() > 0:
		return catalog.PageKindListing
	default:
		return catalog.PageKindUnknown
	}
}

// SubcategoryLinks returns normalized links in document order with
// duplicates removed. Links that do not normalize are dropped; host policy is
// left to the caller.
func (d *Document) SubcategoryLinks() []catalog.Link {
	base := d.page.BaseURL()
	seen := make(map[string]struct{})
	var links []catalog.Link
	d.doc.Find(d.sel.SubcategoryLinks).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		canonical, err := d.norm.Normalize(base, href)
		if err != nil {
			return
		}
		if _, dup := seen[canonical]; dup {
			return
		}
		seen[canonical] = struct{}{}
		links = append(links, catalog.Link{URL: canonical, Title: cleanText(s.Text())})
	})
	return links
}

// Products extracts every product card. Cards missing a name or a parseable
// price are reported as *catalog.ParseError and left out of the result.
// The returned products carry Name, Price, and RawAttributes only.
func (d *Document) Products() ([]catalog.Product, []error) {
	var (
		products []catalog.Product
		errs     []error
	)
	d.doc.Find(d.sel.ProductCard).Each(func(i int, card *goquery.Selection) {
		name := cleanText(card.Find(d.sel.ProductName).First().Text())
		if name == "" {
			errs = append(errs, &catalog.ParseError{URL: d.page.URL, Index: i, Reason: "missing name"})
			return
		}
		rawPrice := cleanText(card.Find(d.sel.ProductPrice).First().Text())
		price, err := ParsePrice(rawPrice)
		if err != nil {
			errs = append(errs, &catalog.ParseError{
				URL:    d.page.URL,
				Index:  i,
				Reason: fmt.Sprintf("product %q: %v", name, err),
			})
			return
		}
		products = append(products, catalog.Product{
			Name:          name,
			Price:         price,
			RawAttributes: d.attributes(card),
		})
	})
	return products, errs
}

// NextPage returns the resolved "next page" link, if any.
func (d *Document) NextPage() (string, bool) {
	if d.sel.NextPage == "" {
		return "", false
	}
	href, ok := d.doc.Find(d.sel.NextPage).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	next, err := d.norm.Normalize(d.page.BaseURL(), href)
	if err != nil {
		return "", false
	}
	return next, true
}

func (d *Document) attributes(card *goquery.Selection) map[string]string {
	attrs := make(map[string]string)
	if node := card.Get(0); node != nil {
		for _, a := range node.Attr {
			if key, ok := strings.CutPrefix(a.Key, "data-"); ok && key != "" && a.Val != "" {
				attrs[key] = a.Val
			}
		}
	}
	if d.sel.ProductAttributes == "" {
		return attrs
	}
	card.Find(d.sel.ProductAttributes).Each(func(_ int, s *goquery.Selection) {
		value := cleanText(s.Text())
		if value == "" {
			return
		}
		key := attributeKey(s)
		for n := 2; ; n++ {
			if _, taken := attrs[key]; !taken {
				break
			}
			key = fmt.Sprintf("%s_%d", attributeKey(s), n)
		}
		attrs[key] = value
	})
	return attrs
}

func attributeKey(s *goquery.Selection) string {
	if title, ok := s.Attr("title"); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	if class, ok := s.Attr("class"); ok {
		if fields := strings.Fields(class); len(fields) > 0 {
			return fields[0]
		}
	}
	return "attribute"
}

// maxPrice is the first value the products.price column (NUMERIC(12,2))
// cannot hold.
const maxPrice = 1e10

var (
	priceToken       = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	groupedThousands = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
	spacePattern     = regexp.MustCompile(`\s+`)
)

// ParsePrice extracts the first decimal number from text and formats it with
// two fractional digits. A comma followed by groups of exactly three digits
// ("1,299", "1,299.00") separates thousands; any other comma ("6,90") is the
// decimal separator. Values the price column cannot hold are rejected.
func ParsePrice(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("missing price")
	}
	token := strings.TrimRight(priceToken.FindString(text), ",")
	if token == "" {
		return "", fmt.Errorf("invalid price %q", text)
	}
	switch {
	case groupedThousands.MatchString(token), strings.Contains(token, "."):
		token = strings.ReplaceAll(token, ",", "")
	default:
		whole, frac, _ := strings.Cut(token, ",")
		frac, _, _ = strings.Cut(frac, ",")
		token = whole
		if frac != "" {
			token += "." + frac
		}
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return "", fmt.Errorf("invalid price %q: %w", text, err)
	}
	if math.Round(v*100)/100 >= maxPrice {
		return "", fmt.Errorf("price %q out of range", text)
	}
	return strconv.FormatFloat(v, 'f', 2, 64), nil
}

func cleanText(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
