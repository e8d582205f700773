package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

//go:embed products.json
var embeddedProducts []byte

// ErrInvalidCatalog indicates a catalog document that cannot be served.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Product is one book in the catalog.
type Product struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	Publisher    string  `json:"publisher"`
	PremiumOffer bool    `json:"premiumOffer"`
	Year         int     `json:"year,omitempty"`
	Price        float64 `json:"price,omitempty"`
}

type document struct {
	Books []Product `json:"books"`
}

// Store is a read-only, in-memory product catalog. It is safe for
// concurrent use.
type Store struct {
	products []Product
	byID     map[string]int
}

// NewStore loads the catalog from path, or the embedded catalog when path
// is empty.
func NewStore(path string) (*Store, error) {
	data := embeddedProducts
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse builds a store from a catalog document.
func Parse(data []byte) (*Store, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	s := &Store{
		products: make([]Product, 0, len(doc.Books)),
		byID:     make(map[string]int, len(doc.Books)),
	}
	for i, p := range doc.Books {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: book %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate book id %s", ErrInvalidCatalog, p.ID)
		}
		s.byID[p.ID] = len(s.products)
		s.products = append(s.products, p)
	}
	return s, nil
}

// List returns a copy of every product in catalog order.
func (s *Store) List() []Product {
	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

// Get returns the product with id.
func (s *Store) Get(id string) (Product, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Product{}, false
	}
	return s.products[i], true
}

// Len returns the number of products.
func (s *Store) Len() int {
	return len(s.products)
}
