package importer

import (
	"context"
	"strings"
	"testing"

	"storefront/internal/domain"
)

type stubProductRepo struct {
	items []domain.Product
}

func (s *stubProductRepo) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	s.items = append(s.items, p)
	return &p, nil
}

const shopifyExport = `Handle,Title,Body (HTML),Option1 Name,Option1 Value,Variant SKU,Variant Inventory Qty,Variant Inventory Policy,Variant Price,Image Src,Image Alt Text
granola,Granola,Crunchy oats,Size,500g,GRA-500,12,deny,250.00,https://cdn.example/granola.jpg,Granola jar
granola,,,,1kg,GRA-1000,0,deny,450.00,https://cdn.example/granola-2.jpg,
granola,,,,,,,,,https://cdn.example/granola-3.jpg,
honey,Honey,,Title,Default Title,,,,180.50,,
`

func TestCSVImporter_Run(t *testing.T) {
	repo := &stubProductRepo{}
	imp := NewCSVImporter(strings.NewReader(shopifyExport), repo, "inr", nil)

	count, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if count != 2 || len(repo.items) != 2 {
		t.Fatalf("expected 2 products imported, got %d (%d saved)", count, len(repo.items))
	}

	granola := repo.items[0]
	if granola.Handle != "granola" || granola.Title != "Granola" || granola.Description != "Crunchy oats" {
		t.Fatalf("unexpected product data: %+v", granola)
	}
	if len(granola.Images) != 3 || granola.Images[0].AltText != "Granola jar" {
		t.Fatalf("expected 3 images on granola, got %+v", granola.Images)
	}
	if len(granola.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(granola.Variants))
	}
	small, large := granola.Variants[0], granola.Variants[1]
	if small.Title != "500g" || small.SKU != "GRA-500" || small.Price.String() != "250.00 INR" || !small.AvailableForSale {
		t.Fatalf("unexpected first variant %+v", small)
	}
	if large.AvailableForSale {
		t.Fatalf("variant with zero stock and deny policy should be sold out")
	}
	if small.ID == large.ID || small.ID == "" {
		t.Fatalf("variant ids must be distinct and set")
	}

	honey := repo.items[1]
	if len(honey.Variants) != 1 || honey.Variants[0].Title != "" || !honey.Variants[0].AvailableForSale {
		t.Fatalf("unexpected honey variants %+v", honey.Variants)
	}
}

func TestCSVImporter_IDsAreStable(t *testing.T) {
	first := &stubProductRepo{}
	second := &stubProductRepo{}
	if _, err := NewCSVImporter(strings.NewReader(shopifyExport), first, "INR", nil).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := NewCSVImporter(strings.NewReader(shopifyExport), second, "INR", nil).Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.items[0].ID != second.items[0].ID || first.items[0].Variants[1].ID != second.items[0].Variants[1].ID {
		t.Fatalf("expected ids to be stable across imports")
	}
}

func TestCSVImporter_Rejects(t *testing.T) {
	cases := map[string]struct {
		csv      string
		currency string
	}{
		"no currency":     {csv: shopifyExport, currency: ""},
		"no handle":       {csv: "Title,Variant Price\nGranola,10\n", currency: "INR"},
		"bad price":       {csv: "Handle,Title,Variant Price\ngranola,Granola,ten\n", currency: "INR"},
		"no title":        {csv: "Handle,Title,Variant Price\ngranola,,10\n", currency: "INR"},
		"no priced lines": {csv: "Handle,Title,Image Src\ngranola,Granola,https://cdn.example/a.jpg\n", currency: "INR"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewCSVImporter(strings.NewReader(tc.csv), &stubProductRepo{}, tc.currency, nil).Run(context.Background())
			if err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
