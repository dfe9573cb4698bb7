package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

// catalogNamespace seeds the name-based UUIDs given to imported products
// and variants, so re-importing the same export keeps ids stable.
var catalogNamespace = uuid.MustParse("6f1d7a3e-8c52-4b7e-9f0a-2d4b5c6e7f81")

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CSVImporter reads Shopify-style product CSV exports and upserts products
// by handle. Rows sharing a handle add variants and images to the product
// opened by the first row.
type CSVImporter struct {
	reader   *csv.Reader
	repo     ProductWriter
	currency string
	logger   *zap.Logger
}

func NewCSVImporter(r io.Reader, repo ProductWriter, currency string, logger *zap.Logger) *CSVImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader:   csvr,
		repo:     repo,
		currency: strings.ToUpper(strings.TrimSpace(currency)),
		logger:   logger,
	}
}

type csvRow struct {
	Handle      string
	Title       string
	Body        string
	OptionValue string
	SKU         string
	Price       string
	InventoryQt string
	Policy      string
	ImageSrc    string
	ImageAlt    string
}

// Run parses CSV rows and upserts products grouped by handle.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	if i.currency == "" {
		return 0, errors.New("currency is required")
	}
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["handle"]; !ok {
		return 0, errors.New("missing Handle column")
	}

	var (
		current  *domain.Product
		imported int
	)
	flush := func() error {
		if current == nil {
			return nil
		}
		if err := i.save(ctx, current); err != nil {
			return err
		}
		imported++
		return nil
	}

	for line := 2; ; line++ {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		row := parseRow(record, index)
		if row.Handle == "" {
			continue
		}

		if current == nil || current.Handle != row.Handle {
			if err := flush(); err != nil {
				return imported, err
			}
			current = &domain.Product{
				ID:          uuid.NewSHA1(catalogNamespace, []byte("product/"+row.Handle)).String(),
				Handle:      row.Handle,
				Title:       row.Title,
				Description: row.Body,
			}
		}
		if row.ImageSrc != "" {
			current.Images = append(current.Images, domain.Image{URL: row.ImageSrc, AltText: row.ImageAlt})
		}
		if row.Price == "" {
			continue
		}
		v, err := i.variant(row, len(current.Variants))
		if err != nil {
			return imported, fmt.Errorf("line %d: %w", line, err)
		}
		current.Variants = append(current.Variants, v)
	}

	if err := flush(); err != nil {
		return imported, err
	}
	return imported, nil
}

func (i *CSVImporter) variant(row *csvRow, position int) (domain.Variant, error) {
	price, err := domain.NewMoney(row.Price, i.currency)
	if err != nil || price.Amount.IsNegative() {
		return domain.Variant{}, fmt.Errorf("invalid price %q for %s", row.Price, row.Handle)
	}
	key := row.SKU
	if key == "" {
		key = row.OptionValue
	}
	if key == "" {
		key = strconv.Itoa(position)
	}
	title := row.OptionValue
	if title == "Default Title" {
		title = ""
	}
	return domain.Variant{
		ID:               uuid.NewSHA1(catalogNamespace, []byte("variant/"+row.Handle+"/"+key)).String(),
		Title:            title,
		SKU:              row.SKU,
		Price:            price,
		AvailableForSale: available(row.InventoryQt, row.Policy),
	}, nil
}

// available treats a missing inventory count as untracked stock.
func available(qty, policy string) bool {
	if strings.EqualFold(policy, "continue") || qty == "" {
		return true
	}
	n, err := strconv.Atoi(qty)
	return err != nil || n > 0
}

func (i *CSVImporter) save(ctx context.Context, p *domain.Product) error {
	if p.Title == "" {
		return fmt.Errorf("invalid product %q: missing title", p.Handle)
	}
	if len(p.Variants) == 0 {
		return fmt.Errorf("invalid product %q: no priced variants", p.Handle)
	}
	if _, err := i.repo.Upsert(ctx, *p); err != nil {
		return fmt.Errorf("upsert product %q: %w", p.Handle, err)
	}
	i.logger.Debug("product imported", zap.String("handle", p.Handle), zap.Int("variants", len(p.Variants)))
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int) *csvRow {
	return &csvRow{
		Handle:      strings.ToLower(pick(record, index, "handle")),
		Title:       pick(record, index, "title"),
		Body:        pick(record, index, "body (html)"),
		OptionValue: pick(record, index, "option1 value"),
		SKU:         pick(record, index, "variant sku"),
		Price:       pick(record, index, "variant price"),
		InventoryQt: pick(record, index, "variant inventory qty"),
		Policy:      pick(record, index, "variant inventory policy"),
		ImageSrc:    pick(record, index, "image src"),
		ImageAlt:    pick(record, index, "image alt text"),
	}
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
