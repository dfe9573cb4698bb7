// Package cart keeps a storefront shopper's cart: line items persisted to
// the session store and synchronised with a remote cart on the backend.
package cart

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/commerce"
	"storefront/internal/domain"
	"storefront/internal/storage"
)

// DefaultTimeout bounds every backend call made during a sync.
const DefaultTimeout = 15 * time.Second

// State is where the cart sits in its EMPTY → POPULATED → SYNCED lifecycle.
type State string

const (
	StateEmpty     State = "EMPTY"
	StatePopulated State = "POPULATED"
	StateSynced    State = "SYNCED"
)

type remoteCarts interface {
	CreateRemoteCart(ctx context.Context, lines []domain.LineInput) (*commerce.RemoteCart, error)
	AddLinesToRemoteCart(ctx context.Context, remoteCartID string, lines []domain.LineInput) error
	UpdateRemoteCartLines(ctx context.Context, remoteCartID string, lines []domain.LineInput) error
}

// Option configures a Manager built by New.
type Option func(*Manager)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// Manager owns one session's cart. It is safe for concurrent use; syncs are
// serialised and the state lock is never held across a backend call.
type Manager struct {
	store   storage.Store
	remote  remoteCarts
	logger  *zap.Logger
	timeout time.Duration

	mu    sync.Mutex
	items []domain.LineItem
	// remoteID and remoteURL describe the last remote cart obtained;
	// syncedLines is what that cart holds (nil when unknown).
	remoteID      string
	remoteURL     string
	syncedLines   map[string]int
	version       uint64
	syncedVersion uint64
	generation    uint64
	syncing       bool
	seq           uint64

	syncMu sync.Mutex

	persistMu sync.Mutex
	written   map[string]uint64
}

// Snapshot is a consistent copy of the cart state.
type Snapshot struct {
	Items          []domain.LineItem `json:"items"`
	RemoteCartID   string            `json:"remoteCartId,omitempty"`
	CheckoutURL    string            `json:"checkoutUrl,omitempty"`
	Syncing        bool              `json:"isSyncing"`
	State          State             `json:"state"`
	TotalPrice     domain.Money      `json:"totalPrice"`
	TotalItemCount int               `json:"totalItemCount"`
}

// New builds a cart manager persisting to store and syncing through remote.
// The cart starts empty; call Load to hydrate it from the store.
func New(store storage.Store, remote remoteCarts, logger *zap.Logger, opts ...Option) *Manager {
	if store == nil {
		panic("cart: nil store")
	}
	if remote == nil {
		panic("cart: nil remote cart client")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:   store,
		remote:  remote,
		logger:  logger,
		timeout: DefaultTimeout,
		written: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) mustInit() {
	if m == nil || m.store == nil || m.written == nil {
		panic("cart: Manager used without cart.New")
	}
}

// Load hydrates the cart from the session store. Unreadable or malformed
// data is treated as absent.
func (m *Manager) Load(ctx context.Context) {
	m.mustInit()
	items := m.readItems(ctx)
	remoteID := m.readString(ctx, storage.KeyCartID)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
	m.remoteID = remoteID
	m.remoteURL = ""
	m.syncedLines = nil
	m.version++
	m.logger.Debug("cart hydrated", zap.Int("lines", len(items)), zap.Bool("remote_cart", remoteID != ""))
}

func (m *Manager) readString(ctx context.Context, key string) string {
	v, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("read session store", zap.String("key", key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func (m *Manager) readItems(ctx context.Context) []domain.LineItem {
	raw := m.readString(ctx, storage.KeyCartItems)
	if raw == "" {
		return nil
	}
	var stored []domain.LineItem
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		m.logger.Warn("discarding malformed stored cart", zap.Error(err))
		return nil
	}
	return normalize(stored, m.logger)
}

// normalize drops invalid records, merges duplicate variants and keeps the
// currency of the first valid line.
func normalize(stored []domain.LineItem, logger *zap.Logger) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(stored))
	index := make(map[string]int, len(stored))
	currency := ""
	for _, it := range stored {
		it.VariantID = strings.TrimSpace(it.VariantID)
		if it.VariantID == "" || it.Quantity < 1 || it.CurrencyCode == "" || it.Price.IsNegative() {
			logger.Debug("dropping invalid stored line", zap.String("variant_id", it.VariantID))
			continue
		}
		if currency == "" {
			currency = it.CurrencyCode
		} else if it.CurrencyCode != currency {
			logger.Debug("dropping stored line in foreign currency", zap.String("variant_id", it.VariantID), zap.String("currency", it.CurrencyCode))
			continue
		}
		if i, ok := index[it.VariantID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.VariantID] = len(out)
		out = append(out, it)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// AddItem adds quantity of variant, incrementing an existing line for the
// same variant. It never contacts the backend.
func (m *Manager) AddItem(ctx context.Context, product domain.Product, variant domain.Variant, quantity int) error {
	m.mustInit()
	if strings.TrimSpace(variant.ID) == "" {
		return domain.NewError(domain.ErrValidation, "variant id required")
	}
	if variant.Price.CurrencyCode == "" || variant.Price.Amount.IsNegative() {
		return domain.NewError(domain.ErrValidation, "variant %s has no valid price", variant.ID)
	}
	if quantity < 1 {
		return domain.NewError(domain.ErrValidation, "quantity must be at least 1")
	}

	m.mu.Lock()
	if len(m.items) > 0 && m.items[0].CurrencyCode != variant.Price.CurrencyCode {
		cur := m.items[0].CurrencyCode
		m.mu.Unlock()
		return domain.NewError(domain.ErrValidation, "cart is priced in %s; cannot add an item priced in %s", cur, variant.Price.CurrencyCode)
	}
	found := false
	for i := range m.items {
		if m.items[i].VariantID == variant.ID {
			m.items[i].Quantity += quantity
			found = true
			break
		}
	}
	if !found {
		m.items = append(m.items, lineFrom(product, variant, quantity))
	}
	w := m.mutatedLocked()
	m.mu.Unlock()

	m.flush(ctx, w)
	return nil
}

func lineFrom(p domain.Product, v domain.Variant, quantity int) domain.LineItem {
	li := domain.LineItem{
		ProductID:        p.ID,
		VariantID:        v.ID,
		Title:            p.Title,
		VariantTitle:     v.Title,
		Price:            v.Price.Amount,
		CurrencyCode:     v.Price.CurrencyCode,
		Quantity:         quantity,
		AvailableForSale: v.AvailableForSale,
		ProductHandle:    p.Handle,
	}
	if len(p.Images) > 0 {
		li.ImageURL = p.Images[0].URL
		li.ImageAlt = p.Images[0].AltText
		if li.ImageAlt == "" {
			li.ImageAlt = p.Title
		}
	}
	return li
}

// UpdateQuantity sets the quantity of a present line. Zero removes it; an
// absent variant is a no-op.
func (m *Manager) UpdateQuantity(ctx context.Context, variantID string, quantity int) error {
	m.mustInit()
	if quantity < 0 {
		return domain.NewError(domain.ErrValidation, "quantity must not be negative")
	}
	if quantity == 0 {
		m.RemoveItem(ctx, variantID)
		return nil
	}

	m.mu.Lock()
	i := m.indexLocked(variantID)
	if i < 0 || m.items[i].Quantity == quantity {
		m.mu.Unlock()
		return nil
	}
	m.items[i].Quantity = quantity
	w := m.mutatedLocked()
	m.mu.Unlock()

	m.flush(ctx, w)
	return nil
}

// RemoveItem removes the line for variantID if present.
func (m *Manager) RemoveItem(ctx context.Context, variantID string) {
	m.mustInit()
	m.mu.Lock()
	i := m.indexLocked(variantID)
	if i < 0 {
		m.mu.Unlock()
		return
	}
	m.items = append(m.items[:i:i], m.items[i+1:]...)
	w := m.mutatedLocked()
	m.mu.Unlock()

	m.flush(ctx, w)
}

func (m *Manager) indexLocked(variantID string) int {
	for i := range m.items {
		if m.items[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// Clear empties the cart and forgets the remote cart. A sync in flight
// when Clear runs has its result discarded.
func (m *Manager) Clear(ctx context.Context) {
	m.mustInit()
	m.mu.Lock()
	m.items = nil
	m.remoteID = ""
	m.remoteURL = ""
	m.syncedLines = nil
	m.generation++
	w := m.mutatedLocked()
	idSeq := m.nextSeqLocked()
	m.mu.Unlock()

	m.flush(ctx, w, write{key: storage.KeyCartID, del: true, seq: idSeq})
}

// mutatedLocked records a line-item change, which makes any checkout URL
// stale, and returns the write that persists the new items.
func (m *Manager) mutatedLocked() write {
	m.version++
	payload := []byte("[]")
	if len(m.items) > 0 {
		if b, err := json.Marshal(m.items); err == nil {
			payload = b
		} else {
			m.logger.Error("encode cart", zap.Error(err))
		}
	}
	return write{key: storage.KeyCartItems, value: string(payload), seq: m.nextSeqLocked()}
}

func (m *Manager) nextSeqLocked() uint64 {
	m.seq++
	return m.seq
}

func (m *Manager) TotalPrice() domain.Money {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	return totalLocked(m.items)
}

func totalLocked(items []domain.LineItem) domain.Money {
	total := domain.Money{Amount: decimal.Zero}
	for _, it := range items {
		total.Amount = total.Amount.Add(it.Subtotal().Amount)
		total.CurrencyCode = it.CurrencyCode
	}
	return total
}

func (m *Manager) TotalItemCount() int {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		n += it.Quantity
	}
	return n
}

// Items returns a copy of the line items in insertion order.
func (m *Manager) Items() []domain.LineItem {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LineItem(nil), m.items...)
}

func (m *Manager) RemoteCartID() string {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remoteID
}

// CheckoutURL returns the checkout URL if it still matches the current line
// items, or "" when the cart must be synced first.
func (m *Manager) CheckoutURL() string {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freshURLLocked()
}

func (m *Manager) freshURLLocked() string {
	if len(m.items) == 0 || m.remoteURL == "" || m.syncedVersion != m.version {
		return ""
	}
	return m.remoteURL
}

func (m *Manager) Syncing() bool {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.syncing
}

func (m *Manager) State() State {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	switch {
	case len(m.items) == 0:
		return StateEmpty
	case m.freshURLLocked() != "":
		return StateSynced
	default:
		return StatePopulated
	}
}

func (m *Manager) Snapshot() Snapshot {
	m.mustInit()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, it := range m.items {
		n += it.Quantity
	}
	return Snapshot{
		Items:          append([]domain.LineItem{}, m.items...),
		RemoteCartID:   m.remoteID,
		CheckoutURL:    m.freshURLLocked(),
		Syncing:        m.syncing,
		State:          m.stateLocked(),
		TotalPrice:     totalLocked(m.items),
		TotalItemCount: n,
	}
}
