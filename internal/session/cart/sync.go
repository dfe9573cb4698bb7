package cart

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"storefront/internal/commerce"
	"storefront/internal/domain"
	"storefront/internal/storage"
)

// Sync brings the remote cart in line with the local line items and returns
// its checkout URL. Syncing an unchanged cart makes no backend call. A known
// remote cart is updated in place: added quantity is sent as additions and
// any decrease or removal as absolute quantities. A new remote cart is
// created on the first sync or when the backend rejects the update. On
// failure the previous remote cart and checkout URL are kept.
//
// Line items changed while the call is in flight leave the returned URL
// stale; GoToCheckout never hands off such a URL.
func (m *Manager) Sync(ctx context.Context) (string, error) {
	m.mustInit()
	m.syncMu.Lock()
	defer m.syncMu.Unlock()

	m.mu.Lock()
	if len(m.items) == 0 {
		m.mu.Unlock()
		m.logger.Info("sync skipped: cart is empty")
		return "", domain.NewError(domain.ErrEmptyCart, "cannot check out an empty cart")
	}
	if url := m.freshURLLocked(); url != "" {
		m.mu.Unlock()
		return url, nil
	}
	lines := make([]domain.LineInput, 0, len(m.items))
	for _, it := range m.items {
		lines = append(lines, domain.LineInput{VariantID: it.VariantID, Quantity: it.Quantity})
	}
	version, generation := m.version, m.generation
	remoteID, remoteURL := m.remoteID, m.remoteURL
	plan := planUpdate(m.syncedLines, lines)
	plan.known = plan.known && remoteID != "" && remoteURL != ""
	m.syncing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.syncing = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result, err := m.push(ctx, remoteID, remoteURL, lines, plan)
	if err != nil {
		m.logger.Warn("cart sync failed",
			zap.String("kind", domain.KindName(err)),
			zap.Int("lines", len(lines)),
			zap.Error(err),
		)
		return "", err
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		m.logger.Info("cart cleared during sync; discarding remote cart", zap.String("remote_cart_id", result.ID))
		return "", domain.NewError(domain.ErrEmptyCart, "cart was cleared during checkout")
	}
	m.remoteID = result.ID
	m.remoteURL = result.CheckoutURL
	m.syncedLines = quantities(lines)
	m.syncedVersion = version
	stale := m.version != version
	var idWrite write
	if result.ID != remoteID {
		idWrite = write{key: storage.KeyCartID, value: result.ID, seq: m.nextSeqLocked()}
	}
	m.mu.Unlock()

	if idWrite.key != "" {
		m.flush(ctx, idWrite)
	}
	m.logger.Info("cart synced",
		zap.String("remote_cart_id", result.ID),
		zap.Bool("in_place", result.ID == remoteID),
		zap.Bool("stale", stale),
	)
	return result.CheckoutURL, nil
}

// CreateCheckout is Sync under the name the checkout flow uses.
func (m *Manager) CreateCheckout(ctx context.Context) (string, error) {
	return m.Sync(ctx)
}

// checkoutAttempts bounds how many syncs GoToCheckout runs while the line
// items keep changing underneath it.
const checkoutAttempts = 3

// GoToCheckout returns the URL to hand the shopper off to, syncing first
// unless the current URL still matches the cart. A URL made stale by a
// mutation during the sync is never returned; the sync is retried and,
// when the cart keeps changing, a retryable ServerError is returned. The
// cart is never cleared here, on success or failure.
func (m *Manager) GoToCheckout(ctx context.Context) (string, error) {
	for attempt := 0; attempt < checkoutAttempts; attempt++ {
		if url := m.CheckoutURL(); url != "" {
			return url, nil
		}
		if _, err := m.Sync(ctx); err != nil {
			return "", err
		}
		if url := m.CheckoutURL(); url != "" {
			return url, nil
		}
		m.logger.Info("cart changed during checkout sync; syncing again", zap.Int("attempt", attempt+1))
	}
	return "", domain.NewError(domain.ErrServer, "cart changed during checkout")
}

func (m *Manager) push(ctx context.Context, remoteID, remoteURL string, lines []domain.LineInput, plan updatePlan) (*commerce.RemoteCart, error) {
	if plan.known {
		current := &commerce.RemoteCart{ID: remoteID, CheckoutURL: remoteURL}
		var err error
		switch {
		case len(plan.sets) > 0:
			err = m.remote.UpdateRemoteCartLines(ctx, remoteID, plan.sets)
		case len(plan.adds) > 0:
			err = m.remote.AddLinesToRemoteCart(ctx, remoteID, plan.adds)
		default:
			return current, nil
		}
		if err == nil {
			return current, nil
		}
		if !errors.Is(err, domain.ErrRemoteRejection) {
			return nil, err
		}
		m.logger.Info("remote cart rejected update; creating a new one", zap.String("remote_cart_id", remoteID), zap.Error(err))
	}
	return m.remote.CreateRemoteCart(ctx, lines)
}

// updatePlan is how to bring a known remote cart to the local lines: adds
// holds per-variant increases when nothing went down, sets holds absolute
// quantities (zero removes) for every changed variant otherwise.
type updatePlan struct {
	known bool
	adds  []domain.LineInput
	sets  []domain.LineInput
}

func planUpdate(synced map[string]int, lines []domain.LineInput) updatePlan {
	if synced == nil {
		return updatePlan{}
	}
	current := quantities(lines)
	plan := updatePlan{known: true}
	decreased := false
	for variantID, q := range synced {
		if current[variantID] < q {
			decreased = true
			break
		}
	}
	for _, l := range lines {
		prev := synced[l.VariantID]
		switch {
		case l.Quantity == prev:
		case decreased:
			plan.sets = append(plan.sets, l)
		default:
			plan.adds = append(plan.adds, domain.LineInput{VariantID: l.VariantID, Quantity: l.Quantity - prev})
		}
	}
	if decreased {
		for _, variantID := range sortedKeys(synced) {
			if _, ok := current[variantID]; !ok {
				plan.sets = append(plan.sets, domain.LineInput{VariantID: variantID, Quantity: 0})
			}
		}
	}
	return plan
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quantities(lines []domain.LineInput) map[string]int {
	out := make(map[string]int, len(lines))
	for _, l := range lines {
		out[l.VariantID] += l.Quantity
	}
	return out
}

// write is one pending session-store change. seq orders writes to the same
// key so a slow earlier write never overwrites a later one.
type write struct {
	key   string
	value string
	del   bool
	seq   uint64
}

// flush applies writes to the store. Failures are logged and swallowed.
func (m *Manager) flush(ctx context.Context, writes ...write) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	for _, w := range writes {
		if w.seq < m.written[w.key] {
			continue
		}
		m.written[w.key] = w.seq
		var err error
		if w.del {
			err = m.store.Delete(ctx, w.key)
		} else {
			err = m.store.Set(ctx, w.key, w.value)
		}
		if err != nil {
			m.logger.Warn("write session store", zap.String("key", w.key), zap.Error(err))
		}
	}
}
