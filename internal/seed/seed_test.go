package seed

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain"
)

type recordingWriter struct {
	saved []domain.Product
	err   error
}

func (w *recordingWriter) Upsert(_ context.Context, p domain.Product) (*domain.Product, error) {
	if w.err != nil {
		return nil, w.err
	}
	w.saved = append(w.saved, p)
	return &p, nil
}

func TestApplySeedsDemoCatalogue(t *testing.T) {
	w := &recordingWriter{}
	if err := Apply(context.Background(), w, "INR", nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(w.saved) != len(demoProducts) {
		t.Fatalf("expected %d products, got %d", len(demoProducts), len(w.saved))
	}
	granola := w.saved[0]
	if granola.Variants[0].Price.String() != "249.00 INR" {
		t.Fatalf("unexpected price %s", granola.Variants[0].Price)
	}

	again := &recordingWriter{}
	if err := Apply(context.Background(), again, "INR", nil); err != nil {
		t.Fatalf("apply again: %v", err)
	}
	if again.saved[0].ID != granola.ID || again.saved[0].Variants[1].ID != granola.Variants[1].ID {
		t.Fatalf("expected stable ids across runs")
	}
}

func TestApplyStopsOnWriteError(t *testing.T) {
	err := Apply(context.Background(), &recordingWriter{err: errors.New("db down")}, "INR", nil)
	if err == nil {
		t.Fatalf("expected error")
	}
}
