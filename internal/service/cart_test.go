package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agamenonmacondo/avashop-sub001/internal/domain"
	"github.com/agamenonmacondo/avashop-sub001/internal/repository/memory"
	apperrors "github.com/agamenonmacondo/avashop-sub001/pkg/errors"
)

func newTestCartService(store *memory.Store) *CartService {
	return NewCartService(store.Carts(), store.Products(), newTestLogger())
}

// --- AddItem Tests ---

func TestAddItem_PricesFromCatalog(t *testing.T) {
	store := memory.NewStore()
	seedProduct(store, "p1", 5, 45000)
	svc := newTestCartService(store)

	cart, err := svc.AddItem(context.Background(), "user-1", "ana@example.com", "p1", 2)

	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(45000), cart.Items[0].Price)
	assert.Equal(t, "Producto p1", cart.Items[0].Name)
	assert.Equal(t, int64(90000), cart.Total())
	assert.Equal(t, 1, cart.Version)
}

func TestAddItem_Accumulates(t *testing.T) {
	store := memory.NewStore()
	seedProduct(store, "p1", 5, 1000)
	svc := newTestCartService(store)

	_, err := svc.AddItem(context.Background(), "user-1", "", "p1", 2)
	require.NoError(t, err)
	cart, err := svc.AddItem(context.Background(), "user-1", "", "p1", 3)

	require.NoError(t, err)
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, 2, cart.Version)
}

func TestAddItem_AboveAvailable(t *testing.T) {
	store := memory.NewStore()
	seedProduct(store, "p1", 1, 1000)
	svc := newTestCartService(store)

	_, err := svc.AddItem(context.Background(), "user-1", "", "p1", 2)

	assert.True(t, errors.Is(err, apperrors.ErrInsufficientStock))
	assert.Equal(t, "Stock insuficiente para Producto p1: solo quedan 1 unidades", apperrors.Message(err))
}

func TestAddItem_UnknownProduct(t *testing.T) {
	svc := newTestCartService(memory.NewStore())

	_, err := svc.AddItem(context.Background(), "user-1", "", "nope", 1)

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	svc := newTestCartService(memory.NewStore())

	_, err := svc.AddItem(context.Background(), "user-1", "", "p1", 0)

	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

// --- Concurrency Tests ---

func TestMutate_RetriesOnConflict(t *testing.T) {
	store := memory.NewStore()
	seedProduct(store, "p1", 5, 1000)
	store.FailNextSaves(2)
	svc := newTestCartService(store)

	cart, err := svc.AddItem(context.Background(), "user-1", "", "p1", 1)

	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestMutate_GivesUpAfterThreeConflicts(t *testing.T) {
	store := memory.NewStore()
	seedProduct(store, "p1", 5, 1000)
	store.FailNextSaves(cartWriteAttempts)
	svc := newTestCartService(store)

	_, err := svc.AddItem(context.Background(), "user-1", "", "p1", 1)

	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

// --- SetItemQuantity, RemoveItem and Clear Tests ---

func TestSetItemQuantity(t *testing.T) {
	store := memory.NewStore()
	seedProduct(store, "p1", 5, 1000)
	svc := newTestCartService(store)

	_, err := svc.AddItem(context.Background(), "user-1", "", "p1", 4)
	require.NoError(t, err)

	cart, err := svc.SetItemQuantity(context.Background(), "user-1", "", "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Items[0].Quantity)

	cart, err = svc.SetItemQuantity(context.Background(), "user-1", "", "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestRemoveItem_Missing(t *testing.T) {
	svc := newTestCartService(memory.NewStore())

	_, err := svc.RemoveItem(context.Background(), "user-1", "", "p1")

	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestClear(t *testing.T) {
	store := memory.NewStore()
	seedProduct(store, "p1", 5, 1000)
	svc := newTestCartService(store)
	_, err := svc.AddItem(context.Background(), "user-1", "", "p1", 1)
	require.NoError(t, err)

	cart, err := svc.Clear(context.Background(), "user-1", "")

	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Total())

	saved, err := svc.GetCart(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, saved.Items)
	assert.Equal(t, 2, saved.Version)
}

func TestGetCart_Empty(t *testing.T) {
	svc := newTestCartService(memory.NewStore())

	cart, err := svc.GetCart(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{}, cart.Items)
	assert.Zero(t, cart.Version)
}
