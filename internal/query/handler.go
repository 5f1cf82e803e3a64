package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/example/ec-checkout/internal/domain/customer"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/readmodel"
)

// ErrForbidden is returned when a customer asks for someone else's order.
var ErrForbidden = errors.New("order belongs to another customer")

// Viewer is the caller of an order query.
type Viewer struct {
	CustomerID string
	IsAdmin    bool
}

func (v Viewer) canSee(o *OrderReadModel) bool {
	return v.IsAdmin || (v.CustomerID != "" && v.CustomerID == o.CustomerID)
}

type Handler struct {
	readStore store.ReadStoreInterface
}

func NewHandler(readStore store.ReadStoreInterface) *Handler {
	return &Handler{readStore: readStore}
}

// Products

func (h *Handler) GetProduct(ctx context.Context, id string) (*ProductReadModel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionProducts, id)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	if !ok {
		return nil, product.ErrProductNotFound
	}
	return data.(*ProductReadModel), nil
}

// ListProducts returns the catalog, newest first.
func (h *Handler) ListProducts(ctx context.Context) ([]*ProductReadModel, error) {
	items, err := h.readStore.GetAll(ctx, readmodel.CollectionProducts)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products := make([]*ProductReadModel, 0, len(items))
	for _, item := range items {
		products = append(products, item.(*ProductReadModel))
	}
	sort.SliceStable(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
	return products, nil
}

// Orders

func (h *Handler) getOrder(ctx context.Context, id string) (*OrderReadModel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionOrders, id)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return data.(*OrderReadModel), nil
}

// GetOrder returns an order the viewer owns, or any order for admins.
func (h *Handler) GetOrder(ctx context.Context, v Viewer, id string) (*OrderReadModel, error) {
	o, err := h.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !v.canSee(o) {
		return nil, ErrForbidden
	}
	return o, nil
}

// GetOrderStatus is the polling view used after checkout. It has no side
// effects, so it can be re-fetched freely.
func (h *Handler) GetOrderStatus(ctx context.Context, v Viewer, id string) (*OrderStatusReadModel, error) {
	o, err := h.GetOrder(ctx, v, id)
	if err != nil {
		return nil, err
	}
	return o.StatusView(), nil
}

func (h *Handler) listOrders(ctx context.Context, keep func(*OrderReadModel) bool) ([]*OrderReadModel, error) {
	items, err := h.readStore.GetAll(ctx, readmodel.CollectionOrders)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]*OrderReadModel, 0)
	for _, item := range items {
		o := item.(*OrderReadModel)
		if keep(o) {
			orders = append(orders, o)
		}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (h *Handler) ListOrdersByCustomer(ctx context.Context, customerID string) ([]*OrderReadModel, error) {
	return h.listOrders(ctx, func(o *OrderReadModel) bool { return o.CustomerID == customerID })
}

// ListAllOrders returns every order for admins, optionally only those in
// one order status.
func (h *Handler) ListAllOrders(ctx context.Context, status string) ([]*OrderReadModel, error) {
	return h.listOrders(ctx, func(o *OrderReadModel) bool { return status == "" || o.OrderStatus == status })
}

// Customers

func (h *Handler) GetCustomer(ctx context.Context, id string) (*CustomerReadModel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionCustomers, id)
	if err != nil {
		return nil, fmt.Errorf("get customer %s: %w", id, err)
	}
	if !ok {
		return nil, customer.ErrCustomerNotFound
	}
	return data.(*CustomerReadModel), nil
}

// CustomerIDByEmail resolves a login email through the email index.
func (h *Handler) CustomerIDByEmail(ctx context.Context, email string) (string, bool, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.CollectionCustomerEmails, customer.NormalizeEmail(email))
	if err != nil {
		return "", false, fmt.Errorf("lookup email: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return data.(*readmodel.CustomerEmailReadModel).CustomerID, true, nil
}
