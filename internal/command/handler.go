package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/domain/aggregate"
	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/example/ec-checkout/internal/domain/customer"
	"github.com/example/ec-checkout/internal/domain/inventory"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/product"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/shopspring/decimal"
)

const idempotencyScope = "checkout"

var (
	ErrDuplicateInFlight    = errors.New("an identical checkout is already in progress")
	ErrIdempotencyKeyReused = errors.New("idempotency key was already used for a different order")
)

// IdempotencyStore remembers which order a checkout key produced.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

type Handler struct {
	eventStore   store.EventStoreInterface
	productSvc   *product.Service
	inventorySvc *inventory.Service
	cartSvc      *cart.Service
	orderSvc     *order.Service
	customerSvc  *customer.Service
	idempotency  IdempotencyStore
	calculator   *pricing.Calculator
}

func NewHandler(
	eventStore store.EventStoreInterface,
	productSvc *product.Service,
	inventorySvc *inventory.Service,
	cartSvc *cart.Service,
	orderSvc *order.Service,
	customerSvc *customer.Service,
	idempotency IdempotencyStore,
	calculator *pricing.Calculator,
) *Handler {
	return &Handler{
		eventStore:   eventStore,
		productSvc:   productSvc,
		inventorySvc: inventorySvc,
		cartSvc:      cartSvc,
		orderSvc:     orderSvc,
		customerSvc:  customerSvc,
		idempotency:  idempotency,
		calculator:   calculator,
	}
}

// CreateProduct creates a product and stocks it when Stock is positive.
func (h *Handler) CreateProduct(ctx context.Context, cmd CreateProduct) (*product.Product, error) {
	if cmd.Stock < 0 {
		return nil, inventory.ErrInvalidQuantity
	}
	p, err := h.productSvc.Create(ctx, product.Details{
		Name:        cmd.Name,
		Description: cmd.Description,
		Price:       cmd.Price,
		Images:      cmd.Images,
	})
	if err != nil {
		return nil, err
	}

	if cmd.Stock > 0 {
		if _, err := h.inventorySvc.AddStock(ctx, p.ID, cmd.Stock); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (h *Handler) UpdateProduct(ctx context.Context, cmd UpdateProduct) (*product.Product, error) {
	return h.productSvc.Update(ctx, cmd.ProductID, product.Details{
		Name:        cmd.Name,
		Description: cmd.Description,
		Price:       cmd.Price,
		Images:      cmd.Images,
	})
}

func (h *Handler) DeleteProduct(ctx context.Context, cmd DeleteProduct) error {
	return h.productSvc.Delete(ctx, cmd.ProductID)
}

func (h *Handler) RestockProduct(ctx context.Context, cmd RestockProduct) (*inventory.Inventory, error) {
	if _, err := h.productSvc.Get(ctx, cmd.ProductID); err != nil {
		return nil, err
	}
	return h.inventorySvc.AddStock(ctx, cmd.ProductID, cmd.Quantity)
}

// AddToCart stores the add-to-cart price sent by the client. A missing
// price, name or image is taken from the product.
func (h *Handler) AddToCart(ctx context.Context, cmd AddToCart) (*cart.Cart, error) {
	p, err := h.productSvc.Get(ctx, cmd.ProductID)
	if err != nil {
		return nil, err
	}

	in := cart.AddItemInput{
		ProductID: cmd.ProductID,
		Name:      cmd.Name,
		Price:     p.Price,
		Quantity:  cmd.Quantity,
		Image:     cmd.Image,
		Variants:  cmd.Variants,
	}
	if cmd.Price != nil {
		in.Price = *cmd.Price
	}
	if in.Name == "" {
		in.Name = p.Name
	}
	if in.Image == "" {
		in.Image = p.Image()
	}
	return h.cartSvc.AddItem(ctx, cmd.CustomerID, in)
}

func (h *Handler) UpdateCartItem(ctx context.Context, cmd UpdateCartItem) (*cart.Cart, error) {
	return h.cartSvc.SetQuantity(ctx, cmd.CustomerID, cmd.LineKey, cmd.Quantity)
}

func (h *Handler) RemoveFromCart(ctx context.Context, cmd RemoveFromCart) (*cart.Cart, error) {
	return h.cartSvc.RemoveItem(ctx, cmd.CustomerID, cmd.LineKey)
}

func (h *Handler) ClearCart(ctx context.Context, cmd ClearCart) error {
	return h.cartSvc.Clear(ctx, cmd.CustomerID, "")
}

// CreateOrder prices the order from live products and commits the stock
// decrements, the order and the customer's order link as one batch. Every
// write carries the version it was computed from, so a concurrent order on
// the same product makes the whole batch fail and nothing is written.
//
// With an idempotency key, a repeated call with the same content returns
// the order the first call created. The same key with different content is
// rejected with ErrIdempotencyKeyReused.
func (h *Handler) CreateOrder(ctx context.Context, cmd CreateOrder) (*order.Order, error) {
	if cmd.IdempotencyKey == "" || h.idempotency == nil {
		return h.createOrder(ctx, cmd)
	}

	key := cmd.CustomerID + ":" + cmd.IdempotencyKey
	fingerprint := cmd.Fingerprint()
	if value, ok, err := h.idempotency.Recall(ctx, idempotencyScope, key); err != nil {
		return nil, fmt.Errorf("recall idempotency key: %w", err)
	} else if ok {
		orderID, remembered, _ := strings.Cut(value, "|")
		if remembered != "" && remembered != fingerprint {
			logging.FromCtx(ctx).Warn("idempotency key reused with different content", "order_id", orderID)
			return nil, ErrIdempotencyKeyReused
		}
		logging.FromCtx(ctx).Info("duplicate checkout, returning existing order", "order_id", orderID)
		return h.orderSvc.Get(ctx, orderID)
	}

	locked, err := h.idempotency.TryLock(ctx, idempotencyScope, key)
	if err != nil {
		return nil, fmt.Errorf("lock idempotency key: %w", err)
	}
	if !locked {
		return nil, ErrDuplicateInFlight
	}

	o, err := h.createOrder(ctx, cmd)
	if err != nil {
		if relErr := h.idempotency.Release(ctx, idempotencyScope, key); relErr != nil {
			logging.FromCtx(ctx).Warn("release idempotency key", "err", relErr)
		}
		return nil, err
	}
	if err := h.idempotency.Remember(ctx, idempotencyScope, key, o.ID+"|"+fingerprint); err != nil {
		logging.FromCtx(ctx).Warn("remember idempotency key", "order_id", o.ID, "err", err)
	}
	return o, nil
}

type stockLine struct {
	inv      *inventory.Inventory
	quantity int
}

func (h *Handler) createOrder(ctx context.Context, cmd CreateOrder) (*order.Order, error) {
	c, err := h.customerSvc.Get(ctx, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if len(cmd.Items) == 0 {
		return nil, order.ErrEmptyOrder
	}
	if !cmd.PaymentMethod.Valid() {
		return nil, order.ErrInvalidPaymentMethod
	}

	items := make([]order.OrderItem, 0, len(cmd.Items))
	lines := make([]pricing.Line, 0, len(cmd.Items))
	requested := make(map[string]int)
	var productOrder []string

	for _, line := range cmd.Items {
		if line.Quantity <= 0 {
			return nil, inventory.ErrInvalidQuantity
		}
		p, err := h.productSvc.Get(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, line.ProductID)
		}
		items = append(items, order.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  line.Quantity,
			Variant:   line.Variant,
			Image:     p.Image(),
		})
		lines = append(lines, pricing.Line{Price: p.Price, Quantity: line.Quantity})
		if _, seen := requested[p.ID]; !seen {
			productOrder = append(productOrder, p.ID)
		}
		requested[p.ID] += line.Quantity
	}

	stock := make([]stockLine, 0, len(productOrder))
	for _, productID := range productOrder {
		inv, err := h.inventorySvc.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		if inv.Stock < requested[productID] {
			return nil, fmt.Errorf("%w: product %s has %d, requested %d",
				inventory.ErrInsufficientStock, productID, inv.Stock, requested[productID])
		}
		stock = append(stock, stockLine{inv: inv, quantity: requested[productID]})
	}

	totals := h.calculator.Calculate(lines)
	placedEvent, placed, err := order.Prepare(order.PlaceInput{
		CustomerID:      c.ID,
		CustomerEmail:   c.Email,
		CustomerName:    c.Name,
		Items:           items,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  cmd.BillingAddress,
		PaymentMethod:   cmd.PaymentMethod,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		ShippingCost:    totals.Shipping,
		Discount:        decimal.Zero,
		Notes:           cmd.Notes,
		IdempotencyKey:  cmd.IdempotencyKey,
	}, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	batch := make([]store.PendingEvent, 0, len(stock)+2)
	for _, s := range stock {
		ev, err := inventory.PrepareDecrement(s.inv, placed.OrderID, s.quantity)
		if err != nil {
			return nil, err
		}
		batch = append(batch, ev)
	}
	batch = append(batch, placedEvent, customer.PrepareOrderAppended(c, placed.OrderID, placed.OrderNumber))

	stored, err := h.eventStore.AppendBatch(ctx, batch)
	if err != nil {
		return nil, err
	}

	o := &order.Order{ID: placed.OrderID}
	if err := aggregate.Commit(ctx, h.eventStore, o, order.AggregateType, stored...); err != nil {
		return nil, err
	}

	metrics.OrdersPlaced.WithLabelValues(string(o.PaymentMethod)).Inc()
	logging.FromCtx(ctx).Info("order placed",
		"order_id", o.ID,
		"order_number", o.OrderNumber,
		"customer_id", o.CustomerID,
		"total", o.Total.String(),
	)
	return o, nil
}

// UpdateOrderStatus applies an admin status change. Cancelling returns the
// order's items to stock in the same batch.
func (h *Handler) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatus) (*order.Order, error) {
	o, err := h.orderSvc.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	changed, err := order.PrepareStatusChange(o, cmd.Status, cmd.TrackingNumber, cmd.Reason)
	if err != nil {
		return nil, err
	}
	batch := []store.PendingEvent{changed}

	if cmd.Status == order.StatusCancelled {
		restock := make(map[string]int)
		var productOrder []string
		for _, item := range o.Items {
			if _, seen := restock[item.ProductID]; !seen {
				productOrder = append(productOrder, item.ProductID)
			}
			restock[item.ProductID] += item.Quantity
		}
		for _, productID := range productOrder {
			batch = append(batch, inventory.PrepareRestore(productID, o.ID, restock[productID]))
		}
	}

	stored, err := h.eventStore.AppendBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := aggregate.Commit(ctx, h.eventStore, o, order.AggregateType, stored...); err != nil {
		return nil, err
	}

	logging.FromCtx(ctx).Info("order status changed", "order_id", o.ID, "status", o.Status)
	return o, nil
}
