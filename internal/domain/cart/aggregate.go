package cart

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/domain/aggregate"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/shopspring/decimal"
)

const AggregateType = "Cart"

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidProduct  = errors.New("product id is required")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrLineNotFound    = errors.New("cart line not found")
)

// Item is one cart line. Price is the add-to-cart price and is only used
// for the checkout estimate.
type Item struct {
	Key      string            `json:"key"`
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Price    decimal.Decimal   `json:"price"`
	Quantity int               `json:"quantity"`
	Image    string            `json:"image,omitempty"`
	Variants map[string]string `json:"variants,omitempty"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// VariantLabel renders the variants as "color: red, size: M".
func (i Item) VariantLabel() string {
	if len(i.Variants) == 0 {
		return ""
	}
	keys := sortedKeys(i.Variants)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+i.Variants[k])
	}
	return strings.Join(parts, ", ")
}

type Cart struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Items      []Item `json:"items"`
	Version    int    `json:"version"`
}

func (c *Cart) GetID() string   { return c.ID }
func (c *Cart) GetVersion() int { return c.Version }

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// ItemCount is the number of units across all lines.
func (c *Cart) ItemCount() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) line(key string) int {
	for i, item := range c.Items {
		if item.Key == key {
			return i
		}
	}
	return -1
}

func (c *Cart) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventItemAdded:
		var data ItemAddedToCart
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.ID = data.CartID
		c.CustomerID = data.CustomerID
		if i := c.line(data.LineKey); i >= 0 {
			c.Items[i].Quantity += data.Quantity
		} else {
			c.Items = append(c.Items, Item{
				Key:      data.LineKey,
				ID:       data.ProductID,
				Name:     data.Name,
				Price:    data.Price,
				Quantity: data.Quantity,
				Image:    data.Image,
				Variants: data.Variants,
			})
		}
	case EventItemQuantityChanged:
		var data CartItemQuantityChanged
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if i := c.line(data.LineKey); i >= 0 {
			c.Items[i].Quantity = data.Quantity
		}
	case EventItemRemoved:
		var data ItemRemovedFromCart
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if i := c.line(data.LineKey); i >= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		}
	case EventCartCleared:
		c.Items = nil
	case EventItemsCheckedOut:
		var data ItemsCheckedOut
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		kept := c.Items[:0]
		for _, item := range c.Items {
			item.Quantity -= data.Lines[item.Key]
			if item.Quantity > 0 {
				kept = append(kept, item)
			}
		}
		c.Items = kept
	}
	c.Version = event.Version
	return nil
}

// GetCartID returns the stream id of a customer's cart.
func GetCartID(customerID string) string {
	return "cart-" + customerID
}

// LineKey identifies a cart line: the same product with a different
// variant combination is a separate line.
func LineKey(productID string, variants map[string]string) string {
	if len(variants) == 0 {
		return productID
	}
	keys := sortedKeys(variants)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+variants[k])
	}
	return productID + "|" + strings.Join(parts, ",")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Get returns the customer's cart; a customer who never added anything has
// an empty one.
func (s *Service) Get(ctx context.Context, customerID string) (*Cart, error) {
	cartID := GetCartID(customerID)
	c, _, err := aggregate.Load(ctx, s.eventStore, cartID, func() *Cart {
		return &Cart{ID: cartID, CustomerID: customerID}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

type AddItemInput struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
	Image     string
	Variants  map[string]string
}

func (s *Service) AddItem(ctx context.Context, customerID string, in AddItemInput) (*Cart, error) {
	if strings.TrimSpace(in.ProductID) == "" {
		return nil, ErrInvalidProduct
	}
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if in.Price.IsNegative() {
		return nil, ErrInvalidPrice
	}

	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	event := ItemAddedToCart{
		CartID:     c.ID,
		CustomerID: customerID,
		LineKey:    LineKey(in.ProductID, in.Variants),
		ProductID:  in.ProductID,
		Name:       in.Name,
		Price:      in.Price,
		Quantity:   in.Quantity,
		Image:      in.Image,
		Variants:   in.Variants,
		AddedAt:    time.Now().UTC(),
	}
	return s.append(ctx, c, EventItemAdded, event)
}

// SetQuantity replaces the quantity of one line.
func (s *Service) SetQuantity(ctx context.Context, customerID, lineKey string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.line(lineKey) < 0 {
		return nil, ErrLineNotFound
	}

	event := CartItemQuantityChanged{
		CartID:     c.ID,
		CustomerID: customerID,
		LineKey:    lineKey,
		Quantity:   quantity,
		ChangedAt:  time.Now().UTC(),
	}
	return s.append(ctx, c, EventItemQuantityChanged, event)
}

func (s *Service) RemoveItem(ctx context.Context, customerID, lineKey string) (*Cart, error) {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if c.line(lineKey) < 0 {
		return nil, ErrLineNotFound
	}

	event := ItemRemovedFromCart{
		CartID:     c.ID,
		CustomerID: customerID,
		LineKey:    lineKey,
		RemovedAt:  time.Now().UTC(),
	}
	return s.append(ctx, c, EventItemRemoved, event)
}

// Clear empties the cart. orderID is set when the cart is cleared by a
// successful checkout.
func (s *Service) Clear(ctx context.Context, customerID, orderID string) error {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return err
	}
	if c.IsEmpty() {
		return nil
	}

	event := CartCleared{
		CartID:     c.ID,
		CustomerID: customerID,
		OrderID:    orderID,
		ClearedAt:  time.Now().UTC(),
	}
	_, err = s.append(ctx, c, EventCartCleared, event)
	return err
}

// Lines returns the quantity of every line keyed by line key.
func (c *Cart) Lines() map[string]int {
	lines := make(map[string]int, len(c.Items))
	for _, item := range c.Items {
		lines[item.Key] = item.Quantity
	}
	return lines
}

// CheckOut removes what an order was placed from. Lines and units added
// after the order was placed stay in the cart. A cart holding exactly the
// ordered lines is cleared.
func (s *Service) CheckOut(ctx context.Context, customerID, orderID string, lines map[string]int) (*Cart, error) {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]int, len(lines))
	for _, item := range c.Items {
		if q := min(lines[item.Key], item.Quantity); q > 0 {
			taken[item.Key] = q
		}
	}
	if len(taken) == 0 {
		return c, nil
	}
	if maps.Equal(taken, c.Lines()) {
		event := CartCleared{
			CartID:     c.ID,
			CustomerID: customerID,
			OrderID:    orderID,
			ClearedAt:  time.Now().UTC(),
		}
		return s.append(ctx, c, EventCartCleared, event)
	}

	event := ItemsCheckedOut{
		CartID:       c.ID,
		CustomerID:   customerID,
		OrderID:      orderID,
		Lines:        taken,
		CheckedOutAt: time.Now().UTC(),
	}
	return s.append(ctx, c, EventItemsCheckedOut, event)
}

func (s *Service) append(ctx context.Context, c *Cart, eventType string, data any) (*Cart, error) {
	stored, err := s.eventStore.Append(ctx, c.ID, AggregateType, eventType, data)
	if err != nil {
		return nil, err
	}
	if err := aggregate.Commit(ctx, s.eventStore, c, AggregateType, *stored); err != nil {
		return nil, err
	}
	return c, nil
}
