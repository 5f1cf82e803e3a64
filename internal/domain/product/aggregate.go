package product

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/domain/aggregate"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateType = "Product"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidName     = errors.New("name is required")
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	IsDeleted   bool            `json:"is_deleted,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

func (p *Product) GetID() string   { return p.ID }
func (p *Product) GetVersion() int { return p.Version }

// Image returns the first image, used as the thumbnail of order lines.
func (p *Product) Image() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

func (p *Product) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventProductCreated:
		var e ProductCreated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.ID = e.ProductID
		p.Name = e.Name
		p.Description = e.Description
		p.Price = e.Price
		p.Images = e.Images
		p.CreatedAt = e.CreatedAt
		p.UpdatedAt = e.CreatedAt
	case EventProductUpdated:
		var e ProductUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.Name = e.Name
		p.Description = e.Description
		p.Price = e.Price
		p.Images = e.Images
		p.UpdatedAt = e.UpdatedAt
	case EventProductDeleted:
		var e ProductDeleted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		p.IsDeleted = true
		p.UpdatedAt = e.DeletedAt
	}
	p.Version = event.Version
	return nil
}

// Details is the editable part of a product.
type Details struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Images      []string
}

func (d Details) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrInvalidName
	}
	if !d.Price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

// Get loads a live product. Deleted products are reported as not found.
func (s *Service) Get(ctx context.Context, productID string) (*Product, error) {
	p, found, err := aggregate.Load(ctx, s.eventStore, productID, func() *Product { return &Product{} })
	if err != nil {
		return nil, err
	}
	if !found || p.IsDeleted {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, d Details) (*Product, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	p := &Product{}
	event := ProductCreated{
		ProductID:   uuid.New().String(),
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Price:       d.Price.Round(2),
		Images:      d.Images,
		CreatedAt:   time.Now().UTC(),
	}

	stored, err := s.eventStore.Append(ctx, event.ProductID, AggregateType, EventProductCreated, event)
	if err != nil {
		return nil, err
	}
	if err := aggregate.Commit(ctx, s.eventStore, p, AggregateType, *stored); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, productID string, d Details) (*Product, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, productID)
	if err != nil {
		return nil, err
	}

	event := ProductUpdated{
		ProductID:   productID,
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Price:       d.Price.Round(2),
		Images:      d.Images,
		UpdatedAt:   time.Now().UTC(),
	}

	stored, err := s.eventStore.Append(ctx, productID, AggregateType, EventProductUpdated, event)
	if err != nil {
		return nil, err
	}
	if err := aggregate.Commit(ctx, s.eventStore, p, AggregateType, *stored); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, productID string) error {
	if _, err := s.Get(ctx, productID); err != nil {
		return err
	}

	event := ProductDeleted{
		ProductID: productID,
		DeletedAt: time.Now().UTC(),
	}
	_, err := s.eventStore.Append(ctx, productID, AggregateType, EventProductDeleted, event)
	return err
}
