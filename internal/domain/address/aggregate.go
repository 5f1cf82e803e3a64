package address

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/domain/aggregate"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "AddressBook"

var (
	ErrAddressNotFound = errors.New("address not found")
	ErrInvalidAddress  = errors.New("invalid address")
)

// FieldError reports the first missing required field of an address.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("address %s is required", e.Field)
}

func (e *FieldError) Is(target error) bool { return target == ErrInvalidAddress }

type Address struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"isDefault"`
}

// Input is the editable part of an address, already normalized.
type Input struct {
	Title      string
	FullName   string
	Phone      string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  bool
}

func (in Input) validate() error {
	required := []struct{ field, value string }{
		{"fullName", in.FullName},
		{"phone", in.Phone},
		{"street", in.Street},
		{"city", in.City},
		{"country", in.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &FieldError{Field: r.field}
		}
	}
	return nil
}

// Snapshot validates the input and returns it as a standalone address, as
// copied onto an order.
func (in Input) Snapshot() (Address, error) {
	if err := in.validate(); err != nil {
		return Address{}, err
	}
	return in.toAddress("", false), nil
}

func (in Input) toAddress(id string, isDefault bool) Address {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Address"
	}
	return Address{
		ID:         id,
		Title:      title,
		FullName:   strings.TrimSpace(in.FullName),
		Phone:      strings.TrimSpace(in.Phone),
		Street:     strings.TrimSpace(in.Street),
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.TrimSpace(in.Country),
		IsDefault:  isDefault,
	}
}

// Book holds every address of one customer. At most one address is the
// default, and a non-empty book always has one.
type Book struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Addresses  []Address `json:"addresses"`
	Version    int       `json:"version"`
}

func (b *Book) GetID() string   { return b.ID }
func (b *Book) GetVersion() int { return b.Version }

func (b *Book) Find(addressID string) (*Address, bool) {
	for i := range b.Addresses {
		if b.Addresses[i].ID == addressID {
			a := b.Addresses[i]
			return &a, true
		}
	}
	return nil, false
}

func (b *Book) Default() (*Address, bool) {
	for i := range b.Addresses {
		if b.Addresses[i].IsDefault {
			a := b.Addresses[i]
			return &a, true
		}
	}
	return nil, false
}

func (b *Book) setDefault(addressID string) {
	for i := range b.Addresses {
		b.Addresses[i].IsDefault = b.Addresses[i].ID == addressID
	}
}

func (b *Book) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventAddressAdded:
		var e AddressAdded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		b.ID = e.BookID
		b.CustomerID = e.CustomerID
		b.Addresses = append(b.Addresses, e.Address)
		if e.Address.IsDefault {
			b.setDefault(e.Address.ID)
		}
	case EventAddressUpdated:
		var e AddressUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		for i := range b.Addresses {
			if b.Addresses[i].ID == e.Address.ID {
				b.Addresses[i] = e.Address
			}
		}
		if e.Address.IsDefault {
			b.setDefault(e.Address.ID)
		}
	case EventAddressRemoved:
		var e AddressRemoved
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		kept := b.Addresses[:0]
		for _, a := range b.Addresses {
			if a.ID != e.AddressID {
				kept = append(kept, a)
			}
		}
		b.Addresses = kept
		if e.PromotedID != "" {
			b.setDefault(e.PromotedID)
		}
	case EventDefaultAddressSet:
		var e DefaultAddressSet
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		b.setDefault(e.AddressID)
	}
	b.Version = event.Version
	return nil
}

// GetBookID returns the stream id of a customer's address book.
func GetBookID(customerID string) string {
	return "addresses-" + customerID
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

func (s *Service) Get(ctx context.Context, customerID string) (*Book, error) {
	bookID := GetBookID(customerID)
	b, _, err := aggregate.Load(ctx, s.eventStore, bookID, func() *Book {
		return &Book{ID: bookID, CustomerID: customerID}
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Find returns one address of the customer.
func (s *Service) Find(ctx context.Context, customerID, addressID string) (*Address, error) {
	b, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	a, ok := b.Find(addressID)
	if !ok {
		return nil, ErrAddressNotFound
	}
	return a, nil
}

// Add stores a new address. The first address of a book becomes the default.
func (s *Service) Add(ctx context.Context, customerID string, in Input) (*Address, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	b, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	a := in.toAddress(uuid.New().String(), in.IsDefault || len(b.Addresses) == 0)
	event := AddressAdded{
		BookID:     b.ID,
		CustomerID: customerID,
		Address:    a,
		AddedAt:    time.Now().UTC(),
	}
	if err := s.append(ctx, b, EventAddressAdded, event); err != nil {
		return nil, err
	}
	return &a, nil
}

// Update replaces an address. IsDefault=false leaves the current default
// flag as it is; a default is moved with SetDefault.
func (s *Service) Update(ctx context.Context, customerID, addressID string, in Input) (*Address, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	b, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	existing, ok := b.Find(addressID)
	if !ok {
		return nil, ErrAddressNotFound
	}

	a := in.toAddress(addressID, in.IsDefault || existing.IsDefault)
	event := AddressUpdated{
		BookID:    b.ID,
		Address:   a,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.append(ctx, b, EventAddressUpdated, event); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Service) Remove(ctx context.Context, customerID, addressID string) error {
	b, err := s.Get(ctx, customerID)
	if err != nil {
		return err
	}
	removed, ok := b.Find(addressID)
	if !ok {
		return ErrAddressNotFound
	}

	event := AddressRemoved{
		BookID:    b.ID,
		AddressID: addressID,
		RemovedAt: time.Now().UTC(),
	}
	if removed.IsDefault {
		for _, a := range b.Addresses {
			if a.ID != addressID {
				event.PromotedID = a.ID
				break
			}
		}
	}
	return s.append(ctx, b, EventAddressRemoved, event)
}

func (s *Service) SetDefault(ctx context.Context, customerID, addressID string) error {
	b, err := s.Get(ctx, customerID)
	if err != nil {
		return err
	}
	if _, ok := b.Find(addressID); !ok {
		return ErrAddressNotFound
	}

	event := DefaultAddressSet{
		BookID:    b.ID,
		AddressID: addressID,
		SetAt:     time.Now().UTC(),
	}
	return s.append(ctx, b, EventDefaultAddressSet, event)
}

func (s *Service) append(ctx context.Context, b *Book, eventType string, data any) error {
	stored, err := s.eventStore.Append(ctx, b.ID, AggregateType, eventType, data)
	if err != nil {
		return err
	}
	return aggregate.Commit(ctx, s.eventStore, b, AggregateType, *stored)
}
