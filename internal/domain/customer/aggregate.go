package customer

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/domain/aggregate"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/google/uuid"
)

const AggregateType = "Customer"

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrInvalidName        = errors.New("name is required")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return len(email) <= 254 && emailPattern.MatchString(email)
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Customer struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	OrderIDs     []string  `json:"order_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"`
}

func (c *Customer) GetID() string   { return c.ID }
func (c *Customer) GetVersion() int { return c.Version }
func (c *Customer) IsAdmin() bool   { return c.Role == RoleAdmin }

func (c *Customer) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventCustomerRegistered:
		var e CustomerRegistered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		c.ID = e.CustomerID
		c.Email = e.Email
		c.PasswordHash = e.PasswordHash
		c.Name = e.Name
		c.Phone = e.Phone
		c.Role = e.Role
		c.CreatedAt = e.RegisteredAt
		c.UpdatedAt = e.RegisteredAt
	case EventCustomerProfileUpdated:
		var e CustomerProfileUpdated
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		c.Name = e.Name
		c.Phone = e.Phone
		c.UpdatedAt = e.UpdatedAt
	case EventCustomerPasswordChanged:
		var e CustomerPasswordChanged
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		c.PasswordHash = e.PasswordHash
		c.UpdatedAt = e.ChangedAt
	case EventOrderAppended:
		var e CustomerOrderAppended
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		c.OrderIDs = append(c.OrderIDs, e.OrderID)
	}
	c.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Customer, error) {
	return s.register(ctx, in, RoleCustomer)
}

func (s *Service) RegisterAdmin(ctx context.Context, in RegisterInput) (*Customer, error) {
	return s.register(ctx, in, RoleAdmin)
}

func (s *Service) register(ctx context.Context, in RegisterInput, role string) (*Customer, error) {
	email := NormalizeEmail(in.Email)
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	event := CustomerRegistered{
		CustomerID:   uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		RegisteredAt: time.Now().UTC(),
	}
	stored, err := s.eventStore.Append(ctx, event.CustomerID, AggregateType, EventCustomerRegistered, event)
	if err != nil {
		return nil, err
	}

	c := &Customer{}
	if err := aggregate.Commit(ctx, s.eventStore, c, AggregateType, *stored); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, customerID string) (*Customer, error) {
	c, found, err := aggregate.Load(ctx, s.eventStore, customerID, func() *Customer { return &Customer{} })
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrCustomerNotFound
	}
	return c, nil
}

func (s *Service) UpdateProfile(ctx context.Context, customerID, name, phone string) (*Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}

	event := CustomerProfileUpdated{
		CustomerID: customerID,
		Name:       name,
		Phone:      strings.TrimSpace(phone),
		UpdatedAt:  time.Now().UTC(),
	}
	stored, err := s.eventStore.Append(ctx, customerID, AggregateType, EventCustomerProfileUpdated, event)
	if err != nil {
		return nil, err
	}
	if err := aggregate.Commit(ctx, s.eventStore, c, AggregateType, *stored); err != nil {
		return nil, err
	}
	return c, nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *Service) ChangePassword(ctx context.Context, customerID, current, next string) error {
	c, err := s.Get(ctx, customerID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, c.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}

	event := CustomerPasswordChanged{
		CustomerID:   customerID,
		PasswordHash: hash,
		ChangedAt:    time.Now().UTC(),
	}
	_, err = s.eventStore.Append(ctx, customerID, AggregateType, EventCustomerPasswordChanged, event)
	return err
}

func (s *Service) RecordLogin(ctx context.Context, customerID, sessionID, ipAddress, userAgent string) error {
	event := CustomerLoggedIn{
		CustomerID: customerID,
		SessionID:  sessionID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		LoggedAt:   time.Now().UTC(),
	}
	_, err := s.eventStore.Append(ctx, customerID, AggregateType, EventCustomerLoggedIn, event)
	return err
}

func (s *Service) RecordLogout(ctx context.Context, customerID, sessionID string) error {
	event := CustomerLoggedOut{
		CustomerID: customerID,
		SessionID:  sessionID,
		LoggedAt:   time.Now().UTC(),
	}
	_, err := s.eventStore.Append(ctx, customerID, AggregateType, EventCustomerLoggedOut, event)
	return err
}

// PrepareOrderAppended builds the order link event for an order batch.
func PrepareOrderAppended(c *Customer, orderID, orderNumber string) store.PendingEvent {
	return store.PendingEvent{
		AggregateID:   c.ID,
		AggregateType: AggregateType,
		EventType:     EventOrderAppended,
		Data: CustomerOrderAppended{
			CustomerID:  c.ID,
			OrderID:     orderID,
			OrderNumber: orderNumber,
			AppendedAt:  time.Now().UTC(),
		},
		ExpectedVersion: c.Version,
	}
}
