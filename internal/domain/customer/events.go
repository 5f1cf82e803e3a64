package customer

import "time"

const (
	EventCustomerRegistered      = "CustomerRegistered"
	EventCustomerProfileUpdated  = "CustomerProfileUpdated"
	EventCustomerPasswordChanged = "CustomerPasswordChanged"
	EventCustomerLoggedIn        = "CustomerLoggedIn"
	EventCustomerLoggedOut       = "CustomerLoggedOut"
	EventOrderAppended           = "CustomerOrderAppended"
)

type CustomerRegistered struct {
	CustomerID   string    `json:"customer_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role"`
	RegisteredAt time.Time `json:"registered_at"`
}

type CustomerProfileUpdated struct {
	CustomerID string    `json:"customer_id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CustomerPasswordChanged struct {
	CustomerID   string    `json:"customer_id"`
	PasswordHash string    `json:"password_hash"`
	ChangedAt    time.Time `json:"changed_at"`
}

type CustomerLoggedIn struct {
	CustomerID string    `json:"customer_id"`
	SessionID  string    `json:"session_id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	LoggedAt   time.Time `json:"logged_at"`
}

type CustomerLoggedOut struct {
	CustomerID string    `json:"customer_id"`
	SessionID  string    `json:"session_id"`
	LoggedAt   time.Time `json:"logged_at"`
}

// CustomerOrderAppended links a placed order to its customer. It is written
// in the same batch as the OrderPlaced event.
type CustomerOrderAppended struct {
	CustomerID  string    `json:"customer_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	AppendedAt  time.Time `json:"appended_at"`
}
