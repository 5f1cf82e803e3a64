package address

import "time"

const (
	EventAddressAdded      = "AddressAdded"
	EventAddressUpdated    = "AddressUpdated"
	EventAddressRemoved    = "AddressRemoved"
	EventDefaultAddressSet = "DefaultAddressSet"
)

type AddressAdded struct {
	BookID     string    `json:"book_id"`
	CustomerID string    `json:"customer_id"`
	Address    Address   `json:"address"`
	AddedAt    time.Time `json:"added_at"`
}

type AddressUpdated struct {
	BookID    string    `json:"book_id"`
	Address   Address   `json:"address"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddressRemoved carries the address promoted to default, if the removed
// one was the default.
type AddressRemoved struct {
	BookID     string    `json:"book_id"`
	AddressID  string    `json:"address_id"`
	PromotedID string    `json:"promoted_id,omitempty"`
	RemovedAt  time.Time `json:"removed_at"`
}

type DefaultAddressSet struct {
	BookID    string    `json:"book_id"`
	AddressID string    `json:"address_id"`
	SetAt     time.Time `json:"set_at"`
}
