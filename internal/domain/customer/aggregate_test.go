package customer

import (
	"context"
	"testing"

	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCustomerService() (*Service, *mocks.MockEventStore) {
	eventStore := mocks.NewMockEventStore()
	return NewService(eventStore), eventStore
}

func validInput() RegisterInput {
	return RegisterInput{Email: "Ayse@Example.com", Password: "password123", Name: "Ayşe Yılmaz", Phone: "+90 555 000 00 00"}
}

// ============================================
// Email Validation Tests
// ============================================

func TestIsValidEmail(t *testing.T) {
	valid := []string{"test@example.com", "user.name@domain.org", "user+tag@example.com", "a@b.cd", "test@sub.example.com"}
	invalid := []string{"", "notanemail", "@example.com", "user@", "user@.com", "user@domain", "user@domain.", "user space@example.com"}

	for _, email := range valid {
		assert.True(t, isValidEmail(email), email)
	}
	for _, email := range invalid {
		assert.False(t, isValidEmail(email), email)
	}
}

// ============================================
// Register Tests
// ============================================

func TestService_Register(t *testing.T) {
	service, eventStore := newTestCustomerService()

	c, err := service.Register(context.Background(), validInput())

	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "ayse@example.com", c.Email)
	assert.Equal(t, RoleCustomer, c.Role)
	assert.True(t, auth.CheckPassword("password123", c.PasswordHash))
	require.Len(t, eventStore.AppendCalls, 1)
	assert.Equal(t, EventCustomerRegistered, eventStore.AppendCalls[0].EventType)
}

func TestService_RegisterAdmin(t *testing.T) {
	service, _ := newTestCustomerService()

	c, err := service.RegisterAdmin(context.Background(), validInput())

	require.NoError(t, err)
	assert.True(t, c.IsAdmin())
}

func TestService_Register_Invalid(t *testing.T) {
	service, eventStore := newTestCustomerService()
	ctx := context.Background()

	in := validInput()
	in.Email = "nope"
	_, err := service.Register(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidEmail)

	in = validInput()
	in.Name = " "
	_, err = service.Register(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidName)

	in = validInput()
	in.Password = "short"
	_, err = service.Register(ctx, in)
	assert.ErrorIs(t, err, auth.ErrPasswordTooShort)

	assert.Empty(t, eventStore.AppendCalls)
}

// ============================================
// Profile / Password Tests
// ============================================

func TestService_UpdateProfile(t *testing.T) {
	service, _ := newTestCustomerService()
	ctx := context.Background()
	c, _ := service.Register(ctx, validInput())

	updated, err := service.UpdateProfile(ctx, c.ID, "Ayşe Demir", "")

	require.NoError(t, err)
	assert.Equal(t, "Ayşe Demir", updated.Name)

	_, err = service.UpdateProfile(ctx, "missing", "X", "")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestService_ChangePassword(t *testing.T) {
	service, _ := newTestCustomerService()
	ctx := context.Background()
	c, _ := service.Register(ctx, validInput())

	assert.ErrorIs(t, service.ChangePassword(ctx, c.ID, "wrong-password", "newpassword1"), ErrInvalidCredentials)
	require.NoError(t, service.ChangePassword(ctx, c.ID, "password123", "newpassword1"))

	reloaded, err := service.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword("newpassword1", reloaded.PasswordHash))
}

// ============================================
// Order Link Tests
// ============================================

func TestPrepareOrderAppended(t *testing.T) {
	service, eventStore := newTestCustomerService()
	ctx := context.Background()
	c, _ := service.Register(ctx, validInput())

	ev := PrepareOrderAppended(c, "order-1", "ORD-20250601-ABCDEFGH")
	assert.Equal(t, c.Version, ev.ExpectedVersion)

	_, err := eventStore.AppendBatch(ctx, []store.PendingEvent{ev})
	require.NoError(t, err)

	reloaded, err := service.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"order-1"}, reloaded.OrderIDs)
}
