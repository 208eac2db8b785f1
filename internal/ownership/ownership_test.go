package ownership

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tickethub/whatsapp-bridge/internal/config"
	"github.com/tickethub/whatsapp-bridge/internal/gateway"
	"github.com/tickethub/whatsapp-bridge/internal/model"
)

type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) GetUser(ctx context.Context, id int64) (*gateway.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.User), args.Error(1)
}

func (m *MockUserDirectory) FindUserByPhone(ctx context.Context, variants []string) (*gateway.User, error) {
	args := m.Called(ctx, variants)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.User), args.Error(1)
}

func (m *MockUserDirectory) FindUserByEmail(ctx context.Context, email string) (*gateway.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.User), args.Error(1)
}

func (m *MockUserDirectory) CreateUser(ctx context.Context, req gateway.CreateUserRequest) (*gateway.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.User), args.Error(1)
}

func testBridge(strict bool) config.Bridge {
	c := &config.Config{BridgeOwnershipStrict: strict}
	return c.Bridge()
}

func TestVerifier_Owns_MappingPhone(t *testing.T) {
	users := new(MockUserDirectory)
	v := NewVerifier(users, testBridge(false))

	m := &model.Mapping{Phone: "4915112345678"}

	assert.True(t, v.Owns(context.Background(), "+49 151 12345678", m, nil))
	users.AssertNotCalled(t, "FindUserByPhone", mock.Anything, mock.Anything)
}

func TestVerifier_Owns_UserPhone(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		users := new(MockUserDirectory)
		v := NewVerifier(users, testBridge(false))

		owner := &gateway.User{ID: 1, Phone: "+49 151 12345678"}
		assert.True(t, v.Owns(context.Background(), "4915112345678", nil, owner))
	})

	t.Run("normalized national format matches", func(t *testing.T) {
		users := new(MockUserDirectory)
		v := NewVerifier(users, testBridge(false))

		// Stored without country code.
		owner := &gateway.User{ID: 1, Phone: "0151 12345678"}
		assert.True(t, v.Owns(context.Background(), "4915112345678", nil, owner))
	})

	t.Run("substring match in lenient mode", func(t *testing.T) {
		users := new(MockUserDirectory)
		v := NewVerifier(users, testBridge(false))

		// Stored with a stray extra digit, still recognizably the same line.
		owner := &gateway.User{ID: 1, Phone: "49151123456789"}
		assert.True(t, v.Owns(context.Background(), "4915112345678", nil, owner))
	})

	t.Run("substring refused in strict mode", func(t *testing.T) {
		users := new(MockUserDirectory)
		users.On("FindUserByPhone", mock.Anything, mock.Anything).
			Return(nil, gateway.ErrUserNotFound)
		v := NewVerifier(users, testBridge(true))

		owner := &gateway.User{ID: 1, Phone: "49151123456789"}
		assert.False(t, v.Owns(context.Background(), "4915112345678", nil, owner))
	})
}

func TestVerifier_Owns_ChannelAddress(t *testing.T) {
	users := new(MockUserDirectory)
	v := NewVerifier(users, testBridge(false))

	owner := &gateway.User{
		ID:    2,
		Email: "whatsapp+4915112345678@tickets.local",
	}
	assert.True(t, v.Owns(context.Background(), "4915112345678", nil, owner))
}

func TestVerifier_Owns_DirectoryFallback(t *testing.T) {
	t.Run("directory confirms owner", func(t *testing.T) {
		users := new(MockUserDirectory)
		users.On("FindUserByPhone", mock.Anything, mock.Anything).
			Return(&gateway.User{ID: 3}, nil)
		v := NewVerifier(users, testBridge(false))

		owner := &gateway.User{ID: 3, Phone: "unrelated"}
		assert.True(t, v.Owns(context.Background(), "4915112345678", nil, owner))
		users.AssertExpectations(t)
	})

	t.Run("directory confirms mapping user", func(t *testing.T) {
		users := new(MockUserDirectory)
		users.On("FindUserByPhone", mock.Anything, mock.Anything).
			Return(&gateway.User{ID: 4}, nil)
		v := NewVerifier(users, testBridge(false))

		uid := int64(4)
		m := &model.Mapping{Phone: "4915100000000", UserID: &uid}
		assert.True(t, v.Owns(context.Background(), "4915112345678", m, nil))
	})

	t.Run("unknown phone is refused", func(t *testing.T) {
		users := new(MockUserDirectory)
		users.On("FindUserByPhone", mock.Anything, mock.Anything).
			Return(nil, gateway.ErrUserNotFound)
		v := NewVerifier(users, testBridge(false))

		owner := &gateway.User{ID: 5, Phone: "unrelated", Email: "max@example.com"}
		assert.False(t, v.Owns(context.Background(), "4915112345678", nil, owner))
	})
}
