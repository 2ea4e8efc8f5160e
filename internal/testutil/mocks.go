package testutil

import (
	"context"

	"github.com/dgellow/resource-desk/internal/provider"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of provider.Client. AuthHandle and DB are
// returned from Auth and Database; leave them nil to simulate a provider
// without those services.
type MockClient struct {
	mock.Mock
	AuthHandle *MockAuth
	DB         *MockDatabase
}

var _ provider.Client = (*MockClient)(nil)

// NewMockClient creates a client with fresh auth and database mocks
func NewMockClient() *MockClient {
	return &MockClient{AuthHandle: &MockAuth{}, DB: &MockDatabase{}}
}

// Factory returns a provider.Factory that always yields c
func (c *MockClient) Factory() provider.Factory {
	return func(context.Context, provider.Options) (provider.Client, error) {
		return c, nil
	}
}

func (c *MockClient) Auth() provider.Auth {
	if c.AuthHandle == nil {
		return nil
	}
	return c.AuthHandle
}

func (c *MockClient) Database() provider.Database {
	if c.DB == nil {
		return nil
	}
	return c.DB
}

func (c *MockClient) TempFileURLs(ctx context.Context, files []provider.FileRequest) ([]provider.TempFile, error) {
	args := c.Called(ctx, files)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.TempFile), args.Error(1)
}

func (c *MockClient) Close() error {
	// Close is called from cleanup paths most tests do not care about
	if !c.hasExpectation("Close") {
		return nil
	}
	return c.Called().Error(0)
}

func (c *MockClient) hasExpectation(method string) bool {
	for _, call := range c.ExpectedCalls {
		if call.Method == method {
			return true
		}
	}
	return false
}

type MockAuth struct {
	mock.Mock
}

var _ provider.Auth = (*MockAuth)(nil)

func (m *MockAuth) SignInWithEmail(ctx context.Context, email, password string) error {
	return m.Called(ctx, email, password).Error(0)
}

func (m *MockAuth) SignIn(ctx context.Context, username, password string) error {
	return m.Called(ctx, username, password).Error(0)
}

func (m *MockAuth) SignOut(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockAuth) GetLoginState(ctx context.Context) (*provider.LoginState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.LoginState), args.Error(1)
}

func (m *MockAuth) SignUp(ctx context.Context, email, password string) error {
	return m.Called(ctx, email, password).Error(0)
}

type MockDatabase struct {
	mock.Mock
}

var _ provider.Database = (*MockDatabase)(nil)

func (m *MockDatabase) Collection(name string) provider.Query {
	return m.Called(name).Get(0).(provider.Query)
}

type MockQuery struct {
	mock.Mock
}

var _ provider.Query = (*MockQuery)(nil)

func (m *MockQuery) Limit(n int) provider.Query {
	return m.Called(n).Get(0).(provider.Query)
}

func (m *MockQuery) Get(ctx context.Context) ([]provider.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.Document), args.Error(1)
}
