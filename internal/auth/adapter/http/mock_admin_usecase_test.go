package http_test

import (
	"context"

	"github.com/uc-cdis/metadata-service-sub001/internal/auth/domain/model"
	"github.com/uc-cdis/metadata-service-sub001/internal/auth/usecase"

	"github.com/stretchr/testify/mock"
)

// mockAdminUsecase is a shared mock type for the AdminUsecaseInterface
type mockAdminUsecase struct {
	mock.Mock
}

func (m *mockAdminUsecase) AuthenticateBasic(ctx context.Context, username, password string) (*model.Admin, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Admin), args.Error(1)
}

func (m *mockAdminUsecase) AuthenticateToken(ctx context.Context, tokenString string) (*model.Admin, error) {
	args := m.Called(ctx, tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Admin), args.Error(1)
}

func (m *mockAdminUsecase) IssueToken(ctx context.Context, admin *model.Admin) (*usecase.TokenResponse, error) {
	args := m.Called(ctx, admin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.TokenResponse), args.Error(1)
}

var _ usecase.AdminUsecaseInterface = (*mockAdminUsecase)(nil)
