package autofix_test

import (
	"context"

	"github.com/stevekinney/silvan-sub003/pkg/autofix"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
	"github.com/stretchr/testify/mock"
)

type mockPlanner struct{ mock.Mock }

func (m *mockPlanner) GeneratePlan(ctx context.Context, failures []domain.VerificationResult) (autofix.Plan, error) {
	args := m.Called(ctx, failures)
	return args.Get(0).(autofix.Plan), args.Error(1)
}

type mockExecutor struct{ mock.Mock }

func (m *mockExecutor) ExecutePlan(ctx context.Context, plan autofix.Plan) (string, error) {
	args := m.Called(ctx, plan)
	return args.String(0), args.Error(1)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Verify(ctx context.Context) (domain.VerificationReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.VerificationReport), args.Error(1)
}

type mockDiff struct{ mock.Mock }

func (m *mockDiff) DiffStat(ctx context.Context) (domain.DiffStat, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.DiffStat), args.Error(1)
}
