package mocks

import (
	"github.com/stretchr/testify/mock"

	"VisualizerPlatform/pkg/health"
	"VisualizerPlatform/pkg/logger"
)

// MockLogger мок для logger.Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Info(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Warn(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) Error(msg string, fields ...logger.Field) {
	m.Called(msg, fields)
}

func (m *MockLogger) With(fields ...logger.Field) logger.Logger {
	args := m.Called(fields)
	if l, ok := args.Get(0).(logger.Logger); ok {
		return l
	}
	return m
}

func (m *MockLogger) Sync() error {
	args := m.Called()
	return args.Error(0)
}

// MockHealthChecker мок для health.HealthChecker
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) Check() *health.HealthStatus {
	args := m.Called()
	return args.Get(0).(*health.HealthStatus)
}

// MockReadinessChecker мок для health.ReadinessChecker
type MockReadinessChecker struct {
	mock.Mock
}

func (m *MockReadinessChecker) Ready() bool {
	args := m.Called()
	return args.Bool(0)
}

var (
	_ logger.Logger           = (*MockLogger)(nil)
	_ health.HealthChecker    = (*MockHealthChecker)(nil)
	_ health.ReadinessChecker = (*MockReadinessChecker)(nil)
)
