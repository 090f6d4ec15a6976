// Package mocks provides mock implementations for testing the intranet auth core.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the ports interfaces. The mocks are generated using go:generate directives
// and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockUserRepository(ctrl)
//	mockRepo.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(user, nil)
//
// Hand-written doubles for the same ports live in internal/mocks/auth; they
// cover the common cases without codegen.
package mocks

// Generate mock for SessionStore interface from internal/ports.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=session_store_mock.go github.com/alumniverein/intranet-api/internal/ports SessionStore

// Generate mock for AuthProvider interface from internal/ports.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=auth_provider_mock.go github.com/alumniverein/intranet-api/internal/ports AuthProvider

// Generate mock for DirectoryClient interface from internal/ports.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=directory_client_mock.go github.com/alumniverein/intranet-api/internal/ports DirectoryClient

// Generate mock for UserRepository interface from internal/ports.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=user_repository_mock.go github.com/alumniverein/intranet-api/internal/ports UserRepository

// Generate mock for AuditSink interface from internal/ports.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=audit_sink_mock.go github.com/alumniverein/intranet-api/internal/ports AuditSink
