// Package mocks provides gomock implementations of the service-layer ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	scorer := mocks.NewMockMetricScorer(ctrl)
//	scorer.EXPECT().Score(gomock.Any(), gomock.Any()).Return(result, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=metric_scorer_mock.go github.com/target/evalorch/internal/core MetricScorer
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=security_runner_mock.go github.com/target/evalorch/internal/core SecurityRunner
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=result_archiver_mock.go github.com/target/evalorch/internal/core ResultArchiver

// SubmissionLock backs the dedup policies; JobEventPublisher the Redis job events.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=submission_lock_mock.go github.com/target/evalorch/internal/core SubmissionLock
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_event_publisher_mock.go github.com/target/evalorch/internal/core JobEventPublisher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=snapshot_store_mock.go github.com/target/evalorch/internal/core SnapshotStore
