// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

// mockService fails failTimes times, then runs until canceled.
type mockService struct {
	name       string
	failTimes  int32
	startCount atomic.Int32
}

func newMockService(name string, failTimes int32) *mockService {
	return &mockService{name: name, failTimes: failTimes}
}

func (m *mockService) Serve(ctx context.Context) error {
	if n := m.startCount.Add(1); n <= m.failTimes {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockService) String() string {
	return m.name
}
