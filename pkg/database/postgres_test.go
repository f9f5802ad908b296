package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-admission-api/pkg/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host: "db", Port: 5432, User: "admission", Password: "p@ss word",
		Name: "course_admission", SSLMode: "disable",
	})

	assert.Equal(t, "postgres://admission:p%40ss%20word@db:5432/course_admission?sslmode=disable", dsn)
}

func TestWaitReadyReturnsOnFirstSuccessfulPing(t *testing.T) {
	calls := 0
	err := waitReady(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWaitReadyStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitReady(ctx, func(context.Context) error { return errors.New("connection refused") })

	assert.Error(t, err)
}
