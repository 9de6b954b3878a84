package main

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAppAnswersOK(t *testing.T) {
	app := newApp(options{}, zap.NewNop())

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAppFailEvery(t *testing.T) {
	app := newApp(options{failEvery: 3}, zap.NewNop())

	var codes []int
	for i := 0; i < 6; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, []int{200, 200, 500, 200, 200, 500}, codes)
}

func TestAppDelay(t *testing.T) {
	app := newApp(options{delay: 20 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestAppUnknownRoute(t *testing.T) {
	app := newApp(options{}, zap.NewNop())

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRunRejectsBadFlags(t *testing.T) {
	assert.Error(t, run([]string{"--port", "0"}))
	assert.Error(t, run([]string{"--delay", "-1s"}))
	assert.Error(t, run([]string{"--bogus"}))
}
