package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	"kycgate/pkg/platform/circuit"
)

func TestParseVerifyResponse(t *testing.T) {
	t.Run("decision with details", func(t *testing.T) {
		res, err := parseVerifyResponse(200, []byte(`{"status":"verified","details":{"score":0.97}}`))
		require.NoError(t, err)
		assert.Equal(t, models.StatusVerified, res.Status)
		assert.JSONEq(t, `{"score":0.97}`, string(res.Details))
		d, ok := res.Decision()
		assert.True(t, ok)
		assert.Equal(t, models.DecisionVerified, d)
	})

	t.Run("pending is inconclusive", func(t *testing.T) {
		res, err := parseVerifyResponse(200, []byte(`{"status":"pending"}`))
		require.NoError(t, err)
		_, ok := res.Decision()
		assert.False(t, ok)
		assert.JSONEq(t, `{}`, string(res.Details))
	})

	t.Run("unknown status is a bad response", func(t *testing.T) {
		_, err := parseVerifyResponse(200, []byte(`{"status":"approved"}`))
		assert.Equal(t, ErrorBadResponse, CategoryOf(err))
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseVerifyResponse(200, []byte(`{nope`))
		assert.Equal(t, ErrorBadResponse, CategoryOf(err))
	})

	t.Run("server errors are unavailability", func(t *testing.T) {
		_, err := parseVerifyResponse(503, nil)
		assert.Equal(t, ErrorUnavailable, CategoryOf(err))
	})

	t.Run("gateway timeout is a timeout", func(t *testing.T) {
		_, err := parseVerifyResponse(504, nil)
		assert.True(t, IsTimeout(err))
	})
}

func TestHTTPClientEvaluate(t *testing.T) {
	verificationID := id.VerificationID(uuid.New())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/verify", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, verificationID.String(), body["verification_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"suspicious","details":{"reason":"liveness"}}`))
	}))
	defer srv.Close()

	res, err := NewHTTPClient(srv.URL + "/").Evaluate(context.Background(), verificationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuspicious, res.Status)
}

func TestGuardedTimesOutSlowEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := NewGuarded(NewHTTPClient(srv.URL), WithTimeout(50*time.Millisecond), WithLogger(discardLogger()))
	_, err := g.Evaluate(context.Background(), id.VerificationID(uuid.New()))
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestGuardedOpensBreakerAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := circuit.New("engine", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	g := NewGuarded(NewHTTPClient(srv.URL), WithBreaker(breaker), WithLogger(discardLogger()))

	for range 2 {
		_, err := g.Evaluate(context.Background(), id.VerificationID(uuid.New()))
		assert.Equal(t, ErrorUnavailable, CategoryOf(err))
	}
	assert.True(t, breaker.IsOpen())

	_, err := g.Evaluate(context.Background(), id.VerificationID(uuid.New()))
	assert.Equal(t, ErrorCircuitOpen, CategoryOf(err))
	assert.Equal(t, int32(2), calls.Load(), "open breaker must not reach the engine")
}

func TestStub(t *testing.T) {
	res, err := NewStub(models.StatusVerified).Evaluate(context.Background(), id.VerificationID(uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, res.Status)

	stub := &Stub{Err: NewError(ErrorUnavailable, "down", nil)}
	_, err = stub.Evaluate(context.Background(), id.VerificationID(uuid.New()))
	assert.Equal(t, ErrorUnavailable, CategoryOf(err))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
