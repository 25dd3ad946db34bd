package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kycgate/pkg/domain"
	"kycgate/pkg/requestcontext"
	"kycgate/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// requestFrom builds a request arriving from peer ip. The context carries the
// same address, as the metadata middleware would record it.
func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/verification/initial/x", nil)
	req.RemoteAddr = net.JoinHostPort(ip, "41000")
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, ""))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestByIP(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := New(NewInMemoryStore(), logger)
	h := mw.ByIP("initial", Policy{Limit: 2, Window: time.Minute})(okHandler())

	for range 2 {
		rr := testutil.DoRequest(h, requestFrom("203.0.113.7"))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	}

	rr := testutil.DoRequest(h, requestFrom("203.0.113.7"))
	testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limit_exceeded")
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = testutil.DoRequest(h, requestFrom("198.51.100.1"))
	assert.Equal(t, http.StatusOK, rr.Code, "other clients are unaffected")
}

func TestBySubject(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := New(NewInMemoryStore(), logger)
	h := mw.BySubject("subject", Policy{Limit: 1, Window: time.Minute})(okHandler())

	alice := id.SubjectID(uuid.New())
	bob := id.SubjectID(uuid.New())
	withSubject := func(subjectID id.SubjectID) *http.Request {
		req := requestFrom("203.0.113.7")
		return req.WithContext(requestcontext.WithSubjectID(req.Context(), subjectID))
	}

	assert.Equal(t, http.StatusOK, testutil.DoRequest(h, withSubject(alice)).Code)
	assert.Equal(t, http.StatusTooManyRequests, testutil.DoRequest(h, withSubject(alice)).Code)
	assert.Equal(t, http.StatusOK, testutil.DoRequest(h, withSubject(bob)).Code, "same IP, different subject")
}

func TestFailsOpen(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(failingStore{}, logger).ByIP("initial", PerMinute(1))(okHandler())

	rr := testutil.DoRequest(h, requestFrom("203.0.113.7"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(NewInMemoryStore(), logger, WithDisabled(true)).ByIP("initial", PerMinute(0))(okHandler())

	rr := testutil.DoRequest(h, requestFrom("203.0.113.7"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestByIPIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	h := New(NewInMemoryStore(), discardLogger()).ByIP("initial", PerMinute(2))(okHandler())

	admitted := 0
	for i := range 50 {
		req := requestFrom("203.0.113.7")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		if testutil.DoRequest(h, req).Code == http.StatusOK {
			admitted++
		}
	}
	assert.Equal(t, 2, admitted)
}

func TestByIPBehindTrustedProxy(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)
	h := New(NewInMemoryStore(), discardLogger(), WithTrustedProxies(proxies)).
		ByIP("initial", PerMinute(1))(okHandler())

	viaProxy := func(xff string) int {
		req := requestFrom("10.0.0.5")
		req.Header.Set("X-Forwarded-For", xff)
		return testutil.DoRequest(h, req).Code
	}

	assert.Equal(t, http.StatusOK, viaProxy("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, viaProxy("203.0.113.7"))
	assert.Equal(t, http.StatusOK, viaProxy("198.51.100.9"), "distinct clients behind the proxy")
	assert.Equal(t, http.StatusTooManyRequests, viaProxy("192.0.2.77, 203.0.113.7, 10.0.0.3"),
		"client-written entries left of the last untrusted hop are ignored")
}

func TestParseTrustedProxies(t *testing.T) {
	got, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10", "::ffff:192.0.2.11"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.10/32"),
		netip.MustParsePrefix("192.0.2.11/32"),
	}, got)

	for _, bad := range []string{"proxy.internal", "10.0.0.0/99"} {
		_, err := ParseTrustedProxies([]string{bad})
		assert.Error(t, err, bad)
	}
}
