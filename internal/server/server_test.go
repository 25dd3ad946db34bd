package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	jwttoken "kycgate/internal/jwt_token"
	"kycgate/internal/platform/config"
	"kycgate/internal/verification/engine"
	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
	"kycgate/pkg/testutil"
)

const adminToken = "adjudicator-secret"

type ServerSuite struct {
	suite.Suite
	cfg     config.Server
	srv     *Server
	handler http.Handler
	stub    *engine.Stub
	subject id.SubjectID
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	s.Require().NoError(err)

	s.cfg = config.Server{
		Addr:           ":0",
		AdminTokenHash: string(hash),
		JWT:            config.JWTConfig{SigningKey: "test-key", Issuer: "kycgate", Audience: "kycgate-api", TTL: time.Hour},
		Engine:         config.EngineConfig{Timeout: time.Second, FailureThreshold: 5, Cooldown: time.Second},
		RateLimit:      config.RateLimitConfig{PublicPerMinute: 3, SubjectPerMinute: 100},
	}
	s.stub = engine.NewStub(models.StatusVerified)
	s.srv, err = New(context.Background(), s.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithEngine(s.stub))
	s.Require().NoError(err)
	s.T().Cleanup(s.srv.Close)
	s.handler = s.srv.Handler()

	s.subject = id.SubjectID(uuid.New())
	_, err = s.srv.SeedSubjects(context.Background(),
		strings.NewReader(`[{"id":"`+s.subject.String()+`","name":"Ada","email":"ada@example.com"}]`))
	s.Require().NoError(err)
}

func (s *ServerSuite) token() string {
	tok, err := jwttoken.NewJWTService(s.cfg.JWT.SigningKey, s.cfg.JWT.Issuer, s.cfg.JWT.Audience).
		GenerateAccessToken(s.subject, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *ServerSuite) bearer(req *http.Request, tok string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func (s *ServerSuite) TestHealthAndMetrics() {
	rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "status", "ok")

	rr = testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(s.T(), rr)
	s.Contains(rr.Body.String(), "go_goroutines")
}

func (s *ServerSuite) TestSubjectRoutesRequireBearer() {
	rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/verification/history"))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	rr = testutil.DoRequest(s.handler,
		s.bearer(testutil.NewRequest(s.T(), http.MethodGet, "/verification/history"), s.token()))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *ServerSuite) TestAdjudicatorRoutesRequireAdminToken() {
	rr := testutil.DoRequest(s.handler, testutil.NewRequest(s.T(), http.MethodGet, "/verification/pending"))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	rr = testutil.DoRequest(s.handler,
		s.bearer(testutil.NewRequest(s.T(), http.MethodGet, "/verification/pending"), s.token()))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/verification/pending")
	req.Header.Set("X-Admin-Token", adminToken)
	rr = testutil.DoRequest(s.handler, req)
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *ServerSuite) TestRevokedTokenIsRejected() {
	tok := s.token()

	rr := testutil.DoRequest(s.handler,
		s.bearer(testutil.NewRequest(s.T(), http.MethodPost, "/auth/revoke"), tok))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = testutil.DoRequest(s.handler,
		s.bearer(testutil.NewRequest(s.T(), http.MethodGet, "/verification/current-status"), tok))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *ServerSuite) TestInitialRouteIsRateLimitedPerIP() {
	path := "/verification/initial/" + s.subject.String()
	for range s.cfg.RateLimit.PublicPerMinute {
		rr := testutil.DoRequest(s.handler,
			testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{"selfiePhoto": "ref"}))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	}

	rr := testutil.DoRequest(s.handler,
		testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{"selfiePhoto": "ref"}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusTooManyRequests, "rate_limit_exceeded")
}

func (s *ServerSuite) TestRotatingForwardedForDoesNotResetBudget() {
	path := "/verification/initial/" + s.subject.String()
	codes := make([]int, 0, s.cfg.RateLimit.PublicPerMinute+1)
	for i := range s.cfg.RateLimit.PublicPerMinute + 1 {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]string{"selfiePhoto": "ref"})
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		codes = append(codes, testutil.DoRequest(s.handler, req).Code)
	}
	s.Equal(http.StatusTooManyRequests, codes[len(codes)-1])
}

func (s *ServerSuite) TestInvalidTrustedProxyFailsStartup() {
	cfg := s.cfg
	cfg.RateLimit.TrustedProxies = []string{"not-an-ip"}
	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.ErrorContains(err, "RATE_LIMIT_TRUSTED_PROXIES")
}

func (s *ServerSuite) TestAdjudicatorRoutesAbsentWithoutHash() {
	cfg := s.cfg
	cfg.AdminTokenHash = ""
	srv, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	defer srv.Close()

	req := testutil.NewRequest(s.T(), http.MethodGet, "/verification/pending")
	req.Header.Set("X-Admin-Token", adminToken)
	rr := testutil.DoRequest(srv.Handler(), req)
	s.NotEqual(http.StatusOK, rr.Code)
}
