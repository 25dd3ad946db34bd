// Package e2e runs the Gherkin features in features/ against an in-process
// kycgate built with in-memory backends.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	jwttoken "kycgate/internal/jwt_token"
	"kycgate/internal/platform/config"
	"kycgate/internal/server"
	"kycgate/internal/verification/engine"
	"kycgate/internal/verification/models"
	id "kycgate/pkg/domain"
)

const adminToken = "e2e-adjudicator"

var jwtConfig = config.JWTConfig{
	SigningKey: "e2e-signing-key",
	Issuer:     "kycgate",
	Audience:   "kycgate-api",
	TTL:        time.Hour,
}

// TestContext holds one scenario's server and the state steps share.
type TestContext struct {
	srv     *server.Server
	handler http.Handler
	engine  *engine.Stub
	tokens  *jwttoken.JWTService

	subjects     map[string]id.SubjectID
	bearer       map[string]string
	lastStatus   int
	lastBody     []byte
	verification string
}

// Reset builds a fresh server for the next scenario.
func (tc *TestContext) Reset(ctx context.Context) error {
	tc.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		return err
	}
	cfg := config.Server{
		Addr:           ":0",
		AdminTokenHash: string(hash),
		JWT:            jwtConfig,
		Engine:         config.EngineConfig{Timeout: 2 * time.Second, FailureThreshold: 5, Cooldown: time.Second},
		RateLimit:      config.RateLimitConfig{Disabled: true},
	}

	tc.engine = engine.NewStub(models.StatusVerified)
	tc.srv, err = server.New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), server.WithEngine(tc.engine))
	if err != nil {
		return err
	}
	tc.handler = tc.srv.Handler()
	tc.tokens = jwttoken.NewJWTService(jwtConfig.SigningKey, jwtConfig.Issuer, jwtConfig.Audience)
	tc.subjects = make(map[string]id.SubjectID)
	tc.bearer = make(map[string]string)
	tc.lastStatus, tc.lastBody, tc.verification = 0, nil, ""
	return nil
}

func (tc *TestContext) Close() {
	if tc.srv != nil {
		tc.srv.Close()
		tc.srv = nil
	}
}

func (tc *TestContext) SetEngineStatus(status string) {
	tc.engine.Status = models.RequestStatus(status)
}

// RegisterSubject seeds a subject and issues it a bearer token.
func (tc *TestContext) RegisterSubject(ctx context.Context, alias string) error {
	subjectID := id.SubjectID(uuid.New())
	seed := fmt.Sprintf(`[{"id":%q,"name":%q,"email":%q}]`, subjectID.String(), alias, strings.ToLower(alias)+"@example.com")
	if _, err := tc.srv.SeedSubjects(ctx, strings.NewReader(seed)); err != nil {
		return err
	}
	token, err := tc.tokens.GenerateAccessToken(subjectID, time.Hour)
	if err != nil {
		return err
	}
	tc.subjects[alias] = subjectID
	tc.bearer[alias] = token
	return nil
}

func (tc *TestContext) SubjectID(alias string) (string, error) {
	subjectID, ok := tc.subjects[alias]
	if !ok {
		return "", fmt.Errorf("subject %q is not registered", alias)
	}
	return subjectID.String(), nil
}

func (tc *TestContext) BearerHeader(alias string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tc.bearer[alias]}
}

func (tc *TestContext) AdminHeader() map[string]string {
	return map[string]string{"X-Admin-Token": adminToken}
}

// Do sends a request and records the response for later assertions.
func (tc *TestContext) Do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	tc.handler.ServeHTTP(rr, req)
	tc.lastStatus = rr.Code
	tc.lastBody = rr.Body.Bytes()
	return nil
}

func (tc *TestContext) LastStatus() int {
	return tc.lastStatus
}

// LastField reads a top-level field of the last JSON object response.
func (tc *TestContext) LastField(field string) (any, error) {
	var obj map[string]any
	if err := json.Unmarshal(tc.lastBody, &obj); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := obj[field]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", field, tc.lastBody)
	}
	return v, nil
}

// LastList decodes the last response as a JSON array of objects.
func (tc *TestContext) LastList() ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(tc.lastBody, &list); err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %s", tc.lastBody)
	}
	return list, nil
}

func (tc *TestContext) VerificationID() string { return tc.verification }
func (tc *TestContext) SetVerificationID(vid string) { tc.verification = vid }
