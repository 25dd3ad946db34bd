package verification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext is what the verification steps need from the suite.
type TestContext interface {
	SetEngineStatus(status string)
	RegisterSubject(ctx context.Context, alias string) error
	SubjectID(alias string) (string, error)
	BearerHeader(alias string) map[string]string
	AdminHeader() map[string]string
	Do(method, path string, body any, headers map[string]string) error
	LastStatus() int
	LastField(field string) (any, error)
	LastList() ([]map[string]any, error)
	VerificationID() string
	SetVerificationID(vid string)
}

// RegisterSteps registers verification lifecycle step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	ctx.Step(`^the automated engine decides "([^"]*)"$`, steps.engineDecides)
	ctx.Step(`^subject "([^"]*)" is registered$`, steps.registerSubject)

	ctx.Step(`^subject "([^"]*)" submits an initial verification with selfie "([^"]*)"$`, steps.submitInitial)
	ctx.Step(`^subject "([^"]*)" requests re-verification with reason "([^"]*)"$`, steps.requestReverification)
	ctx.Step(`^subject "([^"]*)" requested re-verification with reason "([^"]*)"$`, steps.requestedReverification)
	ctx.Step(`^subject "([^"]*)" submits photo "([^"]*)" for that request$`, steps.submitPhoto)
	ctx.Step(`^subject "([^"]*)" checks the status of that request$`, steps.checkStatus)
	ctx.Step(`^the adjudicator decides "([^"]*)" for that request$`, steps.adjudicate)
	ctx.Step(`^subject "([^"]*)" revokes its token$`, steps.revokeToken)

	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatus)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.responseFieldString)
	ctx.Step(`^the response field "([^"]*)" should be (\d+)$`, steps.responseFieldNumber)
	ctx.Step(`^subject "([^"]*)" should have current status "([^"]*)"$`, steps.currentStatus)
	ctx.Step(`^subject "([^"]*)" should have a last verified time$`, steps.hasLastVerifiedAt)
	ctx.Step(`^the latest request of subject "([^"]*)" should have reason "([^"]*)"$`, steps.latestReason)
	ctx.Step(`^the latest request of subject "([^"]*)" should have (\d+) attempts$`, steps.latestAttempts)
	ctx.Step(`^the latest request of subject "([^"]*)" should have mac address "([^"]*)"$`, steps.latestMacAddress)
	ctx.Step(`^the latest request of subject "([^"]*)" should have status "([^"]*)"$`, steps.latestStatus)
	ctx.Step(`^subject "([^"]*)" should no longer be authenticated$`, steps.notAuthenticated)
}

type verificationSteps struct {
	tc TestContext
}

func (s *verificationSteps) engineDecides(status string) error {
	s.tc.SetEngineStatus(status)
	return nil
}

func (s *verificationSteps) registerSubject(ctx context.Context, alias string) error {
	return s.tc.RegisterSubject(ctx, alias)
}

func (s *verificationSteps) submitInitial(alias, selfie string) error {
	subjectID, err := s.tc.SubjectID(alias)
	if err != nil {
		return err
	}
	return s.tc.Do(http.MethodPost, "/verification/initial/"+subjectID, map[string]string{"selfiePhoto": selfie}, nil)
}

func (s *verificationSteps) requestReverification(alias, reason string) error {
	if err := s.tc.Do(http.MethodPost, "/verification/reverify", map[string]string{"reason": reason}, s.tc.BearerHeader(alias)); err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusCreated {
		return nil
	}
	vid, err := s.tc.LastField("verificationId")
	if err != nil {
		return err
	}
	s.tc.SetVerificationID(fmt.Sprint(vid))
	return nil
}

func (s *verificationSteps) requestedReverification(alias, reason string) error {
	if err := s.requestReverification(alias, reason); err != nil {
		return err
	}
	return s.responseStatus(http.StatusCreated)
}

func (s *verificationSteps) submitPhoto(alias, photo string) error {
	path := "/verification/" + s.tc.VerificationID() + "/photo"
	return s.tc.Do(http.MethodPost, path, map[string]string{"photo": photo}, s.tc.BearerHeader(alias))
}

func (s *verificationSteps) checkStatus(alias string) error {
	return s.tc.Do(http.MethodGet, "/verification/"+s.tc.VerificationID()+"/status", nil, s.tc.BearerHeader(alias))
}

func (s *verificationSteps) adjudicate(decision string) error {
	path := "/verification/" + s.tc.VerificationID() + "/adjudicate"
	return s.tc.Do(http.MethodPost, path, map[string]string{"status": decision}, s.tc.AdminHeader())
}

func (s *verificationSteps) revokeToken(alias string) error {
	return s.tc.Do(http.MethodPost, "/auth/revoke", nil, s.tc.BearerHeader(alias))
}

func (s *verificationSteps) responseStatus(expected int) error {
	if got := s.tc.LastStatus(); got != expected {
		return fmt.Errorf("expected status %d, got %d", expected, got)
	}
	return nil
}

func (s *verificationSteps) responseFieldString(field, expected string) error {
	v, err := s.tc.LastField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("expected %s=%q, got %q", field, expected, got)
	}
	return nil
}

func (s *verificationSteps) responseFieldNumber(field string, expected int) error {
	v, err := s.tc.LastField(field)
	if err != nil {
		return err
	}
	n, ok := v.(float64)
	if !ok || int(n) != expected {
		return fmt.Errorf("expected %s=%d, got %v", field, expected, v)
	}
	return nil
}

func (s *verificationSteps) currentStatus(alias, expected string) error {
	if err := s.tc.Do(http.MethodGet, "/verification/current-status", nil, s.tc.BearerHeader(alias)); err != nil {
		return err
	}
	return s.responseFieldString("verificationStatus", expected)
}

func (s *verificationSteps) hasLastVerifiedAt(alias string) error {
	if err := s.tc.Do(http.MethodGet, "/verification/current-status", nil, s.tc.BearerHeader(alias)); err != nil {
		return err
	}
	v, err := s.tc.LastField("lastVerifiedAt")
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("lastVerifiedAt is not set")
	}
	return nil
}

func (s *verificationSteps) latest(alias string) (map[string]any, error) {
	if err := s.tc.Do(http.MethodGet, "/verification/history", nil, s.tc.BearerHeader(alias)); err != nil {
		return nil, err
	}
	list, err := s.tc.LastList()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("subject %q has no verification requests", alias)
	}
	return list[0], nil
}

func (s *verificationSteps) latestReason(alias, reason string) error {
	req, err := s.latest(alias)
	if err != nil {
		return err
	}
	activity, ok := req["suspiciousActivity"].(map[string]any)
	if !ok {
		return fmt.Errorf("latest request has no suspicious activity")
	}
	if got := fmt.Sprint(activity["reason"]); got != reason {
		return fmt.Errorf("expected reason %q, got %q", reason, got)
	}
	return nil
}

func (s *verificationSteps) latestAttempts(alias string, attempts int) error {
	req, err := s.latest(alias)
	if err != nil {
		return err
	}
	if got, _ := req["verificationAttempts"].(float64); int(got) != attempts {
		return fmt.Errorf("expected %d attempts, got %v", attempts, req["verificationAttempts"])
	}
	return nil
}

func (s *verificationSteps) latestMacAddress(alias, mac string) error {
	req, err := s.latest(alias)
	if err != nil {
		return err
	}
	device, _ := req["deviceInfo"].(map[string]any)
	if got := fmt.Sprint(device["macAddress"]); got != mac {
		return fmt.Errorf("expected macAddress %q, got %q", mac, got)
	}
	return nil
}

func (s *verificationSteps) latestStatus(alias, status string) error {
	req, err := s.latest(alias)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(req["verificationStatus"]); got != status {
		return fmt.Errorf("expected status %q, got %q", status, got)
	}
	return nil
}

func (s *verificationSteps) notAuthenticated(alias string) error {
	if err := s.tc.Do(http.MethodGet, "/verification/current-status", nil, s.tc.BearerHeader(alias)); err != nil {
		return err
	}
	return s.responseStatus(http.StatusUnauthorized)
}
