package orgo

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Sentinel errors mapped from agent outcomes.
var (
	// ErrProductNotFound means the portal search returned no match for the
	// requested product number.
	ErrProductNotFound = eris.New("orgo: product not found in portal")
	// ErrAuthLost means the portal session was logged out mid-task.
	ErrAuthLost = eris.New("orgo: portal session lost")
)

// Credentials are the portal login used by the desktop agent.
type Credentials struct {
	Username string
	Password string
}

// Session drives the distributor portal through one remote desktop. The
// desktop is an exclusive resource: callers must serialize use, one
// navigation task at a time.
type Session struct {
	client Client
	creds  Credentials
	jobID  string
}

// NewSession binds a session to one job. Downloads land on the desktop
// under Downloads/<job-id>/ so concurrent jobs on other desktops never
// collide on names.
func NewSession(client Client, creds Credentials, jobID string) *Session {
	return &Session{client: client, creds: creds, jobID: jobID}
}

func (s *Session) remoteDir() string {
	return path.Join("Downloads", s.jobID)
}

// Login signs the desktop browser into the portal. Safe to call again after
// ErrAuthLost; the agent closes any stale session first.
func (s *Session) Login(ctx context.Context) error {
	instructions := fmt.Sprintf(`Open the browser and sign into the ESP Plus portal.
1. Navigate to the portal login page. If an old session is open, sign out first.
2. Log in with username %q and the password from the credential field below.
3. Wait for the dashboard to load and confirm you are signed in.
Password: %s
Finish by reporting outcome "ok" when the dashboard is visible, or "auth_lost" with detail if the login is rejected.`,
		s.creds.Username, s.creds.Password)

	result, err := s.client.RunTask(ctx, instructions)
	if err != nil {
		return err
	}
	return s.mapOutcome(result, "login")
}

// DownloadPresentation opens the share URL and saves the presentation PDF,
// returning its bytes.
func (s *Session) DownloadPresentation(ctx context.Context, shareURL string) ([]byte, error) {
	remote := path.Join(s.remoteDir(), "presentation.pdf")
	instructions := fmt.Sprintf(`Open this presentation link in the browser: %s
1. Wait for the presentation to load fully.
2. Use the portal's export or print-to-PDF action to save it as a PDF.
3. Save the file to %s on this machine.
Report outcome "ok" once the file exists, "auth_lost" if the portal asks you to sign in, or "not_found" if the link shows no presentation.`,
		shareURL, remote)

	result, err := s.client.RunTask(ctx, instructions)
	if err != nil {
		return nil, err
	}
	if err := s.mapOutcome(result, "download presentation"); err != nil {
		return nil, err
	}
	return s.client.ExportFile(ctx, remote)
}

// DownloadDistributorReport searches the portal for one product by customer
// product number and saves its distributor report PDF, returning its bytes.
func (s *Session) DownloadDistributorReport(ctx context.Context, cpn string) ([]byte, error) {
	remote := path.Join(s.remoteDir(), reportFileName(cpn))
	instructions := fmt.Sprintf(`In the signed-in portal, find one product and download its Distributor Report.
1. Open the product search and search for product number %q.
2. Open the matching product's detail page.
3. Download the Distributor Report PDF and save it to %s.
Report outcome "ok" once the file exists, "not_found" if the search has no match for this number, or "auth_lost" if the portal asks you to sign in again.`,
		cpn, remote)

	result, err := s.client.RunTask(ctx, instructions)
	if err != nil {
		return nil, err
	}
	if err := s.mapOutcome(result, "download report "+cpn); err != nil {
		return nil, err
	}
	return s.client.ExportFile(ctx, remote)
}

func (s *Session) mapOutcome(result *TaskResult, op string) error {
	switch result.Outcome {
	case OutcomeOK:
		return nil
	case OutcomeNotFound:
		return eris.Wrap(ErrProductNotFound, op)
	case OutcomeAuthLost:
		zap.L().Warn("portal session lost", zap.String("op", op), zap.String("detail", result.Detail))
		return eris.Wrap(ErrAuthLost, op)
	default:
		return eris.Errorf("orgo: %s: unexpected outcome %q: %s", op, result.Outcome, result.Detail)
	}
}

func reportFileName(cpn string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, cpn)
	return "report_" + safe + ".pdf"
}
