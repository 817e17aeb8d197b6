package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	minManualWait   = 30 * time.Second
	manualWaitStep  = 15 * time.Second
	formWaitTimeout = 10 * time.Second

	emailSelector    = `input[type="email"]`
	passwordSelector = `input[type="password"]`
	submitSelector   = `button[type="submit"], .button.primary`
	aliveScript      = `1`
)

var (
	// ErrNoLoginMethod is returned when neither session reuse nor credentials are configured.
	ErrNoLoginMethod = errors.New("no login method available")
	// ErrLoginFailed is returned when the account page does not show a signed-in state.
	ErrLoginFailed = errors.New("login failed")

	loggedInIndicators = []string{
		"account settings",
		"sign out",
		"subscription",
		"billing",
		"manage subscription",
	}
	challengeIndicators = []string{
		"captcha",
		"recaptcha",
		"verification",
		"two-factor",
		"2fa",
		"verify your identity",
	}
)

// Login describes how to authenticate against the publication.
type Login struct {
	BaseURL    string
	UseSession bool
	ManualWait time.Duration
	Email      string
	Password   string
	// OnChallenge is invoked when a CAPTCHA or 2FA page appears after the
	// credential form; it should block until the user has completed it.
	OnChallenge func(ctx context.Context) error
}

// Login opens the sign-in page and either waits for a manual login or fills
// the credential form.
func (t *Transport) Login(ctx context.Context, l Login) error {
	signIn := strings.TrimRight(l.BaseURL, "/") + "/sign-in"
	t.logger.Info("Opening sign-in page", zap.String("url", signIn))
	if _, err := t.Get(ctx, signIn); err != nil {
		return fmt.Errorf("open sign-in: %w", err)
	}

	switch {
	case l.UseSession:
		return t.waitForManualLogin(ctx, l.ManualWait)
	case l.Email != "" && l.Password != "":
		return t.automatedLogin(ctx, l)
	default:
		return ErrNoLoginMethod
	}
}

func (t *Transport) waitForManualLogin(ctx context.Context, wait time.Duration) error {
	if wait < minManualWait {
		wait = minManualWait
	}
	t.logger.Warn("Manual login required; log in using the browser window",
		zap.Duration("wait", wait))

	for remaining := wait; remaining > 0; {
		step := min(manualWaitStep, remaining)
		t.logger.Info("Waiting for manual login", zap.Duration("remaining", remaining))
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		remaining -= step
		if !t.alive(ctx) {
			return fmt.Errorf("%w: browser session closed during login wait", ErrLoginFailed)
		}
	}
	t.logger.Info("Proceeding after manual login window")
	return nil
}

func (t *Transport) automatedLogin(ctx context.Context, l Login) error {
	t.mu.Lock()
	err := t.run(ctx, formWaitTimeout+t.cfg.Settle,
		chromedp.WaitVisible(emailSelector, chromedp.ByQuery),
		chromedp.Clear(emailSelector, chromedp.ByQuery),
		chromedp.SendKeys(emailSelector, l.Email, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(t.cfg.Settle),
	)
	if err == nil {
		err = t.run(ctx, formWaitTimeout+2*t.cfg.Settle,
			chromedp.WaitVisible(passwordSelector, chromedp.ByQuery),
			chromedp.Clear(passwordSelector, chromedp.ByQuery),
			chromedp.SendKeys(passwordSelector, l.Password, chromedp.ByQuery),
			chromedp.Click(submitSelector, chromedp.ByQuery, chromedp.NodeVisible),
			chromedp.Sleep(2*t.cfg.Settle),
		)
	}
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("fill login form: %w", err)
	}

	t.mu.Lock()
	source, _, err := t.pageSource(ctx)
	t.mu.Unlock()
	if err == nil && isChallenge(source) && l.OnChallenge != nil {
		t.logger.Warn("CAPTCHA or 2FA detected; complete it in the browser window")
		if err := l.OnChallenge(ctx); err != nil {
			return fmt.Errorf("await challenge: %w", err)
		}
	}

	account := strings.TrimRight(l.BaseURL, "/") + "/account"
	page, err := t.Get(ctx, account)
	if err != nil {
		return fmt.Errorf("open account page: %w", err)
	}
	if !isLoggedIn(page) {
		return ErrLoginFailed
	}
	t.logger.Info("Automated login successful")
	return nil
}

func (t *Transport) alive(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	var one int
	return t.run(ctx, 5*time.Second, chromedp.Evaluate(aliveScript, &one)) == nil
}

func isLoggedIn(source string) bool {
	return containsAny(source, loggedInIndicators)
}

func isChallenge(source string) bool {
	return containsAny(source, challengeIndicators)
}
