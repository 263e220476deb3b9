package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bankid-service/internal/bankid"
	"bankid-service/internal/logger"
	"bankid-service/internal/session"
)

const (
	// DefaultSigningText is shown in the BankID app when the caller
	// does not provide consent text of its own.
	DefaultSigningText = "Jag bekräftar min identitet för att slutföra beställningen."

	// HintSessionConflict replaces the vendor's "cancelled" hint when
	// the cancellation arrives too fast to be a human action.
	HintSessionConflict = "sessionConflict"

	// ConflictRetryAfter is the backoff hint (seconds) returned with a
	// session-conflict response.
	ConflictRetryAfter = 180

	signRetries           = 2
	signRetryDelay        = 2 * time.Second
	sessionConflictWindow = 5 * time.Second
)

var (
	// ErrValidation means required input was missing or malformed.
	ErrValidation = errors.New("verify: personal number is required")

	// ErrSessionConflict means the vendor already holds an active
	// transaction for this identity and retries were exhausted.
	ErrSessionConflict = errors.New("verify: a signing session is already in progress")

	// ErrNoSession means the request carried no usable session cookie.
	ErrNoSession = errors.New("verify: no active session")

	// ErrSessionExpired means the session token verified but its
	// lifetime has passed.
	ErrSessionExpired = errors.New("verify: session expired")

	// ErrIdentityMismatch means the vendor completed the transaction
	// for a different identity than the session was created for.
	ErrIdentityMismatch = errors.New("verify: completing identity does not match session")
)

// VendorClient is the surface of the signing API this service needs.
type VendorClient interface {
	Sign(ctx context.Context, endUserIP, personalNumber, userVisibleData string) (bankid.SignResult, error)
	CollectStatus(ctx context.Context, orderRef string) (bankid.CollectResult, error)
	CollectQR(ctx context.Context, orderRef string) (string, error)
}

// Recorder persists completed verifications. Recording is best-effort;
// the service logs and continues on failure.
type Recorder interface {
	Record(ctx context.Context, orderRef, personalNumber string, completedAt time.Time) error
}

// Service orchestrates the verification session lifecycle: initiate
// (with resume and conflict retry), collect polling, and the
// resumability probe.
type Service struct {
	vendor  VendorClient
	tokens  *session.Manager
	tracker *Tracker
	records Recorder // nil disables persistence

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(
	vendor VendorClient,
	tokens *session.Manager,
	tracker *Tracker,
	records Recorder,
) *Service {
	return &Service{
		vendor:  vendor,
		tokens:  tokens,
		tracker: tracker,
		records: records,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetSleep replaces the retry delay. Intended for tests.
func (s *Service) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	s.sleep = sleep
}

// InitiateResult is what the initiate endpoint returns to the client,
// plus the token the handler attaches as a cookie.
type InitiateResult struct {
	AutoStartToken string
	QRImageURL     string
	Resumed        bool

	// Token is empty when an existing session was resumed; the client
	// already holds the cookie.
	Token string
}

// Initiate starts a verification transaction for personalNumber, or
// resumes a still-pending one carried by priorToken.
func (s *Service) Initiate(
	ctx context.Context,
	endUserIP string,
	personalNumber string,
	signingText string,
	priorToken string,
) (InitiateResult, error) {
	if personalNumber == "" {
		return InitiateResult{}, ErrValidation
	}
	if signingText == "" {
		signingText = DefaultSigningText
	}

	if s.tracker.Active(personalNumber) {
		// Advisory only. The vendor decides real conflicts.
		logger.Warn("initiation already in flight for identity", nil)
	}
	release := s.tracker.Begin(personalNumber)
	defer release()

	if res, ok := s.tryResume(ctx, personalNumber, priorToken); ok {
		return res, nil
	}

	signRes, err := s.signWithRetry(ctx, endUserIP, personalNumber, signingText)
	if err != nil {
		return InitiateResult{}, err
	}

	qr, err := s.vendor.CollectQR(ctx, signRes.OrderRef)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("fetch qr: %w", err)
	}

	token, _, err := s.tokens.Issue(
		signRes.OrderRef,
		signRes.AutoStartToken,
		personalNumber,
	)
	if err != nil {
		return InitiateResult{}, fmt.Errorf("issue session token: %w", err)
	}

	return InitiateResult{
		AutoStartToken: signRes.AutoStartToken,
		QRImageURL:     qr,
		Token:          token,
	}, nil
}

// tryResume returns a resumed result when priorToken carries a
// still-pending transaction for the same identity. Any failure along
// the way falls through to a fresh sign.
func (s *Service) tryResume(
	ctx context.Context,
	personalNumber string,
	priorToken string,
) (InitiateResult, bool) {
	if priorToken == "" {
		return InitiateResult{}, false
	}

	sess, err := s.tokens.Verify(priorToken)
	if err != nil || sess.PersonalNumber != personalNumber {
		return InitiateResult{}, false
	}

	status, err := s.vendor.CollectStatus(ctx, sess.OrderRef)
	if err != nil || status.Status != bankid.StatusPending {
		return InitiateResult{}, false
	}

	qr, err := s.vendor.CollectQR(ctx, sess.OrderRef)
	if err != nil {
		return InitiateResult{}, false
	}

	return InitiateResult{
		AutoStartToken: sess.AutoStartToken,
		QRImageURL:     qr,
		Resumed:        true,
	}, true
}

// signWithRetry retries vendor-side conflicts a bounded number of
// times. Conflicts at this point are usually the vendor lagging on
// cleanup of a finished transaction, so a short wait often clears them.
func (s *Service) signWithRetry(
	ctx context.Context,
	endUserIP string,
	personalNumber string,
	signingText string,
) (bankid.SignResult, error) {
	var lastErr error
	for attempt := 0; attempt <= signRetries; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, signRetryDelay); err != nil {
				return bankid.SignResult{}, err
			}
		}

		res, err := s.vendor.Sign(ctx, endUserIP, personalNumber, signingText)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, bankid.ErrConflict) {
			return bankid.SignResult{}, fmt.Errorf("vendor sign: %w", err)
		}

		lastErr = err
		logger.Warn("vendor sign conflict, retrying", map[string]any{
			"attempt": attempt + 1,
		})
	}

	return bankid.SignResult{}, fmt.Errorf("%w: %v", ErrSessionConflict, lastErr)
}

// CollectResult is one poll observation for the client.
type CollectResult struct {
	Status     bankid.Status
	HintCode   string
	Completion *bankid.CompletionData

	// ClearCookie is set on every terminal observation.
	ClearCookie bool
}

// Collect reads the transaction state behind the session token. The
// record is one-shot: terminal states invalidate the session.
func (s *Service) Collect(ctx context.Context, token string) (CollectResult, error) {
	if token == "" {
		return CollectResult{}, ErrNoSession
	}

	sess, err := s.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, session.ErrExpired) {
			return CollectResult{}, ErrSessionExpired
		}
		return CollectResult{}, ErrNoSession
	}

	status, err := s.vendor.CollectStatus(ctx, sess.OrderRef)
	if err != nil {
		return CollectResult{}, fmt.Errorf("vendor collect: %w", err)
	}

	switch status.Status {
	case bankid.StatusComplete:
		if status.Completion == nil ||
			status.Completion.User.PersonalNumber != sess.PersonalNumber {
			return CollectResult{}, ErrIdentityMismatch
		}
		s.record(ctx, sess)
		return CollectResult{
			Status:      status.Status,
			HintCode:    status.HintCode,
			Completion:  status.Completion,
			ClearCookie: true,
		}, nil

	case bankid.StatusFailed:
		return CollectResult{
			Status:      status.Status,
			HintCode:    s.adjustHint(status.HintCode, sess),
			ClearCookie: true,
		}, nil

	default:
		return CollectResult{
			Status:   status.Status,
			HintCode: status.HintCode,
		}, nil
	}
}

// adjustHint reinterprets a vendor cancellation arriving under 5s of
// session age as a transaction collision: the BankID app cannot reach a
// human that fast, so the vendor cancelled it itself.
func (s *Service) adjustHint(hint string, sess session.Session) string {
	if hint == bankid.HintCancelled && sess.Age(s.now()) < sessionConflictWindow {
		return HintSessionConflict
	}
	return hint
}

func (s *Service) record(ctx context.Context, sess session.Session) {
	if s.records == nil {
		return
	}
	if err := s.records.Record(ctx, sess.OrderRef, sess.PersonalNumber, s.now()); err != nil {
		logger.Error("failed to record verification", map[string]any{
			"order_ref": sess.OrderRef,
			"error":     err.Error(),
		})
	}
}

// StatusResult answers the resumability probe.
type StatusResult struct {
	HasActiveSession bool
	Status           bankid.Status
	HintCode         string
	QRImageURL       string
	OrderRef         string
	PersonalNumber   string

	ClearCookie bool
}

// pendingHints are the vendor hint codes under which a pending
// transaction is still worth resuming.
var pendingHints = map[string]bool{
	"":                     true,
	bankid.HintOutstanding: true,
	bankid.HintNoClient:    true,
	bankid.HintStarted:     true,
	bankid.HintUserSign:    true,
}

// Status reports whether a resumable session exists and, when it does,
// the live QR payload so a reloaded page can redisplay it. A QR fetch
// failure is treated as expiry.
func (s *Service) Status(ctx context.Context, token string) (StatusResult, error) {
	if token == "" {
		return StatusResult{}, nil
	}

	sess, err := s.tokens.Verify(token)
	if err != nil {
		return StatusResult{ClearCookie: true}, nil
	}

	status, err := s.vendor.CollectStatus(ctx, sess.OrderRef)
	if err != nil {
		return StatusResult{}, fmt.Errorf("vendor collect: %w", err)
	}

	if status.Status != bankid.StatusPending || !pendingHints[status.HintCode] {
		return StatusResult{
			Status:      status.Status,
			HintCode:    status.HintCode,
			ClearCookie: true,
		}, nil
	}

	qr, err := s.vendor.CollectQR(ctx, sess.OrderRef)
	if err != nil {
		return StatusResult{
			Status:      status.Status,
			HintCode:    status.HintCode,
			ClearCookie: true,
		}, nil
	}

	return StatusResult{
		HasActiveSession: true,
		Status:           status.Status,
		HintCode:         status.HintCode,
		QRImageURL:       qr,
		OrderRef:         sess.OrderRef,
		PersonalNumber:   sess.PersonalNumber,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
