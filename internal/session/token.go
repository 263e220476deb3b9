package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TTL is the hard lifetime of a verification session.
	TTL = 10 * time.Minute

	minSecretLen = 32
)

var (
	// ErrInvalid is returned when a token fails signature or shape
	// verification. Treated the same as no session.
	ErrInvalid = errors.New("session: invalid token")

	// ErrExpired is returned when a token verifies but its lifetime
	// has passed.
	ErrExpired = errors.New("session: token expired")
)

// Session is the state of one verification transaction. It never lives
// server-side; it travels inside the signed cookie.
type Session struct {
	OrderRef       string
	AutoStartToken string
	PersonalNumber string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Age reports how long the session has existed at the given instant.
func (s Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

type claims struct {
	jwt.RegisteredClaims
	OrderRef       string `json:"order_ref"`
	AutoStartToken string `json:"auto_start_token"`
	PersonalNumber string `json:"personal_number"`
	CreatedAtMs    int64  `json:"created_at"`
}

// Manager issues and verifies the signed session tokens carried by the
// bankid-session cookie.
type Manager struct {
	secret []byte
	now    func() time.Time
}

func NewManager(secret []byte) (*Manager, error) {
	if len(secret) < minSecretLen {
		return nil, errors.New("session: signing secret too short")
	}
	return &Manager{
		secret: secret,
		now:    time.Now,
	}, nil
}

// SetClock replaces the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Issue signs a fresh session for the given transaction.
func (m *Manager) Issue(orderRef, autoStartToken, personalNumber string) (string, Session, error) {
	now := m.now()
	sess := Session{
		OrderRef:       orderRef,
		AutoStartToken: autoStartToken,
		PersonalNumber: personalNumber,
		CreatedAt:      now,
		ExpiresAt:      now.Add(TTL),
	}

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		OrderRef:       orderRef,
		AutoStartToken: autoStartToken,
		PersonalNumber: personalNumber,
		CreatedAtMs:    now.UnixMilli(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", Session{}, err
	}
	return token, sess, nil
}

// Verify checks signature and expiry and returns the embedded session.
// Expiry is reported as ErrExpired, every other failure as ErrInvalid.
func (m *Manager) Verify(tokenString string) (Session, error) {
	if tokenString == "" {
		return Session{}, ErrInvalid
	}

	var c claims
	token, err := jwt.ParseWithClaims(
		tokenString,
		&c,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalid
			}
			return m.secret, nil
		},
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Session{}, ErrExpired
		}
		return Session{}, ErrInvalid
	}
	if !token.Valid || c.ExpiresAt == nil || c.OrderRef == "" || c.PersonalNumber == "" {
		return Session{}, ErrInvalid
	}

	createdAt := time.UnixMilli(c.CreatedAtMs)
	return Session{
		OrderRef:       c.OrderRef,
		AutoStartToken: c.AutoStartToken,
		PersonalNumber: c.PersonalNumber,
		CreatedAt:      createdAt,
		ExpiresAt:      c.ExpiresAt.Time,
	}, nil
}
