package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Claims binds a token to a game. For players the subject is the participant ID.
type Claims struct {
	jwt.RegisteredClaims
	GameID   string `json:"gid"`
	Role     Role   `json:"role"`
	Nickname string `json:"nick,omitempty"`
}

type Config struct {
	Secret string
	// TTL of issued tokens, zero means tokens do not expire.
	TTL time.Duration
	Now func() time.Time
}

// Issuer signs and verifies the capability tokens handed to hosts and players.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(c Config) *Issuer {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Issuer{
		key: []byte(c.Secret),
		ttl: c.TTL,
		now: now,
	}
}

// IssueHost returns the token that authorizes mutations of the game.
func (i *Issuer) IssueHost(gameID string) (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered("host:" + gameID),
		GameID:           gameID,
		Role:             RoleHost,
	})
}

// IssuePlayer returns the session token identifying a participant.
func (i *Issuer) IssuePlayer(p domain.Participant) (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered(p.ParticipantID),
		GameID:           p.GameID,
		Role:             RolePlayer,
		Nickname:         p.Nickname,
	})
}

func (i *Issuer) registered(subject string) jwt.RegisteredClaims {
	now := i.now()
	rc := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}

	if i.ttl > 0 {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}

	return rc
}

func (i *Issuer) sign(c Claims) (string, error) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}

	return s, nil
}

// Parse verifies the token signature and expiry.
func (i *Issuer) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing token"))
	}

	c := new(Claims)
	_, err := jwt.ParseWithClaims(token, c, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err),
		)
	}

	return c, nil
}

// AuthorizeHost checks that token was issued to the host of the game.
func (i *Issuer) AuthorizeHost(token, gameID string) error {
	c, err := i.Parse(token)
	if err != nil {
		return err
	}

	if c.Role != RoleHost || c.GameID != gameID {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("only the host can change game %s", gameID))
	}

	return nil
}

// AuthorizePlayer checks that token was issued to a participant and returns its claims.
func (i *Issuer) AuthorizePlayer(token string) (*Claims, error) {
	c, err := i.Parse(token)
	if err != nil {
		return nil, err
	}

	if c.Role != RolePlayer || c.Subject == "" {
		return nil, errors.New(errors.CodePermissionDenied, errors.WithMessagef("not a participant token"))
	}

	return c, nil
}
