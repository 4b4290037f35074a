package media

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tbourn/go-live-presence/internal/domain"
)

// Client roles accepted by GenerateToken.
const (
	RolePublisher  = "publisher"
	RoleSubscriber = "subscriber"
	RoleModerator  = "moderator"
)

const (
	projectTokenTTL = 5 * time.Minute
	clientTokenTTL  = 24 * time.Hour
)

// ErrInvalidRole is returned for roles outside the provider's set.
var ErrInvalidRole = errors.New("invalid token role")

// TokenOptions configures a client connection token.
type TokenOptions struct {
	Role string
	Data domain.ConnectionData
	TTL  time.Duration
}

// projectToken signs the short-lived JWT used to authenticate REST calls.
func (c *Client) projectToken() (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iss": c.cfg.APIKey,
		"ist": "project",
		"iat": now.Unix(),
		"exp": now.Add(projectTokenTTL).Unix(),
		"jti": uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.APISecret))
}

// GenerateToken signs a client token for sessionID. The connection data is
// echoed back by the provider in connection webhooks, which is how presence
// maps a connection to a registrant and room.
func (c *Client) GenerateToken(sessionID string, opts TokenOptions) (string, error) {
	switch opts.Role {
	case "":
		opts.Role = RolePublisher
	case RolePublisher, RoleSubscriber, RoleModerator:
	default:
		return "", ErrInvalidRole
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = clientTokenTTL
	}
	data, err := json.Marshal(opts.Data)
	if err != nil {
		return "", err
	}

	now := c.now()
	claims := jwt.MapClaims{
		"iss":             c.cfg.APIKey,
		"ist":             "project",
		"iat":             now.Unix(),
		"exp":             now.Add(ttl).Unix(),
		"nonce":           uuid.NewString(),
		"scope":           "session.connect",
		"session_id":      sessionID,
		"role":            opts.Role,
		"connection_data": string(data),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.APISecret))
}
