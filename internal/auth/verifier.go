// Package auth verifies bearer credentials for the administrative endpoints.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Modes.
const (
	ModeOff   = "off"   // every caller is admin
	ModeToken = "token" // static shared admin token
	ModeHMAC  = "hmac"  // HS256 JWT carrying a role claim
)

var (
	ErrUnauthenticated = errors.New("auth: missing or invalid credentials")
	ErrBadMode         = errors.New("auth: unsupported mode")
)

// Principal is the verified caller.
type Principal struct {
	Subject string
	Role    string
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// Verifier validates bearer credentials.
type Verifier struct {
	Mode      string
	Secret    []byte // admin token in token mode, HMAC key in hmac mode
	RoleClaim string
	now       func() time.Time
}

func NewVerifier(mode, secret string) (*Verifier, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = ModeOff
	}
	switch mode {
	case ModeOff:
	case ModeToken, ModeHMAC:
		if secret == "" {
			return nil, fmt.Errorf("auth: %s mode needs a secret", mode)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadMode, mode)
	}
	return &Verifier{Mode: mode, Secret: []byte(secret), RoleClaim: "role", now: time.Now}, nil
}

// Verify checks the raw bearer token.
func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case ModeOff:
		return Principal{Subject: "anonymous", Role: "admin"}, nil
	case ModeToken:
		if token == "" || subtle.ConstantTimeCompare([]byte(token), v.Secret) != 1 {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{Subject: "token", Role: "admin"}, nil
	case ModeHMAC:
		return v.verifyJWT(token)
	default:
		return Principal{}, ErrBadMode
	}
}

// FromHeader extracts and verifies "Authorization: Bearer <token>".
func (v *Verifier) FromHeader(authz string) (Principal, error) {
	tok := ""
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		tok = strings.TrimSpace(authz[7:])
	}
	return v.Verify(tok)
}

func (v *Verifier) verifyJWT(token string) (Principal, error) {
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, fmt.Errorf("%w: malformed JWT", ErrUnauthenticated)
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := decodeSegment(segs[0], &hdr); err != nil {
		return Principal{}, err
	}
	if hdr.Alg != "HS256" {
		return Principal{}, fmt.Errorf("%w: unsupported alg %q", ErrUnauthenticated, hdr.Alg)
	}
	sig, err := base64.RawURLEncoding.DecodeString(segs[2])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: signature encoding", ErrUnauthenticated)
	}
	mac := hmac.New(sha256.New, v.Secret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, fmt.Errorf("%w: bad signature", ErrUnauthenticated)
	}

	var claims map[string]any
	if err := decodeSegment(segs[1], &claims); err != nil {
		return Principal{}, err
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, fmt.Errorf("%w: token expired", ErrUnauthenticated)
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims[v.RoleClaim].(string)
	if role == "" {
		role = "user"
	}
	return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
}

func decodeSegment(seg string, dst any) error {
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		return fmt.Errorf("%w: segment encoding", ErrUnauthenticated)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: segment json", ErrUnauthenticated)
	}
	return nil
}
