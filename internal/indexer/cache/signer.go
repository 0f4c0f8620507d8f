package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Link actions carried inside a signed proxy token.
const (
	ActionDownload  = "download"
	ActionBlackhole = "blackhole"
)

const tokenLifetime = 7 * 24 * time.Hour

// ProxyLink is the verified payload of a proxy token.
type ProxyLink struct {
	Indexer  string
	Action   string
	Link     string
	Filename string
}

type linkClaims struct {
	jwt.RegisteredClaims
	Indexer  string `json:"idx"`
	Action   string `json:"act"`
	Link     string `json:"lnk"`
	Filename string `json:"fn"`
}

// LinkSigner mints and verifies the tokens embedded in proxy links. The
// original tracker link travels inside the token, so the proxy endpoint
// never accepts an arbitrary caller-supplied URL.
type LinkSigner struct {
	secret []byte
}

func NewLinkSigner(secret []byte) *LinkSigner {
	return &LinkSigner{secret: secret}
}

func (s *LinkSigner) Sign(indexerID, action, link, filename string) (string, error) {
	now := time.Now()
	claims := linkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
		Indexer:  indexerID,
		Action:   action,
		Link:     link,
		Filename: filename,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *LinkSigner) Verify(token string) (*ProxyLink, error) {
	var claims linkClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid proxy token")
	}
	if claims.Link == "" {
		return nil, errors.New("proxy token has no link")
	}
	return &ProxyLink{
		Indexer:  claims.Indexer,
		Action:   claims.Action,
		Link:     claims.Link,
		Filename: claims.Filename,
	}, nil
}
