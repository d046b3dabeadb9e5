package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// tokenPayload is the JSON shape of a secret parameter.
type tokenPayload struct {
	Token string `json:"token"`
}

// Secret resolves a credential: a static value when one is configured,
// otherwise the token stored under a parameter name. A fetched token is
// kept for the life of the process.
type Secret struct {
	static string
	getter Getter
	name   string

	mu  sync.Mutex
	val string
}

// Static wraps an already known value.
func Static(value string) *Secret {
	return &Secret{static: strings.TrimSpace(value)}
}

// FromParameter defers to the parameter store on first use.
func FromParameter(getter Getter, name string) *Secret {
	return &Secret{getter: getter, name: strings.TrimSpace(name)}
}

// Resolve prefers value, then prefix+"/"+key when a getter and prefix are
// available. It returns nil when neither is configured.
func Resolve(value string, getter Getter, prefix, key string) *Secret {
	if strings.TrimSpace(value) != "" {
		return Static(value)
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if getter == nil || prefix == "" {
		return nil
	}
	return FromParameter(getter, prefix+"/"+key)
}

// Value returns the secret. Failed lookups are not cached; the next call
// asks the store again.
func (s *Secret) Value(ctx context.Context) (string, error) {
	if s == nil {
		return "", errors.New("paramstore: secret not configured")
	}
	if s.static != "" {
		return s.static, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.val != "" {
		return s.val, nil
	}
	v, err := fetchToken(ctx, s.getter, s.name)
	if err != nil {
		return "", err
	}
	s.val = v
	return v, nil
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("paramstore: getter is nil")
	}
	if name == "" {
		return "", errors.New("paramstore: secret parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("paramstore: fetch secret: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("paramstore: unmarshal secret %q as JSON: %w", name, err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", fmt.Errorf("paramstore: secret %q is empty", name)
	}
	return tp.Token, nil
}
