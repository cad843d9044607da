package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// TokenSource supplies the bearer credential for the inference API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a credential supplied directly through configuration.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", fmt.Errorf("%w: static token is empty", ErrNotConfigured)
	}
	return tok, nil
}

// SecretGetter is satisfied by *paramstore.Client.
type SecretGetter interface {
	GetSecret(ctx context.Context, name, field string) (string, error)
}

// ParamToken resolves the credential from Parameter Store on first use.
// Only successful lookups are cached so a transient SSM failure does not
// poison the process.
type ParamToken struct {
	getter SecretGetter
	name   string
	field  string

	mu    sync.Mutex
	token string
}

// NewParamToken creates a ParamToken reading field from the named parameter.
func NewParamToken(getter SecretGetter, name, field string) (*ParamToken, error) {
	if getter == nil {
		return nil, errors.New("inference: secret getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("inference: token parameter name must not be empty")
	}
	return &ParamToken{getter: getter, name: name, field: field}, nil
}

func (p *ParamToken) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" {
		return p.token, nil
	}
	tok, err := p.getter.GetSecret(ctx, p.name, p.field)
	if err != nil {
		return "", fmt.Errorf("%w: fetch token parameter: %w", ErrNotConfigured, err)
	}
	p.token = tok
	return tok, nil
}

type firstToken []TokenSource

// FirstToken returns a source that tries each source in order and yields the
// first credential found. Nil sources are skipped.
func FirstToken(sources ...TokenSource) TokenSource {
	var chain firstToken
	for _, s := range sources {
		if s != nil {
			chain = append(chain, s)
		}
	}
	return chain
}

func (f firstToken) Token(ctx context.Context) (string, error) {
	var errs []error
	for _, s := range f {
		tok, err := s.Token(ctx)
		if err == nil {
			return tok, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w: no token source configured", ErrNotConfigured)
	}
	return "", fmt.Errorf("%w: %w", ErrNotConfigured, errors.Join(errs...))
}
