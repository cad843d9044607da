package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const maxKeySetBytes = 1 << 20

// LoadPublicKeys reads a key set shaped {"<kid>": "<PEM>"}. source is either
// the JSON itself or a path to a file holding it. PEM blocks may be public
// keys or X.509 certificates. An empty source yields no keys.
func LoadPublicKeys(source string) (map[string]*rsa.PublicKey, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	raw := []byte(source)
	if !strings.HasPrefix(source, "{") {
		b, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("auth: read public keys: %w", err)
		}
		raw = b
	}
	return parsePublicKeys(raw)
}

// FetchPublicKeys is LoadPublicKeys that also accepts an http(s) URL, such
// as the securetoken x509 metadata endpoint. client may be nil.
func FetchPublicKeys(ctx context.Context, client *http.Client, source string) (map[string]*rsa.PublicKey, error) {
	source = strings.TrimSpace(source)
	if !isURL(source) {
		return LoadPublicKeys(source)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build key request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch public keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: fetch public keys: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, fmt.Errorf("auth: read public keys: %w", err)
	}
	return parsePublicKeys(raw)
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "http://")
}

func parsePublicKeys(raw []byte) (map[string]*rsa.PublicKey, error) {
	var pems map[string]string
	if err := json.Unmarshal(raw, &pems); err != nil {
		return nil, fmt.Errorf("auth: decode public keys: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("auth: parse key %q: %w", kid, err)
		}
		keys[kid] = key
	}
	return keys, nil
}

// KeyLoader returns the current RS256 key set.
type KeyLoader func(ctx context.Context) (map[string]*rsa.PublicKey, error)

// RefreshKeys reloads the verifier's key set every interval until ctx is
// done. A failed or empty load keeps the previous keys. The returned channel
// closes once the loop has exited.
func (v *JWTVerifier) RefreshKeys(ctx context.Context, every time.Duration, load KeyLoader, logger *slog.Logger) <-chan struct{} {
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				v.reloadKeys(ctx, load, logger)
			}
		}
	}()
	return done
}

func (v *JWTVerifier) reloadKeys(ctx context.Context, load KeyLoader, logger *slog.Logger) bool {
	keys, err := load(ctx)
	if err != nil {
		logger.WarnContext(ctx, "auth: public key refresh failed", slog.String("error", err.Error()))
		return false
	}
	if len(keys) == 0 {
		logger.WarnContext(ctx, "auth: public key refresh returned no keys")
		return false
	}
	v.SetPublicKeys(keys)
	logger.DebugContext(ctx, "auth: public keys refreshed", slog.Int("keys", len(keys)))
	return true
}
