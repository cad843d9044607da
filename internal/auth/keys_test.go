package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func keySetJSON(t *testing.T, keys map[string]*rsa.PublicKey) []byte {
	t.Helper()
	pems := make(map[string]string, len(keys))
	for kid, key := range keys {
		der, err := x509.MarshalPKIXPublicKey(key)
		require.NoError(t, err)
		pems[kid] = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	}
	raw, err := json.Marshal(pems)
	require.NoError(t, err)
	return raw
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchPublicKeys_FromURL(t *testing.T) {
	key := mustRSAKey(t)
	body := keySetJSON(t, map[string]*rsa.PublicKey{"k1": &key.PublicKey})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/certs" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	keys, err := FetchPublicKeys(context.Background(), srv.Client(), srv.URL+"/certs")
	require.NoError(t, err)
	require.True(t, keys["k1"].Equal(&key.PublicKey))

	_, err = FetchPublicKeys(context.Background(), srv.Client(), srv.URL+"/broken")
	require.ErrorContains(t, err, "status 500")

	keys, err = FetchPublicKeys(context.Background(), nil, string(body))
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestReloadKeys_AcceptsRotatedKey(t *testing.T) {
	oldKey := mustRSAKey(t)
	newKey := mustRSAKey(t)
	v := newVerifier(Config{PublicKeys: map[string]*rsa.PublicKey{"old": &oldKey.PublicKey}})
	rotated := signRS256(t, newKey, "new", validClaims())

	_, err := v.Verify(context.Background(), rotated)
	require.ErrorIs(t, err, ErrUnauthorized)

	ok := v.reloadKeys(context.Background(), func(context.Context) (map[string]*rsa.PublicKey, error) {
		return map[string]*rsa.PublicKey{"new": &newKey.PublicKey}, nil
	}, quietLogger())
	require.True(t, ok)

	id, err := v.Verify(context.Background(), rotated)
	require.NoError(t, err)
	require.Equal(t, "user-123", id.UID)
}

func TestReloadKeys_KeepsKeysOnFailure(t *testing.T) {
	key := mustRSAKey(t)
	v := newVerifier(Config{PublicKeys: map[string]*rsa.PublicKey{"k1": &key.PublicKey}})
	token := signRS256(t, key, "k1", validClaims())

	require.False(t, v.reloadKeys(context.Background(), func(context.Context) (map[string]*rsa.PublicKey, error) {
		return nil, errors.New("endpoint down")
	}, quietLogger()))
	require.False(t, v.reloadKeys(context.Background(), func(context.Context) (map[string]*rsa.PublicKey, error) {
		return map[string]*rsa.PublicKey{}, nil
	}, quietLogger()))

	_, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
}

func TestRefreshKeys_RunsUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	key := mustRSAKey(t)
	v := newVerifier(Config{})
	var loads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := v.RefreshKeys(ctx, 5*time.Millisecond, func(context.Context) (map[string]*rsa.PublicKey, error) {
		loads.Add(1)
		return map[string]*rsa.PublicKey{"k1": &key.PublicKey}, nil
	}, quietLogger())

	require.Eventually(t, func() bool { return loads.Load() >= 2 }, time.Second, 5*time.Millisecond)
	_, err := v.Verify(context.Background(), signRS256(t, key, "k1", validClaims()))
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh loop did not stop")
	}
}
