package delivery

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestCredentialManager_UsesStoredFreshToken(t *testing.T) {
	store := &memoryStore{tok: &oauth2.Token{AccessToken: "stored", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)}}
	ref := &countingRefresher{}
	m := NewCredentialManager(store, ref, time.Minute, quietLogger())

	tok, err := m.AccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "stored", tok)
	assert.Zero(t, ref.count())
}

func TestCredentialManager_RefreshesOnceUnderConcurrency(t *testing.T) {
	store := &memoryStore{tok: &oauth2.Token{RefreshToken: "r"}}
	ref := &countingRefresher{delay: 20 * time.Millisecond}
	m := NewCredentialManager(store, ref, time.Minute, quietLogger())

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.AccessToken(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ref.count())
	for _, tok := range tokens {
		assert.Equal(t, "fresh-r", tok)
	}
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "r", store.tok.RefreshToken)
}

func TestCredentialManager_InvalidateForcesRefresh(t *testing.T) {
	store := &memoryStore{tok: &oauth2.Token{RefreshToken: "r"}}
	ref := &countingRefresher{}
	m := NewCredentialManager(store, ref, time.Minute, quietLogger())
	ctx := context.Background()

	_, err := m.AccessToken(ctx)
	require.NoError(t, err)
	m.Invalidate()
	_, err = m.AccessToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, ref.count())
}

func TestCredentialManager_NoStoredCredential(t *testing.T) {
	m := NewCredentialManager(&memoryStore{}, &countingRefresher{}, time.Minute, quietLogger())

	_, err := m.AccessToken(context.Background())

	assert.ErrorIs(t, err, ErrReauthorizationRequired)
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, ClassFatal, Classify(err))
}

func TestCredentialManager_InvalidGrantRequiresReauthorization(t *testing.T) {
	store := &memoryStore{tok: &oauth2.Token{RefreshToken: "revoked"}}
	ref := &countingRefresher{err: &oauth2.RetrieveError{
		Response:  &http.Response{StatusCode: http.StatusBadRequest},
		ErrorCode: "invalid_grant",
	}}
	m := NewCredentialManager(store, ref, time.Minute, quietLogger())
	ctx := context.Background()

	_, err := m.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrReauthorizationRequired)
	assert.Equal(t, 1, store.cleared)

	_, err = m.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Equal(t, 1, ref.count())
}

func TestCredentialManager_RefreshServerErrorIsRetryable(t *testing.T) {
	store := &memoryStore{tok: &oauth2.Token{RefreshToken: "r"}}
	ref := &countingRefresher{err: &oauth2.RetrieveError{
		Response: &http.Response{StatusCode: http.StatusServiceUnavailable},
	}}
	m := NewCredentialManager(store, ref, time.Minute, quietLogger())

	_, err := m.AccessToken(context.Background())

	require.Error(t, err)
	assert.Equal(t, ClassRetryable, Classify(err))
}

func TestCredentialManager_RefreshServerErrorKeepsStore(t *testing.T) {
	store := &memoryStore{tok: &oauth2.Token{RefreshToken: "r"}}
	ref := &countingRefresher{err: &oauth2.RetrieveError{
		Response: &http.Response{StatusCode: http.StatusBadGateway},
	}}
	m := NewCredentialManager(store, ref, time.Minute, quietLogger())

	_, err := m.AccessToken(context.Background())

	require.Error(t, err)
	assert.Zero(t, store.cleared)
	assert.Equal(t, "r", store.tok.RefreshToken)
}

func TestCredentialManager_Authorize(t *testing.T) {
	store := &memoryStore{}
	ref := &countingRefresher{}
	m := NewCredentialManager(store, ref, time.Minute, quietLogger())
	ctx := context.Background()

	require.Error(t, m.Authorize(ctx, ""))
	require.NoError(t, m.Authorize(ctx, "new"))
	tok, err := m.AccessToken(ctx)

	require.NoError(t, err)
	assert.Equal(t, "fresh-new", tok)
}
