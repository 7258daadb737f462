package shelterclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("X-Internal-API-Key"))
		switch r.URL.Path {
		case "/api/v1/shelters/1", "/api/v1/shelters/1/pets/5":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":1}`))
		case "/api/v1/shelters/2":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key-1")
	ctx := context.Background()

	ok, err := c.ShelterExists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.PetExists(ctx, 1, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ShelterExists(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.ShelterExists(ctx, 2)
	assert.Error(t, err)
}

func TestClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient("", "").ShelterExists(context.Background(), 1)
	assert.Error(t, err)
}
