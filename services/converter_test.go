package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjixiang/aikb/models"
)

func TestHTTPConverter_Convert(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"markdown": "# Converted",
		})
	}))
	defer server.Close()

	c := NewHTTPConverter(server.URL, time.Second)
	markdown, err := c.Convert(context.Background(), "uploads/doc-1.pdf")

	require.NoError(t, err)
	assert.Equal(t, "# Converted", markdown)
	assert.Equal(t, "/convert", gotPath)
	assert.Equal(t, "uploads/doc-1.pdf", gotBody["source_location"])
}

func TestHTTPConverter_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		handler       http.HandlerFunc
		wantTransient bool
		wantContains  string
	}{
		{
			name: "5xx is transient",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantTransient: true,
			wantContains:  "HTTP 502",
		},
		{
			name: "4xx is permanent",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "unsupported file", http.StatusUnprocessableEntity)
			},
			wantTransient: false,
			wantContains:  "HTTP 422",
		},
		{
			name: "declared failure is permanent",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"detail":  "encrypted pdf",
				})
			},
			wantTransient: false,
			wantContains:  "encrypted pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			c := NewHTTPConverter(server.URL, time.Second)
			_, err := c.Convert(context.Background(), "uploads/doc-1.pdf")

			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, models.IsTransient(err))
			assert.Contains(t, err.Error(), tt.wantContains)
		})
	}
}

func TestHTTPConverter_TransportFailureIsTransient(t *testing.T) {
	// nothing is listening here
	c := NewHTTPConverter("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Convert(context.Background(), "uploads/doc-1.pdf")

	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}
