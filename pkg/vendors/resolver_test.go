package vendors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestLookup(t *testing.T) {
	t.Run("maps the vendor record onto a partner request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/vendors/2500241256", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"vendor_number": "2500241256",
				"name": "Relief International",
				"short_name": "RI",
				"partner_type": "civil_society_organization",
				"cso_type": "international",
				"risk_rating": "low"
			}`))
		}))
		defer server.Close()

		resolver := NewHTTPResolver(server.URL, noopLogger())
		partner, err := resolver.Lookup(context.Background(), "2500241256")
		require.NoError(t, err)
		assert.Equal(t, "2500241256", partner.VendorNumber)
		assert.Equal(t, "Relief International", partner.Name)
		assert.Equal(t, "RI", partner.ShortName)
		assert.Equal(t, "civil_society_organization", partner.PartnerType)
		require.NotNil(t, partner.CSOType)
		assert.Equal(t, "international", *partner.CSOType)
		assert.Equal(t, "low", partner.RiskRating)
	})

	t.Run("unknown vendor returns not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		resolver := NewHTTPResolver(server.URL, noopLogger())
		_, err := resolver.Lookup(context.Background(), "missing")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("upstream failure returns bad gateway", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		resolver := NewHTTPResolver(server.URL, noopLogger())
		_, err := resolver.Lookup(context.Background(), "2500241256")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadGateway, httperror.GetStatusCode(err))
	})

	t.Run("unreachable vendor system returns bad gateway", func(t *testing.T) {
		resolver := NewHTTPResolver("http://127.0.0.1:1", noopLogger())
		_, err := resolver.Lookup(context.Background(), "2500241256")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadGateway, httperror.GetStatusCode(err))
	})
}
