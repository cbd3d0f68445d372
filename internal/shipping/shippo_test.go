package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShippoClientRates(t *testing.T) {
	var captured shippoShipment
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/shipments/", r.URL.Path)
		require.Equal(t, "ShippoToken test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rates":[
			{"amount":"8.47","currency":"USD","provider":"USPS","estimated_days":3,"servicelevel":{"name":"Ground Advantage","token":"usps_ground_advantage"}},
			{"amount":"12.10","currency":"USD","provider":"USPS","estimated_days":null,"servicelevel":{"name":"Priority Mail","token":"usps_priority"}}
		]}`))
	}))
	defer srv.Close()

	client := NewShippoClient(ShippoConfig{APIKey: "test-key", BaseURL: srv.URL + "/", Timeout: time.Second})
	rates, err := client.Rates(context.Background(), ShipmentRequest{
		From:   Address{Name: "Workshop", Street: "9 Mill Rd", City: "Asheville", State: "NC", Zip: "28801", Country: "US"},
		To:     dest,
		Parcel: Parcel{LengthIn: 18, WidthIn: 12, HeightIn: 3.5, WeightLbs: 5.25},
	})
	require.NoError(t, err)
	require.Len(t, rates, 2)
	require.Equal(t, "USPS Ground Advantage", rates[0].ServiceName)
	require.Equal(t, "8.47", rates[0].Amount)
	require.Equal(t, 3, rates[0].EstimatedDays)
	require.Zero(t, rates[1].EstimatedDays)

	require.Equal(t, "28801", captured.AddressFrom.Zip)
	require.Equal(t, "78701", captured.AddressTo.Zip)
	require.Len(t, captured.Parcels, 1)
	require.Equal(t, "3.5", captured.Parcels[0].Height)
	require.Equal(t, "5.25", captured.Parcels[0].Weight)
	require.Equal(t, "lb", captured.Parcels[0].MassUnit)
	require.Equal(t, "in", captured.Parcels[0].DistanceUnit)
}

func TestShippoClientRejectsClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid token"}`))
	}))
	defer srv.Close()

	client := NewShippoClient(ShippoConfig{APIKey: "bad", BaseURL: srv.URL})
	_, err := client.Rates(context.Background(), ShipmentRequest{To: dest})
	require.ErrorContains(t, err, "status 401")
}
