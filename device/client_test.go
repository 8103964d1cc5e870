package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/omnipos/models"
)

func TestHTTPClient(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/sync/orders":
			var orders []models.Order
			require.NoError(t, json.NewDecoder(r.Body).Decode(&orders))
			json.NewEncoder(w).Encode(acceptAll(orders))
		case r.Method == http.MethodGet && r.URL.Path == "/api/orders":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status":  true,
				"message": "Orders retrieved",
				"data":    []models.Order{{ID: "o-1", TenantID: "tenant-1", Status: models.StatusReady}},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/api/orders/o-1/status":
			var req models.StatusChangeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.NewStatus != models.StatusInKitchen {
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"status": false, "message": "invalid status transition", "reason": "InvalidTransition",
				})
				return
			}
			json.NewEncoder(w).Encode(models.StatusChangeResponse{Status: "Updated", WorkflowStatus: req.NewStatus})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "tok")
	ctx := context.Background()

	results, err := c.SyncOrders(ctx, []models.Order{{ID: "o-1"}, {ID: "o-2"}})
	require.NoError(t, err)
	assert.Equal(t, []models.SyncResult{{ID: "o-1", Status: "Synchronized"}, {ID: "o-2", Status: "Synchronized"}}, results)
	assert.Equal(t, "Bearer tok", gotAuth)

	orders, err := c.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.StatusReady, orders[0].Status)

	resp, err := c.ChangeStatus(ctx, "o-1", models.StatusInKitchen)
	require.NoError(t, err)
	assert.Equal(t, models.StatusChangeResponse{Status: "Updated", WorkflowStatus: models.StatusInKitchen}, resp)

	_, err = c.ChangeStatus(ctx, "o-1", models.StatusPaid)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "InvalidTransition", apiErr.Reason)
}
