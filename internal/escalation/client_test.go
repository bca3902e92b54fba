package escalation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratuswatch/detect-engine/internal/models"
)

func testFinding() *models.Finding {
	return &models.Finding{
		FindingID:   "finding-1",
		RuleID:      "unsigned_binary_temp",
		FindingType: "unsigned_binary_temp",
		Severity:    models.SeverityHigh,
		Confidence:  0.7,
		Explanation: "unsigned binary executed from temp",
		AssetID:     "asset-1",
		IdentityID:  "user-1",
	}
}

func TestHTTPCaseClientCreateCase(t *testing.T) {
	t.Run("successful creation returns case id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/cases", r.URL.Path)

			var req createCaseRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "finding-1", req.FindingID)
			assert.Equal(t, "high", req.Severity)

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(createCaseResponse{CaseID: "case-42"})
		}))
		defer server.Close()

		client := NewHTTPCaseClient(server.URL, 5*time.Second)
		caseID, err := client.CreateCase(context.Background(), testFinding())
		require.NoError(t, err)
		assert.Equal(t, "case-42", caseID)
	})

	t.Run("server error fails the escalation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewHTTPCaseClient(server.URL, 5*time.Second)
		_, err := client.CreateCase(context.Background(), testFinding())
		assert.Error(t, err)
	})

	t.Run("empty case id is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		client := NewHTTPCaseClient(server.URL, 5*time.Second)
		_, err := client.CreateCase(context.Background(), testFinding())
		assert.Error(t, err)
	})

	t.Run("timeout bounds the call", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := NewHTTPCaseClient(server.URL, 50*time.Millisecond)
		_, err := client.CreateCase(context.Background(), testFinding())
		assert.Error(t, err)
	})
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishFindingCreated(context.Background(), testFinding()))
	assert.NoError(t, p.PublishFindingSuppressed(context.Background(), &models.SuppressionDecision{}))
	assert.NoError(t, p.Close())
}
