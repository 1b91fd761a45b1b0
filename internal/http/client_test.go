package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	b24http "github.com/fivetwenty-io/b24/internal/http"
	"github.com/fivetwenty-io/b24/pkg/bitrix"
)

// MockLogger for testing.
type MockLogger struct {
	logs []map[string]interface{}
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) {
	l.logs = append(l.logs, map[string]interface{}{"level": "debug", "msg": msg, "fields": fields})
}

func (l *MockLogger) Info(msg string, fields map[string]interface{}) {
	l.logs = append(l.logs, map[string]interface{}{"level": "info", "msg": msg, "fields": fields})
}

func (l *MockLogger) Warn(msg string, fields map[string]interface{}) {
	l.logs = append(l.logs, map[string]interface{}{"level": "warn", "msg": msg, "fields": fields})
}

func (l *MockLogger) Error(msg string, fields map[string]interface{}) {
	l.logs = append(l.logs, map[string]interface{}{"level": "error", "msg": msg, "fields": fields})
}

func TestClient_Call(t *testing.T) {
	t.Parallel()
	t.Run("successful call", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/rest/1/token/crm.contact.get.json", request.URL.Path)
			assert.Equal(t, "POST", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			body, _ := io.ReadAll(request.Body)
			assert.JSONEq(t, `{"id":42}`, string(body))

			_ = json.NewEncoder(writer).Encode(map[string]any{
				"result": map[string]string{"ID": "42", "NAME": "Ivan"},
			})
		}))
		defer server.Close()

		client := b24http.NewClient(server.URL + "/rest/1/token")

		resp, err := client.Call(context.Background(), "crm.contact.get", map[string]any{"id": 42})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var record map[string]string

		err = json.Unmarshal(resp.Result, &record)
		require.NoError(t, err)
		assert.Equal(t, "Ivan", record["NAME"])
	})

	t.Run("trailing slash in webhook URL is tolerated", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/rest/1/token/profile.json", request.URL.Path)
			_ = json.NewEncoder(writer).Encode(map[string]any{"result": map[string]string{"ID": "1"}})
		}))
		defer server.Close()

		client := b24http.NewClient(server.URL + "/rest/1/token/")

		_, err := client.Call(context.Background(), "profile", nil)
		require.NoError(t, err)
	})

	t.Run("list metadata is decoded", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			_ = json.NewEncoder(writer).Encode(map[string]any{
				"result": []map[string]string{{"ID": "1"}},
				"total":  120,
				"next":   50,
			})
		}))
		defer server.Close()

		client := b24http.NewClient(server.URL + "/rest/1/token")

		resp, err := client.Call(context.Background(), "crm.deal.list", nil)
		require.NoError(t, err)
		assert.Equal(t, 120, resp.Total)
		require.NotNil(t, resp.Next)
		assert.Equal(t, 50, *resp.Next)
	})

	t.Run("portal error becomes APIError", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(writer).Encode(map[string]string{
				"error":             "NOT_FOUND",
				"error_description": "Not found",
			})
		}))
		defer server.Close()

		client := b24http.NewClient(server.URL + "/rest/1/token")

		_, err := client.Call(context.Background(), "crm.contact.get", map[string]any{"id": 9999})
		require.Error(t, err)

		apiErr := &bitrix.APIError{}
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "NOT_FOUND", apiErr.Code)
		assert.True(t, bitrix.IsNotFound(err))
	})

	t.Run("connection failure wraps ErrTransport", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {}))
		server.Close()

		client := b24http.NewClient(server.URL+"/rest/1/token",
			b24http.WithRetryConfig(0, 0, 0))

		_, err := client.Call(context.Background(), "profile", nil)
		require.ErrorIs(t, err, bitrix.ErrTransport)
	})

	t.Run("request interceptor can abort the call", func(t *testing.T) {
		t.Parallel()

		called := false
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			called = true
		}))
		defer server.Close()

		chain := bitrix.NewInterceptorChain()
		chain.AddRequestInterceptor(func(ctx context.Context, req *bitrix.Request) error {
			return errors.New("blocked")
		})

		client := b24http.NewClient(server.URL+"/rest/1/token", b24http.WithInterceptors(chain))

		_, err := client.Call(context.Background(), "profile", nil)
		require.Error(t, err)
		assert.False(t, called)
	})

	t.Run("debug logging records the exchange", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			_ = json.NewEncoder(writer).Encode(map[string]any{"result": true})
		}))
		defer server.Close()

		logger := &MockLogger{}
		client := b24http.NewClient(server.URL+"/rest/1/token",
			b24http.WithLogger(logger), b24http.WithDebug(true))

		_, err := client.Call(context.Background(), "profile", nil)
		require.NoError(t, err)
		assert.Len(t, logger.logs, 2)
	})
}

func TestClient_CallBatch(t *testing.T) {
	t.Parallel()
	t.Run("batch envelope is decoded", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/rest/1/token/batch.json", request.URL.Path)

			var body map[string]any
			require.NoError(t, json.NewDecoder(request.Body).Decode(&body))
			assert.InDelta(t, 0, body["halt"], 0)

			cmd, ok := body["cmd"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "crm.contact.get?ID=1", cmd["get_1"])

			_ = json.NewEncoder(writer).Encode(map[string]any{
				"result": map[string]any{
					"result": map[string]any{
						"get_1": map[string]string{"ID": "1"},
					},
					"result_error": map[string]any{
						"get_2": map[string]string{"error": "", "error_description": "Not found"},
					},
					"result_total": map[string]int{},
					"result_next":  map[string]int{},
				},
			})
		}))
		defer server.Close()

		client := b24http.NewClient(server.URL + "/rest/1/token")

		envelope, err := client.CallBatch(context.Background(), false, map[string]string{
			"get_1": "crm.contact.get?ID=1",
			"get_2": "crm.contact.get?ID=2",
		})
		require.NoError(t, err)

		require.Contains(t, envelope.Result, "get_1")
		require.Contains(t, envelope.ResultError, "get_2")
		assert.Equal(t, "Not found", envelope.ResultError["get_2"].Description)
	})

	t.Run("portal error fails the whole batch", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(writer).Encode(map[string]string{
				"error":             "INVALID_CREDENTIALS",
				"error_description": "Invalid request credentials",
			})
		}))
		defer server.Close()

		client := b24http.NewClient(server.URL + "/rest/1/token")

		_, err := client.CallBatch(context.Background(), false, map[string]string{"a": "profile"})
		require.Error(t, err)

		apiErr := &bitrix.APIError{}
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "INVALID_CREDENTIALS", apiErr.Code)
	})
}
