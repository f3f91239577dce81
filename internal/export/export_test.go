package export

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkoukos/stockroom/internal/dataset"
	"github.com/pkoukos/stockroom/internal/datastore"
	"github.com/pkoukos/stockroom/internal/storage"
)

func newTestService(t *testing.T) (*Service, *datastore.Butler) {
	t.Helper()
	butler := datastore.NewButler(storage.NewMemory(), zerolog.Nop())
	return NewService(butler, NewCSVExporter(), NewHTTPDataSender(), zerolog.Nop()), butler
}

func sampleTable() dataset.Table {
	return dataset.Table{
		{"Date": "2025-01-01", "Close": 100.5, "Volume": 1000.0},
		{"Date": "2025-01-02", "Close": 101.25, "Volume": nil},
	}
}

func TestCSVExporter_Export(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, NewCSVExporter().Export(sampleTable(), path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	want := "Date,Close,Volume\n2025-01-01,100.5,1000\n2025-01-02,101.25,\n"
	assert.Equal(t, want, string(content))
}

func TestCSVExporter_EmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, NewCSVExporter().Export(dataset.Table{}, path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\n", string(content), "just the empty header line")
}

func TestCSVExporter_BadPath(t *testing.T) {
	err := NewCSVExporter().Export(sampleTable(), filepath.Join(t.TempDir(), "missing", "out.csv"))
	assert.Error(t, err)
}

func TestHTTPDataSender_Send(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewHTTPDataSender()
	require.NoError(t, sender.Send(context.Background(), sampleTable(), server.URL, ""))

	assert.Equal(t, http.MethodPost, gotMethod, "POST is the default method")
	assert.Equal(t, "application/json", gotContentType)

	var payload struct {
		Data dataset.Table `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	require.Len(t, payload.Data, 2)
	assert.Equal(t, "2025-01-01", payload.Data[0]["Date"])
}

func TestHTTPDataSender_CustomMethod(t *testing.T) {
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, NewHTTPDataSender().Send(context.Background(), sampleTable(), server.URL, http.MethodPut))
	assert.Equal(t, http.MethodPut, gotMethod)
}

func TestHTTPDataSender_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewHTTPDataSender().Send(context.Background(), sampleTable(), server.URL, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestService_ExportCSV(t *testing.T) {
	service, butler := newTestService(t)

	scope := datastore.SingleScope{Prefix: "raw_stock_data", StockID: "AAPL", StartDate: "2025-01-01", EndDate: "2025-01-02"}
	require.NoError(t, butler.Save(scope, sampleTable(), nil))

	path := filepath.Join(t.TempDir(), "aapl.csv")
	require.NoError(t, service.ExportCSV(scope.Key(), path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "2025-01-01")
}

func TestService_ExportCSVBadKey(t *testing.T) {
	service, _ := newTestService(t)

	err := service.ExportCSV("not-a-key", filepath.Join(t.TempDir(), "x.csv"))
	assert.ErrorIs(t, err, ErrUnsupportedKey)

	err = service.ExportCSV("group1:2025-01-01:2025-01-02", filepath.Join(t.TempDir(), "x.csv"))
	assert.ErrorIs(t, err, ErrUnsupportedKey, "group keys are not CSV exportable")
}

func TestService_ExportCSVMissingData(t *testing.T) {
	service, _ := newTestService(t)

	scope := datastore.SingleScope{Prefix: "raw_stock_data", StockID: "GHOST", StartDate: "2025-01-01", EndDate: "2025-01-02"}
	err := service.ExportCSV(scope.Key(), filepath.Join(t.TempDir(), "x.csv"))
	assert.ErrorIs(t, err, datastore.ErrDataNotFound)
}

func TestService_SendHTTPSingle(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service, butler := newTestService(t)
	scope := datastore.SingleScope{Prefix: "raw_stock_data", StockID: "AAPL", StartDate: "2025-01-01", EndDate: "2025-01-02"}
	require.NoError(t, butler.Save(scope, sampleTable(), nil))

	require.NoError(t, service.SendHTTP(context.Background(), scope.Key(), server.URL, ""))

	var payload struct {
		Data dataset.Table `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Len(t, payload.Data, 2)
}

func TestService_SendHTTPGroup(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	service, butler := newTestService(t)
	group := datastore.GroupScope{GroupID: "tech", StartDate: "2025-01-01", EndDate: "2025-01-02"}
	require.NoError(t, butler.SaveGroup(group, []dataset.Table{sampleTable(), sampleTable()}))

	require.NoError(t, service.SendHTTP(context.Background(), group.Key(), server.URL, ""))

	var payload struct {
		Data map[string]dataset.Table `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Len(t, payload.Data, 2)
	assert.Contains(t, payload.Data, "stock:1")
	assert.Contains(t, payload.Data, "stock:2")
}

func TestService_SendHTTPGroupMissing(t *testing.T) {
	service, _ := newTestService(t)
	err := service.SendHTTP(context.Background(), "ghosts:2025-01-01:2025-01-02", "http://127.0.0.1:0", "")
	assert.ErrorIs(t, err, datastore.ErrDataNotFound)
}

func TestService_SendHTTPBadKey(t *testing.T) {
	service, _ := newTestService(t)
	err := service.SendHTTP(context.Background(), "a:b", "http://127.0.0.1:0", "")
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}
