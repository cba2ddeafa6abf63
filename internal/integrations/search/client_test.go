package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"collab-backend/internal/storage"
)

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient("  ")
	require.Error(t, err)

	c, err := NewClient("http://search:9200/")
	require.NoError(t, err)
	require.Equal(t, "http://search:9200", c.baseURL)
}

func TestIndexDocument(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	err = c.IndexDocument(context.Background(), "organizations", "o1", map[string]string{"id": "o1", "name": "Acme"})
	require.NoError(t, err)
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/organizations/_doc/o1", gotPath)
	require.JSONEq(t, `{"id":"o1","name":"Acme"}`, gotBody)
}

func TestIndexDocument_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "shard failure", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	err = c.IndexDocument(context.Background(), "organizations", "o1", map[string]string{"id": "o1"})
	require.Error(t, err)
	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "shard failure")
}

func TestDeindexDocument_MissingDocumentIsNotAnError(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	require.NoError(t, c.DeindexDocument(context.Background(), "teams", "t1"))
	require.Equal(t, http.MethodDelete, gotMethod)
}

func TestQueryBySearchTerm_MapsRowsBySchemaName(t *testing.T) {
	var gotQuery string
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_plugins/_sql", r.URL.Path)
		var req sqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotQuery = req.Query
		calls++

		// Column order deliberately differs between pages; consumers must
		// key rows off the schema, not position.
		resp := sqlResponse{Total: 3, Size: 2}
		if calls == 1 {
			resp.Schema = []struct {
				Name string `json:"name"`
				Type string `json:"type"`
			}{{Name: "id"}, {Name: "name"}}
			resp.Datarows = [][]any{{"t1", "Platform"}, {"t2", "Data"}}
		} else {
			resp.Schema = []struct {
				Name string `json:"name"`
				Type string `json:"type"`
			}{{Name: "name"}, {Name: "id"}}
			resp.Datarows = [][]any{{"Infra", "t3"}}
			resp.Size = 1
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	first, err := c.QueryBySearchTerm(context.Background(), QueryParams{
		Index:  "teams",
		Term:   "a",
		Fields: []string{"name"},
		Limit:  2,
	})
	require.NoError(t, err)
	require.Contains(t, gotQuery, "SELECT * FROM teams WHERE (name LIKE '%a%')")
	require.Contains(t, gotQuery, "LIMIT 2 OFFSET 0")
	require.Len(t, first.Documents, 2)
	require.Equal(t, "t1", first.Documents[0]["id"])
	require.Equal(t, "Platform", first.Documents[0]["name"])
	require.Equal(t, 3, first.Total)
	require.NotEmpty(t, first.NextCursor)

	second, err := c.QueryBySearchTerm(context.Background(), QueryParams{
		Index:  "teams",
		Term:   "a",
		Fields: []string{"name"},
		Limit:  2,
		Cursor: first.NextCursor,
	})
	require.NoError(t, err)
	require.Contains(t, gotQuery, "LIMIT 2 OFFSET 2")
	require.Len(t, second.Documents, 1)
	require.Equal(t, "t3", second.Documents[0]["id"])
	require.Equal(t, "Infra", second.Documents[0]["name"])
	require.Empty(t, second.NextCursor)
}

func TestQueryBySearchTerm_IDFilterAndEscaping(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotQuery = req.Query
		require.NoError(t, json.NewEncoder(w).Encode(sqlResponse{}))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.QueryBySearchTerm(context.Background(), QueryParams{
		Index:    "conversations",
		Term:     "o'brien",
		Fields:   []string{"name", "transcript"},
		IDFilter: []string{"group-g1", "group-g2"},
	})
	require.NoError(t, err)
	require.Contains(t, gotQuery, "(name LIKE '%o''brien%' OR transcript LIKE '%o''brien%')")
	require.Contains(t, gotQuery, "AND id IN ('group-g1', 'group-g2')")
}

func TestQueryBySearchTerm_Validation(t *testing.T) {
	c, err := NewClient("http://search:9200")
	require.NoError(t, err)

	_, err = c.QueryBySearchTerm(context.Background(), QueryParams{Term: "x", Fields: []string{"name"}})
	require.Error(t, err)

	_, err = c.QueryBySearchTerm(context.Background(), QueryParams{Index: "teams", Term: "x"})
	require.Error(t, err)

	_, err = c.QueryBySearchTerm(context.Background(), QueryParams{Index: "teams", Term: "x", Fields: []string{"name"}, Cursor: "!!!"})
	require.True(t, errors.Is(err, storage.ErrMalformedCursor))
}

func TestQueryBySearchTerm_RowSchemaMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := sqlResponse{Total: 1, Size: 1}
		resp.Schema = []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		}{{Name: "id"}, {Name: "name"}}
		resp.Datarows = [][]any{{"t1"}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.QueryBySearchTerm(context.Background(), QueryParams{Index: "teams", Term: "x", Fields: []string{"name"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "columns")
}

func TestUnmarshalDocuments(t *testing.T) {
	type teamDoc struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	docs, err := UnmarshalDocuments[teamDoc]([]map[string]any{
		{"id": "t1", "name": "Platform"},
		{"id": "t2", "name": "Data"},
	})
	require.NoError(t, err)
	require.Equal(t, []teamDoc{{ID: "t1", Name: "Platform"}, {ID: "t2", Name: "Data"}}, docs)

	_, err = UnmarshalDocuments[teamDoc]([]map[string]any{{"id": 42}})
	require.Error(t, err)
}

func TestDocumentURL_EscapesSegments(t *testing.T) {
	c, err := NewClient("http://search:9200")
	require.NoError(t, err)
	u := c.documentURL("teams", "weird/id")
	require.False(t, strings.Contains(strings.TrimPrefix(u, "http://"), "//"))
}
