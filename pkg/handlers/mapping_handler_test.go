package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-mapper/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-mapper/pkg/models"
	"github.com/ekaya-inc/ekaya-mapper/pkg/services"
)

const handlerSourceCSV = "Line,Tag,Qty,Notes\n1,T-100,2,first\n2,T-200,5,second\n"

type mappingHandlerFixture struct {
	mux      *http.ServeMux
	registry *services.SessionRegistry
	provider *mockSuggestionProvider
	schema   *mockSchemaProvider
	sink     *mockFeedbackSink
}

func newMappingHandlerFixture(t *testing.T) *mappingHandlerFixture {
	t.Helper()
	f := &mappingHandlerFixture{
		provider: &mockSuggestionProvider{},
		schema: &mockSchemaProvider{props: []models.TargetProperty{
			{DisplayName: "Line Number", LocalID: "LineNo", RemoteID: "p1"},
			{DisplayName: "Tag Number", Synonyms: []string{"Tag"}, LocalID: "TagNo", RemoteID: "p2"},
			{DisplayName: "Quantity", Synonyms: []string{"Qty"}, LocalID: "Qty", RemoteID: "p3"},
		}},
		sink: &mockFeedbackSink{},
	}
	f.registry = services.NewSessionRegistry(services.SessionConfig{
		SchemaProvider:  f.schema,
		PropertyCreator: &mockPropertyCreator{},
		FeedbackSink:    f.sink,
		Provider:        f.provider,
		Export: services.ExportOptions{
			StandardColumns:  []string{"Line Number", "Tag Number", "Quantity"},
			IdentifierTarget: "Line Number",
			FallbackPrefix:   "Prop_",
		},
		HighlightWindow: 10 * time.Millisecond,
	}, zap.NewNop())

	f.mux = http.NewServeMux()
	NewMappingHandler(f.registry, ExportFileNames{Narrow: "common_properties.csv", Long: "long_properties.csv"}, zap.NewNop()).
		RegisterRoutes(f.mux)
	return f
}

func (f *mappingHandlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// createReady creates a session with the source and schema loaded.
func (f *mappingHandlerFixture) createReady(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	st := decodeState(t, rec)
	base := "/api/sessions/" + st.ID.String()

	rec = f.do(t, http.MethodPost, base+"/source", handlerSourceCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, base+"/schema", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return base
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, data any) ApiResponse {
	t.Helper()
	resp := ApiResponse{Data: data}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) services.SessionState {
	t.Helper()
	var st services.SessionState
	resp := decodeData(t, rec, &st)
	require.True(t, resp.Success)
	return st
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func rowFor(st services.SessionState, header string) models.MappingRow {
	for _, r := range st.Rows {
		if r.SourceHeader == header {
			return r
		}
	}
	return models.MappingRow{}
}

func TestMappingHandler_SessionLifecycle(t *testing.T) {
	f := newMappingHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	st := decodeState(t, rec)
	assert.Equal(t, services.StatusAwaitingInput, st.Status)
	assert.Equal(t, 1, f.registry.Len())

	path := "/api/sessions/" + st.ID.String()
	rec = f.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, st.ID, decodeState(t, rec).ID)

	rec = f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.registry.Len())

	rec = f.do(t, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/sessions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_session_id", decodeError(t, rec)["error"])
}

func TestMappingHandler_LoadSource(t *testing.T) {
	f := newMappingHandlerFixture(t)
	s := f.registry.Create()
	path := "/api/sessions/" + s.ID().String() + "/source"

	rec := f.do(t, http.MethodPost, path, handlerSourceCSV)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeState(t, rec)
	assert.Equal(t, []string{"Line", "Tag", "Qty", "Notes"}, st.Headers)
	assert.Equal(t, services.StatusAwaitingSchema, st.Status)

	rec = f.do(t, http.MethodPost, path, "  \n\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "parse error", decodeError(t, rec)["error"])
	assert.False(t, s.State().SourceLoaded)

	rec = f.do(t, http.MethodPost, path, strings.Repeat("a", maxUploadBytes+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMappingHandler_LoadKnowledge(t *testing.T) {
	f := newMappingHandlerFixture(t)
	s := f.registry.Create()
	path := "/api/sessions/" + s.ID().String() + "/knowledge"

	rec := f.do(t, http.MethodPost, path, "anchor,positive,negative\nQuantity,Amount,\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeState(t, rec).HasExternalKB)

	rec = f.do(t, http.MethodPost, path, "anchor,negative\nQuantity,Count\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, s.State().HasExternalKB)
}

func TestMappingHandler_SchemaUnavailable(t *testing.T) {
	f := newMappingHandlerFixture(t)
	f.schema.err = errors.New("connection refused")
	s := f.registry.Create()

	rec := f.do(t, http.MethodPost, "/api/sessions/"+s.ID().String()+"/schema", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "no schema loaded", decodeError(t, rec)["error"])
}

func TestMappingHandler_SuggestPreconditions(t *testing.T) {
	f := newMappingHandlerFixture(t)
	s := f.registry.Create()

	rec := f.do(t, http.MethodPost, "/api/sessions/"+s.ID().String()+"/suggest", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no source loaded", decodeError(t, rec)["error"])
}

func TestMappingHandler_Suggest(t *testing.T) {
	f := newMappingHandlerFixture(t)
	f.provider.suggestFunc = func(ctx context.Context, req services.SuggestionRequest) (map[string]string, error) {
		return map[string]string{"Line": "Line Number", "Notes": "N/A"}, nil
	}
	base := f.createReady(t)

	rec := f.do(t, http.MethodPost, base+"/suggest", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SuggestResponse
	require.True(t, decodeData(t, rec, &resp).Success)
	assert.Empty(t, resp.ProviderError)
	assert.Equal(t, 2, resp.Report.KnowledgeAssigned)
	assert.Equal(t, 2, resp.Report.ProviderAssigned)
	assert.Equal(t, "Tag Number", rowFor(resp.State, "Tag").SelectedTarget)
	assert.Equal(t, "Line Number", rowFor(resp.State, "Line").SelectedTarget)
	assert.True(t, resp.State.CanExport)
}

func TestMappingHandler_SuggestProviderFailureKeepsKnowledge(t *testing.T) {
	f := newMappingHandlerFixture(t)
	f.provider.suggestFunc = func(ctx context.Context, req services.SuggestionRequest) (map[string]string, error) {
		return nil, &apperrors.SuggestionProviderError{Message: "request failed", Unavailable: true}
	}
	base := f.createReady(t)

	rec := f.do(t, http.MethodPost, base+"/suggest", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SuggestResponse
	decodeData(t, rec, &resp)
	assert.Contains(t, resp.ProviderError, "request failed")
	assert.Equal(t, "Quantity", rowFor(resp.State, "Qty").SelectedTarget)
	assert.True(t, resp.State.StatusIsError)
}

func TestMappingHandler_Select(t *testing.T) {
	f := newMappingHandlerFixture(t)
	base := f.createReady(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantTarget string
	}{
		{"definite target", `{"header":"Line","target":"line number"}`, http.StatusOK, "Line Number"},
		{"not applicable", `{"header":"Notes","target":"n/a"}`, http.StatusOK, "N/A"},
		{"unknown target", `{"header":"Qty","target":"Weight"}`, http.StatusNotFound, ""},
		{"unknown header", `{"header":"Missing","target":"Quantity"}`, http.StatusNotFound, ""},
		{"missing header", `{"target":"Quantity"}`, http.StatusBadRequest, ""},
		{"malformed body", `{`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, base+"/selections", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp SelectResponse
			decodeData(t, rec, &resp)
			var req SelectRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &req))
			assert.Equal(t, tt.wantTarget, rowFor(resp.State, req.Header).SelectedTarget)
			assert.Empty(t, resp.FeedbackErrors)
		})
	}

	assert.Contains(t, f.sink.patched, "p1")
}

func TestMappingHandler_SelectReportsFeedbackFailure(t *testing.T) {
	f := newMappingHandlerFixture(t)
	f.sink.patchErr = errors.New("catalog returned status 500")
	base := f.createReady(t)

	rec := f.do(t, http.MethodPost, base+"/selections", `{"header":"Line","target":"Line Number"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SelectResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, "Line Number", rowFor(resp.State, "Line").SelectedTarget)
	assert.NotEmpty(t, resp.FeedbackErrors)
}

func TestMappingHandler_Restore(t *testing.T) {
	f := newMappingHandlerFixture(t)
	base := f.createReady(t)

	body := `{"rows":[{"source_header":"Tag","selected_target":"Tag Number","suggestion_origin":"knowledge"}]}`
	rec := f.do(t, http.MethodPost, base+"/restore", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Tag Number", rowFor(decodeState(t, rec), "Tag").SelectedTarget)
}

func TestMappingHandler_AddProperty(t *testing.T) {
	f := newMappingHandlerFixture(t)
	base := f.createReady(t)

	rec := f.do(t, http.MethodPost, base+"/properties", `{"display_name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/properties", `{"display_name":"Weight"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, decodeState(t, rec).Targets, "Weight")
}

func TestMappingHandler_Export(t *testing.T) {
	f := newMappingHandlerFixture(t)
	base := f.createReady(t)

	rec := f.do(t, http.MethodGet, base+"/export/narrow.csv", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no mapping", decodeError(t, rec)["error"])

	for _, body := range []string{
		`{"header":"Line","target":"Line Number"}`,
		`{"header":"Tag","target":"Tag Number"}`,
	} {
		rec = f.do(t, http.MethodPost, base+"/selections", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = f.do(t, http.MethodGet, base+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var export ExportResponse
	decodeData(t, rec, &export)
	assert.True(t, strings.HasPrefix(export.Narrow, "Line Number,Tag Number,Quantity"), export.Narrow)
	assert.NotEmpty(t, export.Long)

	tests := []struct {
		file     string
		wantName string
	}{
		{"narrow.csv", "common_properties.csv"},
		{"long.csv", "long_properties.csv"},
		{"mapped.csv", "mapped_data.csv"},
		{"triplets.csv", "triplets.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, base+"/export/"+tt.file, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Header().Get("Content-Disposition"), tt.wantName)
			assert.NotEmpty(t, rec.Body.String())
		})
	}

	rec = f.do(t, http.MethodGet, base+"/export/other.csv", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMappingHandler_UploadWithoutLoader(t *testing.T) {
	f := newMappingHandlerFixture(t)
	base := f.createReady(t)
	rec := f.do(t, http.MethodPost, base+"/selections", `{"header":"Line","target":"Line Number"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/upload", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMappingHandler_UnknownSession(t *testing.T) {
	f := newMappingHandlerFixture(t)
	path := "/api/sessions/" + uuid.NewString()

	for _, p := range []string{"/source", "/schema", "/suggest", "/upload"} {
		rec := f.do(t, http.MethodPost, path+p, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
	}
}
