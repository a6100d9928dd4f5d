package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/account-planner/internal/app"
	"github.com/spherical/account-planner/internal/config"
	"github.com/spherical/account-planner/internal/domain"
)

const sampleText = "Acme Health runs twelve hospitals across Ohio and renews in March."

type stubModel struct {
	reply string
	err   error
}

func (s stubModel) Name() string  { return "stub" }
func (s stubModel) Model() string { return "stub-1" }
func (s stubModel) Complete(context.Context, string, string) (string, error) {
	return s.reply, s.err
}

func writeTemplate(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>{{.account_overview.account_name}}</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestServer(t *testing.T, model stubModel) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Cache.Driver = "none"
	cfg.Render.TemplatePath = writeTemplate(t)

	a, err := app.New(context.Background(), cfg, model, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, stubModel{})

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"), path)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newTestServer(t, stubModel{})
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, stubModel{})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/plans", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSchema(t *testing.T) {
	srv := newTestServer(t, stubModel{})
	resp, err := http.Get(srv.URL + "/api/v1/schema")
	require.NoError(t, err)
	defer resp.Body.Close()

	skeleton := decodeBody(t, resp)
	for _, section := range domain.RequiredSections {
		assert.Contains(t, skeleton, section)
	}
}

func TestExtract(t *testing.T) {
	srv := newTestServer(t, stubModel{reply: `{"account_overview": {"account_name": "Acme Health"}}`})

	resp := postJSON(t, srv.URL+"/api/v1/plans/extract", map[string]string{"input_text": sampleText})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	body := decodeBody(t, resp)
	assert.Equal(t, "Acme Health", body["account_name"])
	assert.Equal(t, "Acme_Health_Account_Plan_v1_locked.docx", body["filename"])
	plan := body["plan"].(map[string]any)
	assert.Len(t, plan, len(domain.RequiredSections))
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name       string
		model      stubModel
		input      string
		wantStatus int
		wantRaw    bool
	}{
		{name: "too short", model: stubModel{reply: "{}"}, input: "hi", wantStatus: http.StatusBadRequest},
		{name: "empty", model: stubModel{reply: "{}"}, input: "", wantStatus: http.StatusBadRequest},
		{name: "parse failure", model: stubModel{reply: "no json here"}, input: sampleText, wantStatus: http.StatusUnprocessableEntity, wantRaw: true},
		{name: "model failure", model: stubModel{err: domain.APIError("upstream down", nil)}, input: sampleText, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.model)
			resp := postJSON(t, srv.URL+"/api/v1/plans/extract", map[string]string{"input_text": tt.input})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decodeBody(t, resp)
			assert.NotEmpty(t, body["error"])
			if tt.wantRaw {
				assert.Equal(t, tt.model.reply, body["raw"])
			} else {
				assert.NotContains(t, body, "raw")
			}
		})
	}
}

func TestRepair(t *testing.T) {
	srv := newTestServer(t, stubModel{})

	resp := postJSON(t, srv.URL+"/api/v1/plans/repair", map[string]any{
		"account_overview": map[string]any{"account_name": "N/A"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	plan := body["plan"].(map[string]any)
	name := plan["account_overview"].(map[string]any)["account_name"].(string)
	assert.True(t, strings.HasPrefix(name, domain.Placeholder))
	assert.NotNil(t, body["report"])

	resp = postJSON(t, srv.URL+"/api/v1/plans/repair", []string{"not", "an", "object"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad, err := http.Post(srv.URL+"/api/v1/plans/repair", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestGenerate_FormText(t *testing.T) {
	srv := newTestServer(t, stubModel{reply: `{"account_overview": {"account_name": "Acme <Co>"}}`})

	resp, err := http.PostForm(srv.URL+"/api/v1/plans", map[string][]string{"input_text": {sampleText}})
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, docxContentTypeForTest, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename=Acme_Co_Account_Plan_v1_locked.docx`)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	var doc bytes.Buffer
	_, err = doc.ReadFrom(rc)
	require.NoError(t, err)
	assert.Contains(t, doc.String(), "Acme &lt;Co&gt;")
}

const docxContentTypeForTest = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

func TestGenerate_Upload(t *testing.T) {
	srv := newTestServer(t, stubModel{reply: `{"account_overview": {"account_name": "Acme"}}`})

	upload := func(filename, content string) *http.Response {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("input_file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		resp, err := http.Post(srv.URL+"/api/v1/plans", mw.FormDataContentType(), &body)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := upload("notes.txt", sampleText)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Acme_Account_Plan_v1_locked.docx")

	resp = upload("notes.exe", sampleText)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
