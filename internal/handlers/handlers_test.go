package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/content-import-service/internal/cache"
	"github.com/SAP-F-2025/content-import-service/internal/models"
	"github.com/SAP-F-2025/content-import-service/internal/repositories/memory"
	"github.com/SAP-F-2025/content-import-service/internal/services"
	"github.com/SAP-F-2025/content-import-service/internal/utils"
	"github.com/SAP-F-2025/content-import-service/internal/validator"
)

const testUser = "user-1"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router    *gin.Engine
	documents *memory.DocumentStore
}

func newTestServer(t *testing.T, auth TokenParser) *testServer {
	t.Helper()

	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	documents := memory.NewDocumentStore()
	manager := services.NewServiceManager(services.Dependencies{
		Documents: documents,
		Jobs:      memory.NewJobStore(),
		Backups:   memory.NewBackupRepository(),
		Audits:    memory.NewAuditRepository(),
		History:   memory.NewMappingHistoryRepository(),
		Cache:     cache.NewMemoryCache(),
	}, services.ManagerConfig{
		Processor: services.ProcessorConfig{ChunkSize: 2, ChunkTimeout: 5 * time.Second},
		Parser:    services.ParserConfig{MaxBytes: 1 << 20, MaxItems: 100},
	}, logger.Slog())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = manager.Processor().Shutdown(ctx)
	})

	hm := NewHandlerManager(manager, validator.New(), logger, RouterConfig{
		CORSOrigins: []string{"http://localhost:3000"},
		MaxBytes:    1 << 20,
		ChunkSize:   2,
		Auth:        auth,
	})
	return &testServer{router: hm.NewRouter(), documents: documents}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func question(text, category string) models.QuestionItem {
	return models.QuestionItem{
		QuestionText: text,
		Options:      []models.QuestionOption{{Text: "Oui", IsCorrect: true}, {Text: "Non"}},
		Explanation:  "Parce que",
		Category:     category,
		Difficulty:   models.DifficultyEasy,
		Level:        models.LevelPASS,
	}
}

func importBody(questions ...models.QuestionItem) gin.H {
	return gin.H{
		"fileName": "cardio.json",
		"document": models.ImportDocument{Version: "1.0", Type: models.ContentQuestions, Questions: questions},
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(utils.RequestIDHeader))
}

func TestImportHandler_RequiresUser(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodGet, "/api/v1/imports", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", decode[ErrorResponse](t, w).Code)
}

func TestImportHandler_ValidateImport(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("json body", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/imports/validate", testUser,
			importBody(question("Q1", "Cardiologie"), question("Q2", "Cardiologie"), question("Q3", "Neurologie")))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		preview := decode[services.ImportPreview](t, w)
		assert.Equal(t, 3, preview.ItemCount)
		assert.Equal(t, 2, preview.ChunkCount)
		assert.True(t, preview.Validation.IsValid)
		assert.Len(t, preview.Categories, 2)
		assert.Equal(t, 0, s.documents.Count(models.CollectionQuestions))
	})

	t.Run("malformed document is reported, not rejected", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/imports/validate", testUser,
			gin.H{"document": gin.H{"type": "questions", "questions": "pas une liste"}})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		preview := decode[services.ImportPreview](t, w)
		assert.False(t, preview.Validation.IsValid)
		require.Len(t, preview.Validation.Errors, 1)
	})

	t.Run("missing document", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/imports/validate", testUser, gin.H{"fileName": "x.json"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeValidation, decode[ErrorResponse](t, w).Code)
	})

	t.Run("csv upload", func(t *testing.T) {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		require.NoError(t, form.WriteField("contentType", "questions"))
		part, err := form.CreateFormFile("file", "cardio.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte("questionText,optionA,optionB,correctAnswer,explanation,category,difficulty,level\n" +
			"Le cœur a-t-il quatre cavités ?,Oui,Non,A,Anatomie,Cardiologie,easy,PASS\n"))
		require.NoError(t, err)
		require.NoError(t, form.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/validate", &body)
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set(userIDHeader, testUser)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 1, decode[services.ImportPreview](t, w).ItemCount)
	})
}

func TestImportHandler_Lifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	body := importBody(question("Q1", "Cardiologie"), question("Q2", "Cardiologie"), question("Q3", "Neurologie"))
	body["options"] = gin.H{"createBackup": true}
	w := s.do(t, http.MethodPost, "/api/v1/imports", testUser, body)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	jobID := decode[map[string]string](t, w)["jobId"]
	require.NotEmpty(t, jobID)

	var job models.BatchJob
	require.Eventually(t, func() bool {
		w := s.do(t, http.MethodGet, "/api/v1/imports/"+jobID, testUser, nil)
		if w.Code != http.StatusOK || json.Unmarshal(w.Body.Bytes(), &job) != nil {
			return false
		}
		return job.Status == models.JobCompleted
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, job.Progress.Successful)
	assert.Empty(t, job.Chunks)
	assert.Equal(t, 3, s.documents.Count(models.CollectionQuestions))

	t.Run("list", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/imports?limit=5", testUser, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, decode[map[string]interface{}](t, w)["total"])
	})

	t.Run("other users are refused", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/imports/"+jobID, "user-2", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/imports/missing", testUser, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("completed job cannot be paused", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/imports/"+jobID+"/pause", testUser, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("json report", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/imports/"+jobID+"/report", testUser, nil)
		require.Equal(t, http.StatusOK, w.Code)
		report := decode[services.ImportReport](t, w)
		assert.Equal(t, 3, report.Successful)
	})

	t.Run("csv report", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/imports/"+jobID+"/report?format=csv", testUser, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "import-"+jobID+".csv")
	})

	t.Run("unknown report format", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/imports/"+jobID+"/report?format=pdf", testUser, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rollback", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/imports/"+jobID+"/rollback", testUser, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, decode[models.RollbackCheck](t, w).Possible)

		w = s.do(t, http.MethodPost, "/api/v1/imports/"+jobID+"/rollback", testUser, gin.H{"dryRun": true})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 3, s.documents.Count(models.CollectionQuestions))

		w = s.do(t, http.MethodPost, "/api/v1/imports/"+jobID+"/rollback", testUser, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, 0, s.documents.Count(models.CollectionQuestions))

		w = s.do(t, http.MethodPost, "/api/v1/imports/"+jobID+"/rollback", testUser, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestImportHandler_StartRejections(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		body     interface{}
		wantCode string
	}{
		{
			name:     "critical validation error",
			body:     importBody(question("", "Cardiologie")),
			wantCode: codePreflight,
		},
		{
			name:     "malformed document",
			body:     gin.H{"document": gin.H{"type": "questions", "questions": 42}},
			wantCode: codePreflight,
		},
		{
			name: "invalid options",
			body: gin.H{
				"document": models.ImportDocument{Type: models.ContentQuestions, Questions: []models.QuestionItem{question("Q1", "Cardiologie")}},
				"options":  gin.H{"chunkSize": -1},
			},
			wantCode: codeValidation,
		},
		{
			name: "declared type mismatch",
			body: gin.H{
				"contentType": "flashcards",
				"document":    models.ImportDocument{Type: models.ContentQuestions, Questions: []models.QuestionItem{question("Q1", "Cardiologie")}},
			},
			wantCode: codeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/imports", testUser, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, w).Code)
		})
	}

	assert.Equal(t, 0, s.documents.Count(models.CollectionQuestions))
}

func TestCategoryHandler(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/categories", testUser, gin.H{"name": "Cardiologie"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Run("list", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/v1/categories", testUser, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, decode[map[string]interface{}](t, w)["total"])
	})

	t.Run("analyze", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/categories/analyze", testUser,
			importBody(question("Q1", "cardiologie"), question("Q2", "Pharmacologie clinique")))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Categories []models.CategoryAnalysis `json:"categories"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Categories)
	})

	t.Run("apply mapping", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/categories/mappings", testUser, gin.H{
			"originalName":  "Cardio",
			"suggestedName": "Cardiologie",
			"confidence":    0.9,
			"action":        "map",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, http.MethodGet, "/api/v1/categories/mappings/stats", testUser, nil)
		require.Equal(t, http.StatusOK, w.Code)
		stats := decode[models.MappingStatistics](t, w)
		// the category creation above is recorded too
		assert.Equal(t, 2, stats.TotalMappings)
		assert.Equal(t, 1, stats.ByAction[models.ActionCreate])
		assert.Equal(t, 1, stats.ByAction[models.ActionMap])
	})

	t.Run("invalid mapping action", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/categories/mappings", testUser, gin.H{
			"originalName": "Cardio",
			"action":       "guess",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, codeValidation, decode[ErrorResponse](t, w).Code)
	})

	t.Run("empty name", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/v1/categories", testUser, gin.H{"name": ""})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

type fakeTokenParser struct {
	claims *casdoorsdk.Claims
	err    error
}

func (f fakeTokenParser) ParseJwtToken(token string) (*casdoorsdk.Claims, error) {
	if token != "valid" {
		return nil, errors.New("token is malformed")
	}
	return f.claims, f.err
}

func TestAuthMiddleware(t *testing.T) {
	parser := fakeTokenParser{claims: &casdoorsdk.Claims{User: casdoorsdk.User{Id: "casdoor-42", Name: "dr-martin"}}}

	router := gin.New()
	router.Use(AuthMiddleware(parser))
	router.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(userIDKey))
	})

	tests := []struct {
		name       string
		header     string
		userHeader string
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer valid", wantStatus: http.StatusOK, wantBody: "casdoor-42"},
		{name: "missing token", wantStatus: http.StatusUnauthorized},
		{name: "user header is ignored", userHeader: testUser, wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer forged", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.userHeader != "" {
				req.Header.Set(userIDHeader, tt.userHeader)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}
