package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"crowpro-api/config"
	"crowpro-api/handlers"
	"crowpro-api/helper"
	"crowpro-api/middleware"
	"crowpro-api/models"
	"crowpro-api/repositories"
	"crowpro-api/services"
	"crowpro-api/storage"
	"crowpro-api/testutil"
)

type envelope struct {
	Code        int             `json:"code"`
	CodeType    string          `json:"code_type"`
	CodeMessage json.RawMessage `json:"code_message"`
	Data        json.RawMessage `json:"data"`
}

type IntegrationTestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine
	users  map[models.UserRole]*models.User
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

func (suite *IntegrationTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	t := suite.T()
	db := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost/media")
	suite.Require().NoError(err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtCfg := config.JWTConfig{
		Secret:          "integration-secret-integration-secret",
		Issuer:          "crowpro-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	pubRepo := repositories.NewPublicationRepository(db)
	logRepo := repositories.NewRequestLogRepository(db)

	// Initialize services
	tokenService := services.NewTokenService(jwtCfg, repositories.NewTokenRepository(rdb), userRepo)
	logService := services.NewRequestLogService(logRepo)
	httpHelper := helper.NewHTTPHelper(log)

	// Setup router
	router := gin.New()
	router.Use(middleware.RequestLog(logService, nil, 1024, log))
	handlers.Routes{
		Auth:         handlers.NewAuthHandler(services.NewAuthService(userRepo, tokenService, log), jwtCfg, httpHelper),
		Publications: handlers.NewPublicationHandler(services.NewPublicationService(pubRepo, userRepo, store, 1<<20, log), httpHelper),
		Users:        handlers.NewUserHandler(services.NewUserService(userRepo, tokenService, store, 1<<20, log), httpHelper),
		Stats:        handlers.NewStatsHandler(services.NewStatsService(repositories.NewStatsRepository(db)), logService, httpHelper),
		Health:       handlers.NewHealthHandler(db, rdb),
		Verifier:     tokenService,
		Helper:       httpHelper,
	}.Register(router)

	suite.db = db
	suite.router = router
	suite.users = map[models.UserRole]*models.User{}
	for _, role := range []models.UserRole{models.RoleReader, models.RoleAuthor, models.RoleEditor, models.RoleModerator, models.RoleAdmin} {
		suite.users[role] = testutil.CreateUser(t, db, string(role)+"@example.com", role)
	}
}

func (suite *IntegrationTestSuite) do(method, path string, payload any, token string) (*httptest.ResponseRecorder, envelope) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		suite.Require().NoError(err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (suite *IntegrationTestSuite) login(role models.UserRole) string {
	w, env := suite.do(http.MethodPost, "/api/v1/auth/login", models.LoginRequest{
		Email:    string(role) + "@example.com",
		Password: testutil.Password,
	}, "")
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var res models.AuthResponse
	suite.Require().NoError(json.Unmarshal(env.Data, &res))
	return res.Tokens.Access
}

func decode[T any](suite *IntegrationTestSuite, env envelope) T {
	var out T
	suite.Require().NoError(json.Unmarshal(env.Data, &out))
	return out
}

func (suite *IntegrationTestSuite) TestHealth() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), "healthy")
}

func (suite *IntegrationTestSuite) TestAuthFlow() {
	w, env := suite.do(http.MethodPost, "/api/v1/auth/signup", models.SignupRequest{
		FirstName: "New", LastName: "Reader", Email: "new@example.com",
		Password: "Password123", PasswordConfirm: "Password123",
	}, "")
	suite.Equal(http.StatusCreated, w.Code, w.Body.String())
	user := decode[models.User](suite, env)
	suite.Equal(models.RoleReader, user.Role)

	w, _ = suite.do(http.MethodPost, "/api/v1/auth/signup", models.SignupRequest{
		FirstName: "New", LastName: "Reader", Email: "new@example.com",
		Password: "Password123", PasswordConfirm: "Password123",
	}, "")
	suite.Equal(http.StatusConflict, w.Code)

	w, env = suite.do(http.MethodPost, "/api/v1/auth/signup", map[string]string{"email": "bad"}, "")
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("validationError", env.CodeType)

	w, env = suite.do(http.MethodPost, "/api/v1/auth/login", models.LoginRequest{Email: "new@example.com", Password: "Password123"}, "")
	suite.Require().Equal(http.StatusOK, w.Code)
	login := decode[models.AuthResponse](suite, env)
	suite.NotEmpty(login.Tokens.Access)

	var refreshCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == middleware.RefreshCookie {
			refreshCookie = cookie
		}
	}
	suite.Require().NotNil(refreshCookie)
	suite.True(refreshCookie.HttpOnly)

	w, env = suite.do(http.MethodGet, "/api/v1/auth/current_user", nil, login.Tokens.Access)
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("new@example.com", decode[models.User](suite, env).Email)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token/refresh", nil)
	req.AddCookie(refreshCookie)
	rec := httptest.NewRecorder()
	suite.router.ServeHTTP(rec, req)
	suite.Equal(http.StatusOK, rec.Code, rec.Body.String())

	w, _ = suite.do(http.MethodPost, "/api/v1/auth/token/refresh", models.RefreshRequest{Refresh: login.Tokens.Refresh}, "")
	suite.Equal(http.StatusUnauthorized, w.Code, "a rotated refresh token cannot be replayed")

	w, _ = suite.do(http.MethodPost, "/api/v1/auth/logout", nil, login.Tokens.Access)
	suite.Equal(http.StatusOK, w.Code)

	w, _ = suite.do(http.MethodGet, "/api/v1/auth/current_user", nil, login.Tokens.Access)
	suite.Equal(http.StatusUnauthorized, w.Code)

	w, _ = suite.do(http.MethodGet, "/api/v1/auth/current_user", nil, "")
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *IntegrationTestSuite) TestPasswordReset() {
	token := suite.login(models.RoleAuthor)

	w, _ := suite.do(http.MethodPost, "/api/v1/auth/password/reset", models.PasswordResetRequest{
		Email: "author@example.com", Password: testutil.Password, NewPassword: testutil.Password,
	}, token)
	suite.Equal(http.StatusBadRequest, w.Code)

	w, _ = suite.do(http.MethodPost, "/api/v1/auth/password/reset", models.PasswordResetRequest{
		Email: "author@example.com", Password: testutil.Password, NewPassword: "BrandNew456!",
	}, token)
	suite.Equal(http.StatusOK, w.Code)

	w, _ = suite.do(http.MethodGet, "/api/v1/auth/current_user", nil, token)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *IntegrationTestSuite) TestArticleLifecycle() {
	author := suite.login(models.RoleAuthor)
	editor := suite.login(models.RoleEditor)
	reader := suite.login(models.RoleReader)

	w, env := suite.do(http.MethodPost, "/api/v1/articles", models.CreatePublicationRequest{
		Title: "Hello World", Content: "<p>first</p>",
	}, author)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	article := decode[models.Publication](suite, env)
	suite.Equal("hello-world", article.Slug)
	suite.Equal(models.TypeArticle, article.PublicationType)

	w, _ = suite.do(http.MethodGet, "/api/v1/articles/hello-world", nil, "")
	suite.Equal(http.StatusNotFound, w.Code)
	w, _ = suite.do(http.MethodGet, "/api/v1/articles/hello-world", nil, author)
	suite.Equal(http.StatusOK, w.Code)

	w, _ = suite.do(http.MethodPost, "/api/v1/publications/hello-world/publish", nil, editor)
	suite.Equal(http.StatusBadRequest, w.Code, "drafts must be approved first")

	w, _ = suite.do(http.MethodPost, "/api/v1/publications/hello-world/approve", nil, reader)
	suite.Equal(http.StatusForbidden, w.Code)

	w, env = suite.do(http.MethodPost, "/api/v1/publications/hello-world/approve", nil, editor)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.NotNil(decode[models.Publication](suite, env).ApprovedOn)

	w, _ = suite.do(http.MethodPost, "/api/v1/publications/hello-world/approve", nil, editor)
	suite.Equal(http.StatusConflict, w.Code)

	w, env = suite.do(http.MethodPost, "/api/v1/publications/hello-world/publish", nil, editor)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.True(decode[models.Publication](suite, env).Published)

	w, _ = suite.do(http.MethodGet, "/api/v1/publications/hello-world", nil, "")
	suite.Equal(http.StatusOK, w.Code)

	w, env = suite.do(http.MethodGet, "/api/v1/publications", nil, "")
	suite.Equal(http.StatusOK, w.Code)
	page := decode[struct {
		Results    []models.Publication `json:"results"`
		Pagination map[string]any       `json:"pagination"`
	}](suite, env)
	suite.Len(page.Results, 1)
	suite.EqualValues(1, page.Pagination["total_records"])

	title := "Rewritten"
	w, _ = suite.do(http.MethodPatch, "/api/v1/articles/hello-world", models.UpdatePublicationRequest{Title: &title}, author)
	suite.Equal(http.StatusForbidden, w.Code, "authors cannot edit published articles")

	w, _ = suite.do(http.MethodDelete, "/api/v1/articles/hello-world", nil, author)
	suite.Equal(http.StatusNoContent, w.Code)

	w, _ = suite.do(http.MethodGet, "/api/v1/publications/hello-world", nil, "")
	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *IntegrationTestSuite) TestCreatePermissions() {
	w, _ := suite.do(http.MethodPost, "/api/v1/articles", models.CreatePublicationRequest{Title: "x", Content: "y"}, "")
	suite.Equal(http.StatusUnauthorized, w.Code)

	w, _ = suite.do(http.MethodPost, "/api/v1/articles", models.CreatePublicationRequest{Title: "x", Content: "y"}, suite.login(models.RoleReader))
	suite.Equal(http.StatusForbidden, w.Code)

	w, _ = suite.do(http.MethodPost, "/api/v1/editorials", models.CreatePublicationRequest{Title: "x", Content: "y"}, suite.login(models.RoleAuthor))
	suite.Equal(http.StatusForbidden, w.Code)

	w, env := suite.do(http.MethodPost, "/api/v1/editorials", models.CreatePublicationRequest{Title: "Opinion", Content: "y"}, suite.login(models.RoleEditor))
	suite.Equal(http.StatusCreated, w.Code)
	suite.Equal(models.TypeEditorial, decode[models.Publication](suite, env).PublicationType)

	w, _ = suite.do(http.MethodGet, "/api/v1/articles/opinion", nil, suite.login(models.RoleEditor))
	suite.Equal(http.StatusNotFound, w.Code, "editorials are not served as articles")
}

func (suite *IntegrationTestSuite) TestUpdateAuthorsAndListMine() {
	author := suite.login(models.RoleAuthor)

	w, _ := suite.do(http.MethodPost, "/api/v1/articles", models.CreatePublicationRequest{Title: "Team piece", Content: "body"}, author)
	suite.Require().Equal(http.StatusCreated, w.Code)

	w, _ = suite.do(http.MethodPatch, "/api/v1/articles/team-piece/update-authors", models.UpdateAuthorsRequest{
		AuthorIDs: []uint{suite.users[models.RoleReader].ID},
	}, author)
	suite.Equal(http.StatusBadRequest, w.Code)

	w, env := suite.do(http.MethodPatch, "/api/v1/articles/team-piece/update-authors", models.UpdateAuthorsRequest{
		AuthorIDs: []uint{suite.users[models.RoleAuthor].ID, suite.users[models.RoleEditor].ID},
	}, author)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Len(decode[models.Publication](suite, env).Authors, 2)

	w, env = suite.do(http.MethodGet, "/api/v1/authors/me/publications", nil, suite.login(models.RoleEditor))
	suite.Equal(http.StatusOK, w.Code)
	mine := decode[struct {
		Results []models.Publication `json:"results"`
	}](suite, env)
	suite.Len(mine.Results, 1)

	w, _ = suite.do(http.MethodGet, "/api/v1/authors/abc/publications", nil, "")
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *IntegrationTestSuite) TestUploadThumbnail() {
	author := suite.login(models.RoleAuthor)
	w, _ := suite.do(http.MethodPost, "/api/v1/articles", models.CreatePublicationRequest{Title: "Pictured", Content: "body"}, author)
	suite.Require().Equal(http.StatusCreated, w.Code)

	upload := func(filename string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		form := multipart.NewWriter(&buf)
		part, err := form.CreateFormFile("thumbnail", filename)
		suite.Require().NoError(err)
		_, err = part.Write([]byte("\x89PNG fake image"))
		suite.Require().NoError(err)
		suite.Require().NoError(form.Close())

		req := httptest.NewRequest(http.MethodPut, "/api/v1/articles/pictured/thumbnail", &buf)
		req.Header.Set("Content-Type", form.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+author)
		rec := httptest.NewRecorder()
		suite.router.ServeHTTP(rec, req)
		return rec
	}

	suite.Equal(http.StatusBadRequest, upload("thumb.gif").Code)

	rec := upload("thumb.png")
	suite.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var env envelope
	suite.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &env))
	p := decode[models.Publication](suite, env)
	suite.Require().NotNil(p.ThumbnailURL)
	suite.Contains(*p.ThumbnailURL, "http://localhost/media/")
}

func (suite *IntegrationTestSuite) TestUsersAndRoles() {
	reader := suite.login(models.RoleReader)
	moderator := suite.login(models.RoleModerator)
	admin := suite.login(models.RoleAdmin)
	readerID := suite.users[models.RoleReader].ID

	w, _ := suite.do(http.MethodGet, "/api/v1/users", nil, reader)
	suite.Equal(http.StatusForbidden, w.Code)

	w, env := suite.do(http.MethodGet, "/api/v1/users/authors", nil, moderator)
	suite.Equal(http.StatusOK, w.Code)
	authors := decode[struct {
		Results []models.User `json:"results"`
	}](suite, env)
	suite.Len(authors.Results, 2)

	w, _ = suite.do(http.MethodPut, "/api/v1/users/"+strconv.FormatUint(uint64(readerID), 10)+"/role", models.ChangeRoleRequest{Role: models.RoleAuthor}, moderator)
	suite.Equal(http.StatusForbidden, w.Code)

	w, env = suite.do(http.MethodPut, "/api/v1/users/"+strconv.FormatUint(uint64(readerID), 10)+"/role", models.ChangeRoleRequest{Role: models.RoleAuthor}, admin)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal(models.RoleAuthor, decode[models.User](suite, env).Role)

	w, _ = suite.do(http.MethodGet, "/api/v1/auth/current_user", nil, reader)
	suite.Equal(http.StatusUnauthorized, w.Code, "a role change ends existing sessions")

	name := "Renamed"
	w, env = suite.do(http.MethodPatch, "/api/v1/users/me", models.UpdateProfileRequest{DisplayName: &name}, moderator)
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("Renamed", decode[models.User](suite, env).DisplayName)

	w, _ = suite.do(http.MethodDelete, "/api/v1/users/me", nil, moderator)
	suite.Equal(http.StatusNoContent, w.Code)
	w, _ = suite.do(http.MethodGet, "/api/v1/auth/current_user", nil, moderator)
	suite.Equal(http.StatusUnauthorized, w.Code)
}

func (suite *IntegrationTestSuite) TestStatsAndRequestLogs() {
	w, _ := suite.do(http.MethodGet, "/api/v1/stats", nil, suite.login(models.RoleEditor))
	suite.Equal(http.StatusForbidden, w.Code)

	moderator := suite.login(models.RoleModerator)
	w, env := suite.do(http.MethodGet, "/api/v1/stats", nil, moderator)
	suite.Require().Equal(http.StatusOK, w.Code)
	stats := decode[models.Statistics](suite, env)
	suite.EqualValues(2, stats.UserStats.ActiveAuthors)
	suite.EqualValues(1, stats.UserStats.ActiveReaders)

	w, env = suite.do(http.MethodGet, "/api/v1/request-logs?method=POST", nil, moderator)
	suite.Require().Equal(http.StatusOK, w.Code)
	logs := decode[struct {
		Results []models.RequestLog `json:"results"`
	}](suite, env)
	suite.NotEmpty(logs.Results)
	for _, entry := range logs.Results {
		suite.Equal("POST", entry.Method)
		suite.NotContains(entry.Body, testutil.Password)
	}
}
