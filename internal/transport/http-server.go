package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nightjar-labs/linkbrief-back/internal/config"
	"github.com/nightjar-labs/linkbrief-back/internal/db"
	"github.com/nightjar-labs/linkbrief-back/internal/notify"
	"github.com/nightjar-labs/linkbrief-back/internal/pipeline"
	"github.com/nightjar-labs/linkbrief-back/internal/service"
)

type (
	CredentialsReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=12"`
	}

	// URL presence is checked by the pipeline so a missing field yields
	// the same {"error": ...} body as every other summarization failure.
	SummarizeReq struct {
		URL string `json:"url"`
	}

	SummarizeResp struct {
		Title       string    `json:"title"`
		Favicon     *string   `json:"favicon"`
		Summary     string    `json:"summary"`
		GeneratedAt time.Time `json:"generatedAt"`
	}

	// ErrorResp carries the user-facing message; title/favicon are only
	// set for the short-content case, as a partial-success signal.
	ErrorResp struct {
		Error   string  `json:"error"`
		Title   string  `json:"title,omitempty"`
		Favicon *string `json:"favicon,omitempty"`
	}

	BookmarkCreateReq struct {
		URL string `json:"url"`
	}

	BookmarkResp struct {
		ID          string    `json:"id"`
		URL         string    `json:"url"`
		Title       string    `json:"title"`
		Favicon     *string   `json:"favicon"`
		Summary     string    `json:"summary"`
		CreatedAt   time.Time `json:"createdAt"`
		GeneratedAt time.Time `json:"generatedAt"`
	}

	DeleteTokenResp struct {
		Token string `json:"token"`
	}

	ConfirmDeleteReq struct {
		Token string `json:"token" validate:"required"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	// PipelineRunner is what the handlers need from the summarization
	// pipeline; tests substitute a fake.
	PipelineRunner interface {
		Run(ctx context.Context, rawURL string) (*pipeline.Result, error)
	}

	HTTPServer struct {
		db        *gorm.DB
		pipeline  PipelineRunner
		general   *service.General
		bookmarks *service.Bookmarks
		hub       *notify.Hub
		logger    *zap.SugaredLogger
	}
)

func NewHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	gdb *gorm.DB,
	runner PipelineRunner,
	general *service.General,
	bookmarks *service.Bookmarks,
	hub *notify.Hub,
	logger *zap.SugaredLogger,
) *HTTPServer {
	instance := HTTPServer{
		db:        gdb,
		pipeline:  runner,
		general:   general,
		bookmarks: bookmarks,
		hub:       hub,
		logger:    logger,
	}

	e := instance.buildEcho()

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return &instance
}

func (s *HTTPServer) buildEcho() *echo.Echo {
	e := echo.New()

	e.POST("/summarize", s.Summarize)
	e.GET("/health", s.Health)

	e.POST("/auth/register", s.Register)
	e.POST("/auth/login", s.Login)

	bookmarkG := e.Group("/bookmark")
	bookmarkG.POST("/list", s.BookmarkList)
	bookmarkG.POST("", s.BookmarkCreate)
	bookmarkG.POST("/:id/regenerate", s.BookmarkRegenerate)
	bookmarkG.POST("/:id/delete", s.BookmarkRequestDelete)
	bookmarkG.POST("/delete/confirm", s.BookmarkConfirmDelete)
	bookmarkG.GET("/subscribe", s.BookmarkSubscribe)

	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyDump(func(c echo.Context, reqBody, _ []byte) {
		if len(reqBody) == 0 {
			return
		}
		s.logger.Infow("request",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"body", string(censorBody(reqBody)),
		)
	}))

	e.Use(s.AuthMiddleware)

	e.Validator = &CustomValidator{validator: validator.New()}

	echo.NotFoundHandler = func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	}

	return e
}

func (s *HTTPServer) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Server is running",
	})
}

// Summarize runs the pipeline without touching the store; it is the
// identity-agnostic surface the UI calls before deciding to persist.
func (s *HTTPServer) Summarize(c echo.Context) error {
	req := SummarizeReq{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResp{Error: "invalid request body"})
	}

	res, err := s.pipeline.Run(c.Request().Context(), req.URL)
	if err != nil {
		return s.pipelineError(c, err)
	}

	return c.JSON(http.StatusOK, SummarizeResp{
		Title:       res.Title,
		Favicon:     faviconPtr(res.Favicon),
		Summary:     res.Summary,
		GeneratedAt: res.GeneratedAt,
	})
}

func (s *HTTPServer) Register(c echo.Context) error {
	req := CredentialsReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := s.general.Register(req.Email, req.Password)
	if err != nil {
		return err
	}
	resp := struct {
		Token string `json:"token"`
	}{
		Token: token,
	}
	return c.JSON(http.StatusOK, &resp)
}

func (s *HTTPServer) Login(c echo.Context) error {
	req := CredentialsReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := s.general.Login(req.Email, req.Password)
	if err != nil {
		if err == service.ErrLoginUserNotFound || err == service.ErrLoginPasswordDoesNotMatch {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	resp := struct {
		Token string `json:"token"`
	}{
		Token: token,
	}
	return c.JSON(http.StatusOK, &resp)
}

func (s *HTTPServer) BookmarkList(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	bookmarks, err := s.bookmarks.List(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toBookmarkResps(bookmarks))
}

func (s *HTTPServer) BookmarkCreate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := BookmarkCreateReq{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResp{Error: "invalid request body"})
	}

	res, err := s.pipeline.Run(c.Request().Context(), req.URL)
	if err != nil {
		return s.pipelineError(c, err)
	}

	model, err := s.bookmarks.Append(c.Request().Context(), user.ID, service.BookmarkFields{
		URL:         req.URL,
		Title:       res.Title,
		Favicon:     faviconPtr(res.Favicon),
		Summary:     res.Summary,
		GeneratedAt: res.GeneratedAt,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toBookmarkResp(model))
}

func (s *HTTPServer) BookmarkRegenerate(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	existing, err := s.bookmarks.Get(c.Request().Context(), user.ID, id)
	if err != nil {
		if err == service.ErrBookmarkNotFound {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}

	res, err := s.pipeline.Run(c.Request().Context(), existing.URL)
	if err != nil {
		return s.pipelineError(c, err)
	}

	model, err := s.bookmarks.Regenerate(c.Request().Context(), user.ID, id, service.BookmarkFields{
		Title:       res.Title,
		Favicon:     faviconPtr(res.Favicon),
		Summary:     res.Summary,
		GeneratedAt: res.GeneratedAt,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toBookmarkResp(model))
}

func (s *HTTPServer) BookmarkRequestDelete(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	token, err := s.bookmarks.RequestDelete(c.Request().Context(), user.ID, id)
	if err != nil {
		if err == service.ErrBookmarkNotFound {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}

	return c.JSON(http.StatusOK, DeleteTokenResp{Token: token})
}

func (s *HTTPServer) BookmarkConfirmDelete(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := ConfirmDeleteReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	if err := s.bookmarks.ConfirmDelete(c.Request().Context(), user.ID, req.Token); err != nil {
		if err == service.ErrDeleteTokenInvalid || err == service.ErrBookmarkNotFound {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// BookmarkSubscribe streams the user's full collection as server-sent
// events: once on connect, then again after every change signal.
func (s *HTTPServer) BookmarkSubscribe(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	ch, cancel := s.hub.Subscribe(user.ID)
	defer cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	send := func() error {
		bookmarks, err := s.bookmarks.List(ctx, user.ID)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(toBookmarkResps(bookmarks))
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		w.Flush()
		return nil
	}

	if err := send(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			if err := send(); err != nil {
				return err
			}
		}
	}
}

func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	public := map[string]struct{}{
		"/summarize":     {},
		"/health":        {},
		"/auth/register": {},
		"/auth/login":    {},
	}
	return func(c echo.Context) error {
		if _, ok := public[c.Path()]; ok {
			return next(c)
		}
		token := ""
		for key, values := range c.Request().Header {
			if strings.ToLower(key) == "x-token" {
				token = values[0]
				break
			}
		}
		if token == "" {
			return c.NoContent(http.StatusUnauthorized)
		}
		user := db.User{}
		res := s.db.Where("token = ?", token).First(&user)
		if res.Error != nil {
			s.logger.Error(errors.Wrap(res.Error, "find user in db"))
			return c.NoContent(http.StatusUnauthorized)
		}

		c.Set("user", &user)
		return next(c)
	}
}

func (s *HTTPServer) pipelineError(c echo.Context, err error) error {
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		s.logger.Errorw("pipeline failed", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResp{Error: "failed to generate summary"})
	}

	resp := ErrorResp{Error: perr.Message}
	if perr.Kind == pipeline.KindInsufficientContent {
		resp.Title = perr.Title
		resp.Favicon = faviconPtr(perr.Favicon)
	}
	return c.JSON(statusForKind(perr.Kind), resp)
}

func statusForKind(k pipeline.Kind) int {
	switch k {
	case pipeline.KindInvalidInput, pipeline.KindNotFound, pipeline.KindInsufficientContent:
		return http.StatusBadRequest
	case pipeline.KindTimeout:
		return http.StatusRequestTimeout
	default:
		// HTTPError from the origin, upstream API failures, the rest.
		return http.StatusInternalServerError
	}
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return nil
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func GetUserFromContext(c echo.Context) (*db.User, error) {
	user, _ := c.Get("user").(*db.User)
	if user == nil {
		return nil, errors.New("no user found in context")
	}
	return user, nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param 'id'")
	}
	return value, nil
}

func toBookmarkResp(b *db.Bookmark) BookmarkResp {
	return BookmarkResp{
		ID:          b.ID,
		URL:         b.URL,
		Title:       b.Title,
		Favicon:     b.Favicon,
		Summary:     b.Summary,
		CreatedAt:   b.CreatedAt,
		GeneratedAt: b.GeneratedAt,
	}
}

func toBookmarkResps(bookmarks []db.Bookmark) []BookmarkResp {
	resp := make([]BookmarkResp, len(bookmarks))
	for i := range bookmarks {
		resp[i] = toBookmarkResp(&bookmarks[i])
	}
	return resp
}

func faviconPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// censorBody blanks the password field before a request body reaches the
// log.
func censorBody(b []byte) []byte {
	m := map[string]interface{}{}
	if err := json.Unmarshal(b, &m); err != nil {
		return b
	}
	if _, ok := m["password"]; !ok {
		return b
	}
	m["password"] = "$censored"
	out, err := json.Marshal(m)
	if err != nil {
		return b
	}
	return out
}
