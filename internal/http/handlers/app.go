package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"blogpilot/internal/apikeys"
	"blogpilot/internal/domain"
	"blogpilot/internal/http/respond"
	"blogpilot/internal/ledger"
	"blogpilot/internal/middleware"
	"blogpilot/internal/posts"
	"blogpilot/internal/threads"
	"blogpilot/internal/upload"
	"blogpilot/internal/wordpress"
)

// App holds the services behind the HTTP handlers.
type App struct {
	Store     domain.Store
	Ledger    *ledger.Service
	Posts     *posts.Service
	WordPress *wordpress.Service
	Threads   *threads.Service
	APIKeys   *apikeys.Service
	Uploads   *upload.Service
	Country   middleware.CountryLookup
	Logger    zerolog.Logger

	validate *validator.Validate
}

type Deps struct {
	Store     domain.Store
	Ledger    *ledger.Service
	Posts     *posts.Service
	WordPress *wordpress.Service
	Threads   *threads.Service
	APIKeys   *apikeys.Service
	Uploads   *upload.Service
	Country   middleware.CountryLookup
	Logger    zerolog.Logger
}

func NewApp(d Deps) *App {
	return &App{
		Store:     d.Store,
		Ledger:    d.Ledger,
		Posts:     d.Posts,
		WordPress: d.WordPress,
		Threads:   d.Threads,
		APIKeys:   d.APIKeys,
		Uploads:   d.Uploads,
		Country:   d.Country,
		Logger:    d.Logger,
		validate:  validator.New(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	respond.JSON(w, code, v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	respond.Error(w, status, code, msg)
}

// fail logs unexpected errors with the request id and writes the envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := respond.Status(err); status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	respond.Err(w, err)
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// decode reads a JSON body into dst and runs struct validation. An empty
// body decodes to the zero value.
func (a *App) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid payload: %v", domain.ErrInvalidInput, err)
	}
	if err := a.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if len(field) > 0 {
			field = strings.ToLower(field[:1]) + field[1:]
		}
		switch fe.Tag() {
		case "required", "required_without":
			parts = append(parts, field+" is required")
		case "min", "gte", "gt":
			parts = append(parts, field+" must be at least "+fe.Param())
		case "max", "lte":
			parts = append(parts, field+" must be at most "+fe.Param())
		default:
			parts = append(parts, field+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}

// idempotencyKey prefers the Idempotency-Key header over the body field.
func idempotencyKey(r *http.Request, body string) string {
	if h := strings.TrimSpace(r.Header.Get("Idempotency-Key")); h != "" {
		return h
	}
	return strings.TrimSpace(body)
}
