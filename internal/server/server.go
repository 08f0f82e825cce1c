package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/quota"
	"github.com/sjawhar/pitchspeak/internal/session"
)

const defaultOwnerHeader = "X-Auth-User"

// ConversationStore is the persistence the API reads and the session
// websocket writes.
type ConversationStore interface {
	session.Store
	Get(ctx context.Context, id string) (estimate.Record, error)
	ListByOwner(ctx context.Context, ownerID string, req estimate.PageRequest) (estimate.Page, error)
	ListAll(ctx context.Context, req estimate.PageRequest) (estimate.Page, error)
}

type QuotaGate interface {
	session.Gate
	Peek(ctx context.Context, ownerID string) quota.Status
}

type Mailer interface {
	Send(ctx context.Context, to string, rec estimate.Record, pdf []byte) (string, error)
}

type DriveUploader interface {
	Upload(ctx context.Context, rec estimate.Record, pdf []byte) (string, error)
}

type Options struct {
	Gate       QuotaGate
	Summarizer session.Summarizer
	// Mailer and Drive are optional; their routes answer 503 when unset.
	Mailer Mailer
	Drive  DriveUploader

	// OwnerHeader names the header a trusted proxy sets to the signed-in user.
	OwnerHeader string
	AdminToken  string

	PageSize         int
	QuotaBackend     string
	ProgressInterval time.Duration
	Warnings         func() []string
	Logger           *slog.Logger
}

type ctxKey int

const ownerCtxKey ctxKey = iota

// OwnerFromContext returns the signed-in owner id, or "" when anonymous.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerCtxKey).(string)
	return owner
}

var (
	errNoStore      = errors.New("server: conversation store is required")
	errNoHub        = errors.New("server: notification hub is required")
	errNoGate       = errors.New("server: quota gate is required")
	errNoSummarizer = errors.New("server: summarizer is required")
)

// Handler builds the HTTP routes. The store, hub, gate and summarizer back
// the session websocket and must all be set.
func Handler(staticFS fs.FS, hub *Hub, store ConversationStore, opts Options) (http.Handler, error) {
	switch {
	case store == nil:
		return nil, errNoStore
	case hub == nil:
		return nil, errNoHub
	case opts.Gate == nil:
		return nil, errNoGate
	case opts.Summarizer == nil:
		return nil, errNoSummarizer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OwnerHeader == "" {
		opts.OwnerHeader = defaultOwnerHeader
	}

	mux := http.NewServeMux()

	registerWSRoutes(mux, hub, store, opts)
	registerAPIRoutes(mux, store, opts)

	fileServer := http.FileServer(http.FS(staticFS))
	mux.HandleFunc("/", serveSPA(fileServer))

	return chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		identity(opts.OwnerHeader),
	).Handler(mux), nil
}

func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web UI listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func identity(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := strings.TrimSpace(r.Header.Get(header))
			if owner != "" {
				r = r.WithContext(context.WithValue(r.Context(), ownerCtxKey, owner))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isAdmin(r *http.Request, token string) bool {
	if token == "" {
		return false
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" || strings.HasPrefix(r.URL.Path, "/ws/") {
			http.NotFound(w, r)
			return
		}

		// Client-side routes fall back to the root, which serves index.html.
		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" || !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}
