package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matchmaking/internal/api"
	"github.com/oggyb/muzz-matchmaking/internal/config"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/identity"
	"github.com/oggyb/muzz-matchmaking/internal/service/introductions"
	"github.com/oggyb/muzz-matchmaking/internal/service/matches"
	"github.com/oggyb/muzz-matchmaking/internal/service/matchmaking"
	"github.com/oggyb/muzz-matchmaking/internal/service/questionnaire"
)

// Services are the handlers the REST surface fronts. They are the same
// instances registered on the gRPC server.
type Services struct {
	Matchmaking   *matchmaking.Service
	Introductions *introductions.Service
	Questionnaire *questionnaire.Service
	Matches       *matches.Service
}

// NewRouter mounts the REST API under /api/v1 plus /healthz and /metrics.
// The caller's username is read from the X-Username header set upstream.
func NewRouter(logger *slog.Logger, svcs Services) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(identityMiddleware, loggingMiddleware(logger))

	mm := v1.PathPrefix("/matchmaking").Subrouter()
	mm.HandleFunc("/preferences", endpoint(svcs.Matchmaking.UpdatePreferences, jsonBody[api.PreferencesRequest])).Methods(http.MethodPost)
	mm.HandleFunc("/preferences", endpoint(svcs.Matchmaking.GetPreferences)).Methods(http.MethodGet)
	mm.HandleFunc("/start", endpoint(svcs.Matchmaking.Start)).Methods(http.MethodPost)
	mm.HandleFunc("/status", endpoint(svcs.Matchmaking.GetStatus)).Methods(http.MethodGet)
	mm.HandleFunc("/stop", endpoint(svcs.Matchmaking.Stop)).Methods(http.MethodPost)
	mm.HandleFunc("/skip", endpoint(svcs.Matchmaking.Skip, jsonBody[api.SkipRequest])).Methods(http.MethodPost)
	mm.HandleFunc("/pause", endpoint(svcs.Matchmaking.SetMatchingPaused, jsonBody[api.PauseRequest])).Methods(http.MethodPost)

	intro := v1.PathPrefix("/introductions").Subrouter()
	intro.HandleFunc("", endpoint(svcs.Introductions.GetIntroductions)).Methods(http.MethodGet)
	intro.HandleFunc("/{id:[0-9]+}/shown", endpoint(svcs.Introductions.MarkShown, introductionID)).Methods(http.MethodPost)
	intro.HandleFunc("/{id:[0-9]+}/accept", endpoint(svcs.Introductions.Accept, introductionID)).Methods(http.MethodPost)
	intro.HandleFunc("/{id:[0-9]+}/pass", endpoint(svcs.Introductions.Pass, introductionID)).Methods(http.MethodPost)

	q := v1.PathPrefix("/questionnaire").Subrouter()
	q.HandleFunc("", endpoint(svcs.Questionnaire.ListQuestions)).Methods(http.MethodGet)
	q.HandleFunc("/answers", endpoint(svcs.Questionnaire.SubmitAnswers, jsonBody[api.SubmitAnswersRequest])).Methods(http.MethodPost)

	m := v1.PathPrefix("/matches").Subrouter()
	m.HandleFunc("", endpoint(svcs.Matches.ListMatches, paginationToken)).Methods(http.MethodGet)
	m.HandleFunc("/{id:[0-9]+}", endpoint(svcs.Matches.GetMatch, matchID)).Methods(http.MethodGet)

	return r
}

// NewHTTPHandler wraps the router with CORS for the configured origins.
func NewHTTPHandler(cfg *config.Config, logger *slog.Logger, svcs Services) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", identity.HeaderName},
		AllowCredentials: true,
	}).Handler(NewRouter(logger, svcs))
}

// NewHTTPServer returns an http.Server on cfg.HTTP.Addr; the caller owns
// ListenAndServe and Shutdown.
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, svcs Services) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           NewHTTPHandler(cfg, logger, svcs),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// binder fills part of a request from the HTTP request.
type binder[Req any] func(r *http.Request, req *Req) error

// endpoint adapts a service method into an http.HandlerFunc.
func endpoint[Req, Resp any](fn func(context.Context, *Req) (*Resp, error), binders ...binder[Req]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(Req)
		for _, bind := range binders {
			if err := bind(r, req); err != nil {
				WriteError(w, err)
				return
			}
		}
		resp, err := fn(r.Context(), req)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// jsonBody decodes the request body. An empty body leaves req at its zero value.
func jsonBody[Req any](r *http.Request, req *Req) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return svcErr.InvalidArgument("invalid JSON body: " + err.Error())
	}
	return nil
}

func introductionID(r *http.Request, req *api.IntroductionRequest) error {
	id, err := pathID(r)
	req.ID = id
	return err
}

func matchID(r *http.Request, req *api.GetMatchRequest) error {
	id, err := pathID(r)
	req.ID = id
	return err
}

func paginationToken(r *http.Request, req *api.ListMatchesRequest) error {
	if tok := r.URL.Query().Get("paginationToken"); tok != "" {
		req.PaginationToken = &tok
	}
	return nil
}

func pathID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, svcErr.InvalidArgument("invalid id")
	}
	return id, nil
}

func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if username := r.Header.Get(identity.HeaderName); username != "" {
			r = r.WithContext(identity.With(r.Context(), username))
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err through the domain taxonomy into {"error": "..."}.
func WriteError(w http.ResponseWriter, err error) {
	msg := err.Error()
	if s, ok := status.FromError(err); ok {
		msg = s.Message()
	}
	WriteJSON(w, svcErr.HTTPStatus(err), map[string]string{"error": msg})
}
