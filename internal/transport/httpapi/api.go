package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/availability"
	"appointly/backend/internal/service/booking"
	"appointly/backend/internal/service/catalog"
	"appointly/backend/internal/service/conflicts"
)

const maxBodyBytes = 1 << 20

type bookingService interface {
	Book(ctx context.Context, in booking.BookInput) (domain.Appointment, error)
	UpdateBooking(ctx context.Context, in booking.UpdateInput) (domain.Appointment, error)
	CheckConflict(ctx context.Context, in booking.CheckInput) (conflicts.Decision, error)
	Get(ctx context.Context, businessID string, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, businessID, date, serviceName string) ([]domain.Appointment, error)
	Search(ctx context.Context, businessID, phone, name string) ([]domain.Appointment, error)
	DailyStats(ctx context.Context, businessID, date string) (booking.DailyStats, error)
	Delete(ctx context.Context, businessID string, id uuid.UUID) error
}

type catalogService interface {
	Create(ctx context.Context, in catalog.CreateInput) (domain.Service, error)
	List(ctx context.Context, ownerID string) ([]domain.Service, error)
	Update(ctx context.Context, in catalog.UpdateInput) (domain.Service, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

type availabilityService interface {
	CreateWindow(ctx context.Context, in availability.CreateWindowInput) (domain.AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, ownerID string, id uuid.UUID) error
	ListWindows(ctx context.Context, ownerID string) ([]domain.AvailabilityWindow, error)
	GetWindows(ctx context.Context, ownerID string, day time.Weekday) ([]domain.AvailabilityWindow, error)
	Openings(ctx context.Context, in availability.OpeningsInput) ([]availability.Opening, error)
}

type tokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// ReadyCheck is a named dependency probed by /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

type Config struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	// Limiter is optional; nil disables rate limiting.
	Limiter     Limiter
	ReadyChecks []ReadyCheck
}

type API struct {
	router       *mux.Router
	bookings     bookingService
	catalog      catalogService
	availability availabilityService
	tokens       tokenVerifier
	log          *slog.Logger
	cfg          Config
}

func NewAPI(bookings bookingService, cat catalogService, avail availabilityService, tokens tokenVerifier, log *slog.Logger, cfg Config) *API {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	a := &API{
		router:       mux.NewRouter(),
		bookings:     bookings,
		catalog:      cat,
		availability: avail,
		tokens:       tokens,
		log:          log.With(slog.String("component", "http")),
		cfg:          cfg,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.router.Use(nameSpan)
	a.router.HandleFunc("/healthz", a.health).Methods(http.MethodGet)
	a.router.HandleFunc("/readyz", a.ready).Methods(http.MethodGet)

	api := a.router.PathPrefix("/api").Subrouter()
	api.Use(a.authenticate)
	if a.cfg.Limiter != nil {
		api.Use(rateLimit(a.cfg.Limiter, a.log))
	}

	biz := api.PathPrefix("/businesses/{businessID}").Subrouter()
	biz.HandleFunc("/services", a.listBusinessServices).Methods(http.MethodGet)
	biz.HandleFunc("/availability", a.listBusinessAvailability).Methods(http.MethodGet)
	biz.HandleFunc("/openings", a.listOpenings).Methods(http.MethodGet)
	biz.HandleFunc("/conflicts", a.requireAuth(a.checkConflict)).Methods(http.MethodPost)
	biz.HandleFunc("/appointments", a.requireAuth(a.bookAppointment)).Methods(http.MethodPost)
	biz.HandleFunc("/appointments/{id}", a.requireAuth(a.updateAppointment)).Methods(http.MethodPut)
	biz.HandleFunc("/appointments/{id}", a.requireAuth(a.deleteAppointment)).Methods(http.MethodDelete)

	me := api.PathPrefix("/me").Subrouter()
	me.HandleFunc("/appointments", a.requireOwner(a.listMyAppointments)).Methods(http.MethodGet)
	me.HandleFunc("/appointments/search", a.requireOwner(a.searchMyAppointments)).Methods(http.MethodGet)
	me.HandleFunc("/appointments/{id}", a.requireOwner(a.getMyAppointment)).Methods(http.MethodGet)
	me.HandleFunc("/stats/{date}", a.requireOwner(a.dailyStats)).Methods(http.MethodGet)
	me.HandleFunc("/services", a.requireOwner(a.createService)).Methods(http.MethodPost)
	me.HandleFunc("/services", a.requireOwner(a.listMyServices)).Methods(http.MethodGet)
	me.HandleFunc("/services/{id}", a.requireOwner(a.updateService)).Methods(http.MethodPut)
	me.HandleFunc("/services/{id}", a.requireOwner(a.deleteService)).Methods(http.MethodDelete)
	me.HandleFunc("/availability", a.requireOwner(a.createWindow)).Methods(http.MethodPost)
	me.HandleFunc("/availability", a.requireOwner(a.listMyWindows)).Methods(http.MethodGet)
	me.HandleFunc("/availability/{id}", a.requireOwner(a.deleteWindow)).Methods(http.MethodDelete)
}

// Router exposes the bare router for tests.
func (a *API) Router() *mux.Router {
	return a.router
}

// Handler returns the router wrapped in the full middleware stack.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = http.TimeoutHandler(h, a.cfg.RequestTimeout, `{"error":{"code":"TIMEOUT","message":"request timed out"}}`)
	h = withBodyLimit(h, maxBodyBytes)
	if len(a.cfg.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(a.cfg.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type", idempotencyKeyHeader, requestIDHeader}),
			handlers.ExposedHeaders([]string{requestIDHeader}),
			handlers.MaxAge(600),
		)(h)
	}
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: a.log}),
		handlers.PrintRecoveryStack(false),
	)(h)
	h = withAccessLog(h, a.log)
	h = withRequestID(h)
	return otelhttp.NewHandler(h, "http.server")
}

// nameSpan renames the server span after the matched route template so span
// names stay low-cardinality.
func nameSpan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + tpl)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	var failures []string
	for _, check := range a.cfg.ReadyChecks {
		if check.Check == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check.Check(ctx)
		cancel()
		if err != nil {
			a.log.Warn("readiness check failed", slog.String("check", check.Name), slog.Any("err", err))
			failures = append(failures, check.Name)
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
