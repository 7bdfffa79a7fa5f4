package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/courial/internal/client/bootstrap"
	"github.com/dmitrijs2005/courial/internal/client/client"
	"github.com/dmitrijs2005/courial/internal/client/config"
	"github.com/dmitrijs2005/courial/internal/client/effects"
	"github.com/dmitrijs2005/courial/internal/client/metrics"
	"github.com/dmitrijs2005/courial/internal/client/navigation"
	"github.com/dmitrijs2005/courial/internal/client/otp"
	"github.com/dmitrijs2005/courial/internal/client/session"
	"github.com/dmitrijs2005/courial/internal/clock"
	"github.com/dmitrijs2005/courial/internal/logging"
)

// App is the fully wired client.
type App struct {
	config  *config.Config
	log     logging.Logger
	out     io.Writer
	clock   clock.Clock
	metrics *metrics.Recorder

	repos   *client.Repositories
	backend *client.GRPCClient
	store   *session.Store
	orch    *bootstrap.Orchestrator
	gate    *otp.Gate

	metricsSrv *http.Server

	navMu  sync.Mutex
	navOut io.Writer
}

// NewApp opens the database, dials the backend and builds the orchestrator.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger, out io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	repos, err := client.InitDatabase(ctx, cfg.DatabasePath, []byte(cfg.StorageSecret))
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	a := &App{config: cfg, log: log, out: out, clock: clock.Real(), metrics: metrics.New(), repos: repos}
	a.store = session.NewStore(repos.Session, log, a.clock)

	backend, err := client.NewGRPCClient(cfg.BackendAddr, a.accessToken)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}
	a.backend = backend

	scheduler := effects.NewScheduler(a.store, effects.Deps{
		Push:     client.NewPush(backend, cfg.DeviceToken),
		Billing:  client.NewBilling(backend, cfg.BillingAPIKey),
		Resolver: client.NewResolver(backend),
		Discount: client.NewDiscount(backend),
	}, log.With("component", "effects"), effects.WithMetrics(a.metrics), effects.WithTimeout(cfg.RequestTimeout))

	a.orch = bootstrap.New(a.store, scheduler, a.clock, cfg.ReadinessDelay, log, func(r navigation.Route) {
		log.Debug(ctx, "navigate", "route", string(r))
		a.printRedirect(r)
	})
	a.gate = otp.NewGate(client.NewSMS(backend), log.With("component", "otp"), otp.WithGateMetrics(a.metrics))

	if cfg.MetricsAddr != "" {
		if err := a.serveMetrics(ctx, cfg.MetricsAddr); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	return a, nil
}

func (a *App) accessToken() string {
	if u := a.store.Snapshot().User; u != nil {
		return u.AccessToken
	}
	return ""
}

// printRedirect echoes r while a watch is active.
func (a *App) printRedirect(r navigation.Route) {
	a.navMu.Lock()
	defer a.navMu.Unlock()
	if a.navOut != nil {
		fmt.Fprintf(a.navOut, "navigate:       %s\n", r)
	}
}

func (a *App) watchRedirects(w io.Writer) {
	a.navMu.Lock()
	a.navOut = w
	a.navMu.Unlock()
}

func (a *App) serveMetrics(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error(ctx, "metrics server stopped", "err", err)
		}
	}()
	return nil
}

// Close waits for in-flight effects and releases every resource.
func (a *App) Close(ctx context.Context) {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		_ = a.metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Warn(ctx, "close backend", "err", err)
		}
	}
	if err := a.repos.Close(); err != nil {
		a.log.Warn(ctx, "close database", "err", err)
	}
}

// printSession writes a short human summary of s.
func printSession(w io.Writer, s session.Session) {
	fmt.Fprintf(w, "onboarded:      %v\n", s.IsOnboarded)
	fmt.Fprintf(w, "authenticated:  %v\n", s.IsAuthenticated)
	if s.User == nil {
		fmt.Fprintln(w, "user:           none")
		return
	}
	u := s.User
	fmt.Fprintf(w, "user:           %s\n", u.ID)
	if u.Phone != "" {
		fmt.Fprintf(w, "phone:          %s\n", u.Phone)
	}
	courialID := "unresolved"
	if u.HasCourialID() {
		courialID = *u.CourialID
	}
	fmt.Fprintf(w, "courial id:     %s\n", courialID)
	fmt.Fprintf(w, "plan:           %s (active subscription: %v)\n", planOrFree(u.CurrentPlan), u.HasActiveSubscription)
	if u.DiscountCheckedAt != nil {
		fmt.Fprintf(w, "discount check: %s\n", u.DiscountCheckedAt.Format(time.RFC3339))
	}
}

func planOrFree(p session.Plan) session.Plan {
	if p.Valid() {
		return p
	}
	return session.PlanFree
}
