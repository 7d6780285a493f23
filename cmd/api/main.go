package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"opsfloww.io/internal/audit"
	"opsfloww.io/internal/auth"
	"opsfloww.io/internal/config"
	"opsfloww.io/internal/httpapi"
	"opsfloww.io/internal/mail"
	"opsfloww.io/internal/maintenance"
	"opsfloww.io/internal/migrate"
	"opsfloww.io/internal/obs"
	"opsfloww.io/internal/revocation"
	"opsfloww.io/internal/store/memory"
	"opsfloww.io/internal/store/mongo"
	"opsfloww.io/internal/work"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is what both store drivers provide.
type backend interface {
	auth.UserStore
	work.Store
}

func main() {
	if err := run(); err != nil {
		obs.Logger().WithError(err).Fatal("opsfloww-api stopped")
	}
}

func run() error {
	obs.Init()
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	obs.SetLevel(cfg.LogLevel)
	obs.InitBuildInfo(version, commit, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.InitTracing(ctx, cfg.OTLPEndpoint, "opsfloww-api", version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	store, ready, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := revocation.Open(ctx, revocation.Options{
		Host:           cfg.Redis.Host,
		Port:           cfg.Redis.Port,
		Password:       cfg.Redis.Password,
		ConnectTimeout: cfg.Redis.ConnectTimeout,
	}, log)
	defer registry.Close()
	obs.SetRevocationBackend(registry.Backend())

	var sender mail.Sender = mail.LogSender{}
	if cfg.Email.Host != "" {
		sender = mail.NewSMTPSender(cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password)
	}

	recorder, auditDB, err := openAudit(ctx, cfg)
	if err != nil {
		return err
	}
	if auditDB != nil {
		defer auditDB.Close()
	}

	issuer, err := auth.NewIssuer(cfg.JWT.Secret, auth.WithTTLs(cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL))
	if err != nil {
		return err
	}
	creds := auth.NewCredentialStore(store, auth.Policy{
		BcryptCost:       cfg.Security.BcryptCost,
		MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
		LockDuration:     cfg.Security.LockTime,
	}, nil)
	svc, err := auth.NewService(creds, issuer, registry,
		auth.WithNotifier(mail.New(sender, cfg.Email.From)),
		auth.WithTeamDirectory(store),
		auth.WithFrontendURL(cfg.FrontendURL),
		auth.WithTOTPIssuer("OpsFloww"),
	)
	if err != nil {
		return err
	}

	if cfg.DevBypassEnabled() {
		log.WithField("role", cfg.Dev.AuthRole).Warn("development auth bypass is enabled, never run this configuration with real traffic")
	}

	api := httpapi.New(httpapi.Deps{
		Config:            cfg,
		Auth:              svc,
		Work:              store,
		Resources:         work.Loader{Store: store, Users: store},
		Audit:             recorder,
		Ready:             ready,
		RevocationBackend: registry.Backend,
		Version:           version,
	})

	sched, err := maintenance.New(cfg.MaintenanceSchedule, store, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	health := httpapi.NewHealthServer(ready)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).WithField("env", cfg.Env).Infof("starting opsfloww-api %s", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.WithField("addr", lis.Addr().String()).Info("grpc health listening")
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error { return health.Run(gctx, 15*time.Second) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (backend, httpapi.ReadinessChecker, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		obs.Logger().Warn("using in-memory store, data is lost on restart")
		return memory.New(), httpapi.ReadyProbe{}, func() {}, nil
	case "mongo", "":
		s, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Close(cctx)
		}
		return s, httpapi.ReadyProbe{Store: s}, closeFn, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openAudit attaches the Postgres sink when a DSN is configured and brings its
// schema up to date.
func openAudit(ctx context.Context, cfg config.Config) (*audit.Recorder, *sql.DB, error) {
	if cfg.AuditPGDSN == "" {
		return audit.NewRecorder(nil), nil, nil
	}
	db, err := audit.OpenPG(cfg.AuditPGDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := migrate.NewManager(db, audit.Migrations).Up(mctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("audit migrations: %w", err)
	}
	return audit.NewRecorder(audit.NewPGSink(db)), db, nil
}
