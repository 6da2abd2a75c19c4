// Command glkdcd is the GLKDC server entry point: flag/env parsing,
// composition of every domain package into one running process, and
// graceful shutdown. Grounded on the teacher's cmd/daemon/main.go
// (flag.Parse, signal.NotifyContext, a single composition call, Run/stop
// logging) generalized from "wire one daemon service" to "wire the group
// membership and key-distribution stack".
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"glkdc.dev/glkdcd/internal/config"
	"glkdc.dev/glkdcd/internal/domains/group/candidate"
	"glkdc.dev/glkdcd/internal/domains/group/controller"
	"glkdc.dev/glkdcd/internal/domains/group/fsm"
	"glkdc.dev/glkdcd/internal/domains/group/ids"
	"glkdc.dev/glkdcd/internal/domains/group/keycache"
	"glkdc.dev/glkdcd/internal/domains/group/keyepoch"
	"glkdc.dev/glkdcd/internal/domains/group/keystore"
	"glkdc.dev/glkdcd/internal/domains/group/membership"
	"glkdc.dev/glkdcd/internal/httpapi"
	"glkdc.dev/glkdcd/internal/platform/metrics"
	"glkdc.dev/glkdcd/internal/platform/obslog"
	"glkdc.dev/glkdcd/internal/platform/ratelimiter"
	"glkdc.dev/glkdcd/internal/pubsub"
	"glkdc.dev/glkdcd/internal/securestore"
	"glkdc.dev/glkdcd/internal/server"
	"glkdc.dev/glkdcd/internal/server/workerpool"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	listenAddr := flag.String("listen-addr", "", "HTTP listen address (overrides config/env)")
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	poolSize := flag.Int("worker-pool-size", 8, "fixed worker pool size")
	poolQueue := flag.Int("worker-pool-queue", 256, "worker pool queue depth")
	flag.Parse()

	if *showVersion {
		fmt.Printf("glkdcd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.New(obslog.NewSanitizingHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg := config.Load(*configPath)
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	if err := run(ctx, cfg, *poolSize, *poolQueue, log); err != nil {
		log.Error("glkdcd failed", "err", err)
		os.Exit(1)
	}
	log.Info("glkdcd stopped")
}

func run(ctx context.Context, cfg config.Config, poolSize, poolQueue int, log *slog.Logger) error {
	clock := func() time.Time { return time.Now().UTC() }

	members := membership.New()
	keys := keystore.New()
	if securestore.IsStorageConfigured(cfg.Persist.Path, cfg.Persist.Secret) {
		if err := server.LoadAndWire(cfg.Persist.Path, cfg.Persist.Secret, members, keys); err != nil {
			return fmt.Errorf("glkdcd: restoring persisted state: %w", err)
		}
	}

	bus := pubsub.New(cfg.PubSub)
	limiters := ratelimiter.NewDefault()
	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	f := &fsm.FSM{
		Store:      members,
		KeyStore:   keys,
		Limiters:   limiters,
		Bus:        bus,
		Accounts:   noopAccountDirectory{},
		Mutuality:  noopMutualityChecker{},
		Privileged: cfg.PrivilegedSet(),
		Log:        log,
		Now:        clock,
		NewMsgID:   ids.RequestID,
	}

	coordinator := &keyepoch.Coordinator{
		Members:  members,
		Keys:     keys,
		Cache:    keycache.New(cfg.KeyCache.TTL),
		Selector: candidate.New(),
		Bus:      bus,
		Limiters: limiters,
		Policy:   cfg.Policy(),
		Log:      log,
		Now:      clock,
		NewMsgID: ids.RequestID,
	}

	ctrl := &controller.Controller{
		FSM:      f,
		KeyEpoch: coordinator,
		Members:  members,
		Limiters: limiters,
		PeerKeys: noopPeerKeyDirectory{},
		Log:      log,
		Metrics:  reg,
		Now:      clock,
	}

	router := httpapi.NewRouter(ctrl)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &server.Server{
		HTTP: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		Bus:  bus,
		Pool: workerpool.New(poolSize, poolQueue),
	}

	log.Info("glkdcd starting", "listen_addr", cfg.ListenAddr)
	return srv.Run(ctx)
}

// noopAccountDirectory/noopMutualityChecker/noopPeerKeyDirectory are
// placeholders for the account/device and contact-graph services spec §1
// explicitly excludes ("does not define... account/auth storage"). A real
// deployment replaces these with clients for those out-of-process systems;
// until then every qr-code-owner lookup, mutuality check, and DH key fetch
// degrades to empty/true rather than panicking on a nil collaborator.
type noopAccountDirectory struct{}

func (noopAccountDirectory) PublicKey(ctx context.Context, uid string) ([]byte, error) {
	return nil, nil
}

type noopMutualityChecker struct{}

func (noopMutualityChecker) IsMutualContact(ctx context.Context, a, b string) (bool, error) {
	return true, nil
}

type noopPeerKeyDirectory struct{}

func (noopPeerKeyDirectory) DHKeys(ctx context.Context, uids []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}
