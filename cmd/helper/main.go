package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/okhramov/glimpse/internal/adapters/control"
	"github.com/okhramov/glimpse/internal/adapters/devicesock"
	router "github.com/okhramov/glimpse/internal/adapters/http"
	"github.com/okhramov/glimpse/internal/adapters/rtc"
	sigchan "github.com/okhramov/glimpse/internal/adapters/signal"
	"github.com/okhramov/glimpse/internal/app"
	"github.com/okhramov/glimpse/internal/config"
	"github.com/okhramov/glimpse/internal/core"
	"github.com/okhramov/glimpse/internal/crypto"
	"github.com/okhramov/glimpse/internal/devices"
	"github.com/okhramov/glimpse/internal/domain"
	"github.com/okhramov/glimpse/internal/roomid"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	cryptor := crypto.NewProvider()
	roomIDs := roomid.NewService(time.Now().UnixNano())
	tracker := devices.NewTracker()

	reg := app.NewRegistry(cryptor, roomIDs, tracker, cfg.ReapInterval)
	defer reg.Close()

	if cfg.TestMode() {
		// Key generation is skipped under RUN_MODE=test.
		reg.SetLocalUser(domain.NewLocalUser("test-private-key", "test-public-key"))
	} else {
		reg.InitLocalUser()
	}

	hostState := app.NewHostState(false, "en")
	dsock := devicesock.NewServer()

	ctl := &control.Controller{
		Registry: reg,
		Devices:  tracker,
		Host:     hostState,
		Crypto:   cryptor,
		Transports: func(sid domain.SessionID) (core.PeerTransport, error) {
			return rtc.NewTransport(rtc.DefaultConfig(cfg.StunURLs), sid, dsock.LookupIP)
		},
		Senders:   dsock.Sender,
		HostState: hostState,
	}

	dsock.OnEnvelope(func(_ domain.RoomID, env sigchan.Envelope) {
		if p := ctl.Peer(); p != nil {
			p.HandleEncryptedMessage(env)
		}
	})
	dsock.OnPartnerKey(func(_ domain.RoomID, key string) {
		if p := ctl.Peer(); p != nil {
			p.Channel().SetPartnerPublicKey(key)
		}
	})

	r := router.SetupRouter(ctx, cfg, reg, ctl)
	helperSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	deviceRouter := gin.New()
	deviceRouter.Use(gin.Recovery())
	deviceRouter.GET("/ws/room/:roomID", dsock.HandleDevice)
	deviceSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.SignalingPort),
		Handler: deviceRouter,
	}

	go func() {
		log.Info().Str("addr", helperSrv.Addr).Msg("helper control server started")
		if err := helperSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("helper server error")
		}
	}()
	go func() {
		log.Info().Str("addr", deviceSrv.Addr).Msg("device signaling server started")
		if err := deviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("device server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := helperSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("helper server forced to shutdown")
	}
	// Live device websockets are hijacked connections; Shutdown does not
	// reach them.
	dsock.Close()
	if err := deviceSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("device server forced to shutdown")
	}
	log.Info().Msg("Helper exited gracefully")
}
