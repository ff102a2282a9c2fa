package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/cpswap/hookcpi/internal/log"
	hookgin "github.com/cpswap/hookcpi/pkg/gin"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the setup API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := openLedger()
		if err != nil {
			return err
		}
		defer l.Close()

		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		if cfg.Log.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           hookgin.NewRouter(l.service, hookgin.WithLogger(log.API)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.API.Info().Str("addr", srv.Addr).Msg("Serving setup API")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.API.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}
