package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the resume parsing workers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApplication(ctx, wiring{generator: true, mail: true})
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("starting the cv-screener", zap.String("version", version))

	// Workers outlive the signal so queued resumes are drained on shutdown.
	poolCtx, cancelPool := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelPool()
	a.pool.Start(poolCtx)

	server := api.New(api.Deps{
		Store:     a.store,
		Ingestor:  a.pipeline,
		Jobs:      a.jobs,
		Matcher:   a.matcher,
		Inviter:   a.dispatcher,
		BodyLimit: a.config.Server.BodyLimit,
	}, a.logger.Named("http"))

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.Listen(a.config.Server.Address)
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down", zap.Duration("timeout", a.config.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Server.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = err
		a.logger.Error("http server shutdown", zap.Error(err))
	}

	drained := make(chan struct{})
	go func() {
		a.pool.Stop()
		close(drained)
	}()

	select {
	case <-drained:
		a.logger.Info("parse queue drained")
	case <-shutdownCtx.Done():
		a.logger.Warn("parse queue not drained in time, cancelling running tasks")
		cancelPool()
		<-drained
	}

	return shutdownErr
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
