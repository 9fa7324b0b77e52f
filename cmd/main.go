package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/casestudy-backend/internal/app"
	"github.com/yungbote/casestudy-backend/internal/platform/shutdown"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	if err := serve(a); err != nil {
		a.Log.Error("server exited", "error", err)
		a.Close()
		os.Exit(1)
	}
	a.Close()
}

// serve blocks until the HTTP server fails or a termination signal arrives. Close is left to the
// caller so queued evaluations drain in both cases.
func serve(a *app.App) error {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a.Start()
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.Log.Info("shutdown signal received; draining")
		return nil
	}
}
