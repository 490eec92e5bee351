package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/buymove/buymove-client/engine/events"
	"github.com/buymove/buymove-client/pkg/natsutil"
)

func newEventsCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow session and favorites events",
		Long:  "Prints the events other buymove processes publish with --events. Needs NATS.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if a.nc == nil {
				return errors.New("events: no NATS connection")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return watch(ctx, a.nc, cmd)
		},
	}
	return cmd
}

// watch prints events until ctx is done.
func watch(ctx context.Context, nc *nats.Conn, cmd *cobra.Command) error {
	var mu sync.Mutex
	out := cmd.OutOrStdout()
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	sessSub, err := natsutil.Subscribe(nc, events.SubjectSession, func(_ context.Context, e events.SessionChanged) {
		printf("%s session %s %s\n", e.At.Local().Format(time.TimeOnly), e.Phase, e.UserID)
	})
	if err != nil {
		return err
	}
	defer sessSub.Unsubscribe()

	favSub, err := natsutil.Subscribe(nc, events.SubjectFavorites, func(_ context.Context, e events.FavoritesChanged) {
		printf("%s favorites %s %s (%s, %d total)\n", e.At.Local().Format(time.TimeOnly), e.Action, e.VehicleID, e.Mode, e.Count)
	})
	if err != nil {
		return err
	}
	defer favSub.Unsubscribe()

	if err := nc.Flush(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
