package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buymove/buymove-client/engine/favorites"
)

func newFavoritesCmd(get func() *app, asJSON *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "Manage favorite listings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List favorites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if err := a.favorites.Refresh(cmd.Context()); err != nil {
				return err
			}
			favs := a.favorites.Favorites()
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), favs)
			}
			if len(favs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No favorites yet")
				return nil
			}
			return printFavorites(cmd.OutOrStdout(), favs)
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <vehicle-id>",
		Short: "Add or remove a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			v, err := a.catalog.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.favorites.Refresh(cmd.Context()); err != nil {
				return err
			}
			out, err := a.favorites.Toggle(cmd.Context(), v)
			if err != nil {
				return err
			}
			switch out {
			case favorites.OutcomeAdded:
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s to favorites\n", v.Title)
			case favorites.OutcomeRemoved:
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from favorites\n", v.Title)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:     "remove <vehicle-id>",
		Aliases: []string{"rm"},
		Short:   "Remove a favorite",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			if err := a.favorites.Refresh(cmd.Context()); err != nil {
				return err
			}
			if err := a.favorites.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List favorites saved on this device but not in the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if err := a.favorites.Refresh(cmd.Context()); err != nil {
				return err
			}
			favs, err := a.favorites.LocalPending(cmd.Context())
			if err != nil {
				return err
			}
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), favs)
			}
			return printFavorites(cmd.OutOrStdout(), favs)
		},
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Copy favorites saved on this device into the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if !a.sessions.Authenticated() {
				return errors.New("log in first")
			}
			if err := a.favorites.Refresh(cmd.Context()); err != nil {
				return err
			}
			favs, err := a.favorites.LocalPending(cmd.Context())
			if err != nil {
				return err
			}
			var errs []error
			added := 0
			for _, f := range favs {
				out, err := a.favorites.Toggle(cmd.Context(), f.Vehicle)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", f.VehicleID, err))
					continue
				}
				if out == favorites.OutcomeAdded {
					added++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d favorite(s)\n", added, len(favs))
			return errors.Join(errs...)
		},
	}

	cmd.AddCommand(list, toggle, remove, pending, importCmd)
	return cmd
}
