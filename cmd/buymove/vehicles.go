package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/buymove/buymove-client/engine/domain"
	"github.com/buymove/buymove-client/engine/query"
)

func newVehiclesCmd(get func() *app, asJSON *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vehicles",
		Aliases: []string{"v"},
		Short:   "Browse and publish listings",
	}
	cmd.AddCommand(
		newVehiclesListCmd(get, asJSON),
		newVehiclesShowCmd(get, asJSON),
		newVehiclesRecommendCmd(get, asJSON),
		newVehiclesDraftCmd(get, asJSON),
	)
	return cmd
}

func newVehiclesListCmd(get func() *app, asJSON *bool) *cobra.Command {
	var (
		spec     query.Spec
		minPrice float64
		maxPrice float64
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Search the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("min") {
				spec.MinPrice = query.Price(minPrice)
			}
			if cmd.Flags().Changed("max") {
				spec.MaxPrice = query.Price(maxPrice)
			}
			page, err := get().catalog.Query(cmd.Context(), spec)
			if err != nil {
				return err
			}
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), page)
			}
			if err := printVehicles(cmd.OutOrStdout(), page.Items); err != nil {
				return err
			}
			n := spec.Normalized()
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d result(s), page %d\n", page.Total, n.Page)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&spec.Text, "query", "q", "", "text in title or description")
	fl.StringVar(&spec.Brand, "brand", "", "brand")
	fl.Float64Var(&minPrice, "min", 0, "minimum price")
	fl.Float64Var(&maxPrice, "max", 0, "maximum price")
	fl.StringVar(&spec.Color, "color", "", "color")
	fl.StringVar(&spec.Doors, "doors", "", "number of doors")
	fl.StringVar(&spec.Location, "location", "", "city or state")
	fl.IntVar(&spec.Page, "page", 1, "page number")
	fl.IntVar(&spec.PageSize, "page-size", query.DefaultPageSize, "results per page")
	return cmd
}

func newVehiclesShowCmd(get func() *app, asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a listing and related ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			var (
				v    domain.Vehicle
				recs []domain.Vehicle
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() (err error) {
				v, err = a.catalog.Get(ctx, args[0])
				return err
			})
			g.Go(func() (err error) {
				recs, err = a.catalog.Recommendations(ctx, args[0])
				return err
			})
			g.Go(func() error {
				// Only marks the listing; a failure here is not fatal.
				if err := a.favorites.Refresh(ctx); err != nil {
					a.log.Debug("favorites unavailable", zap.Error(err))
				}
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if *asJSON {
				return printJSON(out, map[string]any{"vehicle": v, "recommendations": recs})
			}
			if err := printVehicle(out, v); err != nil {
				return err
			}
			fav := ""
			if a.favorites.IsFavorite(v.ID) {
				fav = " (favorite)"
			}
			fmt.Fprintf(out, "\nRelated listings%s:\n", fav)
			return printVehicles(out, recs)
		},
	}
}

func newVehiclesRecommendCmd(get func() *app, asJSON *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <id>",
		Short: "List vehicles related to a listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := get().catalog.Recommendations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), recs)
			}
			return printVehicles(cmd.OutOrStdout(), recs)
		},
	}
}

func newVehiclesDraftCmd(get func() *app, asJSON *bool) *cobra.Command {
	var (
		d       domain.Draft
		gallery []string
	)
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Publish a listing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d.Gallery = strings.Join(gallery, "\n")
			v, err := get().catalog.SubmitDraft(cmd.Context(), d)
			if err != nil {
				return err
			}
			if *asJSON {
				return printJSON(cmd.OutOrStdout(), v)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s: %s for %s\n", v.ID, v.Title, formatBRL(v.Price))
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&d.Title, "title", "", "listing title")
	fl.StringVar(&d.Brand, "brand", "", "brand")
	fl.StringVar(&d.Model, "model", "", "model")
	fl.StringVar(&d.Version, "version", "", "version or trim")
	fl.StringVar(&d.Year, "year", "", "model year")
	fl.StringVar(&d.Price, "price", "", `price, e.g. "R$ 45.900,00"`)
	fl.StringVar(&d.Mileage, "km", "", "mileage")
	fl.StringVar(&d.Color, "color", "", "color")
	fl.StringVar(&d.Fuel, "fuel", "", "fuel type")
	fl.StringVar(&d.Gearbox, "gearbox", "", "transmission")
	fl.StringVar(&d.Doors, "doors", "", "number of doors")
	fl.StringVar(&d.Location, "location", "", "city or state")
	fl.StringVar(&d.ImageURL, "image", "", "main image URL")
	fl.StringSliceVar(&gallery, "gallery", nil, "additional image URLs")
	fl.StringVar(&d.Description, "description", "", "description")
	fl.StringVar(&d.ContactName, "contact-name", "", "seller name")
	fl.StringVar(&d.ContactEmail, "contact-email", "", "seller e-mail")
	fl.StringVar(&d.ContactPhone, "contact-phone", "", "seller phone")
	fl.BoolVar(&d.ContactWhatsApp, "whatsapp", false, "phone takes WhatsApp")
	return cmd
}
