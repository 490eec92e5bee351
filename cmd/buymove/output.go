package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/buymove/buymove-client/engine/domain"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printVehicles(w io.Writer, vs []domain.Vehicle) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tYEAR\tPRICE\tKM\tLOCATION")
	for _, v := range vs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.Title, yearString(v.Year), formatBRL(v.Price), formatKm(v.Mileage), v.Location)
	}
	return tw.Flush()
}

func printVehicle(w io.Writer, v domain.Vehicle) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "%s\t%s\n", k, v)
		}
	}
	row("ID", v.ID)
	row("Title", v.Title)
	row("Brand", v.Brand)
	row("Model", strings.TrimSpace(v.Model+" "+v.Version))
	row("Year", yearString(v.Year))
	row("Price", formatBRL(v.Price))
	row("Mileage", formatKm(v.Mileage))
	row("Color", v.Color)
	row("Fuel", v.FuelType)
	row("Transmission", v.Transmission)
	row("Doors", v.DoorsString())
	row("Location", v.Location)
	row("Features", strings.Join(v.Features, ", "))
	row("Contact", strings.Join(nonEmpty(v.ContactName, v.ContactPhone, v.ContactEmail), " / "))
	row("Images", strconv.Itoa(len(v.Gallery)))
	if err := tw.Flush(); err != nil {
		return err
	}
	if v.Description != "" {
		fmt.Fprintf(w, "\n%s\n", v.Description)
	}
	return nil
}

func printFavorites(w io.Writer, favs []domain.Favorite) error {
	vs := make([]domain.Vehicle, len(favs))
	for i, f := range favs {
		vs[i] = f.Vehicle
		vs[i].ID = f.VehicleID
	}
	return printVehicles(w, vs)
}

// formatBRL renders a price as Brazilian reais, e.g. R$ 50.000,00.
func formatBRL(v float64) string {
	cents := int64(math.Round(math.Abs(v) * 100))
	sign := ""
	if v < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, groupThousands(cents/100), cents%100)
}

func formatKm(km float64) string {
	return groupThousands(int64(math.Round(km))) + " km"
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func yearString(y int) string {
	if y == 0 {
		return "-"
	}
	return strconv.Itoa(y)
}

func nonEmpty(ss ...string) []string {
	var out []string
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
