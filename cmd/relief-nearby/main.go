package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mr1hm/go-relief-map/internal/geo"
	"github.com/mr1hm/go-relief-map/internal/logging"
	"github.com/mr1hm/go-relief-map/internal/models"
	"github.com/mr1hm/go-relief-map/internal/overlay"
	"github.com/mr1hm/go-relief-map/internal/source"
)

type Options struct {
	Backend  string        `short:"b" long:"backend" env:"BACKEND_URL" default:"http://localhost:5000" description:"Relief backend base URL"`
	Timeout  time.Duration `short:"t" long:"timeout" env:"BACKEND_TIMEOUT" default:"15s" description:"Backend request timeout"`
	Lat      *float64      `long:"lat" description:"Origin latitude"`
	Lon      *float64      `long:"lon" description:"Origin longitude"`
	Disaster *int64        `short:"d" long:"disaster" description:"Use this disaster's location as the origin"`
	Radius   float64       `short:"r" long:"radius" env:"NEARBY_RADIUS_KM" default:"100" description:"Search radius in km"`
	Format   string        `short:"f" long:"format" description:"Output format" choice:"table" choice:"json" choice:"geojson" default:"table"`
	Verbose  bool          `short:"v" long:"verbose" description:"Log fetch details to stderr"`
}

func main() {
	_ = godotenv.Load()

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.New(os.Stderr, level, "text")

	if opts.Disaster == nil && (opts.Lat == nil || opts.Lon == nil) {
		fmt.Fprintln(os.Stderr, "Error: either --disaster or both --lat and --lon are required")
		os.Exit(1)
	}
	if opts.Radius < 0 {
		fmt.Fprintln(os.Stderr, "Error: --radius must be >= 0")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout+time.Second)
	defer cancel()

	client := source.NewClient(opts.Backend, opts.Timeout, source.WithLogger(logger))
	snap, err := client.FetchMapData(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching map data: %v\n", err)
		os.Exit(1)
	}

	origin, err := resolveOrigin(opts, snap)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	nearby := overlay.RankNearby(origin, snap.Centers, opts.Radius)

	switch opts.Format {
	case "json":
		err = writeJSON(os.Stdout, origin, nearby)
	case "geojson":
		err = writeGeoJSON(os.Stdout, origin, nearby)
	default:
		err = writeTable(os.Stdout, nearby)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		os.Exit(1)
	}
}

func resolveOrigin(opts Options, snap models.Snapshot) (geo.Point, error) {
	if opts.Disaster != nil {
		for _, d := range snap.Disasters {
			if d.ID == *opts.Disaster {
				return d.Location, nil
			}
		}
		return geo.Point{}, fmt.Errorf("disaster %d not found in map data", *opts.Disaster)
	}

	p := geo.Point{Lat: *opts.Lat, Lon: *opts.Lon}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("coordinates out of range: %v, %v", p.Lat, p.Lon)
	}
	return p, nil
}

func writeTable(w io.Writer, nearby []overlay.NearbyCenter) error {
	if len(nearby) == 0 {
		_, err := fmt.Fprintln(w, "No relief centers within range.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tOCCUPANCY\tDISTANCE")
	for _, n := range nearby {
		occupancy := fmt.Sprintf("%d/%d", n.Center.Occupancy, n.Center.Capacity)
		if rate, ok := overlay.OccupancyRate(n.Center.Occupancy, n.Center.Capacity); ok {
			occupancy += fmt.Sprintf(" (%.0f%%)", rate)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1f km\n",
			n.Center.ID, n.Center.Name, n.Center.Category, occupancy, n.DistanceKm)
	}
	return tw.Flush()
}

type jsonCenter struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Capacity   int     `json:"capacity"`
	Occupancy  int     `json:"occupancy"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distance_km"`
}

func writeJSON(w io.Writer, origin geo.Point, nearby []overlay.NearbyCenter) error {
	out := struct {
		Origin  geo.Point    `json:"origin"`
		Centers []jsonCenter `json:"centers"`
	}{Origin: origin, Centers: make([]jsonCenter, 0, len(nearby))}

	for _, n := range nearby {
		out.Centers = append(out.Centers, jsonCenter{
			ID:         n.Center.ID,
			Name:       n.Center.Name,
			Type:       string(n.Center.Category),
			Capacity:   n.Center.Capacity,
			Occupancy:  n.Center.Occupancy,
			Latitude:   n.Center.Location.Lat,
			Longitude:  n.Center.Location.Lon,
			DistanceKm: n.DistanceKm,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeGeoJSON(w io.Writer, origin geo.Point, nearby []overlay.NearbyCenter) error {
	fc := geojson.NewFeatureCollection()

	o := geojson.NewFeature(orb.Point{origin.Lon, origin.Lat})
	o.Properties["role"] = "origin"
	fc.Append(o)

	for _, n := range nearby {
		f := geojson.NewFeature(orb.Point{n.Center.Location.Lon, n.Center.Location.Lat})
		f.ID = n.Center.ID
		f.Properties["role"] = "center"
		f.Properties["name"] = n.Center.Name
		f.Properties["type"] = string(n.Center.Category)
		f.Properties["color"] = overlay.CenterColor(n.Center.Category)
		f.Properties["distance_km"] = n.DistanceKm
		fc.Append(f)
	}

	coords := []geo.Point{origin}
	for _, n := range nearby {
		coords = append(coords, n.Center.Location)
	}
	if b, ok := geo.BoundsOf(coords...); ok {
		fc.BBox = geojson.NewBBox(orb.Bound{
			Min: orb.Point{b.SouthWest.Lon, b.SouthWest.Lat},
			Max: orb.Point{b.NorthEast.Lon, b.NorthEast.Lat},
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
