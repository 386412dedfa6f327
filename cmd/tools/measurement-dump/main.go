// Command measurement-dump prints archived fog-lidar measurements.
//
// Without -step it lists the session's steps; with -step it decodes that
// buffer and prints its header and detections.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/lidardb"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/measurement"
	"github.com/idslab-autosec/AutoSVT-carla/internal/lidar/reflectivity"
	"github.com/idslab-autosec/AutoSVT-carla/internal/monitoring"
)

var (
	dbFile    = flag.String("db", "fog_lidar.db", "Path to the SQLite archive")
	sessionID = flag.String("session", "", "Session ID (default: most recent session)")
	step      = flag.Int64("step", -1, "Step to decode (negative: list steps)")
	channel   = flag.Int("channel", -1, "Only print this channel (negative: all channels)")
	limit     = flag.Int("limit", 20, "Maximum detections printed per channel (0: no limit)")
	asJSON    = flag.Bool("json", false, "Emit JSON instead of tables")
)

type dumpOptions struct {
	sessionID string
	step      int64
	channel   int
	limit     int
	json      bool
}

// detectionRow is the JSON form of one printed detection.
type detectionRow struct {
	Channel   int     `json:"channel"`
	Index     int     `json:"index"`
	X         float32 `json:"x"`
	Y         float32 `json:"y"`
	Z         float32 `json:"z"`
	Distance  float64 `json:"distance"`
	Intensity float32 `json:"intensity"`
	Tag       string  `json:"tag"`
}

type stepDump struct {
	Meta             lidardb.MeasurementMeta `json:"meta"`
	PointsPerChannel []uint32                `json:"points_per_channel"`
	Detections       []detectionRow          `json:"detections"`
}

func resolveSession(ctx context.Context, ldb *lidardb.LidarDB, id string) (string, error) {
	if id != "" {
		if _, err := ldb.GetSession(ctx, id); err != nil {
			return "", err
		}
		return id, nil
	}
	sessions, err := ldb.ListSessions(ctx, "")
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", fmt.Errorf("%w: archive has no sessions", lidardb.ErrNotFound)
	}
	return sessions[0].ID, nil
}

func dump(ctx context.Context, w io.Writer, ldb *lidardb.LidarDB, o dumpOptions) error {
	id, err := resolveSession(ctx, ldb, o.sessionID)
	if err != nil {
		return err
	}
	if o.step < 0 {
		return listSteps(ctx, w, ldb, id, o.json)
	}
	return dumpStep(ctx, w, ldb, id, o)
}

func listSteps(ctx context.Context, w io.Writer, ldb *lidardb.LidarDB, id string, asJSON bool) error {
	metas, err := ldb.ListMeasurements(ctx, id)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(metas)
	}

	fmt.Fprintf(w, "session %s: %d steps\n", id, len(metas))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tANGLE\tDENSITY\tMOR\tCHANNELS\tPOINTS\tCODEC\tRAW\tSTORED")
	for _, m := range metas {
		fmt.Fprintf(tw, "%d\t%.1f\t%.2f\t%.1f\t%d\t%d\t%s\t%d\t%d\n",
			m.Step, m.HorizontalAngle, m.FogDensity, m.MOR, m.ChannelCount, m.PointCount,
			m.Compression, m.RawSize, m.StoredSize)
	}
	return tw.Flush()
}

func dumpStep(ctx context.Context, w io.Writer, ldb *lidardb.LidarDB, id string, o dumpOptions) error {
	buf, err := ldb.LoadMeasurement(ctx, id, uint64(o.step))
	if err != nil {
		return err
	}
	m, err := measurement.Decode(buf)
	if err != nil {
		return err
	}
	if o.channel >= m.ChannelCount() {
		return fmt.Errorf("channel %d out of range [0,%d)", o.channel, m.ChannelCount())
	}

	out := stepDump{PointsPerChannel: m.Header().PointsPerChannel}
	metas, err := ldb.ListMeasurements(ctx, id)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		if meta.Step == uint64(o.step) {
			out.Meta = meta
			break
		}
	}

	for ch := 0; ch < m.ChannelCount(); ch++ {
		if o.channel >= 0 && ch != o.channel {
			continue
		}
		dets, err := m.ChannelDetections(ch)
		if err != nil {
			return err
		}
		if o.limit > 0 && len(dets) > o.limit {
			dets = dets[:o.limit]
		}
		for i, d := range dets {
			out.Detections = append(out.Detections, detectionRow{
				Channel:   ch,
				Index:     i,
				X:         d.X,
				Y:         d.Y,
				Z:         d.Z,
				Distance:  d.Distance(),
				Intensity: d.Intensity,
				Tag:       reflectivity.Tag(d.ObjectTag).String(),
			})
		}
	}

	if o.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "session %s step %d: angle %.1f deg, %d channels, %d points, MOR %.1f m\n",
		id, o.step, m.HorizontalAngle(), m.ChannelCount(), m.Len(), out.Meta.MOR)
	fmt.Fprintf(w, "points per channel: %v\n", out.PointsPerChannel)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CH\tIDX\tX\tY\tZ\tDIST\tINTENSITY\tTAG")
	for _, r := range out.Detections {
		fmt.Fprintf(tw, "%d\t%d\t%.3f\t%.3f\t%.3f\t%.2f\t%.4f\t%s\n",
			r.Channel, r.Index, r.X, r.Y, r.Z, r.Distance, r.Intensity, r.Tag)
	}
	return tw.Flush()
}

func main() {
	flag.Parse()
	monitoring.SetOutput(nil)

	if _, err := os.Stat(*dbFile); err != nil {
		log.Fatalf("measurement-dump: %v", err)
	}
	ldb, err := lidardb.Open(*dbFile)
	if err != nil {
		log.Fatalf("measurement-dump: %v", err)
	}
	defer ldb.Close()

	err = dump(context.Background(), os.Stdout, ldb, dumpOptions{
		sessionID: *sessionID,
		step:      *step,
		channel:   *channel,
		limit:     *limit,
		json:      *asJSON,
	})
	if errors.Is(err, lidardb.ErrChecksumMismatch) {
		log.Fatalf("measurement-dump: archive is corrupt: %v", err)
	}
	if err != nil {
		log.Fatalf("measurement-dump: %v", err)
	}
}
