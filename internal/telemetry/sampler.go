package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

const MeasurementName = "ppg"

// StoreSource returns the store of the session currently running, or nil between sessions.
type StoreSource func() *Store

type Sampler struct {
	interval time.Duration
	conn     io.Writer
	source   StoreSource
	logger   *zap.Logger
	now      func() time.Time
}

func NewSampler(interval time.Duration, conn io.Writer, source StoreSource, logger *zap.Logger) *Sampler {
	return &Sampler{
		interval: interval,
		conn:     conn,
		source:   source,
		logger:   logger,
		now:      time.Now,
	}
}

// FormatLine renders counters as an influx line protocol record.
func FormatLine(c Counters, at time.Time) string {
	var b strings.Builder
	b.WriteString(MeasurementName + " ")
	fmt.Fprintf(&b, "packets=%di,empty_reads=%di,invalid_packets=%di,", c.Packets, c.EmptyReads, c.InvalidPackets)
	fmt.Fprintf(&b, "render_drops=%di,persist_drops=%di,released=%di,", c.RenderDrops, c.PersistDrops, c.Released)
	fmt.Fprintf(&b, "points_plotted=%di,lines_recorded=%di,write_errors=%di,", c.PointsPlotted, c.LinesRecorded, c.WriteErrors)
	fmt.Fprintf(&b, "beat_avg=%di", c.BeatAvg)
	fmt.Fprintf(&b, " %d\n", at.UnixNano())
	return b.String()
}

func (s *Sampler) SampleAndLog() {
	store := s.source()
	if store == nil {
		return
	}

	line := FormatLine(store.Snapshot(), s.now())
	if err := s.send(line); err != nil {
		s.logger.Warn("[sampler] error writing telemetry", zap.Error(err))
	} else {
		s.logger.Debug("[sampler] collected sample", zap.String("influxLine", line))
	}
}

func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("[sampler] received shutdown signal")
			return nil
		case <-ticker.C:
			s.SampleAndLog()
		}
	}
}

func (s *Sampler) send(line string) error {
	data := []byte(line)
	totalWritten := 0
	for totalWritten < len(data) {
		n, err := s.conn.Write(data[totalWritten:])
		if err != nil {
			return err
		}
		totalWritten += n
	}
	return nil
}
