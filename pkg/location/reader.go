// Package location reads position fixes from NMEA 0183 GPS receivers.
package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/adrianmo/go-nmea"
	"github.com/rs/zerolog"
)

// ErrNoFix is returned by ReadFix when the stream ends before any position sentence.
var ErrNoFix = errors.New("no valid GPS data found")

// Reader turns a stream of NMEA sentences into fixes. Only GGA and RMC sentences are used;
// any talker ID is accepted.
type Reader struct {
	logger zerolog.Logger
	fix    Fix
}

// NewReader creates a reader with no fix.
func NewReader(logger zerolog.Logger) *Reader {
	return &Reader{logger: logger, fix: emptyFix()}
}

// Run reads sentences from src, calling onFix after every GGA or RMC sentence. It returns io.EOF
// when the stream ends and ctx.Err() once ctx is cancelled. Malformed sentences are skipped.
func (r *Reader) Run(ctx context.Context, src io.Reader, onFix func(Fix)) error {
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}

		if r.apply(line) {
			onFix(r.fix)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read NMEA stream: %w", err)
	}
	return io.EOF
}

// ReadFix returns the first fix carried by the stream.
func (r *Reader) ReadFix(src io.Reader) (Fix, error) {
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		if r.apply(strings.TrimSpace(scanner.Text())) {
			return r.fix, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Fix{}, err
	}
	return Fix{}, ErrNoFix
}

// apply merges one sentence into the current fix and reports whether it changed anything.
func (r *Reader) apply(line string) bool {
	sentence, err := nmea.Parse(line)
	if err != nil {
		r.logger.Debug().Err(err).Str("sentence", line).Msg("Skipping malformed NMEA sentence")
		return false
	}

	switch s := sentence.(type) {
	case nmea.GGA:
		r.fix.Satellites = s.NumSatellites
		r.fix.HDOP = s.HDOP
		if s.FixQuality == nmea.Invalid {
			r.fix = lost(r.fix)
			return true
		}
		r.fix.Valid = true
		r.fix.Latitude = s.Latitude
		r.fix.Longitude = s.Longitude
		r.fix.Altitude = s.Altitude
		return true
	case nmea.RMC:
		if s.Validity != nmea.ValidRMC {
			r.fix = lost(r.fix)
			return true
		}
		r.fix.Valid = true
		r.fix.Latitude = s.Latitude
		r.fix.Longitude = s.Longitude
		r.fix.SpeedKnots = s.Speed
		r.fix.Course = s.Course
		return true
	default:
		return false
	}
}

func lost(f Fix) Fix {
	next := emptyFix()
	next.Satellites = f.Satellites
	next.HDOP = f.HDOP
	return next
}
