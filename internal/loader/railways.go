package loader

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/railway-atlas/internal/config"
	"github.com/sells-group/railway-atlas/internal/model"
	"go.uber.org/zap"
)

// RailFields names the railway attributes.
type RailFields struct {
	ID    string
	Year  string
	Type  string
	Gauge string
}

// RailFieldsFrom maps the configured field names.
func RailFieldsFrom(c config.FieldsConfig) RailFields {
	return RailFields{ID: c.RailID, Year: c.RailYear, Type: c.RailType, Gauge: c.RailGauge}
}

// LoadRailways reads the railway lines and returns them in the target CRS.
// Lines without a positive construction year were never opened and are
// dropped.
func LoadRailways(ctx context.Context, src Source, fields RailFields, target string) ([]model.RailSegment, error) {
	log := zap.L().With(zap.String("component", "loader.railways"))

	c, err := readVector(ctx, src)
	if err != nil {
		return nil, err
	}
	proj, err := projector(src, c.crs, target)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(c.features))
	segments := make([]model.RailSegment, 0, len(c.features))
	var unbuilt int
	for _, f := range c.features {
		id := featureID(f, fields.ID)

		year, err := parseYear(f.attr(fields.Year))
		if err != nil {
			return nil, model.NewSourceFormatError(src.label(), id, "invalid construction year "+strconv.Quote(f.attr(fields.Year)), err)
		}
		if year <= 0 {
			unbuilt++
			continue
		}

		gauge, err := model.ParseGauge(f.attr(fields.Gauge))
		if err != nil {
			return nil, model.NewSourceFormatError(src.label(), id, "invalid gauge", err)
		}

		ml, err := lineal(src, f, id)
		if err != nil {
			return nil, err
		}
		ml, err = proj.MultiLineString(ml)
		if err != nil {
			return nil, model.NewCRSResolutionError(src.label(), c.crs, err)
		}

		if n := seen[id]; n > 0 {
			log.Debug("duplicate segment id", zap.String("id", id), zap.Int("occurrence", n+1))
			seen[id] = n + 1
			id = id + "-" + strconv.Itoa(n+1)
		} else {
			seen[id] = 1
		}

		segments = append(segments, model.NewRailSegment(id, ml, year, model.ParseLineType(f.attr(fields.Type)), gauge))
	}

	log.Info("railways loaded",
		zap.String("source", src.label()),
		zap.Int("segments", len(segments)),
		zap.Int("unbuilt", unbuilt),
	)
	return segments, nil
}

// parseYear accepts integer or float years ("1860", "1860.0"); empty means 0.
func parseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if y, err := strconv.Atoi(s); err == nil {
		return y, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(math.Round(f)), nil
}

func featureID(f feature, field string) string {
	if field != "" {
		if v := f.attr(field); v != "" {
			// DBF numeric ids come back as "12.0" or padded.
			if n, err := strconv.ParseFloat(v, 64); err == nil && n == math.Trunc(n) {
				return strconv.FormatInt(int64(n), 10)
			}
			return v
		}
	}
	return strconv.Itoa(f.index + 1)
}
