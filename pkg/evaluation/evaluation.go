// Package evaluation scores a calibration against its own anchors.
//
// Predictions are reconstructed as groundTruth + meanOffset*meanWidth, not
// through calibration.Model.Project.
package evaluation

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/teslashibe/gazepoint/pkg/calibration"
	"github.com/teslashibe/gazepoint/pkg/screen"
)

// ErrNothingToEvaluate is returned when no record maps to a known anchor.
var ErrNothingToEvaluate = errors.New("evaluation: no valid points to evaluate")

// DefaultThresholds are the accuracy radii in pixels.
var DefaultThresholds = []float64{20, 40, 60, 80, 100}

// Point is the evaluation of one anchor.
type Point struct {
	Anchor      string       `json:"anchor"`
	GroundTruth screen.Point `json:"ground_truth"`
	Predicted   screen.Point `json:"predicted"`
	DistancePx  float64      `json:"distance_px"`
	AngleDeg    float64      `json:"angle_deg"`
}

// Summary aggregates the per-anchor errors.
type Summary struct {
	MeanDistancePx float64   `json:"mean_euclidean_distance_px"`
	MeanAngleDeg   float64   `json:"mean_angular_error_deg"`
	Thresholds     []float64 `json:"accuracy_thresholds_px"`
	AccuracyPct    []float64 `json:"accuracy_percentages"`
	Points         []Point   `json:"points,omitempty"`
}

// Evaluator replays a calibration set against the anchor ground truth.
type Evaluator struct {
	Screen     screen.Size
	Thresholds []float64
	Logger     *zap.Logger
}

// New creates an evaluator with the default thresholds.
func New(size screen.Size, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{Screen: size, Thresholds: DefaultThresholds, Logger: logger}
}

// Evaluate scores every record in set whose name is a known anchor.
func (e *Evaluator) Evaluate(set calibration.Set) (Summary, error) {
	if err := e.Screen.Validate(); err != nil {
		return Summary{}, err
	}

	var points []Point
	for _, name := range set.Names() {
		anchor, ok := calibration.AnchorByName(name)
		if !ok {
			e.Logger.Warn("skipping record with unknown anchor", zap.String("anchor", name))
			continue
		}
		points = append(points, Reconstruct(anchor, set[name], e.Screen))
	}
	if len(points) == 0 {
		return Summary{}, ErrNothingToEvaluate
	}

	thresholds := e.Thresholds
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}

	var sumDist, sumAngle float64
	distances := make([]float64, len(points))
	for i, p := range points {
		sumDist += p.DistancePx
		sumAngle += p.AngleDeg
		distances[i] = p.DistancePx
	}

	acc := make([]float64, len(thresholds))
	for i, r := range thresholds {
		acc[i] = AccuracyAt(distances, r) * 100
	}

	n := float64(len(points))
	return Summary{
		MeanDistancePx: sumDist / n,
		MeanAngleDeg:   sumAngle / n,
		Thresholds:     append([]float64(nil), thresholds...),
		AccuracyPct:    acc,
		Points:         points,
	}, nil
}

// Reconstruct predicts where the anchor's fixation lands, scaling the mean
// offset by the mean reference width.
func Reconstruct(a calibration.Anchor, rec calibration.Record, size screen.Size) Point {
	gt := a.Position(size)
	pred := screen.Point{
		X: gt.X + rec.MeanDX*rec.MeanWidth,
		Y: gt.Y + rec.MeanDY*rec.MeanWidth,
	}
	return Point{
		Anchor:      a.Name,
		GroundTruth: gt,
		Predicted:   pred,
		DistancePx:  pred.Distance(gt),
		AngleDeg:    AngularError(pred, gt),
	}
}

// AngularError returns the angle in degrees between (p.x, p.y, 1) and
// (g.x, g.y, 1).
func AngularError(p, g screen.Point) float64 {
	dot := p.X*g.X + p.Y*g.Y + 1
	norm := math.Sqrt(p.X*p.X+p.Y*p.Y+1) * math.Sqrt(g.X*g.X+g.Y*g.Y+1)
	cos := dot / norm
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// AccuracyAt returns the fraction of distances strictly below r.
func AccuracyAt(distances []float64, r float64) float64 {
	if len(distances) == 0 {
		return 0
	}
	hits := 0
	for _, d := range distances {
		if d < r {
			hits++
		}
	}
	return float64(hits) / float64(len(distances))
}

// Rounded returns a copy with every figure rounded to two decimals, the
// form written to evaluation summary files.
func (s Summary) Rounded() Summary {
	out := s
	out.MeanDistancePx = round2(s.MeanDistancePx)
	out.MeanAngleDeg = round2(s.MeanAngleDeg)
	out.AccuracyPct = make([]float64, len(s.AccuracyPct))
	for i, v := range s.AccuracyPct {
		out.AccuracyPct[i] = round2(v)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
