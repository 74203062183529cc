package train

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	verrors "github.com/YuminosukeSato/voxnet/pkg/errors"
)

// History accumulates per-epoch metric series during training.
type History struct {
	series map[string][]float64
	order  []string
}

func NewHistory() *History {
	return &History{series: make(map[string][]float64)}
}

// Record appends one value to the named series.
func (h *History) Record(name string, value float64) {
	if _, ok := h.series[name]; !ok {
		h.order = append(h.order, name)
	}
	h.series[name] = append(h.series[name], value)
}

// Series returns the recorded values for name, or nil.
func (h *History) Series(name string) []float64 {
	return h.series[name]
}

// Epochs returns the length of the longest series.
func (h *History) Epochs() int {
	n := 0
	for _, s := range h.series {
		if len(s) > n {
			n = len(s)
		}
	}
	return n
}

// Last returns the most recent value of the named series.
func (h *History) Last(name string) (float64, bool) {
	s := h.series[name]
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// PlotCurves renders every recorded series as a line plot and writes it to
// path. The format follows the file extension (png, svg, pdf).
func (h *History) PlotCurves(title, path string) error {
	if len(h.series) == 0 {
		return verrors.NewValueError("History.PlotCurves", "no metrics recorded")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "value"
	p.Legend.Top = true

	var args []interface{}
	for _, name := range h.order {
		values := h.series[name]
		xys := make(plotter.XYs, len(values))
		for i, v := range values {
			xys[i].X = float64(i + 1)
			xys[i].Y = v
		}
		args = append(args, name, xys)
	}

	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return verrors.Wrap(err, "History.PlotCurves")
	}
	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return verrors.Wrap(err, "History.PlotCurves")
	}
	return nil
}
