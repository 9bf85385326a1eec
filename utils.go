package gan_trainer

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotLosses Plot chart of mean generator and discriminator losses per epoch
func PlotLosses(history []EpochStats, fname string) error {
	if len(history) == 0 {
		return fmt.Errorf("History is empty")
	}
	genData := make(plotter.XYs, 0, len(history))
	discData := make(plotter.XYs, 0, len(history))
	// Diverged epochs are skipped: plotter refuses NaN and Inf
	for _, st := range history {
		if !st.Finite() {
			continue
		}
		genData = append(genData, plotter.XY{X: float64(st.Epoch), Y: st.GeneratorLoss})
		discData = append(discData, plotter.XY{X: float64(st.Epoch), Y: st.DiscriminatorLoss})
	}
	if len(genData) == 0 {
		return fmt.Errorf("History has no finite losses")
	}
	genLine, err := plotter.NewLine(genData)
	if err != nil {
		return errors.Wrap(err, "Can't init generator loss line")
	}
	genLine.Color = color.RGBA{R: 255, B: 128, A: 255}
	discLine, err := plotter.NewLine(discData)
	if err != nil {
		return errors.Wrap(err, "Can't init discriminator loss line")
	}
	discLine.Color = color.RGBA{G: 128, B: 255, A: 255}

	p := plot.New()
	p.Title.Text = "Losses"
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Mean loss"
	p.Add(plotter.NewGrid())
	p.Add(genLine, discLine)
	p.Legend.Add("generator", genLine)
	p.Legend.Add("discriminator", discLine)
	// Save the plot to a PNG file.
	if err := p.Save(6*vg.Inch, 4*vg.Inch, fname); err != nil {
		return errors.Wrap(err, "Can't save plot")
	}
	return nil
}
