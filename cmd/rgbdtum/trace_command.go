package main

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"rgbdtum/internal/config"
	"rgbdtum/internal/trajectory"
)

func newTraceCommand() *cobra.Command {
	var pngPath string
	var htmlPath string

	cmd := &cobra.Command{
		Use:   "trace <trajectory_file>",
		Short: "Summarize and plot a saved trajectory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("trajectory path: %w", err)
			}

			traj, err := trajectory.LoadFile(path)
			if err != nil {
				return err
			}
			stats, err := trajectory.Summarize(traj)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := [][]string{
				{"points", fmt.Sprintf("%d", stats.Points)},
				{"duration", fmt.Sprintf("%.2f s", stats.Duration)},
				{"path length", fmt.Sprintf("%.3f m", stats.PathLength)},
				{"min (x y z)", fmt.Sprintf("%.3f %.3f %.3f", stats.Min.X, stats.Min.Y, stats.Min.Z)},
				{"max (x y z)", fmt.Sprintf("%.3f %.3f %.3f", stats.Max.X, stats.Max.Y, stats.Max.Z)},
			}
			fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

			if pngPath != "" {
				target, err := config.ExpandPath(pngPath)
				if err != nil {
					return fmt.Errorf("png path: %w", err)
				}
				if err := writeTracePNG(traj, target); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", target)
			}
			if htmlPath != "" {
				target, err := config.ExpandPath(htmlPath)
				if err != nil {
					return fmt.Errorf("html path: %w", err)
				}
				if err := writeTraceHTML(traj, target); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", target)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pngPath, "png", "", "Write a top-down PNG plot to this path")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Write an interactive HTML chart to this path")
	return cmd
}

// writeTracePNG renders a top-down view of the trajectory: x runs along
// the horizontal axis, z (the camera's forward axis) along the vertical.
func writeTracePNG(traj trajectory.Trajectory, path string) error {
	p := plot.New()
	p.Title.Text = "Camera trajectory (top-down)"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "z (m)"

	pts := make(plotter.XYs, len(traj))
	for i, tp := range traj {
		pts[i].X = tp.Pose.Translation.X
		pts[i].Y = tp.Pose.Translation.Z
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build trajectory line: %w", err)
	}
	p.Add(line)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

// writeTraceHTML renders an interactive top-down scatter chart with the
// points colored by elapsed time, so the path direction is readable.
func writeTraceHTML(traj trajectory.Trajectory, path string) error {
	start := traj[0].Timestamp
	elapsed := traj[len(traj)-1].Timestamp - start
	if elapsed <= 0 {
		elapsed = 1
	}

	data := make([]opts.ScatterData, 0, len(traj))
	for _, tp := range traj {
		t := tp.Pose.Translation
		data = append(data, opts.ScatterData{Value: []interface{}{t.X, t.Z, tp.Timestamp - start}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Camera Trajectory", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Camera trajectory (top-down)", Subtitle: fmt.Sprintf("points=%d duration=%.1fs", len(traj), elapsed)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "z (m)"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(elapsed),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#31688e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("trajectory", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer file.Close()
	if err := scatter.Render(file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
