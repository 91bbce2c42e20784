package plotting

import (
	"fmt"
	"path/filepath"
	"sort"

	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Ext is the file extension of rendered plots.
const Ext = ".png"

const tileCols = 3

// series is one named observable compared between the generated and the
// reference population.
type series struct {
	title string
	gen   []float64
	ref   []float64
}

// PlotComparison renders the primary comparison figure: per-jet and
// per-particle feature histograms of the generated population overlaid
// on the reference population. The figure is written to
// <folder>/<name>.png.
func PlotComparison(gen, ref *PreparedData, folder, name string, cfg Config) error {
	tiles := []series{
		{"jet p_T", gen.Jets.Pt, ref.Jets.Pt},
		{"jet mass", gen.Jets.Mass, ref.Jets.Mass},
		{"particle multiplicity", gen.Jets.Mult, ref.Jets.Mult},
		{"particle eta_rel", gen.ParticleEta, ref.ParticleEta},
		{"particle phi_rel", gen.ParticlePhi, ref.ParticlePhi},
		{"particle p_T^rel", gen.ParticlePt, ref.ParticlePt},
	}

	ranks := make([]int, 0, len(gen.SelectedParticlePt))
	for rank := range gen.SelectedParticlePt {
		ranks = append(ranks, rank)
	}
	sort.Ints(ranks)
	for _, rank := range ranks {
		tiles = append(tiles, series{
			title: fmt.Sprintf("p_T of %d. hardest particle", rank),
			gen:   gen.SelectedParticlePt[rank],
			ref:   ref.SelectedParticlePt[rank],
		})
	}

	mults := make([]int, 0, len(gen.SelectedMultiplicityPt))
	for mult := range gen.SelectedMultiplicityPt {
		mults = append(mults, mult)
	}
	sort.Ints(mults)
	for _, mult := range mults {
		tiles = append(tiles, series{
			title: fmt.Sprintf("particle p_T at multiplicity %d", mult),
			gen:   gen.SelectedMultiplicityPt[mult],
			ref:   ref.SelectedMultiplicityPt[mult],
		})
	}

	if cfg.PlotEFPs {
		tiles = append(tiles, series{"e2", gen.EFPs, ref.EFPs})
	}

	return renderTiles(tiles, folder, name, cfg.Bins)
}

// PlotSubstructure renders the three ratio observables (tau21, tau32,
// d2) of both populations into <folder>/<name>.png.
func PlotSubstructure(tau21, tau32, d2, tau21Ref, tau32Ref, d2Ref []float64, folder, name string, bins int) error {
	tiles := []series{
		{"tau21", tau21, tau21Ref},
		{"tau32", tau32, tau32Ref},
		{"D2", d2, d2Ref},
	}
	return renderTiles(tiles, folder, name, bins)
}

// PlotFullSubstructure renders every stored substructure observable of
// both populations into <folder>/<name>.png.
func PlotFullSubstructure(gen, ref map[string][]float64, keys []string, folder, name string, bins int) error {
	tiles := make([]series, 0, len(keys))
	for _, key := range keys {
		tiles = append(tiles, series{title: key, gen: gen[key], ref: ref[key]})
	}
	return renderTiles(tiles, folder, name, bins)
}

// renderTiles draws one histogram-overlay tile per series into a tiled
// figure and saves it as a PNG.
func renderTiles(tiles []series, folder, name string, bins int) error {
	if len(tiles) == 0 {
		return fmt.Errorf("no data series to plot for %q", name)
	}
	if bins <= 0 {
		bins = DefaultConfig().Bins
	}

	rows := (len(tiles) + tileCols - 1) / tileCols
	tp := hplot.NewTiledPlot(draw.Tiles{
		Cols: tileCols,
		Rows: rows,
		PadX: vg.Points(4),
		PadY: vg.Points(4),
	})

	for i, tile := range tiles {
		p := tp.Plots[i]
		if p == nil {
			continue
		}
		if err := fillTile(p, tile, bins); err != nil {
			return fmt.Errorf("failed to build tile %q: %w", tile.title, err)
		}
	}

	path := filepath.Join(folder, name+Ext)
	width := vg.Length(tileCols) * 10 * vg.Centimeter
	height := vg.Length(rows) * 8 * vg.Centimeter
	if err := tp.Save(width, height, path); err != nil {
		return fmt.Errorf("failed to save figure %s: %w", path, err)
	}
	return nil
}

// fillTile overlays the generated histogram on the reference histogram.
func fillTile(p *hplot.Plot, tile series, bins int) error {
	p.Title.Text = tile.title
	p.Y.Label.Text = "entries"

	lo, hi := histRange(tile.ref, tile.gen)
	for i, pop := range []struct {
		label  string
		values []float64
	}{
		{"reference", tile.ref},
		{"generated", tile.gen},
	} {
		h := hbook.NewH1D(bins, lo, hi)
		for _, v := range pop.values {
			h.Fill(v, 1)
		}
		hh := hplot.NewH1D(h)
		hh.LineStyle.Color = plotutil.Color(i)
		hh.LineStyle.Width = vg.Points(1.5)
		p.Add(hh)
		p.Legend.Add(pop.label, hh)
	}
	p.Legend.Top = true
	return nil
}

// histRange returns a common histogram range covering both populations.
func histRange(series ...[]float64) (lo, hi float64) {
	first := true
	for _, values := range series {
		for _, v := range values {
			if first {
				lo, hi = v, v
				first = false
				continue
			}
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if first || lo == hi {
		// Degenerate range, pad so the binning stays valid.
		lo, hi = lo-0.5, hi+0.5
	}
	return lo, hi
}
