// posterize segments an image into SLIC superpixels, merges neighbouring
// superpixels separated by weak edges and paints every region with its mean
// colour.
//
//	posterize --path parrot.png                     # grid sweep -> grid.png
//	posterize --path parrot.png --grid=false        # single run -> out.png
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"os"

	"github.com/setanarut/posterize"
	"github.com/setanarut/posterize/rag"
	"github.com/setanarut/posterize/utils"
)

const tileWidth = 320

type cliConfig struct {
	path          string
	grid          bool
	compactness   int
	segments      int
	thresh        float64
	out           string
	gridOut       string
	configPath    string
	paletteSize   int
	paletteMethod string
	paletteOut    string
	dotPath       string
	logPath       string
	verbose       bool
}

func parseFlags(args []string) (cliConfig, error) {
	var c cliConfig
	fs := flag.NewFlagSet("posterize", flag.ContinueOnError)
	fs.StringVar(&c.path, "path", "", "path to the input image (required)")
	fs.BoolVar(&c.grid, "grid", true, "sweep a fixed grid of (compactness, segments, thresh) and write a montage")
	fs.IntVar(&c.compactness, "compactness", 30, "SLIC compactness")
	fs.IntVar(&c.segments, "segments", 400, "target number of superpixels")
	fs.Float64Var(&c.thresh, "thresh", 0.08, "stop merging once the weakest boundary weighs at least this much")
	fs.StringVar(&c.out, "out", "out.png", "output image in single run mode")
	fs.StringVar(&c.gridOut, "grid-out", "grid.png", "montage written in grid mode")
	fs.StringVar(&c.configPath, "config", "", "optional TOML file with [grid] axes and [logging] settings")
	fs.IntVar(&c.paletteSize, "palette", 0, "snap region colours to a palette of this many colours (0 disables)")
	fs.StringVar(&c.paletteMethod, "palette-method", "dominantcolor", "palette extraction: dominantcolor or kmeans")
	fs.StringVar(&c.paletteOut, "palette-out", "", "write the extracted palette swatches (single run mode, needs --palette)")
	fs.StringVar(&c.dotPath, "dot", "", "write the merged region adjacency graph as Graphviz DOT (single run mode)")
	fs.StringVar(&c.logPath, "log", "", "send log output to this rotated file")
	fs.BoolVar(&c.verbose, "verbose", false, "log every merge")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if c.path == "" {
		fs.PrintDefaults()
		return c, errors.New("--path is required")
	}
	return c, nil
}

func main() {
	c, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Println(err)
		os.Exit(2)
	}

	cfg, err := utils.LoadConfig(c.configPath)
	if err != nil {
		log.Fatalln(err)
	}
	if c.logPath != "" {
		cfg.Logging.Logfile = c.logPath
	}
	if closer := cfg.Logging.SetLogger(); closer != nil {
		defer closer.Close()
	}

	method, err := utils.ParsePaletteMethod(c.paletteMethod)
	if err != nil {
		log.Fatalln(err)
	}

	img, err := utils.ReadImage(c.path)
	if err != nil {
		log.Fatalln(err)
	}

	opt := posterize.DefaultOptions()
	opt.Compactness = float64(c.compactness)
	opt.Segments = c.segments
	opt.Thresh = c.thresh
	opt.PaletteSize = c.paletteSize
	opt.PaletteMethod = method

	var mergeOpts []rag.Option
	if c.verbose {
		mergeOpts = append(mergeOpts, rag.WithHook(func(ev rag.MergeEvent) {
			log.Printf("merge %d: %d <- %d (w=%.4f, c=%d), %d regions left",
				ev.Step, ev.Src, ev.Dst, ev.Edge.Weight, ev.Edge.Count, ev.Regions)
		}))
	}

	p := posterize.NewPosterizer(img)
	if c.grid {
		err = runGrid(p, opt, cfg.Grid, c.gridOut, mergeOpts)
	} else {
		err = runSingle(p, opt, c, mergeOpts)
	}
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func runSingle(p *posterize.Posterizer, opt posterize.Options, c cliConfig, mergeOpts []rag.Option) error {
	res, m, err := p.Build(opt, mergeOpts...)
	if err != nil {
		return err
	}
	log.Println(utils.Summarize(m.Graph, m.Labels, m.Merges))

	if err := utils.SaveImage(res, c.out); err != nil {
		return err
	}
	fmt.Println("Saved", c.out)

	if c.paletteOut != "" {
		if len(p.Palette) == 0 {
			log.Println("palette warning: no palette to save, --palette-out needs --palette > 0")
		} else {
			if err := utils.SavePalette(p.Palette, 64, c.paletteOut); err != nil {
				return err
			}
			fmt.Println("Saved", c.paletteOut)
		}
	}

	if c.dotPath != "" {
		f, err := os.Create(c.dotPath)
		if err != nil {
			return err
		}
		if err := rag.WriteDOT(f, m.Graph, "rag"); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Println("Saved", c.dotPath)
	}
	return nil
}

func runGrid(p *posterize.Posterizer, opt posterize.Options, grid utils.GridConfig, gridOut string, mergeOpts []rag.Option) error {
	tiles, err := sweep(p, opt, grid, mergeOpts)
	if err != nil {
		return err
	}
	montage := utils.Montage(tiles, len(grid.Compactness)*len(grid.Thresh), tileWidth)
	if err := utils.SaveImage(montage, gridOut); err != nil {
		return err
	}
	fmt.Println("Saved", gridOut)
	return nil
}

// sweep segments once per (compactness, segments) pair and merges every
// threshold against a fresh copy of that segmentation. Tiles are ordered
// compactness, segments, thresh with thresh varying fastest.
func sweep(p *posterize.Posterizer, opt posterize.Options, grid utils.GridConfig, mergeOpts []rag.Option) ([]utils.Tile, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	tiles := make([]utils.Tile, 0, grid.Size())
	for _, c := range grid.Compactness {
		for _, s := range grid.Segments {
			opt.Compactness = c
			opt.Segments = s
			if err := p.Segment(opt); err != nil {
				return nil, err
			}
			for _, t := range grid.Thresh {
				m, err := p.Merge(t, mergeOpts...)
				if err != nil {
					return nil, err
				}
				log.Printf("C,S,T=(%g, %d, %g): %v", c, s, t, utils.Summarize(m.Graph, m.Labels, m.Merges))
				img, err := render(p, opt, m.Labels)
				if err != nil {
					return nil, err
				}
				tiles = append(tiles, utils.Tile{
					Image: img,
					Title: fmt.Sprintf("C,S,T=(%g, %d, %g)", c, s, t),
				})
			}
		}
	}
	return tiles, nil
}

func render(p *posterize.Posterizer, opt posterize.Options, labels *rag.Labels) (image.Image, error) {
	if opt.PaletteSize > 0 {
		return p.Posterize(labels, opt.Background, opt.ZeroBackground, opt.PaletteSize, opt.PaletteMethod)
	}
	return p.Average(labels, opt.Background, opt.ZeroBackground)
}
