// Command imbs-mt runs background subtraction over a directory of
// still frames and writes one mask image per input frame, plus the
// final background model image.
//
// Usage:
//
//	imbs-mt [options] <frames-dir>
package main

import (
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dbloisi/imbs-mt"
	"github.com/dbloisi/imbs-mt/internal/framebuf"
	"github.com/dbloisi/imbs-mt/internal/postfilter"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "imbs-mt: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flagSet := flag.NewFlagSet("imbs-mt", flag.ContinueOnError)
	outDir := flagSet.String("o", "masks", "output directory for per-frame mask PNGs")
	bgPath := flagSet.String("bg", "background.png", "output path for the final background image")
	fps := flagSet.Float64("fps", 25.0, "nominal frame rate driving the internal timestamp")
	fgThreshold := flagSet.Int("fg-threshold", 20, "Chebyshev distance for foreground classification")
	samplingPeriodMs := flagSet.Int64("sampling-period-ms", 500, "stable pipeline sampling cadence in ms")
	numSamples := flagSet.Int("num-samples", 20, "stable pipeline sample window size")
	minArea := flagSet.Int("min-area", 50, "minimum connected-component area kept by the post-filter")
	applyMorphology := flagSet.Bool("morph", false, "apply morphological open+close before area thresholding")
	applyAreaFilter := flagSet.Bool("area-filter", false, "apply connected-component area thresholding to each mask")
	saveModelPath := flagSet.String("save-model", "", "path to write the final model to (optional)")
	loadModelPath := flagSet.String("load-model", "", "path to a previously saved model to resume from (optional)")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() < 1 {
		return fmt.Errorf("missing <frames-dir>\nUsage: imbs-mt [options] <frames-dir>")
	}
	frameDir := flagSet.Arg(0)

	paths, err := listFrames(frameDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PNG/JPEG frames found in %s", frameDir)
	}

	cfg := imbs.DefaultConfig()
	cfg.FPS = *fps
	cfg.FgThreshold = *fgThreshold
	cfg.SamplingPeriodMs = *samplingPeriodMs
	cfg.NumSamples = *numSamples
	cfg.MinArea = *minArea
	cfg.MorphologicalFiltering = *applyMorphology

	width, height, err := decodedSize(paths[0])
	if err != nil {
		return err
	}

	var eng *imbs.Engine
	if *loadModelPath != "" {
		eng, err = loadModel(*loadModelPath, cfg)
	} else {
		eng, err = imbs.New(cfg, width, height)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	mask := make([]byte, width*height)
	for _, p := range paths {
		frame, err := decodeBGR(p, width, height)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", p, err)
		}

		if err := eng.Apply(frame, mask); err != nil {
			framebuf.Put(frame)
			return fmt.Errorf("processing %s: %w", p, err)
		}
		framebuf.Put(frame)

		outMask := mask
		if *applyMorphology {
			outMask = postfilter.MorphClose(postfilter.MorphOpen(outMask, width, height), width, height)
		}
		if *applyAreaFilter {
			outMask = postfilter.FilterMask(outMask, width, height, *minArea)
		}

		outPath := filepath.Join(*outDir, strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))+".png")
		if err := writeGrayPNG(outPath, outMask, width, height); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
	}

	if err := writeBGRPNG(*bgPath, eng.BackgroundImage(), width, height); err != nil {
		return fmt.Errorf("writing background image: %w", err)
	}

	if *saveModelPath != "" {
		f, err := os.Create(*saveModelPath)
		if err != nil {
			return fmt.Errorf("creating model file: %w", err)
		}
		defer f.Close()
		if err := imbs.SaveModel(f, eng); err != nil {
			return fmt.Errorf("saving model: %w", err)
		}
	}

	return nil
}

func loadModel(path string, cfg imbs.Config) (*imbs.Engine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model file: %w", err)
	}
	defer f.Close()
	return imbs.LoadModel(f, cfg)
}

// listFrames returns every .png/.jpg/.jpeg file directly inside dir,
// sorted lexicographically. Natural (numeric-aware) ordering is left
// to the caller naming frames with zero-padded indices; this matches
// the demo scope called out as ambient CLI glue.
func listFrames(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func decodedSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func decodeBGR(path string, width, height int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img, err = png.Decode(f)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("frame size %dx%d does not match first frame %dx%d", b.Dx(), b.Dy(), width, height)
	}

	buf := framebuf.Get(width * height * 3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			buf[i] = byte(bl >> 8)
			buf[i+1] = byte(g >> 8)
			buf[i+2] = byte(r >> 8)
			i += 3
		}
	}
	return buf, nil
}

func writeGrayPNG(path string, mask []byte, width, height int) error {
	img := image.NewGray(image.Rect(0, 0, width, height))
	copy(img.Pix, mask)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func writeBGRPNG(path string, bgr []byte, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4] = bgr[i*3+2]
		img.Pix[i*4+1] = bgr[i*3+1]
		img.Pix[i*4+2] = bgr[i*3]
		img.Pix[i*4+3] = 0xff
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
