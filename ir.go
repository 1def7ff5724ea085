package cocoyolo

// The intermediate annotation metadata representation.

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// Annotation is the intermediate representation of an object label.
type Annotation struct {
	Coords [4]float64 // Absolute x1, y1, x2, y2 offsets from the top-left corner.
	Label  Label
}

// Width is the object width from a.Coords.
func (a Annotation) Width() float64 {
	return a.Coords[2] - a.Coords[0]
}

// Height is the object height from a.Coords.
func (a Annotation) Height() float64 {
	return a.Coords[3] - a.Coords[1]
}

// AnnotatedFile is the intermediate representation of image metadata.
type AnnotatedFile struct {
	Annotations []Annotation // The annotations, in source order.
	FilePath    string       // The annotated image.
	Width       int          // Image width in pixels, as recorded by the source dataset.
	Height      int          // Image height in pixels, as recorded by the source dataset.
}

// clipToImage clips all annotation boxes to the image bounds and removes annotations that lie
// entirely outside the image. Zero-size boxes inside the image are kept. The order of the
// remaining annotations is preserved.
//
// Returns the number of removed annotations.
func (f *AnnotatedFile) clipToImage() int {
	w, h := float64(f.Width), float64(f.Height)
	kept := f.Annotations[:0]
	for _, a := range f.Annotations {
		if !overlapsExtent(a.Coords[0], a.Coords[2], w) ||
			!overlapsExtent(a.Coords[1], a.Coords[3], h) {
			continue
		}
		a.Coords[0] = math.Max(a.Coords[0], 0)
		a.Coords[1] = math.Max(a.Coords[1], 0)
		a.Coords[2] = math.Min(a.Coords[2], w)
		a.Coords[3] = math.Min(a.Coords[3], h)
		kept = append(kept, a)
	}
	removed := len(f.Annotations) - len(kept)
	f.Annotations = kept
	return removed
}

// overlapsExtent reports whether the interval [lo, hi] lies at least partly within [0, size]. An
// interval with extent must overlap the inside, touching an edge is not enough. A degenerate
// interval (lo == hi) only has to lie within the closed range. Inverted intervals never overlap.
func overlapsExtent(lo, hi, size float64) bool {
	switch {
	case hi < lo:
		return false
	case hi == lo:
		return lo >= 0 && lo <= size
	}
	return lo < size && hi > 0
}

// AnnotatedFiles is the annotation metadata for a list of files.
type AnnotatedFiles []AnnotatedFile

// Filter removes annotations whose label is not part of the target class table and then all
// files left without annotations. Order is preserved.
//
// Returns the number of removed annotations and files.
func (data *AnnotatedFiles) Filter() (labels, files int) {
	keptFiles := (*data)[:0]
	for _, f := range *data {
		keptAnnotations := f.Annotations[:0]
		for _, a := range f.Annotations {
			if ClassIndex(a.Label) < 0 {
				labels++
				continue
			}
			keptAnnotations = append(keptAnnotations, a)
		}
		f.Annotations = keptAnnotations

		if len(f.Annotations) == 0 {
			files++
			continue
		}
		keptFiles = append(keptFiles, f)
	}
	*data = keptFiles
	return labels, files
}

// ImageOptions controls how ProcessImages transfers images to the output directory.
type ImageOptions struct {
	Workers            int    // Number of concurrent workers; <= 0 selects 2*NumCPU.
	ResizeLonger       int    // Target length of the longer side; 0 keeps the aspect ratio.
	ResizeShorter      int    // Target length of the shorter side; 0 keeps the aspect ratio.
	DownsamplingFilter string // One of nearest, box, linear, gaussian, lanczos.
	UpsamplingFilter   string // One of nearest, box, linear, gaussian, lanczos.
	JPEGQuality        int    // JPEG quality for re-encoded images.
	Verify             bool   // Compare the decoded image size with the recorded size.
}

// ImageStats counts the outcome of ProcessImages.
type ImageStats struct {
	Copied     int // Images written to the output directory.
	Missing    int // Source images that do not exist.
	Mismatched int // Images whose real size differs from the recorded size (Verify only).
}

// ProcessImages copies all referenced images into imageOutDir, keeping their file names. If a
// resize is requested the images are resampled and re-encoded instead of copied; the normalized
// labels do not depend on the resolution.
//
// Missing source images are skipped and counted, any other error aborts the processing.
func (data AnnotatedFiles) ProcessImages(ctx context.Context, imageOutDir string,
	opts ImageOptions, logger logrus.FieldLogger) (ImageStats, error) {

	var stats ImageStats
	if len(data) == 0 {
		return stats, nil
	}

	doResize := opts.ResizeLonger > 0 || opts.ResizeShorter > 0
	var downsample, upsample imaging.ResampleFilter
	if doResize {
		var err error
		if downsample, err = resampleFilter(opts.DownsamplingFilter, imaging.Box); err != nil {
			return stats, err
		}
		if upsample, err = resampleFilter(opts.UpsamplingFilter, imaging.Linear); err != nil {
			return stats, err
		}
	}
	jpegQuality := opts.JPEGQuality
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = 90
	}

	// Limit the number of goroutines in flight, as resizing loads potentially large images into
	// memory.
	numTasks := opts.Workers
	if numTasks <= 0 {
		numTasks = 2 * runtime.NumCPU()
	}
	if len(data) < numTasks {
		numTasks = len(data)
	}
	workQueue := make(chan *AnnotatedFile, 2*numTasks)
	errors := make(chan error, 1)
	trySendError := func(err error) {
		select {
		case errors <- err:
		default:
		}
	}

	var copied, missing, mismatched atomic.Int64
	var wg sync.WaitGroup

	// Process images concurrently from a work queue.
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for f := range workQueue {
				if ctx.Err() != nil {
					continue
				}
				outPath := filepath.Join(imageOutDir, filepath.Base(f.FilePath))

				if _, err := os.Stat(f.FilePath); os.IsNotExist(err) {
					logger.WithField("image", f.FilePath).Warn("Source image not found, skipping copy")
					missing.Add(1)
					continue
				}

				if opts.Verify {
					cfg, _, err := decodeImageConfig(f.FilePath)
					if err != nil {
						logger.WithField("image", f.FilePath).WithError(err).
							Warn("Cannot decode the image header")
					} else if cfg.Width != f.Width || cfg.Height != f.Height {
						logger.WithFields(logrus.Fields{
							"image":    f.FilePath,
							"recorded": fmt.Sprintf("%dx%d", f.Width, f.Height),
							"actual":   fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
						}).Warn("Image size differs from the annotation file")
						mismatched.Add(1)
					}
				}

				var err error
				if doResize {
					err = resizeImageFile(f.FilePath, outPath, opts.ResizeLonger, opts.ResizeShorter,
						downsample, upsample, jpegQuality)
				} else {
					err = copyFile(f.FilePath, outPath)
				}
				if err != nil {
					trySendError(fmt.Errorf("failed to write image %q: %w", outPath, err))
					continue
				}
				copied.Add(1)
			}
		}()
	}

	// Feed the work queue.
	for i := range data {
		workQueue <- &data[i]
	}
	close(workQueue)

	// Wait for image processing to finish.
	wg.Wait()
	close(errors)

	stats.Copied = int(copied.Load())
	stats.Missing = int(missing.Load())
	stats.Mismatched = int(mismatched.Load())

	if err := <-errors; err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}
