package cocoyolo

import (
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"github.com/disintegration/imaging"
)

// resampleFilter selects the imaging filter by name. An empty name selects def.
func resampleFilter(name string, def imaging.ResampleFilter) (imaging.ResampleFilter, error) {
	switch name {
	case "":
		return def, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

// resizedSize returns the size of a width x height image scaled so that its longer side becomes
// longerSide and its shorter side shorterSide. A side given as 0 follows the aspect ratio.
func resizedSize(width, height, longerSide, shorterSide int) (w, h int) {
	long, short := width, height
	if height > width {
		long, short = height, width
	}
	ratio := float64(long) / float64(short)
	if longerSide <= 0 {
		longerSide = int(math.Round(float64(shorterSide) * ratio))
	} else if shorterSide <= 0 {
		shorterSide = int(math.Round(float64(longerSide) / ratio))
	}

	if height > width {
		return shorterSide, longerSide
	}
	return longerSide, shorterSide
}

// resizeImage scales img to resizedSize, picking the filter by whether pixels are removed or added.
// YOLO labels are fractions of the image size, so they stay valid for the resized copy.
func resizeImage(img image.Image, longerSide, shorterSide int,
	downsample, upsample imaging.ResampleFilter) image.Image {

	b := img.Bounds()
	w, h := resizedSize(b.Dx(), b.Dy(), longerSide, shorterSide)
	filter := upsample
	if w*h < b.Dx()*b.Dy() {
		filter = downsample
	}
	return imaging.Resize(img, w, h, filter)
}

// resizeImageFile loads the image at inPath, resizes it and writes it to outPath. The encoding
// follows the file extension of outPath.
func resizeImageFile(inPath, outPath string, longerSide, shorterSide int,
	downsample, upsample imaging.ResampleFilter, jpegQuality int) error {

	img, err := imaging.Open(inPath)
	if err != nil {
		return err
	}

	resized := resizeImage(img, longerSide, shorterSide, downsample, upsample)
	return imaging.Save(resized, outPath, imaging.JPEGQuality(jpegQuality))
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// copyFile copies the regular file at src to dst, replacing dst if it exists.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(in, &err)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(out, &err)

	_, err = io.Copy(out, in)
	return err
}
