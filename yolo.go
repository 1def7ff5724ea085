package cocoyolo

// YOLO (Darknet/Ultralytics) text label specific functionality.

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// YOLOLabel is a single object in a YOLO label file. All box values are fractions of the image
// width or height.
type YOLOLabel struct {
	Class   int
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// String formats the label as one line of a YOLO label file, without the line break.
func (l YOLOLabel) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.Class, l.CenterX, l.CenterY, l.Width, l.Height)
}

// YOLOAnnotatedFile defines the YOLO annotation structure for a single image.
type YOLOAnnotatedFile struct {
	Labels   []YOLOLabel
	FilePath string // The image the labels belong to.
}

// NormalizeBox converts the absolute corner box x, y, w, h of an imgWidth x imgHeight image to
// the normalized center form.
func NormalizeBox(x, y, w, h float64, imgWidth, imgHeight int) (cx, cy, nw, nh float64) {
	iw, ih := float64(imgWidth), float64(imgHeight)
	return (x + w/2) / iw, (y + h/2) / ih, w / iw, h / ih
}

// ToYOLO converts the intermediate representation to YOLO format. Annotations with a label outside
// the target class table are skipped.
func ToYOLO(data []AnnotatedFile) []YOLOAnnotatedFile {
	yoloData := make([]YOLOAnnotatedFile, 0, len(data))
	for _, fileData := range data {
		yoloFileData := YOLOAnnotatedFile{
			Labels:   make([]YOLOLabel, 0, len(fileData.Annotations)),
			FilePath: fileData.FilePath,
		}
		for _, a := range fileData.Annotations {
			class := ClassIndex(a.Label)
			if class < 0 {
				continue
			}
			cx, cy, w, h := NormalizeBox(a.Coords[0], a.Coords[1], a.Width(), a.Height(),
				fileData.Width, fileData.Height)
			yoloFileData.Labels = append(yoloFileData.Labels, YOLOLabel{
				Class:   class,
				CenterX: cx,
				CenterY: cy,
				Width:   w,
				Height:  h,
			})
		}
		yoloData = append(yoloData, yoloFileData)
	}

	return yoloData
}

// LabelFileName returns the label file name for the image at imagePath: the image base name with
// the extension replaced by ".txt".
func LabelFileName(imagePath string) (string, error) {
	_, baseNoExt, _, err := splitPath(imagePath)
	if err != nil {
		return "", err
	}
	return baseNoExt + ".txt", nil
}

// WriteYOLO writes data to dirPath, one label file per element. Existing label files are
// replaced. Elements without labels produce no file.
func WriteYOLO(dirPath string, data []YOLOAnnotatedFile) error {
	dirInfo, err := os.Stat(dirPath)
	if err != nil || !dirInfo.IsDir() {
		return fmt.Errorf("cannot access directory %q: %v", dirPath, err)
	}

	for _, fileData := range data {
		if len(fileData.Labels) == 0 {
			continue
		}
		name, err := LabelFileName(fileData.FilePath)
		if err != nil {
			return err
		}
		if err := writeYOLOFile(filepath.Join(dirPath, name), fileData.Labels); err != nil {
			return err
		}
	}

	return nil
}

func writeYOLOFile(path string, labels []YOLOLabel) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, l := range labels {
		if _, err := fmt.Fprintln(w, l.String()); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadYOLO parses the YOLO label file at path.
func ReadYOLO(path string) ([]YOLOLabel, error) {
	enc, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var labels []YOLOLabel
	for i, line := range strings.Split(string(enc), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		l, err := parseYOLOLabel(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, i+1, err)
		}
		labels = append(labels, l)
	}
	return labels, nil
}

// parseYOLOLabel parses the line of values for a single label.
func parseYOLOLabel(line string) (YOLOLabel, error) {
	var l YOLOLabel

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return l, fmt.Errorf("expected 5 values in %q", line)
	}

	var err error
	if l.Class, err = strconv.Atoi(tokens[0]); err != nil {
		return l, fmt.Errorf("unexpected class in %q: %v", line, err)
	}
	values := []*float64{&l.CenterX, &l.CenterY, &l.Width, &l.Height}
	for i, v := range values {
		if *v, err = strconv.ParseFloat(tokens[i+1], 64); err != nil {
			return l, fmt.Errorf("unexpected values in %q: %v", line, err)
		}
	}

	return l, nil
}
