package cocoyolo

// TFRecord object detection export.

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	"github.com/sirupsen/logrus"
)

// TFRecordLabelMapFileName is the file name of the label map written next to the records.
const TFRecordLabelMapFileName = "label_map.pbtxt"

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFRecord converts the intermediate representation for a single file to the features of a
// TensorFlow Object Detection API example.
//
// Box coordinates are normalized by the recorded image size, which keeps them valid for resized
// copies. Class ids are the target class indices plus one, as id 0 is reserved for background.
func toTFRecord(fileData AnnotatedFile) (TFFeatureMap, error) {
	img, format, err := decodeImageConfig(fileData.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}

	imgData, err := readFile(fileData.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	name := filepath.Base(fileData.FilePath)
	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = name
	f["image/source_id"] = name
	f["image/encoded"] = imgData
	f["image/format"] = format

	numLabels := len(fileData.Annotations)
	xmins := make([]float32, 0, numLabels)
	ymins := make([]float32, 0, numLabels)
	xmaxs := make([]float32, 0, numLabels)
	ymaxs := make([]float32, 0, numLabels)
	classes := make([]string, 0, numLabels)
	classIDs := make([]int64, 0, numLabels)
	w, h := float64(fileData.Width), float64(fileData.Height)
	for _, a := range fileData.Annotations {
		class := ClassIndex(a.Label)
		if class < 0 {
			continue
		}
		xmins = append(xmins, float32(a.Coords[0]/w))
		ymins = append(ymins, float32(a.Coords[1]/h))
		xmaxs = append(xmaxs, float32(a.Coords[2]/w))
		ymaxs = append(ymaxs, float32(a.Coords[3]/h))
		classes = append(classes, string(a.Label))
		classIDs = append(classIDs, int64(class+1))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write of data to the TFRecord
// file at recordPath. Files that cannot be converted are logged and skipped.
//
// Returns the number of written examples.
func WriteTFRecord(recordPath string, data []AnnotatedFile, logger logrus.FieldLogger) (
	n int, err error) {

	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	file, err := os.Create(recordPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %q: %w", recordPath, err)
	}
	defer closeWithErrCheck(file, &err)
	w := bufio.NewWriter(file)

	for _, fileData := range data {
		features, err := toTFRecord(fileData)
		if err != nil {
			logger.WithField("image", fileData.FilePath).WithError(err).Warn("Failed to convert")
			continue
		}
		if err := writeTFRecordExample(w, example.New(features)); err != nil {
			return n, fmt.Errorf("failed to write example: %w", err)
		}
		n++
	}

	return n, w.Flush()
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// WriteTFRecordLabelMap writes the target class table as a StringIntLabelMap in prototxt format.
func WriteTFRecordLabelMap(path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	for i, name := range ClassNames() {
		if _, err := fmt.Fprintf(file, "item {\n  id: %d\n  name: %q\n}\n", i+1, name); err != nil {
			return fmt.Errorf("failed to write the label map %q: %w", path, err)
		}
	}
	return nil
}
