package cocoyolo

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readTFRecords decodes all examples of the TFRecord file at path.
func readTFRecords(t *testing.T, path string) []*tensorflow.Example {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var examples []*tensorflow.Example
	for {
		// uint64 length, uint32 length CRC, data, uint32 data CRC.
		var header [12]byte
		_, err := io.ReadFull(f, header[:])
		if err == io.EOF {
			return examples
		}
		require.NoError(t, err)

		data := make([]byte, binary.LittleEndian.Uint64(header[:8])+4)
		_, err = io.ReadFull(f, data)
		require.NoError(t, err)

		var e tensorflow.Example
		require.NoError(t, proto.Unmarshal(data[:len(data)-4], &e))
		examples = append(examples, &e)
	}
}

func TestWriteTFRecord(t *testing.T) {
	dir := t.TempDir()
	logger, _ := quietLogger()
	image := filepath.Join(dir, "a.png")
	writePNG(t, image, 8, 6)

	data := []AnnotatedFile{
		{
			FilePath: image,
			Width:    800,
			Height:   600,
			Annotations: []Annotation{
				{Coords: [4]float64{100, 150, 300, 270}, Label: Vehicle},
				{Coords: [4]float64{0, 0, 80, 60}, Label: Person},
			},
		},
		{FilePath: filepath.Join(dir, "missing.png"), Width: 10, Height: 10},
	}

	recordPath := filepath.Join(dir, "train.record")
	n, err := WriteTFRecord(recordPath, data, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	examples := readTFRecords(t, recordPath)
	require.Len(t, examples, 1)
	features := examples[0].GetFeatures().GetFeature()

	assert.Equal(t, []int64{8}, features["image/width"].GetInt64List().Value)
	assert.Equal(t, []int64{6}, features["image/height"].GetInt64List().Value)
	assert.Equal(t, [][]byte{[]byte("a.png")}, features["image/filename"].GetBytesList().Value)
	assert.Equal(t, [][]byte{[]byte("png")}, features["image/format"].GetBytesList().Value)
	assert.Equal(t, [][]byte{[]byte(readFileString(t, image))},
		features["image/encoded"].GetBytesList().Value)

	floats := func(key string) []float32 { return features[key].GetFloatList().Value }
	assert.InDeltaSlice(t, []float32{0.125, 0}, floats("image/object/bbox/xmin"), 1e-6)
	assert.InDeltaSlice(t, []float32{0.25, 0}, floats("image/object/bbox/ymin"), 1e-6)
	assert.InDeltaSlice(t, []float32{0.375, 0.1}, floats("image/object/bbox/xmax"), 1e-6)
	assert.InDeltaSlice(t, []float32{0.45, 0.1}, floats("image/object/bbox/ymax"), 1e-6)
	assert.Equal(t, []int64{2, 1}, features["image/object/class/label"].GetInt64List().Value)
	assert.Equal(t, [][]byte{[]byte("vehicle"), []byte("person")},
		features["image/object/class/text"].GetBytesList().Value)
}

func TestWriteTFRecordLabelMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), TFRecordLabelMapFileName)
	require.NoError(t, WriteTFRecordLabelMap(path))

	assert.Equal(t, `item {
  id: 1
  name: "person"
}
item {
  id: 2
  name: "vehicle"
}
item {
  id: 3
  name: "animal"
}
item {
  id: 4
  name: "equipment"
}
item {
  id: 5
  name: "debris"
}
`, readFileString(t, path))
}

func TestConvertSubsetTFRecord(t *testing.T) {
	c := newTestConverter(t, Options{TFRecord: true})

	_, err := c.ConvertSubset(context.Background(), "train")
	require.NoError(t, err)

	dir := filepath.Join(c.DestDir, "tfrecords")
	assert.FileExists(t, filepath.Join(dir, TFRecordLabelMapFileName))
	// Only a.png was copied.
	examples := readTFRecords(t, filepath.Join(dir, "train.record"))
	require.Len(t, examples, 1)
	assert.Equal(t, [][]byte{[]byte("a.png")},
		examples[0].GetFeatures().GetFeature()["image/filename"].GetBytesList().Value)
}
