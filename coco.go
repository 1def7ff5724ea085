package cocoyolo

// COCO object detection specific functionality.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// COCOImage is an entry of the images list of a COCO annotation file.
type COCOImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// COCOAnnotation is an object instance annotation of a COCO annotation file.
type COCOAnnotation struct {
	ID         int64      `json:"id"`
	ImageID    int        `json:"image_id"`
	CategoryID int        `json:"category_id"`
	BBox       [4]float64 `json:"bbox"` // x, y, width, height; (x, y) is the top-left corner.
	IsCrowd    int        `json:"iscrowd"`
}

// COCOCategory is an entry of the categories list of a COCO annotation file.
type COCOCategory struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Supercategory string `json:"supercategory"`
}

// COCODataset is the subset of a COCO instances file needed for the conversion.
type COCODataset struct {
	Images      []COCOImage      `json:"images"`
	Annotations []COCOAnnotation `json:"annotations"`
	Categories  []COCOCategory   `json:"categories"`
}

// RemapStats counts how the annotations of a COCO dataset were remapped.
type RemapStats struct {
	Annotations     int  // Annotations in the source file.
	Kept            int  // Annotations that made it into the output.
	DroppedCategory int  // Category id not in the category mapping.
	DroppedImage    int  // Unknown image id, or an image without a usable size.
	DroppedOutside  int  // Boxes entirely outside their image.
	IDsContiguous   bool // Image ids are 1, 2, 3, ... in list order.
}

// cocoFile is the decoding target of an annotation file. The pointers tell a missing key from an
// empty list, and the raw bbox slices keep their length for validation.
type cocoFile struct {
	Images      *[]COCOImage `json:"images"`
	Annotations *[]struct {
		ID         int64     `json:"id"`
		ImageID    int       `json:"image_id"`
		CategoryID int       `json:"category_id"`
		BBox       []float64 `json:"bbox"`
		IsCrowd    int       `json:"iscrowd"`
	} `json:"annotations"`
	Categories []COCOCategory `json:"categories"`
}

// ReadCOCO reads and decodes the COCO annotation file at path. A file that does not decode, lacks
// the images or annotations list, or holds a bbox without exactly four values is reported as
// ErrMalformedAnnotations.
func ReadCOCO(path string) (*COCODataset, error) {
	enc, err := readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrAnnotationsNotFound, path)
		}
		return nil, err
	}

	var f cocoFile
	if err := json.Unmarshal(enc, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedAnnotations, path, err)
	}
	if f.Images == nil {
		return nil, fmt.Errorf("%w: %s: missing images list", ErrMalformedAnnotations, path)
	}
	if f.Annotations == nil {
		return nil, fmt.Errorf("%w: %s: missing annotations list", ErrMalformedAnnotations, path)
	}

	ds := &COCODataset{
		Images:      *f.Images,
		Annotations: make([]COCOAnnotation, len(*f.Annotations)),
		Categories:  f.Categories,
	}
	for i, a := range *f.Annotations {
		if len(a.BBox) != 4 {
			return nil, fmt.Errorf("%w: %s: annotation %d: bbox has %d values, want 4",
				ErrMalformedAnnotations, path, a.ID, len(a.BBox))
		}
		ds.Annotations[i] = COCOAnnotation{
			ID:         a.ID,
			ImageID:    a.ImageID,
			CategoryID: a.CategoryID,
			BBox:       [4]float64{a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3]},
			IsCrowd:    a.IsCrowd,
		}
	}
	return ds, nil
}

// FromCOCO reads the COCO annotations at labelPath and remaps them into the target taxonomy. The
// images are expected in imageDir.
func FromCOCO(labelPath, imageDir string) (AnnotatedFiles, RemapStats, error) {
	ds, err := ReadCOCO(labelPath)
	if err != nil {
		return nil, RemapStats{}, err
	}
	data, stats := ds.Remap(imageDir)
	return data, stats, nil
}

// Remap converts the dataset to the intermediate representation.
//
// Annotations with an unmapped category are dropped. Image dimensions are looked up by image id,
// never by list position. Boxes are clipped to their image and boxes entirely outside of it are
// dropped. Images without any remaining annotation are left out. Images appear in the order of
// their first annotation, annotations in source order.
func (ds *COCODataset) Remap(imageDir string) (AnnotatedFiles, RemapStats) {
	stats := RemapStats{
		Annotations:   len(ds.Annotations),
		IDsContiguous: ds.imageIDsContiguous(),
	}

	images := make(map[int]COCOImage, len(ds.Images))
	for _, img := range ds.Images {
		if _, dup := images[img.ID]; dup {
			continue
		}
		images[img.ID] = img
	}

	byImage := make(map[int]int) // Image id to index in data.
	data := make(AnnotatedFiles, 0, len(ds.Images))

	for _, a := range ds.Annotations {
		label, ok := LookupCategory(a.CategoryID)
		if !ok {
			stats.DroppedCategory++
			continue
		}

		img, ok := images[a.ImageID]
		if !ok || img.Width <= 0 || img.Height <= 0 {
			stats.DroppedImage++
			continue
		}

		idx, ok := byImage[a.ImageID]
		if !ok {
			idx = len(data)
			byImage[a.ImageID] = idx
			data = append(data, AnnotatedFile{
				FilePath: filepath.Join(imageDir, img.FileName),
				Width:    img.Width,
				Height:   img.Height,
			})
		}

		x, y, w, h := a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3]
		data[idx].Annotations = append(data[idx].Annotations, Annotation{
			Coords: [4]float64{x, y, x + w, y + h},
			Label:  label,
		})
	}

	for i := range data {
		stats.DroppedOutside += data[i].clipToImage()
	}
	data.Filter()

	for _, f := range data {
		stats.Kept += len(f.Annotations)
	}

	return data, stats
}

// imageIDsContiguous reports whether the image ids form the dense 1-based sequence matching the
// list order, i.e. images[id-1].ID == id.
func (ds *COCODataset) imageIDsContiguous() bool {
	for i, img := range ds.Images {
		if img.ID != i+1 {
			return false
		}
	}
	return true
}

// Errors returned by the COCO reader, the converter and the commands.
var (
	ErrAnnotationsNotFound  = errors.New("annotation file not found")
	ErrMalformedAnnotations = errors.New("malformed annotation file")
	ErrUsage                = errors.New("invalid arguments")
)
