// Package train drives an external YOLO training framework. It assembles the dataset descriptor
// and the hyperparameter profile, runs the framework as a child process and reads back the
// metrics it reports. The model, optimizer, loss and augmentation pipeline all live in the
// framework.
package train

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Augmentation holds the data augmentation settings passed to the framework.
type Augmentation struct {
	HSVH        float64 `mapstructure:"hsv_h" yaml:"hsv_h" validate:"gte=0,lte=1"`
	HSVS        float64 `mapstructure:"hsv_s" yaml:"hsv_s" validate:"gte=0,lte=1"`
	HSVV        float64 `mapstructure:"hsv_v" yaml:"hsv_v" validate:"gte=0,lte=1"`
	Degrees     float64 `mapstructure:"degrees" yaml:"degrees" validate:"gte=-180,lte=180"`
	Translate   float64 `mapstructure:"translate" yaml:"translate" validate:"gte=0,lte=1"`
	Scale       float64 `mapstructure:"scale" yaml:"scale" validate:"gte=0"`
	FlipUD      float64 `mapstructure:"flipud" yaml:"flipud" validate:"gte=0,lte=1"`
	FlipLR      float64 `mapstructure:"fliplr" yaml:"fliplr" validate:"gte=0,lte=1"`
	Mosaic      float64 `mapstructure:"mosaic" yaml:"mosaic" validate:"gte=0,lte=1"`
	Mixup       float64 `mapstructure:"mixup" yaml:"mixup" validate:"gte=0,lte=1"`
	CloseMosaic int     `mapstructure:"close_mosaic" yaml:"close_mosaic" validate:"gte=0"`
}

// HyperParameters is the training profile.
type HyperParameters struct {
	Model      string `mapstructure:"model" yaml:"model" validate:"oneof=n s m l x"`
	Pretrained bool   `mapstructure:"pretrained" yaml:"pretrained"`
	Epochs     int    `mapstructure:"epochs" yaml:"epochs" validate:"gt=0"`
	// Batch is the batch size; -1 selects the framework's automatic batch size.
	Batch      int    `mapstructure:"batch" yaml:"batch" validate:"ne=0,gte=-1"`
	ImgSize    int    `mapstructure:"imgsz" yaml:"imgsz" validate:"gt=0"`
	Name       string `mapstructure:"name" yaml:"name" validate:"required"`
	Project    string `mapstructure:"project" yaml:"project" validate:"required"`
	Device     string `mapstructure:"device" yaml:"device"`

	Optimizer      string  `mapstructure:"optimizer" yaml:"optimizer" validate:"oneof=SGD Adam Adamax AdamW NAdam RAdam RMSProp auto"`
	LR0            float64 `mapstructure:"lr0" yaml:"lr0" validate:"gt=0"`
	LRF            float64 `mapstructure:"lrf" yaml:"lrf" validate:"gt=0"`
	Momentum       float64 `mapstructure:"momentum" yaml:"momentum" validate:"gte=0,lt=1"`
	WeightDecay    float64 `mapstructure:"weight_decay" yaml:"weight_decay" validate:"gte=0"`
	WarmupEpochs   float64 `mapstructure:"warmup_epochs" yaml:"warmup_epochs" validate:"gte=0"`
	WarmupMomentum float64 `mapstructure:"warmup_momentum" yaml:"warmup_momentum" validate:"gte=0,lt=1"`
	WarmupBiasLR   float64 `mapstructure:"warmup_bias_lr" yaml:"warmup_bias_lr" validate:"gte=0"`

	// Loss gains.
	Box float64 `mapstructure:"box" yaml:"box" validate:"gte=0"`
	Cls float64 `mapstructure:"cls" yaml:"cls" validate:"gte=0"`
	DFL float64 `mapstructure:"dfl" yaml:"dfl" validate:"gte=0"`

	Augmentation Augmentation `mapstructure:"augmentation" yaml:"augmentation"`

	SavePeriod int     `mapstructure:"save_period" yaml:"save_period"`
	AMP        bool    `mapstructure:"amp" yaml:"amp"`
	Fraction   float64 `mapstructure:"fraction" yaml:"fraction" validate:"gt=0,lte=1"`

	ExportFormat string `mapstructure:"export_format" yaml:"export_format"` // Empty disables the export.
}

// DefaultHyperParameters returns the rail safety training profile.
func DefaultHyperParameters() HyperParameters {
	return HyperParameters{
		Model:      "n",
		Pretrained: true,
		Epochs:     100,
		Batch:      16,
		ImgSize:    640,
		Name:       "rail-safety-v1",
		Project:    "runs/train",
		Device:     "0",

		Optimizer:      "AdamW",
		LR0:            0.01,
		LRF:            0.01,
		Momentum:       0.937,
		WeightDecay:    0.0005,
		WarmupEpochs:   3,
		WarmupMomentum: 0.8,
		WarmupBiasLR:   0.1,

		Box: 7.5,
		Cls: 0.5,
		DFL: 1.5,

		Augmentation: Augmentation{
			HSVH:        0.015,
			HSVS:        0.7,
			HSVV:        0.4,
			Degrees:     10,
			Translate:   0.1,
			Scale:       0.5,
			FlipUD:      0, // Upside-down track scenes do not occur.
			FlipLR:      0.5,
			Mosaic:      1,
			Mixup:       0.1,
			CloseMosaic: 10,
		},

		SavePeriod: 10,
		AMP:        true,
		Fraction:   1,

		ExportFormat: "onnx",
	}
}

var validate = validator.New()

// Validate checks the value ranges of the profile.
func (hp HyperParameters) Validate() error {
	if err := validate.Struct(hp); err != nil {
		return fmt.Errorf("invalid hyperparameters: %w", err)
	}
	return nil
}

// ModelFile returns the framework model reference: pretrained weights or the bare architecture.
func (hp HyperParameters) ModelFile() string {
	if hp.Pretrained {
		return fmt.Sprintf("yolov8%s.pt", hp.Model)
	}
	return fmt.Sprintf("yolov8%s.yaml", hp.Model)
}

// TrainArgs returns the framework command line arguments for training on the dataset descriptor
// at dataPath.
func (hp HyperParameters) TrainArgs(dataPath string) []string {
	a := hp.Augmentation
	args := []string{
		"detect", "train",
		kv("data", dataPath),
		kv("model", hp.ModelFile()),
		kv("epochs", hp.Epochs),
		kv("imgsz", hp.ImgSize),
		kv("batch", hp.Batch),
		kv("name", hp.Name),
		kv("project", hp.Project),
		kv("exist_ok", true),

		kv("hsv_h", a.HSVH),
		kv("hsv_s", a.HSVS),
		kv("hsv_v", a.HSVV),
		kv("degrees", a.Degrees),
		kv("translate", a.Translate),
		kv("scale", a.Scale),
		kv("flipud", a.FlipUD),
		kv("fliplr", a.FlipLR),
		kv("mosaic", a.Mosaic),
		kv("mixup", a.Mixup),

		kv("optimizer", hp.Optimizer),
		kv("lr0", hp.LR0),
		kv("lrf", hp.LRF),
		kv("momentum", hp.Momentum),
		kv("weight_decay", hp.WeightDecay),
		kv("warmup_epochs", hp.WarmupEpochs),
		kv("warmup_momentum", hp.WarmupMomentum),
		kv("warmup_bias_lr", hp.WarmupBiasLR),

		kv("box", hp.Box),
		kv("cls", hp.Cls),
		kv("dfl", hp.DFL),

		kv("val", true),
		kv("plots", true),
		kv("save", true),
		kv("save_period", hp.SavePeriod),
		kv("close_mosaic", a.CloseMosaic),
		kv("resume", false),
		kv("amp", hp.AMP),
		kv("fraction", hp.Fraction),
		kv("profile", false),
	}
	if hp.Device != "" {
		args = append(args, kv("device", hp.Device))
	}
	return args
}

// kv formats a framework key=value argument.
func kv(key string, value interface{}) string {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case int:
		s = strconv.Itoa(v)
	case float64:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		s = strconv.FormatBool(v)
	default:
		s = fmt.Sprint(v)
	}
	return key + "=" + s
}

// EnvPrefix is the prefix of the environment variables overriding profile values, e.g.
// YOLOTRAIN_EPOCHS or YOLOTRAIN_AUGMENTATION_MOSAIC.
const EnvPrefix = "YOLOTRAIN"

// LoadProfile resolves the hyperparameters from, in increasing priority: the defaults, the
// profile file at path (optional), the environment and any flags bound to v.
func LoadProfile(v *viper.Viper, path string) (HyperParameters, error) {
	var hp HyperParameters

	defaults, err := defaultsMap()
	if err != nil {
		return hp, err
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return hp, fmt.Errorf("failed to read profile %q: %w", path, err)
		}
	}

	if err := v.Unmarshal(&hp); err != nil {
		return hp, fmt.Errorf("failed to decode profile: %w", err)
	}
	return hp, hp.Validate()
}

// defaultsMap returns the default profile as a nested map keyed like the profile file.
func defaultsMap() (map[string]interface{}, error) {
	enc, err := yaml.Marshal(DefaultHyperParameters())
	if err != nil {
		return nil, err
	}
	m := make(map[string]interface{})
	if err := yaml.Unmarshal(enc, &m); err != nil {
		return nil, err
	}
	return m, nil
}
