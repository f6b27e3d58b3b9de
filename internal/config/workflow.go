package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WorkflowConfig carries the tunables that operators may change without a
// restart.
type WorkflowConfig struct {
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Upload         UploadConfig         `mapstructure:"upload"`
}

type ReconciliationConfig struct {
	PriceTolerance    float64 `mapstructure:"priceTolerance"`
	TotalTolerance    float64 `mapstructure:"totalTolerance"`
	QuantityTolerance float64 `mapstructure:"quantityTolerance"`
}

type UploadConfig struct {
	MaxSizeBytes int64    `mapstructure:"maxSizeBytes"`
	AllowedTypes []string `mapstructure:"allowedTypes"`
}

func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		Reconciliation: ReconciliationConfig{
			PriceTolerance:    0.05,
			TotalTolerance:    0.05,
			QuantityTolerance: 0.01,
		},
		Upload: UploadConfig{
			MaxSizeBytes: 10 * 1024 * 1024,
			AllowedTypes: []string{
				"application/pdf",
				"image/jpeg",
				"image/png",
				"image/webp",
			},
		},
	}
}

type WorkflowConfigHolder struct {
	current atomic.Value // holds WorkflowConfig
}

// NewStaticWorkflowConfigHolder returns a holder that never reloads.
func NewStaticWorkflowConfigHolder(cfg WorkflowConfig) *WorkflowConfigHolder {
	holder := &WorkflowConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewWorkflowConfigHolder() (*WorkflowConfigHolder, error) {
	paths := []string{"/etc/procura", "."}
	if dir := strings.TrimSpace(os.Getenv("PROCURA_CONFIG_DIR")); dir != "" {
		paths = append([]string{dir}, paths...)
	}
	return newWorkflowConfigHolder(paths...)
}

func newWorkflowConfigHolder(paths ...string) (*WorkflowConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("workflow")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	defaults := DefaultWorkflowConfig()
	v.SetDefault("workflow.reconciliation.priceTolerance", defaults.Reconciliation.PriceTolerance)
	v.SetDefault("workflow.reconciliation.totalTolerance", defaults.Reconciliation.TotalTolerance)
	v.SetDefault("workflow.reconciliation.quantityTolerance", defaults.Reconciliation.QuantityTolerance)
	v.SetDefault("workflow.upload.maxSizeBytes", defaults.Upload.MaxSizeBytes)
	v.SetDefault("workflow.upload.allowedTypes", defaults.Upload.AllowedTypes)

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	cfg, err := unmarshalWorkflowConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateWorkflowConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticWorkflowConfigHolder(cfg)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalWorkflowConfig(v)
		if err != nil {
			log.Printf("[workflow-config] reload failed: %v", err)
			return
		}
		if err := validateWorkflowConfig(updated); err != nil {
			log.Printf("[workflow-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[workflow-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// unmarshalWorkflowConfig decodes from the merged key set so that partial
// files keep the defaults of the keys they omit.
func unmarshalWorkflowConfig(v *viper.Viper) (WorkflowConfig, error) {
	var root struct {
		Workflow WorkflowConfig `mapstructure:"workflow"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return WorkflowConfig{}, err
	}
	return root.Workflow, nil
}

func (h *WorkflowConfigHolder) Get() WorkflowConfig {
	return h.current.Load().(WorkflowConfig)
}

func validateWorkflowConfig(cfg WorkflowConfig) error {
	r := cfg.Reconciliation
	if r.PriceTolerance < 0 || r.TotalTolerance < 0 || r.QuantityTolerance < 0 {
		return errors.New("workflow.reconciliation tolerances cannot be negative")
	}
	if cfg.Upload.MaxSizeBytes <= 0 {
		return errors.New("workflow.upload.maxSizeBytes must be positive")
	}
	if len(cfg.Upload.AllowedTypes) == 0 {
		return errors.New("workflow.upload.allowedTypes cannot be empty")
	}
	return nil
}
