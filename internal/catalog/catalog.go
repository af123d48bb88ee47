// Package catalog holds the immutable lookup of models, metrics and categories that
// evaluation jobs are built from. It is loaded once at startup and validated as a whole.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/target/evalorch/internal/domain/model"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

var (
	// ErrUnknownCategory is returned when a category key is not in the catalog.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrUnknownModel is returned when a requested model key is not in the catalog.
	ErrUnknownModel = errors.New("unknown model")
)

// Model describes an AI system that can be evaluated.
type Model struct {
	Key      string  `yaml:"key"      json:"key"`
	Name     string  `yaml:"name"     json:"name"`
	Baseline float64 `yaml:"baseline" json:"baseline"`
}

// Metric describes a scoring dimension and its default pass bar.
type Metric struct {
	Key              string  `yaml:"key"              json:"key"`
	Name             string  `yaml:"name"             json:"name"`
	Threshold        float64 `yaml:"threshold"        json:"threshold"`
	EstimatedSeconds int     `yaml:"estimatedSeconds" json:"estimatedSeconds"`
}

// Category groups the quality metrics applied for one ethics/quality dimension.
type Category struct {
	Key         string             `yaml:"key"         json:"key"`
	Name        string             `yaml:"name"        json:"name"`
	Description string             `yaml:"description" json:"description"`
	Metrics     []string           `yaml:"metrics"     json:"metrics"`
	Thresholds  map[string]float64 `yaml:"thresholds"  json:"thresholds,omitempty"`
}

// CategoryInfo is the public view of a category returned by the status endpoints.
type CategoryInfo struct {
	Key             string   `json:"key"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	QualityMetrics  []string `json:"qualityMetrics"`
	SecurityMetrics []string `json:"securityMetrics"`
}

type document struct {
	Models     []Model    `yaml:"models"`
	Metrics    []Metric   `yaml:"metrics"`
	Categories []Category `yaml:"categories"`
}

// Catalog is an immutable, validated lookup. All accessors return copies.
type Catalog struct {
	models      []Model
	modelIdx    map[string]Model
	metrics     []Metric
	metricIdx   map[string]Metric
	categories  []Category
	categoryIdx map[string]Category
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	c := &Catalog{
		models:      doc.Models,
		modelIdx:    make(map[string]Model, len(doc.Models)),
		metrics:     doc.Metrics,
		metricIdx:   make(map[string]Metric, len(doc.Metrics)),
		categories:  doc.Categories,
		categoryIdx: make(map[string]Category, len(doc.Categories)),
	}
	if err := c.index(); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return c, nil
}

func (c *Catalog) index() error {
	var errs []error
	for _, m := range c.models {
		if _, dup := c.modelIdx[m.Key]; dup {
			errs = append(errs, fmt.Errorf("duplicate model %q", m.Key))
		}
		c.modelIdx[m.Key] = m
	}
	for _, m := range c.metrics {
		if _, dup := c.metricIdx[m.Key]; dup {
			errs = append(errs, fmt.Errorf("duplicate metric %q", m.Key))
		}
		c.metricIdx[m.Key] = m
	}
	for _, cat := range c.categories {
		if _, dup := c.categoryIdx[cat.Key]; dup {
			errs = append(errs, fmt.Errorf("duplicate category %q", cat.Key))
		}
		c.categoryIdx[cat.Key] = cat
	}
	return errors.Join(errs...)
}

func (c *Catalog) validate() error {
	var errs []error
	if len(c.models) == 0 {
		errs = append(errs, errors.New("at least one model is required"))
	}
	if len(c.categories) == 0 {
		errs = append(errs, errors.New("at least one category is required"))
	}
	if _, ok := c.metricIdx[model.SecurityMetricKey]; !ok {
		errs = append(errs, fmt.Errorf("metric %q is required", model.SecurityMetricKey))
	}
	for _, m := range c.models {
		if strings.TrimSpace(m.Key) == "" {
			errs = append(errs, errors.New("model key cannot be empty"))
		}
		if m.Baseline < 0 || m.Baseline > 100 {
			errs = append(errs, fmt.Errorf("model %q baseline must be between 0 and 100", m.Key))
		}
	}
	for _, m := range c.metrics {
		if strings.TrimSpace(m.Key) == "" {
			errs = append(errs, errors.New("metric key cannot be empty"))
		}
		if m.Threshold < 0 || m.Threshold > 100 {
			errs = append(errs, fmt.Errorf("metric %q threshold must be between 0 and 100", m.Key))
		}
		if m.EstimatedSeconds < 0 {
			errs = append(errs, fmt.Errorf("metric %q estimatedSeconds must be non-negative", m.Key))
		}
	}
	for _, cat := range c.categories {
		errs = append(errs, c.validateCategory(cat)...)
	}
	return errors.Join(errs...)
}

func (c *Catalog) validateCategory(cat Category) []error {
	var errs []error
	if strings.TrimSpace(cat.Key) == "" {
		errs = append(errs, errors.New("category key cannot be empty"))
	}
	if len(cat.Metrics) == 0 {
		errs = append(errs, fmt.Errorf("category %q must list at least one metric", cat.Key))
	}
	for _, key := range cat.Metrics {
		if key == model.SecurityMetricKey {
			errs = append(errs, fmt.Errorf("category %q cannot list %q as a quality metric", cat.Key, key))
			continue
		}
		if _, ok := c.metricIdx[key]; !ok {
			errs = append(errs, fmt.Errorf("category %q references unknown metric %q", cat.Key, key))
		}
	}
	for key, v := range cat.Thresholds {
		if key != model.SecurityMetricKey && !slices.Contains(cat.Metrics, key) {
			errs = append(errs, fmt.Errorf("category %q overrides threshold for unlisted metric %q", cat.Key, key))
		}
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("category %q threshold for %q must be between 0 and 100", cat.Key, key))
		}
	}
	return errs
}

// Category returns the category for key.
func (c *Catalog) Category(key string) (Category, error) {
	cat, ok := c.categoryIdx[key]
	if !ok {
		return Category{}, fmt.Errorf("%w: %q", ErrUnknownCategory, key)
	}
	cat.Metrics = slices.Clone(cat.Metrics)
	cat.Thresholds = maps.Clone(cat.Thresholds)
	return cat, nil
}

// MetricsFor returns the ordered metric keys a job of the given category and type evaluates.
func (c *Catalog) MetricsFor(category string, evalType model.EvaluationType) ([]string, error) {
	cat, err := c.Category(category)
	if err != nil {
		return nil, err
	}
	if evalType == model.EvaluationTypeSecurity {
		return []string{model.SecurityMetricKey}, nil
	}
	return cat.Metrics, nil
}

// Threshold returns the pass bar for metric, honoring per-category overrides.
func (c *Catalog) Threshold(category, metric string) float64 {
	if cat, ok := c.categoryIdx[category]; ok {
		if v, ok := cat.Thresholds[metric]; ok {
			return v
		}
	}
	return c.metricIdx[metric].Threshold
}

// ResolveModels returns the requested model keys, or every catalog model when none are requested.
func (c *Catalog) ResolveModels(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return c.ModelKeys(), nil
	}
	var errs []error
	for _, key := range requested {
		if _, ok := c.modelIdx[key]; !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownModel, key))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return slices.Clone(requested), nil
}

// ModelKeys returns every model key in catalog order.
func (c *Catalog) ModelKeys() []string {
	keys := make([]string, len(c.models))
	for i, m := range c.models {
		keys[i] = m.Key
	}
	return keys
}

// Model returns the catalog entry for key.
func (c *Catalog) Model(key string) (Model, bool) {
	m, ok := c.modelIdx[key]
	return m, ok
}

// DisplayName returns the human name of a model, falling back to its key.
func (c *Catalog) DisplayName(key string) string {
	if m, ok := c.modelIdx[key]; ok && m.Name != "" {
		return m.Name
	}
	return key
}

// Models returns all models.
func (c *Catalog) Models() []Model {
	return slices.Clone(c.models)
}

// Metrics returns all metrics.
func (c *Catalog) Metrics() []Metric {
	return slices.Clone(c.metrics)
}

// Categories returns the public view of every category.
func (c *Catalog) Categories() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, CategoryInfo{
			Key:             cat.Key,
			Name:            cat.Name,
			Description:     cat.Description,
			QualityMetrics:  slices.Clone(cat.Metrics),
			SecurityMetrics: []string{model.SecurityMetricKey},
		})
	}
	return out
}

// EstimateDuration approximates the wall time of a job. Metrics of one model are summed;
// models run in waves of modelConcurrency (0 means all at once).
func (c *Catalog) EstimateDuration(metrics []string, models, modelConcurrency int) time.Duration {
	if models <= 0 {
		return 0
	}
	var perModel int
	for _, key := range metrics {
		perModel += c.metricIdx[key].EstimatedSeconds
	}
	waves := 1
	if modelConcurrency > 0 && modelConcurrency < models {
		waves = (models + modelConcurrency - 1) / modelConcurrency
	}
	return time.Duration(perModel*waves) * time.Second
}
