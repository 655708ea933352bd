package roost

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"math/rand/v2"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Dataset access errors returned by TaskDataset implementations that do not
// support one of the two access modes.
var (
	ErrNotIndexable = errors.New("task dataset does not support index access")
	ErrNoGenerator  = errors.New("task dataset does not support generator access")
)

// TaskDataset is a dataset of tasks as environments: related environment
// instances with different problem specifications and reward conditions
// (e.g. one CalculatorEnv per math word problem).
type TaskDataset interface {
	// Len returns the dataset size and true for finite indexable datasets, or
	// (0, false) for infinite / non-indexable ones.
	Len() (int, bool)
	// GetNewEnvByIdx returns a fresh environment for the idx-th task of a finite
	// dataset. Implementations without index access return an error.
	GetNewEnvByIdx(ctx context.Context, idx int) (Environment, error)
	// GetNewEnv returns a fresh environment from a non-indexable dataset.
	// Implementations without generator access return an error.
	GetNewEnv(ctx context.Context) (Environment, error)
}

// IterBatches constructs batches of environments from the dataset.
//
// Finite datasets are batched by index without replacement; the last batch may be
// smaller than batchSize, and shuffle opts into a random order. Infinite datasets
// yield endless batches of fresh environments. Iteration stops on the first
// construction error or when the yield consumer stops.
func IterBatches(ctx context.Context, ds TaskDataset, batchSize int, shuffle bool) iter.Seq2[[]Environment, error] {
	return func(yield func([]Environment, error) bool) {
		if batchSize <= 0 {
			yield(nil, fmt.Errorf("batch size must be positive, got %d", batchSize))
			return
		}
		n, finite := ds.Len()
		if !finite {
			for {
				batch := make([]Environment, 0, batchSize)
				for range batchSize {
					env, err := ds.GetNewEnv(ctx)
					if err != nil {
						yield(nil, err)
						return
					}
					batch = append(batch, env)
				}
				if !yield(batch, nil) {
					return
				}
			}
		}
		idcs := make([]int, n)
		for i := range idcs {
			idcs[i] = i
		}
		if shuffle {
			rand.Shuffle(n, func(i, j int) { idcs[i], idcs[j] = idcs[j], idcs[i] })
		}
		for start := 0; start < n; start += batchSize {
			end := min(start+batchSize, n)
			batch := make([]Environment, 0, end-start)
			for _, idx := range idcs[start:end] {
				env, err := ds.GetNewEnvByIdx(ctx, idx)
				if err != nil {
					yield(nil, err)
					return
				}
				batch = append(batch, env)
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

// DatasetFactory constructs a named task dataset from loosely-typed parameters.
// It receives a context because dataset construction may load data over the network.
type DatasetFactory func(ctx context.Context, params map[string]any) (TaskDataset, error)

var (
	datasetRegistryMu sync.RWMutex
	datasetRegistry   = make(map[string]DatasetFactory)
)

// RegisterTaskDataset registers a dataset factory under a name, typically from the
// dataset package's init. Registering a duplicate name panics.
func RegisterTaskDataset(name string, factory DatasetFactory) {
	if factory == nil {
		panic("roost: RegisterTaskDataset factory must not be nil")
	}
	datasetRegistryMu.Lock()
	defer datasetRegistryMu.Unlock()
	if _, dup := datasetRegistry[name]; dup {
		panic("roost: RegisterTaskDataset called twice for " + name)
	}
	datasetRegistry[name] = factory
}

// NewNamedTaskDataset constructs a registered task dataset by name.
func NewNamedTaskDataset(ctx context.Context, name string, params map[string]any) (TaskDataset, error) {
	datasetRegistryMu.RLock()
	factory, ok := datasetRegistry[name]
	datasetRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown task dataset name: %s", name)
	}
	return factory(ctx, params)
}

// TaskDatasetNames returns the registered dataset names (unsorted).
func TaskDatasetNames() []string {
	datasetRegistryMu.RLock()
	defer datasetRegistryMu.RUnlock()
	names := make([]string, 0, len(datasetRegistry))
	for name := range datasetRegistry {
		names = append(names, name)
	}
	return names
}

// Dataset splits accepted by TaskConfig.MakeDataset.
const (
	SplitTrain = "train"
	SplitEval  = "eval"
	SplitTest  = "test"
)

// TaskConfig is a config file entry for a TaskDataset: the registered dataset name
// plus base parameters and per-split overrides.
type TaskConfig struct {
	Name  string         `yaml:"name" json:"name"`
	Task  map[string]any `yaml:"task,omitempty" json:"task,omitempty"`
	Train map[string]any `yaml:"train,omitempty" json:"train,omitempty"`
	Eval  map[string]any `yaml:"eval,omitempty" json:"eval,omitempty"`
	Test  map[string]any `yaml:"test,omitempty" json:"test,omitempty"`
}

// LoadTaskConfig reads a TaskConfig from a YAML file.
func LoadTaskConfig(path string) (TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TaskConfig{}, fmt.Errorf("read task config: %w", err)
	}
	var cfg TaskConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return TaskConfig{}, fmt.Errorf("parse task config: %w", err)
	}
	if cfg.Name == "" {
		return TaskConfig{}, fmt.Errorf("task config %s: name is required", path)
	}
	return cfg, nil
}

// MakeDataset constructs the configured dataset for a split, merging the base task
// parameters with the split's overrides (override wins).
func (c TaskConfig) MakeDataset(ctx context.Context, split string) (TaskDataset, error) {
	var overrides map[string]any
	switch split {
	case SplitTrain:
		overrides = c.Train
	case SplitEval:
		overrides = c.Eval
	case SplitTest:
		overrides = c.Test
	default:
		return nil, fmt.Errorf("unknown split: %q", split)
	}
	params := make(map[string]any, len(c.Task)+len(overrides))
	maps.Copy(params, c.Task)
	maps.Copy(params, overrides)
	return NewNamedTaskDataset(ctx, c.Name, params)
}
