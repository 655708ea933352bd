package gsm8k

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/skosovsky/roost"
)

// PublicSource is the canonical GSM8K dataset on the Hugging Face hub.
// SEE: https://huggingface.co/datasets/openai/gsm8k
const PublicSource = "openai/gsm8k"

// defaultRowsURL is the Hugging Face datasets-server rows API.
const defaultRowsURL = "https://datasets-server.huggingface.co"

// rowsPageSize is the maximum page length the rows API serves per request.
const rowsPageSize = 100

// Split selects a portion of GSM8K. All non-test splits are derived from the
// upstream train split: train keeps indices with idx%5 != 0, val keeps idx%5 == 0.
type Split string

const (
	SplitTrainFull Split = "train_full" // full training set from OpenAI
	SplitTrain     Split = "train"      // 80% of train_full (idx%5 != 0)
	SplitVal       Split = "val"        // 20% of train_full (idx%5 == 0)
	SplitTest      Split = "test"
)

// problem is one dataset row with its numeric answer already extracted.
type problem struct {
	id       string
	question string
	answer   float64
}

// Dataset is a finite task dataset of CalculatorEnvs, one per GSM8K problem.
type Dataset struct {
	config   CalculatorConfig
	problems []problem
}

// DatasetOption configures LoadDataset.
type DatasetOption func(*datasetOptions)

type datasetOptions struct {
	config  CalculatorConfig
	source  string
	baseURL string
	client  *http.Client
}

// WithConfig sets the reward shape passed to every constructed environment.
func WithConfig(cfg CalculatorConfig) DatasetOption {
	return func(o *datasetOptions) { o.config = cfg }
}

// WithSource overrides the Hugging Face dataset id (default PublicSource).
func WithSource(source string) DatasetOption {
	return func(o *datasetOptions) { o.source = source }
}

// WithBaseURL overrides the datasets-server endpoint (e.g. a test server).
func WithBaseURL(baseURL string) DatasetOption {
	return func(o *datasetOptions) { o.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client used to fetch rows (default http.DefaultClient).
func WithHTTPClient(client *http.Client) DatasetOption {
	return func(o *datasetOptions) { o.client = client }
}

// LoadDataset fetches the split's rows from the datasets-server rows API and
// extracts a numeric answer per problem. Problems are assigned IDs of the form
// "<split>_<idx>". A row whose answer cannot be parsed fails the whole load.
func LoadDataset(ctx context.Context, split Split, opts ...DatasetOption) (*Dataset, error) {
	o := datasetOptions{
		config:  DefaultCalculatorConfig(),
		source:  PublicSource,
		baseURL: defaultRowsURL,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(&o)
	}
	switch split {
	case SplitTrainFull, SplitTrain, SplitVal, SplitTest:
	default:
		return nil, fmt.Errorf("unknown gsm8k split: %q", split)
	}

	// All non-test splits are derived from the upstream train split.
	hfSplit := "train"
	if split == SplitTest {
		hfSplit = "test"
	}
	rows, err := fetchRows(ctx, o.client, o.baseURL, o.source, hfSplit)
	if err != nil {
		return nil, fmt.Errorf("load gsm8k %s: %w", split, err)
	}

	problems := make([]problem, 0, len(rows))
	for idx, row := range rows {
		if split == SplitTrain && idx%5 == 0 {
			continue
		}
		if split == SplitVal && idx%5 != 0 {
			continue
		}
		answer, err := extractAnswer(row.Get("answer").String())
		if err != nil {
			return nil, fmt.Errorf("load gsm8k %s: row %d: %w", split, idx, err)
		}
		problems = append(problems, problem{
			id:       fmt.Sprintf("%s_%d", split, idx),
			question: row.Get("question").String(),
			answer:   answer,
		})
	}
	return &Dataset{config: o.config, problems: problems}, nil
}

// fetchRows pages through the rows API until all rows of the split are fetched.
func fetchRows(ctx context.Context, client *http.Client, baseURL, source, hfSplit string) ([]gjson.Result, error) {
	var rows []gjson.Result
	for offset := 0; ; {
		page, total, err := fetchRowsPage(ctx, client, baseURL, source, hfSplit, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		offset += len(page)
		if offset >= total || len(page) == 0 {
			return rows, nil
		}
	}
}

func fetchRowsPage(ctx context.Context, client *http.Client, baseURL, source, hfSplit string, offset int) ([]gjson.Result, int, error) {
	q := url.Values{}
	q.Set("dataset", source)
	q.Set("split", hfSplit)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("length", strconv.Itoa(rowsPageSize))
	if source == PublicSource {
		q.Set("config", "main") // as opposed to "socratic"
	} else {
		q.Set("config", "default")
	}
	reqURL := strings.TrimSuffix(baseURL, "/") + "/rows?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("rows API returned %s for %s", resp.Status, reqURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	doc := gjson.ParseBytes(body)
	if !doc.Get("rows").Exists() {
		return nil, 0, fmt.Errorf("rows API response missing rows field")
	}
	page := make([]gjson.Result, 0, rowsPageSize)
	for _, row := range doc.Get("rows").Array() {
		page = append(page, row.Get("row"))
	}
	return page, int(doc.Get("num_rows_total").Int()), nil
}

// extractAnswer parses the numeric answer from the upstream answer text, which is
// formatted as "<some text>\n#### <answer_num>" with optional thousands commas.
func extractAnswer(answer string) (float64, error) {
	_, tail, found := strings.Cut(answer, "#### ")
	if !found {
		return 0, fmt.Errorf("failed to extract numerical answer from %q", answer)
	}
	tail = strings.ReplaceAll(strings.TrimSpace(tail), ",", "")
	v, err := strconv.ParseFloat(tail, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to extract numerical answer from %q: %w", answer, err)
	}
	return v, nil
}

// Len returns the number of problems in the split.
func (d *Dataset) Len() (int, bool) { return len(d.problems), true }

// GetNewEnvByIdx returns a fresh CalculatorEnv for the idx-th problem.
func (d *Dataset) GetNewEnvByIdx(_ context.Context, idx int) (roost.Environment, error) {
	if idx < 0 || idx >= len(d.problems) {
		return nil, fmt.Errorf("gsm8k index %d out of range [0,%d)", idx, len(d.problems))
	}
	p := d.problems[idx]
	cfg := d.config
	return NewCalculatorEnv(p.id, p.question, p.answer, &cfg), nil
}

// GetNewEnv is unsupported: GSM8K is finite and indexable.
func (d *Dataset) GetNewEnv(context.Context) (roost.Environment, error) {
	return nil, roost.ErrNoGenerator
}

var _ roost.TaskDataset = (*Dataset)(nil)
