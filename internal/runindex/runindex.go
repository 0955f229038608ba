// Package runindex keeps a full-text index of training runs so past runs can
// be found by dataset, status, config path or any word of their config.
package runindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// Doc is the indexed form of a run.
type Doc struct {
	ID         string    `json:"id"`
	Dataset    string    `json:"dataset"`
	Status     string    `json:"status"`
	ConfigFile string    `json:"config_file"`
	OutputDir  string    `json:"output_dir"`
	Content    string    `json:"content"` // merged config dump
	StartedAt  time.Time `json:"started_at"`
}

// Hit is one search result.
type Hit struct {
	ID         string  `json:"id"`
	Dataset    string  `json:"dataset"`
	Status     string  `json:"status"`
	ConfigFile string  `json:"config_file"`
	OutputDir  string  `json:"output_dir"`
	Score      float64 `json:"score"`
}

type Index struct {
	index bleve.Index
}

// Open opens the index in dir, creating it on first use.
func Open(dir string) (*Index, error) {
	index, err := bleve.Open(dir)
	if err == nil {
		return &Index{index: index}, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("open run index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create run index dir: %w", err)
	}
	index, err = bleve.New(dir, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create run index: %w", err)
	}
	return &Index{index: index}, nil
}

// Index adds or replaces a run.
func (x *Index) Index(doc Doc) error {
	if doc.ID == "" {
		return fmt.Errorf("run doc without id")
	}
	if doc.StartedAt.IsZero() {
		doc.StartedAt = time.Now().UTC()
	}
	if err := x.index.Index(doc.ID, doc); err != nil {
		return fmt.Errorf("index run %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes a run from the index.
func (x *Index) Delete(id string) error {
	return x.index.Delete(id)
}

// Count returns the number of indexed runs.
func (x *Index) Count() (uint64, error) {
	return x.index.DocCount()
}

// IDs lists every indexed run id.
func (x *Index) IDs() ([]string, error) {
	n, err := x.Count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(n), 0, false)
	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

// Search matches query against the config text, config path, output dir,
// dataset and status. Dataset and status hits rank highest.
func (x *Index) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	match := func(field string, boost float64) blevequery.Query {
		q := bleve.NewMatchQuery(query)
		q.SetField(field)
		q.SetBoost(boost)
		return q
	}
	disjunction := bleve.NewDisjunctionQuery(
		match("content", 1.0),
		match("config_file", 1.5),
		match("output_dir", 1.2),
		match("dataset", 3.0),
		match("status", 2.0),
	)

	req := bleve.NewSearchRequestOptions(disjunction, limit, 0, false)
	req.Fields = []string{"dataset", "status", "config_file", "output_dir"}
	req.SortBy([]string{"-_score", "-started_at"})

	res, err := x.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search runs: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		hit.Dataset, _ = h.Fields["dataset"].(string)
		hit.Status, _ = h.Fields["status"].(string)
		hit.ConfigFile, _ = h.Fields["config_file"].(string)
		hit.OutputDir, _ = h.Fields["output_dir"].(string)
		hits = append(hits, hit)
	}
	return hits, nil
}

func (x *Index) Close() error {
	return x.index.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName
	indexMapping.DefaultField = "content"

	docMapping := bleve.NewDocumentMapping()

	contentField := bleve.NewTextFieldMapping()
	contentField.Store = false
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	for _, name := range []string{"config_file", "output_dir"} {
		f := bleve.NewTextFieldMapping()
		f.Store = true
		f.Index = true
		f.Analyzer = simple.Name
		docMapping.AddFieldMappingsAt(name, f)
	}

	for _, name := range []string{"id", "dataset", "status"} {
		f := bleve.NewTextFieldMapping()
		f.Store = true
		f.Index = true
		f.Analyzer = keyword.Name
		docMapping.AddFieldMappingsAt(name, f)
	}

	startedField := bleve.NewDateTimeFieldMapping()
	startedField.Store = false
	startedField.Index = true
	docMapping.AddFieldMappingsAt("started_at", startedField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
