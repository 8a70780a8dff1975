package modguard

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/mapping"
)

// ModIndex defines the interface for full-text search over mod metadata.
type ModIndex interface {
	// Index adds a descriptor to the index.
	Index(ctx context.Context, d ModDescriptor) error

	// Search returns mod ids matching the query, ordered by relevance.
	Search(ctx context.Context, query string, limit int) ([]ModID, error)

	Close() error
}

// BleveModIndex implements ModIndex using Bleve with the CJK analyzer,
// since workshop titles come in every language.
type BleveModIndex struct {
	index bleve.Index
}

// BleveModIndexOptions configures BleveModIndex behavior.
type BleveModIndexOptions struct {
	// Path to store the index. If empty, uses in-memory index.
	Path string
}

// NewBleveModIndex creates a new Bleve-based mod index.
func NewBleveModIndex(opts *BleveModIndexOptions) (*BleveModIndex, error) {
	if opts == nil {
		opts = &BleveModIndexOptions{}
	}

	indexMapping := buildModIndexMapping()

	var index bleve.Index
	var err error

	if opts.Path == "" {
		index, err = bleve.NewMemOnly(indexMapping)
	} else {
		index, err = bleve.Open(opts.Path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			index, err = bleve.New(opts.Path, indexMapping)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}

	return &BleveModIndex{index: index}, nil
}

func buildModIndexMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()

	modMapping := bleve.NewDocumentMapping()

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = cjk.AnalyzerName
	modMapping.AddFieldMappingsAt("title", titleField)

	descriptionField := bleve.NewTextFieldMapping()
	descriptionField.Analyzer = cjk.AnalyzerName
	descriptionField.Store = false
	modMapping.AddFieldMappingsAt("description", descriptionField)

	// preview_url: stored only
	previewField := bleve.NewTextFieldMapping()
	previewField.Index = false
	modMapping.AddFieldMappingsAt("preview_url", previewField)

	indexMapping.AddDocumentMapping("mod", modMapping)
	indexMapping.DefaultMapping = modMapping

	return indexMapping
}

type bleveMod struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PreviewURL  string `json:"preview_url"`
}

// Index implements ModIndex.Index.
func (b *BleveModIndex) Index(ctx context.Context, d ModDescriptor) error {
	doc := bleveMod{
		Title:       d.Title,
		Description: d.Description,
		PreviewURL:  d.PreviewURL,
	}
	return b.index.Index(d.ID.String(), doc)
}

// Search implements ModIndex.Search.
// Title matches are boosted over description matches.
func (b *BleveModIndex) Search(ctx context.Context, query string, limit int) ([]ModID, error) {
	if query == "" {
		return nil, nil
	}

	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2)

	descriptionQuery := bleve.NewMatchQuery(query)
	descriptionQuery.SetField("description")

	searchRequest := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(titleQuery, descriptionQuery))
	if limit > 0 {
		searchRequest.Size = limit
	}

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, err
	}

	ids := make([]ModID, 0, len(result.Hits))
	for _, hit := range result.Hits {
		n, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, ModID(n))
	}
	return ids, nil
}

// Close implements ModIndex.Close.
func (b *BleveModIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the number of indexed descriptors.
func (b *BleveModIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
