// Package aggregator resolves a movie query against the catalog and the
// video sources and merges the answers into one Result.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stupiduntilnot/kinobot/internal/catalog"
	"github.com/stupiduntilnot/kinobot/internal/lookup"
	"github.com/stupiduntilnot/kinobot/internal/video"
)

// ErrInternal is returned when the orchestration itself fails.
var ErrInternal = errors.New("aggregation failed")

// CatalogSearcher is satisfied by *catalog.Client.
type CatalogSearcher interface {
	Search(ctx context.Context, query string, page, limit int) ([]catalog.Document, error)
}

// VideoSource is satisfied by *video.Client.
type VideoSource interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]video.Item, error)
}

// CatalogItem is the display form of the first catalog match.
type CatalogItem struct {
	Title       *string
	Year        *int
	Description *string
	Rating      *string
	PosterURL   *string
}

// Result is a found movie: the catalog item followed by the video hits of
// every source, in source order.
type Result struct {
	Catalog CatalogItem
	Videos  []video.Item
}

// Groups returns the result as ordered display groups: group 0 holds the
// catalog item, group 1 the video items.
func (r *Result) Groups() [][]any {
	videos := make([]any, 0, len(r.Videos))
	for _, v := range r.Videos {
		videos = append(videos, v)
	}
	return [][]any{{r.Catalog}, videos}
}

// FirstURL returns the URL of the first video item. It is nil when there are
// no videos or the first item has no direct link.
func (r *Result) FirstURL() *string {
	if len(r.Videos) == 0 {
		return nil
	}
	return r.Videos[0].URL
}

type Aggregator struct {
	catalog    CatalogSearcher
	sources    []VideoSource
	maxResults int
	logger     *zap.Logger
}

type Option func(*Aggregator)

func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMaxResults caps the number of items requested from each video source.
func WithMaxResults(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxResults = n
		}
	}
}

func New(c CatalogSearcher, sources []VideoSource, opts ...Option) *Aggregator {
	a := &Aggregator{
		catalog:    c,
		sources:    sources,
		maxResults: video.DefaultMaxResults,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolve looks the query up. A nil Result with a nil error means the
// catalog had nothing (or failed); video sources are not queried then.
// Video source failures only empty that source's contribution.
func (a *Aggregator) Resolve(ctx context.Context, query string) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("resolve panicked",
				zap.String("query", query),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			res, err = nil, fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	docs, err := a.catalog.Search(ctx, query, 1, 1)
	if err != nil {
		a.logger.Warn("catalog lookup failed",
			zap.String("query", query),
			zap.String("error_class", lookup.Class(err)),
			zap.Error(err),
		)
		return nil, nil
	}
	if len(docs) == 0 {
		a.logger.Info("catalog lookup found nothing", zap.String("query", query))
		return nil, nil
	}

	return &Result{
		Catalog: NewCatalogItem(docs[0]),
		Videos:  a.searchVideos(ctx, query),
	}, nil
}

func (a *Aggregator) searchVideos(ctx context.Context, query string) []video.Item {
	perSource := make([][]video.Item, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			perSource[i] = a.searchSource(ctx, src, query)
			return nil
		})
	}
	_ = g.Wait()

	merged := []video.Item{}
	for _, items := range perSource {
		merged = append(merged, items...)
	}
	return merged
}

// searchSource never fails: errors and panics become an empty list.
func (a *Aggregator) searchSource(ctx context.Context, src VideoSource, query string) (items []video.Item) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("video source panicked",
				zap.String("source", src.Name()),
				zap.Any("panic", r),
			)
			items = nil
		}
	}()

	items, err := src.Search(ctx, query, a.maxResults)
	if err != nil {
		a.logger.Warn("video lookup failed",
			zap.String("source", src.Name()),
			zap.String("query", query),
			zap.String("error_class", videoErrorClass(err)),
			zap.Error(err),
		)
		return nil
	}
	if len(items) > a.maxResults {
		items = items[:a.maxResults]
	}
	return items
}

func videoErrorClass(err error) string {
	if errors.Is(err, video.ErrUpstream) {
		return "upstream"
	}
	return lookup.Class(err)
}

// NewCatalogItem extracts the displayed fields of a catalog document.
func NewCatalogItem(doc catalog.Document) CatalogItem {
	item := CatalogItem{
		Title:       doc.Name,
		Year:        doc.Year,
		Description: doc.Description,
	}
	if doc.Rating != nil && doc.Rating.KP != nil {
		label := "Рейтинг: " + strconv.FormatFloat(*doc.Rating.KP, 'f', -1, 64)
		item.Rating = &label
	}
	if doc.Poster != nil {
		item.PosterURL = doc.Poster.URL
	}
	return item
}
