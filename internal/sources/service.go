package sources

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/MimeLyc/pipeline-console/internal/errs"
	"github.com/MimeLyc/pipeline-console/pkg/log"
)

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Store is the remote source pages and source videos collections.
type Store interface {
	ListPages(ctx context.Context) ([]Page, error)
	InsertPage(ctx context.Context, page Page) (Page, error)
	UpdatePage(ctx context.Context, id string, posts *int, status *PageStatus) error
	DeletePage(ctx context.Context, id string) error

	ListVideos(ctx context.Context) ([]Video, error)
	CountVideos(ctx context.Context) (int, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) ListPages(ctx context.Context) ([]Page, error) {
	pages, err := s.store.ListPages(ctx)
	if err != nil {
		return nil, errs.Wrap(err, errs.RemoteRead, "load source pages")
	}
	return pages, nil
}

// AddPage registers a new active page. posts may be empty for the default.
func (s *Service) AddPage(ctx context.Context, url string, posts string) (Page, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return Page{}, errs.New(errs.Validation, "source page url is required")
	}
	n := DefaultPosts
	if strings.TrimSpace(posts) != "" {
		parsed, err := ParsePosts(posts)
		if err != nil {
			return Page{}, err
		}
		n = parsed
	}

	page, err := s.store.InsertPage(ctx, Page{
		URL:           url,
		NumberOfPosts: n,
		Status:        PageActive,
	})
	if err != nil {
		return Page{}, errs.Wrap(err, errs.RemoteWrite, "add source page").WithContext("url", url)
	}
	log.Info("Added source page %s (%d posts)", page.URL, page.NumberOfPosts)
	return page, nil
}

func (s *Service) UpdatePosts(ctx context.Context, id string, posts string) (int, error) {
	n, err := ParsePosts(posts)
	if err != nil {
		return 0, err
	}
	if err := s.store.UpdatePage(ctx, id, &n, nil); err != nil {
		return 0, errs.WrapStore(err, errs.RemoteWrite, "update source page").WithContext("id", id)
	}
	return n, nil
}

// TogglePage flips a page between active and paused and returns the new status.
func (s *Service) TogglePage(ctx context.Context, id string) (PageStatus, error) {
	page, err := s.findPage(ctx, id)
	if err != nil {
		return "", err
	}
	next := PagePaused
	if page.EffectiveStatus() == PagePaused {
		next = PageActive
	}
	if err := s.store.UpdatePage(ctx, id, nil, &next); err != nil {
		return "", errs.WrapStore(err, errs.RemoteWrite, "update source page status").WithContext("id", id)
	}
	log.Info("Source page %s is now %s", id, next)
	return next, nil
}

func (s *Service) DeletePage(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errs.New(errs.Validation, "source page id is required")
	}
	if err := s.store.DeletePage(ctx, id); err != nil {
		return errs.WrapStore(err, errs.RemoteWrite, "delete source page").WithContext("id", id)
	}
	return nil
}

func (s *Service) findPage(ctx context.Context, id string) (Page, error) {
	pages, err := s.ListPages(ctx)
	if err != nil {
		return Page{}, err
	}
	for _, p := range pages {
		if p.ID == id {
			return p, nil
		}
	}
	return Page{}, errs.New(errs.NotFound, "source page not found").WithContext("id", id)
}

// ListVideos returns the videos of one tab together with the counts of all tabs.
func (s *Service) ListVideos(ctx context.Context, tab VideoTab) ([]Video, VideoCounts, error) {
	videos, err := s.store.ListVideos(ctx)
	if err != nil {
		return nil, VideoCounts{}, errs.Wrap(err, errs.RemoteRead, "load source videos")
	}
	filtered, err := FilterVideos(videos, tab)
	if err != nil {
		return nil, VideoCounts{}, err
	}
	return filtered, Count(videos), nil
}

func (s *Service) CountVideos(ctx context.Context) (int, error) {
	n, err := s.store.CountVideos(ctx)
	if err != nil {
		return 0, errs.Wrap(err, errs.RemoteRead, "count source videos")
	}
	return n, nil
}

// ParsePosts accepts only a plain non-negative integer.
func ParsePosts(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if !digitsOnly.MatchString(raw) {
		return 0, errs.New(errs.Validation, "number of posts must be a non-negative integer").
			WithContext("value", raw)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Wrap(err, errs.Validation, "number of posts is out of range")
	}
	return n, nil
}

func ParseTab(raw string) (VideoTab, error) {
	switch tab := VideoTab(strings.ToLower(strings.TrimSpace(raw))); tab {
	case "":
		return TabAll, nil
	case TabAll, TabPending, TabProcessed, TabAnalyzed, TabUnanalyzed:
		return tab, nil
	default:
		return "", errs.New(errs.Validation, fmt.Sprintf("unknown tab %q", raw))
	}
}

func FilterVideos(videos []Video, tab VideoTab) ([]Video, error) {
	var keep func(Video) bool
	switch tab {
	case TabAll, "":
		keep = func(Video) bool { return true }
	case TabPending:
		keep = func(v Video) bool { return !v.Processed }
	case TabProcessed:
		keep = func(v Video) bool { return v.Processed }
	case TabAnalyzed:
		keep = func(v Video) bool { return v.Analyzed }
	case TabUnanalyzed:
		keep = func(v Video) bool { return !v.Analyzed }
	default:
		return nil, errs.New(errs.Validation, fmt.Sprintf("unknown tab %q", tab))
	}
	ret := make([]Video, 0, len(videos))
	for _, v := range videos {
		if keep(v) {
			ret = append(ret, v)
		}
	}
	return ret, nil
}

func Count(videos []Video) VideoCounts {
	c := VideoCounts{All: len(videos)}
	for _, v := range videos {
		if v.Processed {
			c.Processed++
		} else {
			c.Pending++
		}
		if v.Analyzed {
			c.Analyzed++
		} else {
			c.Unanalyzed++
		}
	}
	return c
}
