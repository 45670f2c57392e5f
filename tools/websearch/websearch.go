package websearch

import (
	"context"

	"github.com/sinadarvi/quest/tools/websearch/brave"
	"github.com/sinadarvi/quest/tools/websearch/models"
	"github.com/sinadarvi/quest/tools/websearch/tavily"
)

type WebSearcher interface {
	Search(ctx context.Context, q models.Query) (models.Response, error)
}

type Provider string

const (
	TavilyProvider Provider = "tavily"
	BraveProvider  Provider = "brave"
)

type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

var ErrUnsupportedProvider = &Error{"unsupported provider"}

func NewWebSearcher(provider Provider, apiKey string) (WebSearcher, error) {
	switch provider {
	case TavilyProvider:
		return tavily.Search{ApiKey: apiKey}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
