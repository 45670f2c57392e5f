package academic

import (
	"context"

	"github.com/sinadarvi/quest/tools/academic/exa"
	"github.com/sinadarvi/quest/tools/academic/models"
)

type AcademicSearcher interface {
	Search(ctx context.Context, query string, numResults int) ([]models.Paper, error)
}

type Provider string

const ExaProvider Provider = "exa"

type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

var ErrUnsupportedProvider = &Error{"unsupported provider"}

func NewAcademicSearcher(provider Provider, apiKey string) (AcademicSearcher, error) {
	switch provider {
	case ExaProvider:
		return exa.Search{ApiKey: apiKey}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
