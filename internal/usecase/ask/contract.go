package ask

import (
	"context"

	domcat "github.com/carelens/costnav/internal/domain/catalog"
	domq "github.com/carelens/costnav/internal/domain/query"
	"github.com/carelens/costnav/internal/usecase/governor"
	searchuc "github.com/carelens/costnav/internal/usecase/search"
)

// Translator turns a natural-language question into a structured proposal.
type Translator interface {
	Translate(ctx context.Context, question string) (domq.Proposal, error)
}

// Governor decides whether a proposal may execute.
type Governor interface {
	Authorize(p domq.Proposal) (governor.Authorized, error)
}

// Searcher runs authorized filter intents.
type Searcher interface {
	Search(ctx context.Context, p searchuc.Params) ([]domcat.Row, error)
}

// Executor runs authorized aggregate statements.
type Executor interface {
	Execute(ctx context.Context, sq domq.SafeQuery) ([]map[string]any, error)
}
