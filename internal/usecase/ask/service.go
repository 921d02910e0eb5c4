// Package ask answers natural-language questions about the pricing catalog.
// The flow is translate, authorize, execute, summarize. Nothing the
// translator produces reaches the database without a governor verdict.
package ask

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carelens/costnav/internal/domain"
	domcat "github.com/carelens/costnav/internal/domain/catalog"
	domq "github.com/carelens/costnav/internal/domain/query"
	"github.com/carelens/costnav/internal/metrics"
)

// scopeAnswer is the single user-facing phrasing for questions the service
// declines to run, whether the translator tagged them out of scope or the
// governor rejected the proposal. Rejection details stay in logs.
const scopeAnswer = "I can only answer questions about hospital providers, procedure prices, and ratings in this dataset."

// noMatchAnswer is returned when an authorized query yields zero rows.
const noMatchAnswer = "No matching records were found."

// Result is a completed answer. At most one of Rows and Records is set;
// both nil means the answer carries no tabular results.
type Result struct {
	Answer  string
	Rows    []domcat.Row
	Records []map[string]any
}

// Service orchestrates the question-answering flow.
type Service struct {
	translator Translator
	governor   Governor
	search     Searcher
	executor   Executor
}

// New creates an ask service.
func New(translator Translator, gov Governor, search Searcher, executor Executor) *Service {
	return &Service{translator: translator, governor: gov, search: search, executor: executor}
}

// Ask answers a question. Declined questions produce a Result with an
// explanatory answer and no results, not an error; errors are reserved for
// invalid input and infrastructure failures.
func (s *Service) Ask(ctx context.Context, question string) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, fmt.Errorf("%w: question must not be empty", domain.ErrInvalidQuery)
	}

	proposal, err := s.translator.Translate(ctx, question)
	if err != nil {
		return Result{}, err
	}

	authorized, err := s.governor.Authorize(proposal)
	if err != nil {
		if errors.Is(err, domain.ErrRejected) {
			metrics.GovernedQueriesTotal.WithLabelValues(string(proposal.Intent()), "rejected").Inc()
			return Result{Answer: declineAnswer(proposal)}, nil
		}
		return Result{}, err
	}
	metrics.GovernedQueriesTotal.WithLabelValues(string(proposal.Intent()), "authorized").Inc()

	switch {
	case authorized.Filter != nil:
		rows, err := s.search.Search(ctx, *authorized.Filter)
		if err != nil {
			return Result{}, err
		}
		if len(rows) == 0 {
			return Result{Answer: noMatchAnswer}, nil
		}
		return Result{
			Answer: fmt.Sprintf("Found %d matching providers, sorted by average covered charges.", len(rows)),
			Rows:   rows,
		}, nil

	case authorized.Aggregate != nil:
		records, err := s.executor.Execute(ctx, *authorized.Aggregate)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", domain.ErrExecutionFailed, err)
		}
		if len(records) == 0 {
			return Result{Answer: noMatchAnswer}, nil
		}
		return Result{
			Answer:  fmt.Sprintf("Computed %d result rows.", len(records)),
			Records: records,
		}, nil

	default:
		return Result{}, fmt.Errorf("%w: authorization produced no executable plan", domain.ErrExecutionFailed)
	}
}

// declineAnswer picks the user-facing text for a rejected proposal. Ambiguous
// questions carry the translator's own explanation; everything else collapses
// to the scope message.
func declineAnswer(p domq.Proposal) string {
	if p.Intent() == domq.IntentAmbiguous && p.Note() != "" {
		return p.Note()
	}
	return scopeAnswer
}
