package automod

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"

	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/internal/service/reviewable"
	"github.com/openagora/agora/pkg/errors"
)

// Content is what a rule expression sees. Fields mirror what the platform
// knows about a piece of content at submission time.
type Content struct {
	TargetType  string  `expr:"target_type"`
	TargetID    int64   `expr:"target_id"`
	Body        string  `expr:"body"`
	Title       string  `expr:"title"`
	AuthorID    string  `expr:"author_id"`
	AuthorAge   int     `expr:"author_age_days"`
	AuthorTrust float64 `expr:"author_trust"`
	LinkCount   int     `expr:"link_count"`
	GroupID     *int64  `expr:"group_id"`
}

// Rule flags content for review when its expression evaluates true.
type Rule struct {
	Name string
	// When is a boolean expression over Content, e.g.
	// `link_count > 3 and author_age_days < 2`.
	When string
	// Kind is the flag reason attached to the resulting contribution.
	Kind string
	// TookAction marks rules whose match also hides the content up front.
	TookAction bool

	program *vm.Program
}

// Engine evaluates compiled rules against incoming content and feeds matches
// into the review queue as the system actor.
type Engine struct {
	rules   []*Rule
	service *reviewable.Service
	actor   reviewable.Actor
	log     *zap.Logger
}

// NewEngine compiles the rules. A rule that fails to compile is a
// configuration error and rejects the whole set.
func NewEngine(rules []*Rule, service *reviewable.Service, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for _, r := range rules {
		if r.Name == "" || r.When == "" {
			return nil, errors.Wrap(errors.ErrValidation, "automod rule needs a name and an expression")
		}
		program, err := expr.Compile(r.When, expr.Env(Content{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile automod rule %q: %w", r.Name, err)
		}
		r.program = program
	}
	return &Engine{
		rules:   rules,
		service: service,
		actor:   reviewable.Actor{ID: "system:automod", Username: "automod", System: true},
		log:     log.With(zap.String("component", "automod")),
	}, nil
}

// Check runs every rule against the content. The first match admits the
// content for review with the rule's flag kind; later matches add further
// score contributions through the usual dedup-by-actor path.
func (e *Engine) Check(ctx context.Context, content Content) (*reviewable.Reviewable, error) {
	var item *reviewable.Reviewable
	for _, rule := range e.rules {
		out, err := expr.Run(rule.program, content)
		if err != nil {
			e.log.Warn("automod rule evaluation failed",
				zap.String("rule", rule.Name),
				zap.Error(err),
			)
			continue
		}
		matched, _ := out.(bool)
		if !matched {
			continue
		}

		e.log.Info("automod rule matched",
			zap.String("rule", rule.Name),
			zap.String("target_type", content.TargetType),
			zap.Int64("target_id", content.TargetID),
		)
		if item == nil {
			item, err = e.service.NeedsReview(ctx, reviewable.NeedsReviewRequest{
				TargetType: repository.TargetType(content.TargetType),
				TargetID:   content.TargetID,
				Variant:    reviewable.VariantFlaggedPost,
				Actor:      e.actor,
				Kind:       rule.Kind,
				TookAction: rule.TookAction,
				GroupID:    content.GroupID,
			})
			if err != nil {
				return nil, err
			}
			continue
		}
		if _, err := e.service.AddScore(ctx, item.ID, e.actor, rule.Kind, rule.TookAction); err != nil {
			e.log.Warn("automod score contribution failed",
				zap.String("rule", rule.Name),
				zap.Error(err),
			)
		}
	}
	return item, nil
}
