package reviewable

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openagora/agora/internal/repository"
	"github.com/openagora/agora/pkg/errors"
)

const defaultSuspension = 7 * 24 * time.Hour

// RegisterDefaults installs the built-in action tables for the three shipped
// variants. Callers embedding the engine can register further variants on the
// same catalog.
func RegisterDefaults(c *Catalog) {
	registerFlaggedPost(c)
	registerQueuedPost(c)
	registerReport(c)
}

func statusPtr(s Status) *Status {
	return &s
}

func resolveAll(s ResolutionStatus) *ScoreResolution {
	return &ScoreResolution{Status: s}
}

// mutateTarget runs one side effect against the item's target. A missing
// target is tolerated: the content may have been removed through another path
// while the item sat in the queue, and the judgment still has to land.
func mutateTarget(ctx context.Context, step *StepContext, op string, fn func(m repository.TargetMutator) error) error {
	if step.Targets == nil {
		return nil
	}
	m, ok := step.Targets.For(step.Item.TargetType)
	if !ok {
		return nil
	}
	if err := fn(m); err != nil {
		if errors.Is(err, errors.ErrTargetNotFound) {
			if step.Log != nil {
				step.Log.Warn("target gone before judgment, continuing",
					zap.String("op", op),
					zap.String("target_type", string(step.Item.TargetType)),
					zap.Int64("target_id", step.Item.TargetID),
				)
			}
			return nil
		}
		return err
	}
	return nil
}

func registerFlaggedPost(c *Catalog) {
	c.Register(VariantFlaggedPost, &Action{
		Descriptor: ActionDescriptor{
			ID:       "agree_and_keep",
			BundleID: "agree",
			Label:    "Yes, keep post",
			Icon:     "thumbs-up",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			return &PerformResult{
				NewStatus:      statusPtr(StatusApproved),
				Resolution:     resolveAll(ResolutionAgreed),
				RecomputeScore: true,
			}, nil
		},
	})

	c.Register(VariantFlaggedPost, &Action{
		Descriptor: ActionDescriptor{
			ID:       "agree_and_hide",
			BundleID: "agree",
			Label:    "Yes, hide post",
			Icon:     "eye-slash",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			if err := mutateTarget(ctx, step, "hide", func(m repository.TargetMutator) error {
				return m.Hide(ctx, step.Item.TargetID)
			}); err != nil {
				return nil, err
			}
			return &PerformResult{
				NewStatus:      statusPtr(StatusApproved),
				Resolution:     resolveAll(ResolutionAgreed),
				RecomputeScore: true,
			}, nil
		},
	})

	c.Register(VariantFlaggedPost, &Action{
		Descriptor: ActionDescriptor{
			ID:                   "agree_and_suspend",
			BundleID:             "agree",
			Label:                "Yes, suspend author",
			Icon:                 "ban",
			RequiresConfirmation: true,
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			until := time.Now().Add(suspensionFromArgs(step.Args))
			err := mutateTarget(ctx, step, "suspend", func(m repository.TargetMutator) error {
				if err := m.Hide(ctx, step.Item.TargetID); err != nil {
					return err
				}
				return m.SuspendAuthor(ctx, step.Item.TargetID, until)
			})
			if err != nil {
				return nil, err
			}
			return &PerformResult{
				NewStatus:      statusPtr(StatusApproved),
				Resolution:     resolveAll(ResolutionAgreed),
				RecomputeScore: true,
				Detail:         "author suspended until " + until.UTC().Format(time.RFC3339),
			}, nil
		},
	})

	c.Register(VariantFlaggedPost, &Action{
		Descriptor: ActionDescriptor{
			ID:                   "delete_and_agree",
			BundleID:             "agree",
			Label:                "Yes, delete post",
			Icon:                 "trash",
			RequiresConfirmation: true,
			ClientSideEffect:     "remove_row",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			if err := mutateTarget(ctx, step, "delete", func(m repository.TargetMutator) error {
				return m.Delete(ctx, step.Item.TargetID)
			}); err != nil {
				return nil, err
			}
			return &PerformResult{
				NewStatus:      statusPtr(StatusDeleted),
				Resolution:     resolveAll(ResolutionAgreed),
				RecomputeScore: true,
			}, nil
		},
	})

	c.Register(VariantFlaggedPost, &Action{
		Descriptor: ActionDescriptor{
			ID:    "disagree",
			Label: "No, restore post",
			Icon:  "thumbs-down",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			if err := mutateTarget(ctx, step, "restore", func(m repository.TargetMutator) error {
				return m.Restore(ctx, step.Item.TargetID)
			}); err != nil {
				return nil, err
			}
			return &PerformResult{
				NewStatus:      statusPtr(StatusRejected),
				Resolution:     resolveAll(ResolutionDisagreed),
				RecomputeScore: true,
			}, nil
		},
	})

	c.Register(VariantFlaggedPost, &Action{
		Descriptor: ActionDescriptor{
			ID:    "ignore",
			Label: "Ignore flags",
			Icon:  "external-link-alt",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			return &PerformResult{
				NewStatus:      statusPtr(StatusIgnored),
				Resolution:     resolveAll(ResolutionIgnored),
				RecomputeScore: true,
			}, nil
		},
	})
}

func registerQueuedPost(c *Catalog) {
	c.Register(VariantQueuedPost, &Action{
		Descriptor: ActionDescriptor{
			ID:               "approve_post",
			Label:            "Approve post",
			Icon:             "check",
			ClientSideEffect: "refresh",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			result := &PerformResult{
				NewStatus:      statusPtr(StatusApproved),
				Resolution:     resolveAll(ResolutionAgreed),
				RecomputeScore: true,
			}
			if step.Targets != nil {
				m, ok := step.Targets.For(step.Item.TargetType)
				if ok {
					created, err := m.CreateFromDraft(ctx, step.Item.Payload)
					if err != nil {
						return nil, err
					}
					// Record where the draft landed, for the author and the log.
					result.EditDelta = map[string]interface{}{
						"published_target_id": created.ID,
					}
				}
			}
			return result, nil
		},
	})

	c.Register(VariantQueuedPost, &Action{
		Descriptor: ActionDescriptor{
			ID:    "reject_post",
			Label: "Reject post",
			Icon:  "times",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			return &PerformResult{
				NewStatus:      statusPtr(StatusRejected),
				Resolution:     resolveAll(ResolutionDisagreed),
				RecomputeScore: true,
			}, nil
		},
	})
}

func registerReport(c *Catalog) {
	c.Register(VariantReport, &Action{
		Descriptor: ActionDescriptor{
			ID:    "resolve",
			Label: "Resolve report",
			Icon:  "check",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			if hide, _ := step.Args["hide_target"].(bool); hide {
				if err := mutateTarget(ctx, step, "hide", func(m repository.TargetMutator) error {
					return m.Hide(ctx, step.Item.TargetID)
				}); err != nil {
					return nil, err
				}
			}
			return &PerformResult{
				NewStatus:      statusPtr(StatusApproved),
				Resolution:     resolveAll(ResolutionAgreed),
				RecomputeScore: true,
			}, nil
		},
	})

	c.Register(VariantReport, &Action{
		Descriptor: ActionDescriptor{
			ID:    "dismiss",
			Label: "Dismiss report",
			Icon:  "times",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			return &PerformResult{
				NewStatus:      statusPtr(StatusRejected),
				Resolution:     resolveAll(ResolutionDisagreed),
				RecomputeScore: true,
			}, nil
		},
	})

	c.Register(VariantReport, &Action{
		Descriptor: ActionDescriptor{
			ID:    "ignore",
			Label: "Ignore report",
			Icon:  "external-link-alt",
		},
		Applicable: pendingOnly,
		Handler: func(ctx context.Context, step *StepContext) (*PerformResult, error) {
			return &PerformResult{
				NewStatus:      statusPtr(StatusIgnored),
				Resolution:     resolveAll(ResolutionIgnored),
				RecomputeScore: true,
			}, nil
		},
	})
}

func suspensionFromArgs(args map[string]interface{}) time.Duration {
	if args == nil {
		return defaultSuspension
	}
	switch v := args["suspend_days"].(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * 24 * time.Hour
		}
	case int:
		if v > 0 {
			return time.Duration(v) * 24 * time.Hour
		}
	}
	return defaultSuspension
}
