package app

import (
	"context"

	"github.com/artpar/awsapigw/domain/provision"
	"github.com/artpar/awsapigw/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// attachPlans associates keyID with every requested plan, at most
// PlanConcurrency at a time. A failed plan is logged and skipped; Attached
// keeps the request order.
func (s *LifecycleService) attachPlans(ctx context.Context, ks ports.KeyService, keyID string, plans []string, log zerolog.Logger) provision.PartialAssociation {
	assoc := provision.PartialAssociation{
		Requested: plans,
		Attached:  make([]string, 0, len(plans)),
	}
	if len(plans) == 0 {
		return assoc
	}

	errs := make([]error, len(plans))
	var g errgroup.Group
	g.SetLimit(s.Defaults().PlanConcurrency)
	for i, plan := range plans {
		i, plan := i, plan
		g.Go(func() error {
			errs[i] = ks.AttachUsagePlan(ctx, keyID, plan)
			return nil
		})
	}
	g.Wait()

	for i, plan := range plans {
		s.observeCall("attach_usage_plan", errs[i])
		s.metrics.ObservePlanAssociation(errs[i] == nil)
		if errs[i] != nil {
			if assoc.Failed == nil {
				assoc.Failed = make(map[string]error)
			}
			assoc.Failed[plan] = errs[i]
			log.Warn().Err(errs[i]).Str("plan_id", plan).Msg("failed to attach usage plan")
			continue
		}
		assoc.Attached = append(assoc.Attached, plan)
	}

	if assoc.Partial() {
		log.Warn().
			Strs("requested", assoc.Requested).
			Strs("attached", assoc.Attached).
			Msg("api key created with partial usage plan association")
	}
	return assoc
}
