package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/tailord/tailord/internal/core"
	"github.com/tailord/tailord/internal/gateway"
)

// GatewayResearcher produces the research brief with a light model call.
type GatewayResearcher struct {
	Gateway *gateway.Gateway
}

func (r *GatewayResearcher) Brief(ctx context.Context, company, role, jobDescription string) (string, error) {
	brief, err := r.Gateway.Generate(ctx, researchPrompt(company, role, jobDescription), gateway.ClassLight, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(brief), nil
}

// UnconfiguredEnricher is the default when no contact-lookup backend is
// configured. It always errors, which the pipeline treats as a degrade, so
// cold outreach proceeds with whatever the caller provided.
type UnconfiguredEnricher struct{}

func (UnconfiguredEnricher) Enrich(context.Context, string, core.Contact) (core.Contact, error) {
	return core.Contact{}, errors.New("no contact enrichment backend configured")
}

var (
	_ Researcher      = (*GatewayResearcher)(nil)
	_ ContactEnricher = UnconfiguredEnricher{}
)
